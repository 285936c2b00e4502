package graph

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/pipebook/internal/ctxlog"
	"github.com/vk/pipebook/internal/pysrc"
	"github.com/vk/pipebook/internal/spec"
)

var scriptExts = map[string]bool{
	".py":    true,
	".ipynb": true,
	".r":     true,
	".rmd":   true,
}

// dottedRe matches function references like my_tasks.raw.functions.raw.
var dottedRe = regexp.MustCompile(`^[A-Za-z_]\w*(\.[A-Za-z_]\w*)+$`)

// Build renders a specification into a Graph. Tasks whose parameters cannot
// be resolved are marked NoInject instead of failing the build; only a
// structurally broken spec (duplicate names, dependency cycles) is an error.
func Build(ctx context.Context, s *spec.Spec, analyzer *pysrc.Analyzer) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)

	g := &Graph{
		SpecPath: s.Path,
		Dir:      s.Dir(),
		Meta:     s.Meta,
		byName:   make(map[string]*Node),
		byPath:   make(map[string]*Node),
	}

	for _, t := range s.Tasks {
		node := &Node{
			Name:   t.Name,
			Source: classifySource(g.Dir, t),
		}
		if node.Name == "" {
			// The classified source is authoritative for default names:
			// function tasks are named after the function, everything else
			// after the file stem.
			if fn, ok := node.Source.(FunctionSource); ok {
				node.Name = fn.Function
			} else {
				node.Name = t.EffectiveName()
			}
		}
		if _, dup := g.byName[node.Name]; dup {
			return nil, fmt.Errorf("duplicate task name %q", node.Name)
		}
		resolveProduct(ctx, g, node, t, analyzer)

		g.nodes = append(g.nodes, node)
		g.byName[node.Name] = node
		if fs, ok := node.Source.(FileSource); ok {
			g.byPath[fs.Path] = node
		}
	}

	// Upstream resolution needs every node's product, so it runs after the
	// first pass.
	edges := make(map[string][]string)
	for i, t := range s.Tasks {
		node := g.nodes[i]
		names, declared := upstreamNames(ctx, g, node, t, analyzer)
		if !declared {
			continue
		}
		resolved := make(map[string]cty.Value, len(names))
		for _, name := range names {
			up := g.byName[name]
			if up == nil {
				logger.Debug("Upstream reference does not match any task.",
					"task", node.Name, "upstream", name)
				node.NoInject = true
				resolved = nil
				break
			}
			resolved[name] = up.Product
			edges[node.Name] = append(edges[node.Name], name)
		}
		node.Upstream = resolved
	}

	if err := detectCycles(g, edges); err != nil {
		return nil, err
	}

	logger.Debug("Task graph built.", "spec", s.Path, "tasks", len(g.nodes))
	return g, nil
}

// classifySource maps a raw source declaration to its variant. Script
// extensions make a file task, dotted references a function task, anything
// else is opaque.
func classifySource(dir string, t spec.Task) Source {
	ext := strings.ToLower(filepath.Ext(t.Source))
	switch {
	case scriptExts[ext]:
		path := t.Source
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		return FileSource{Path: filepath.Clean(path)}
	case dottedRe.MatchString(t.Source):
		parts := strings.Split(t.Source, ".")
		module := filepath.Join(append([]string{dir}, parts[:len(parts)-1]...)...) + ".py"
		return FunctionSource{
			Module:   module,
			Function: parts[len(parts)-1],
			DotPath:  t.Source,
		}
	default:
		return OpaqueSource{Raw: t.Source}
	}
}

// resolveProduct fills the node's product value and filesystem locations.
// A task with no declared product gets a null value, which renders as None;
// cty.NilVal is never stored because its zero Type cannot be compared.
func resolveProduct(ctx context.Context, g *Graph, node *Node, t spec.Task, analyzer *pysrc.Analyzer) {
	node.Product = cty.NullVal(cty.DynamicPseudoType)
	switch {
	case t.Product.Value != "":
		abs := absolutize(g.Dir, t.Product.Value, node.Source)
		node.Product = cty.StringVal(abs)
		node.ProductPaths = []string{abs}
	case len(t.Product.Mapping) > 0:
		attrs := make(map[string]cty.Value, len(t.Product.Mapping))
		keys := make([]string, 0, len(t.Product.Mapping))
		for k := range t.Product.Mapping {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			abs := absolutize(g.Dir, t.Product.Mapping[k], node.Source)
			attrs[k] = cty.StringVal(abs)
			node.ProductPaths = append(node.ProductPaths, abs)
		}
		node.Product = cty.ObjectVal(attrs)
	case g.Meta.ExtractProduct:
		// The product literal lives in the source itself; keep it verbatim.
		if fs, ok := node.Source.(FileSource); ok {
			if src, err := os.ReadFile(fs.Path); err == nil {
				if lit, found, err := analyzer.LiteralText(ctx, src, "product"); err == nil && found {
					node.ProductLiteral = lit
				}
			}
		}
	}
}

// absolutize resolves a product location against the spec directory. Opaque
// tasks keep their product declarations untouched; database relations are
// not paths.
func absolutize(dir, location string, source Source) string {
	if _, opaque := source.(OpaqueSource); opaque {
		return location
	}
	if filepath.IsAbs(location) {
		return filepath.Clean(location)
	}
	return filepath.Join(dir, location)
}

// upstreamNames returns a task's declared dependency names, reading them out
// of the script when the pipeline extracts upstream from sources.
func upstreamNames(ctx context.Context, g *Graph, node *Node, t spec.Task, analyzer *pysrc.Analyzer) ([]string, bool) {
	if len(t.Upstream) > 0 {
		return t.Upstream, true
	}
	if !g.Meta.ExtractUpstream {
		return nil, false
	}
	fs, ok := node.Source.(FileSource)
	if !ok || strings.ToLower(filepath.Ext(fs.Path)) != ".py" {
		return nil, false
	}
	src, err := os.ReadFile(fs.Path)
	if err != nil {
		ctxlog.FromContext(ctx).Debug("Cannot read source for upstream extraction.",
			"task", node.Name, "path", fs.Path, "error", err)
		return nil, false
	}
	names, declared, err := analyzer.UpstreamNames(ctx, src)
	if err != nil || !declared {
		return nil, false
	}
	return names, true
}

// detectCycles runs a depth-first walk over the declared dependency edges.
func detectCycles(g *Graph, edges map[string][]string) error {
	const (
		white = iota // unvisited
		gray         // in progress
		black        // done
	)
	colors := make(map[string]int, len(g.nodes))

	var visit func(name string) error
	visit = func(name string) error {
		colors[name] = gray
		for _, dep := range edges[name] {
			switch colors[dep] {
			case gray:
				return fmt.Errorf("dependency cycle detected through task %q", dep)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		colors[name] = black
		return nil
	}

	for _, n := range g.nodes {
		if colors[n.Name] == white {
			if err := visit(n.Name); err != nil {
				return err
			}
		}
	}
	return nil
}
