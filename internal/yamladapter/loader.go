// Package yamladapter is the YAML-specific implementation of the
// spec.Loader interface. It decodes the `meta` / `clients` / `tasks`
// mapping of a pipeline.yaml file into the format-agnostic model.
package yamladapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/vk/pipebook/internal/ctxlog"
	"github.com/vk/pipebook/internal/spec"
)

// Loader is the YAML configuration loader.
type Loader struct{}

// NewLoader creates a new YAML specification loader.
func NewLoader() *Loader {
	return &Loader{}
}

// fileRoot decodes the top-level mapping of a specification file.
type fileRoot struct {
	Meta    metaNode          `yaml:"meta"`
	Clients map[string]string `yaml:"clients"`
	Tasks   []taskNode        `yaml:"tasks"`
}

type metaNode struct {
	ExtractUpstream *bool `yaml:"extract_upstream"`
	ExtractProduct  *bool `yaml:"extract_product"`
	HotReload       *bool `yaml:"jupyter_hot_reload"`
}

type taskNode struct {
	Name     string       `yaml:"name"`
	Source   string       `yaml:"source"`
	Class    string       `yaml:"class"`
	Product  productNode  `yaml:"product"`
	Upstream upstreamNode `yaml:"upstream"`
}

// productNode accepts either a scalar location or a named mapping.
type productNode struct {
	value   string
	mapping map[string]string
}

func (p *productNode) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return node.Decode(&p.value)
	case yaml.MappingNode:
		return node.Decode(&p.mapping)
	case yaml.SequenceNode:
		// Database-relation products ([name, kind]) have no filesystem
		// location; keep the first element as an opaque value.
		var parts []string
		if err := node.Decode(&parts); err != nil {
			return err
		}
		if len(parts) > 0 {
			p.value = parts[0]
		}
		return nil
	}
	return fmt.Errorf("line %d: product must be a scalar, mapping or sequence", node.Line)
}

// upstreamNode accepts a single name or a sequence of names.
type upstreamNode struct {
	names []string
}

func (u *upstreamNode) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var name string
		if err := node.Decode(&name); err != nil {
			return err
		}
		if name != "" {
			u.names = []string{name}
		}
		return nil
	case yaml.SequenceNode:
		return node.Decode(&u.names)
	}
	return fmt.Errorf("line %d: upstream must be a scalar or sequence", node.Line)
}

// Load reads and decodes the specification file at path.
func (l *Loader) Load(ctx context.Context, path string) (*spec.Spec, error) {
	logger := ctxlog.FromContext(ctx)

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("reading specification: %w", err)
	}

	var root fileRoot
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, &spec.InvalidError{Path: abs, Err: err}
	}

	out := &spec.Spec{
		Path:    abs,
		Clients: root.Clients,
		Meta:    translateMeta(root.Meta),
	}
	for _, t := range root.Tasks {
		out.Tasks = append(out.Tasks, spec.Task{
			Name:     t.Name,
			Source:   t.Source,
			Class:    t.Class,
			Product:  spec.Product{Value: t.Product.value, Mapping: t.Product.mapping},
			Upstream: t.Upstream.names,
		})
	}

	logger.Debug("YAML specification loaded.", "path", abs, "tasks", len(out.Tasks))
	return out, nil
}

// translateMeta applies the pipeline-wide defaults: upstream dependencies
// are extracted from sources unless the spec says otherwise, products are
// declared in the spec, hot reload is off.
func translateMeta(m metaNode) spec.Meta {
	out := spec.Meta{ExtractUpstream: true}
	if m.ExtractUpstream != nil {
		out.ExtractUpstream = *m.ExtractUpstream
	}
	if m.ExtractProduct != nil {
		out.ExtractProduct = *m.ExtractProduct
	}
	if m.HotReload != nil {
		out.HotReload = *m.HotReload
	}
	return out
}
