// Package hcladapter is the HCL-specific implementation of the spec.Loader
// interface, for projects that keep their pipeline in a pipeline.hcl file
// instead of YAML. Both adapters produce the same format-agnostic model.
package hcladapter

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/pipebook/internal/ctxlog"
	"github.com/vk/pipebook/internal/spec"
)

// Loader is the HCL specification loader.
type Loader struct{}

// NewLoader creates a new HCL specification loader.
func NewLoader() *Loader {
	return &Loader{}
}

// fileRoot decodes all top-level blocks of a pipeline.hcl file.
type fileRoot struct {
	Meta    *metaBlock        `hcl:"meta,block"`
	Clients map[string]string `hcl:"clients,optional"`
	Tasks   []*taskBlock      `hcl:"task,block"`
	Remain  hcl.Body          `hcl:",remain"`
}

type metaBlock struct {
	ExtractUpstream *bool `hcl:"extract_upstream,optional"`
	ExtractProduct  *bool `hcl:"extract_product,optional"`
	HotReload       *bool `hcl:"jupyter_hot_reload,optional"`
}

type taskBlock struct {
	Name     string    `hcl:"name,label"`
	Source   string    `hcl:"source"`
	Class    string    `hcl:"class,optional"`
	Product  cty.Value `hcl:"product,optional"`
	Upstream []string  `hcl:"upstream,optional"`
}

// Load parses and decodes the specification file at path.
func (l *Loader) Load(ctx context.Context, path string) (*spec.Spec, error) {
	logger := ctxlog.FromContext(ctx)

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(abs)
	if diags.HasErrors() {
		return nil, &spec.InvalidError{Path: abs, Err: diags}
	}

	var root fileRoot
	diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
	if diags.HasErrors() {
		return nil, &spec.InvalidError{Path: abs, Err: diags}
	}

	out := &spec.Spec{
		Path:    abs,
		Clients: root.Clients,
		Meta:    translateMeta(root.Meta),
	}
	for _, t := range root.Tasks {
		product, err := translateProduct(t.Product)
		if err != nil {
			return nil, &spec.InvalidError{Path: abs, Err: fmt.Errorf("task %q: %w", t.Name, err)}
		}
		out.Tasks = append(out.Tasks, spec.Task{
			Name:     t.Name,
			Source:   t.Source,
			Class:    t.Class,
			Product:  product,
			Upstream: t.Upstream,
		})
	}

	logger.Debug("HCL specification loaded.", "path", abs, "tasks", len(out.Tasks))
	return out, nil
}

func translateMeta(m *metaBlock) spec.Meta {
	out := spec.Meta{ExtractUpstream: true}
	if m == nil {
		return out
	}
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

// translateProduct accepts a string location or an object of named string
// locations, matching what the YAML adapter accepts.
func translateProduct(v cty.Value) (spec.Product, error) {
	if v == cty.NilVal || v.IsNull() {
		return spec.Product{}, nil
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return spec.Product{Value: v.AsString()}, nil
	case ty.IsObjectType() || ty.IsMapType():
		mapping := make(map[string]string, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			if ev.Type() != cty.String {
				return spec.Product{}, fmt.Errorf("product entry %q must be a string", k.AsString())
			}
			mapping[k.AsString()] = ev.AsString()
		}
		return spec.Product{Mapping: mapping}, nil
	}
	return spec.Product{}, fmt.Errorf("product must be a string or an object of strings, got %s", ty.FriendlyName())
}
