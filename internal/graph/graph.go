// Package graph renders a loaded specification into the task graph the
// contents layer dispatches on: per task a resolved source variant, resolved
// product locations and a resolved upstream mapping. A Graph is immutable
// once built; a structural change in the pipeline produces a wholly new
// Graph on the next build.
package graph

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/pipebook/internal/spec"
)

// Source is the tagged variant over task source kinds. Injection and
// overwrite operations switch over the concrete type instead of probing
// attributes.
type Source interface {
	isSource()
}

// FileSource is a task backed by a standalone script on disk.
type FileSource struct {
	// Path is absolute.
	Path string
}

// FunctionSource is a task backed by a function inside a shared module file.
type FunctionSource struct {
	// Module is the absolute path of the .py file holding the function.
	Module string
	// Function is the def name inside the module.
	Function string
	// DotPath is the original dotted reference from the spec.
	DotPath string
}

// OpaqueSource is a task with no editable script surface (data uploads, SQL
// relations and the like). Such tasks are browsable but never annotated.
type OpaqueSource struct {
	Raw string
}

func (FileSource) isSource()     {}
func (FunctionSource) isSource() {}
func (OpaqueSource) isSource()   {}

// Node is one rendered task.
type Node struct {
	Name   string
	Source Source

	// Product is the resolved product value (a string or an object of
	// strings with absolute locations); a null value when the task declares
	// none in the spec.
	Product cty.Value
	// ProductLiteral holds the raw Python literal when the product lives in
	// the source itself (extract_product) instead of the spec.
	ProductLiteral string
	// ProductPaths lists the product's filesystem locations, used to clean
	// up side-channel metadata files on save.
	ProductPaths []string

	// Upstream maps upstream task names to their product values. Nil when
	// the task has no upstream.
	Upstream map[string]cty.Value

	// NoInject marks a node whose parameters cannot be resolved right now,
	// typically an upstream reference to a task that no longer exists. The
	// task stays browsable; it just gets no injected cell.
	NoInject bool
}

// Graph is the rendered task graph.
type Graph struct {
	// SpecPath is the absolute path of the specification file this graph
	// was rendered from; Dir its directory.
	SpecPath string
	Dir      string
	Meta     spec.Meta

	nodes  []*Node
	byName map[string]*Node
	byPath map[string]*Node
}

// Nodes returns the graph's tasks in declaration order.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// ByName returns the task with the given name, or nil.
func (g *Graph) ByName(name string) *Node {
	return g.byName[name]
}

// ByScriptPath returns the file-backed task whose source is the given
// absolute path, or nil.
func (g *Graph) ByScriptPath(abs string) *Node {
	return g.byPath[abs]
}

// FunctionTasks returns the tasks backed by functions inside shared modules.
func (g *Graph) FunctionTasks() []*Node {
	var out []*Node
	for _, n := range g.nodes {
		if _, ok := n.Source.(FunctionSource); ok {
			out = append(out, n)
		}
	}
	return out
}
