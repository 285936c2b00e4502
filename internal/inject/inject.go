// Package inject owns the ephemeral parameters cell: building it from a
// task's resolved upstream and product values, placing it into a notebook
// on read, and finding and stripping it again before anything is persisted.
package inject

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vk/pipebook/internal/graph"
	"github.com/vk/pipebook/internal/notebook"
)

// Tag marks the injected cell. The persisted form of a source never
// contains a cell with this tag.
const Tag = "injected-parameters"

// SerializationError reports a task whose upstream or product values have no
// Python literal form. Injection aborts for that task only.
type SerializationError struct {
	Task string
	Err  error
}

// Error implements the error interface.
func (e *SerializationError) Error() string {
	return fmt.Sprintf("cannot serialize parameters for task %q: %v", e.Task, e.Err)
}

// Unwrap exposes the underlying rendering error.
func (e *SerializationError) Unwrap() error {
	return e.Err
}

// Inject returns a copy of nb with the task's parameters cell at the top of
// the cell sequence, replacing an existing one in place. A nil node, a
// node marked NoInject, or a task without an editable script surface is a
// silent no-op: many task types (data uploads, SQL) have no script, and
// treating them as errors would break plain browsing.
func Inject(nb *notebook.Notebook, node *graph.Node) (*notebook.Notebook, error) {
	if nb == nil || node == nil || node.NoInject {
		return nb, nil
	}
	switch node.Source.(type) {
	case graph.FileSource, graph.FunctionSource:
	default:
		return nb, nil
	}

	source, err := cellSource(node)
	if err != nil {
		return nil, &SerializationError{Task: node.Name, Err: err}
	}

	cell := notebook.Cell{
		Type:     notebook.Code,
		Source:   source,
		Metadata: notebook.CellMetadata{Tags: []string{Tag}},
	}

	out := nb.Clone()
	for i := range out.Cells {
		if out.Cells[i].HasTag(Tag) {
			out.Cells[i] = cell
			return out, nil
		}
	}
	out.Cells = append([]notebook.Cell{cell}, out.Cells...)
	return out, nil
}

// Strip returns a copy of nb without any parameters cell. Stripping a
// notebook that has none returns it unchanged.
func Strip(nb *notebook.Notebook) *notebook.Notebook {
	if InjectedCell(nb) == nil {
		return nb
	}
	out := nb.Clone()
	kept := out.Cells[:0]
	for _, cell := range out.Cells {
		if !cell.HasTag(Tag) {
			kept = append(kept, cell)
		}
	}
	out.Cells = kept
	return out
}

// InjectedCell returns the parameters cell of nb, or nil.
func InjectedCell(nb *notebook.Notebook) *notebook.Cell {
	for i := range nb.Cells {
		if nb.Cells[i].HasTag(Tag) {
			return &nb.Cells[i]
		}
	}
	return nil
}

// cellSource renders the two assignments carried by the injected cell.
func cellSource(node *graph.Node) (string, error) {
	upstream, err := upstreamLiteral(node)
	if err != nil {
		return "", err
	}

	product := node.ProductLiteral
	if product == "" {
		product, err = PyLiteral(node.Product)
		if err != nil {
			return "", err
		}
	}

	return "upstream = " + upstream + "\nproduct = " + product, nil
}

// upstreamLiteral renders the upstream mapping, or None for a task with no
// upstream.
func upstreamLiteral(node *graph.Node) (string, error) {
	if len(node.Upstream) == 0 {
		return "None", nil
	}

	names := make([]string, 0, len(node.Upstream))
	for name := range node.Upstream {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		rendered, err := PyLiteral(node.Upstream[name])
		if err != nil {
			return "", err
		}
		parts = append(parts, pyQuote(name)+": "+rendered)
	}
	return "{" + strings.Join(parts, ", ") + "}", nil
}
