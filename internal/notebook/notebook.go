// Package notebook holds the in-memory notebook model exchanged with the
// host application, its nbformat-v4 JSON encoding, and the percent-format
// converter between plain scripts and notebooks.
package notebook

import (
	"encoding/json"
	"strings"
)

// Cell types.
const (
	Code     = "code"
	Markdown = "markdown"
	Raw      = "raw"
)

// Notebook is an ordered sequence of cells plus notebook-level metadata.
type Notebook struct {
	Cells       []Cell
	Metadata    map[string]any
	Format      int
	FormatMinor int
}

// Cell is a single notebook cell. Source holds the cell text without a
// trailing newline.
type Cell struct {
	Type     string
	Source   string
	Metadata CellMetadata
}

// CellMetadata carries the subset of cell metadata this layer reads and
// writes. Unknown metadata from the host is preserved in Extra.
type CellMetadata struct {
	Tags  []string
	Extra map[string]json.RawMessage
}

// HasTag reports whether the cell carries the given metadata tag.
func (c Cell) HasTag(tag string) bool {
	for _, t := range c.Metadata.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// New returns an empty v4 notebook.
func New() *Notebook {
	return &Notebook{Format: 4, FormatMinor: 5, Metadata: map[string]any{}}
}

// Clone returns a deep-enough copy: the cell slice is fresh so callers can
// insert and remove cells without mutating the original.
func (nb *Notebook) Clone() *Notebook {
	out := *nb
	out.Cells = make([]Cell, len(nb.Cells))
	copy(out.Cells, nb.Cells)
	return &out
}

// joinLines re-assembles an nbformat source list into a single string.
func joinLines(lines []string) string {
	return strings.TrimSuffix(strings.Join(lines, ""), "\n")
}

// splitLines renders a source string as the nbformat line list: every line
// keeps its trailing newline except the last.
func splitLines(source string) []string {
	if source == "" {
		return []string{}
	}
	lines := strings.SplitAfter(source, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
