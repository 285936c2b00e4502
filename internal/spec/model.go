package spec

import (
	"context"
	"path/filepath"
	"strings"
)

// Loader is the interface for a format-specific specification loader.
type Loader interface {
	// Load reads the specification file at path and translates it into the
	// format-agnostic model.
	Load(ctx context.Context, path string) (*Spec, error)
}

// Spec is the unified representation of one pipeline specification file.
// It is immutable per load; a structural change on disk produces a wholly
// new Spec on the next load.
type Spec struct {
	// Path is the absolute path of the file this spec was loaded from.
	Path string

	Meta    Meta
	Clients map[string]string
	Tasks   []Task
}

// Dir returns the directory containing the specification file. Relative
// task sources and products resolve against it.
func (s *Spec) Dir() string {
	return filepath.Dir(s.Path)
}

// Meta holds the pipeline-wide flags this layer cares about.
type Meta struct {
	// ExtractUpstream declares that tasks list their dependencies inside
	// their own source (an `upstream = {...}` assignment) instead of the
	// specification file.
	ExtractUpstream bool

	// ExtractProduct declares that products live in the source too. When
	// neither extract flag is set and a task declares no product, the task
	// still renders; it just gets a None product literal.
	ExtractProduct bool

	// HotReload forces a specification re-parse on every access instead of
	// relying on the file's modification time.
	HotReload bool
}

// Task is the raw, unresolved declaration of a single task.
type Task struct {
	Name     string
	Source   string
	Product  Product
	Upstream []string
	// Class names the task implementation declared in the spec (SQLUpload,
	// NotebookRunner, ...). The contents layer only uses it to recognize
	// tasks that have no editable script surface.
	Class string
}

// EffectiveName returns the declared task name when one was given. A file
// source falls back to the file's stem, a dotted function reference to the
// function name (its last component).
func (t Task) EffectiveName() string {
	if t.Name != "" {
		return t.Name
	}
	base := filepath.Base(t.Source)
	i := strings.LastIndex(base, ".")
	if i <= 0 {
		return base
	}
	if base == t.Source && strings.Count(base, ".") > 1 {
		// my_tasks.raw.functions.raw names the function raw
		return base[i+1:]
	}
	return base[:i]
}

// Product is a task's declared output: either a single location or a named
// mapping of locations. Exactly one of Value/Mapping is set; a task with no
// declared product has neither.
type Product struct {
	Value   string
	Mapping map[string]string
}

// IsZero reports whether no product was declared.
func (p Product) IsZero() bool {
	return p.Value == "" && len(p.Mapping) == 0
}
