// Package funcdir simulates a directory tree for tasks whose source is a
// function inside a shared module file. Each such task appears as an
// individually addressable notebook entry next to the real module file,
// without ever materializing a file on disk. Nothing here holds state: the
// (directory, task) index is derived from the task graph on every call, so
// the virtual tree can never drift from the current graph.
package funcdir

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vk/pipebook/internal/ctxlog"
	"github.com/vk/pipebook/internal/graph"
	"github.com/vk/pipebook/internal/inject"
	"github.com/vk/pipebook/internal/notebook"
	"github.com/vk/pipebook/internal/pysrc"
)

// Entry is one synthetic listing entry for a function task.
type Entry struct {
	// Name is the task name; the virtual file is named after it.
	Name string
	// Dir is the absolute directory the entry appears in (the directory of
	// the module file that holds the function).
	Dir string
	// LastModified is the module file's modification time.
	LastModified time.Time
	// Notebook holds the rendered cells; nil for metadata-only listings.
	Notebook *notebook.Notebook
}

// Manager resolves virtual function-task paths against a task graph.
type Manager struct {
	analyzer *pysrc.Analyzer
}

// New creates a Manager sharing the given source analyzer.
func New(analyzer *pysrc.Analyzer) *Manager {
	return &Manager{analyzer: analyzer}
}

// HasTasksIn reports whether any function task's module lives under dir
// (dir itself or any subdirectory).
func (m *Manager) HasTasksIn(g *graph.Graph, dir string) bool {
	dir = filepath.Clean(dir)
	for _, node := range g.FunctionTasks() {
		module := node.Source.(graph.FunctionSource).Module
		if moduleDir := filepath.Dir(module); moduleDir == dir ||
			strings.HasPrefix(moduleDir, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// EntriesIn synthesizes one entry per function task whose module file sits
// directly in dir. With withContent false the entries carry metadata only,
// which is what directory listings need. A task whose function cannot be
// rendered (module unreadable, function gone) is excluded from the listing
// rather than aborting the whole directory.
func (m *Manager) EntriesIn(ctx context.Context, g *graph.Graph, dir string, withContent bool) []Entry {
	logger := ctxlog.FromContext(ctx)
	dir = filepath.Clean(dir)

	var entries []Entry
	for _, node := range g.FunctionTasks() {
		src := node.Source.(graph.FunctionSource)
		if filepath.Dir(src.Module) != dir {
			continue
		}

		info, err := os.Stat(src.Module)
		if err != nil {
			logger.Debug("Skipping function task with unreadable module.",
				"task", node.Name, "module", src.Module, "error", err)
			continue
		}

		entry := Entry{Name: node.Name, Dir: dir, LastModified: info.ModTime()}
		if withContent {
			nb, err := m.render(ctx, node, src)
			if err != nil {
				logger.Debug("Skipping function task that failed to render.",
					"task", node.Name, "error", err)
				continue
			}
			entry.Notebook = nb
		}
		entries = append(entries, entry)
	}
	return entries
}

// Resolve maps a virtual absolute path (module directory + task name) to its
// function task, or nil when the path is not synthetic.
func (m *Manager) Resolve(g *graph.Graph, path string) *graph.Node {
	path = filepath.Clean(path)
	for _, node := range g.FunctionTasks() {
		src := node.Source.(graph.FunctionSource)
		if filepath.Join(filepath.Dir(src.Module), node.Name) == path {
			return node
		}
	}
	return nil
}

// NotebookAt renders the function task at a virtual path as a notebook with
// the parameters cell injected.
func (m *Manager) NotebookAt(ctx context.Context, g *graph.Graph, node *graph.Node) (*notebook.Notebook, error) {
	src, ok := node.Source.(graph.FunctionSource)
	if !ok {
		return nil, &pysrc.FunctionNotFoundError{Module: "", Function: node.Name}
	}
	return m.render(ctx, node, src)
}

// render extracts the function body, converts it like a percent script (so
// explicit cell markers inside the body survive round trips) and injects
// the parameters cell.
func (m *Manager) render(ctx context.Context, node *graph.Node, src graph.FunctionSource) (*notebook.Notebook, error) {
	moduleSrc, err := os.ReadFile(src.Module)
	if err != nil {
		return nil, err
	}
	funcs, err := m.analyzer.Functions(ctx, moduleSrc)
	if err != nil {
		return nil, err
	}
	f, ok := pysrc.Lookup(funcs, src.Function)
	if !ok {
		return nil, &pysrc.FunctionNotFoundError{Module: src.Module, Function: src.Function}
	}

	nb := notebook.FromScript(f.Body(moduleSrc) + "\n")
	return inject.Inject(nb, node)
}

// Overwrite replaces the function's body inside its module file with the
// notebook's cells, stripping any injected cell first. Every byte of the
// module outside the target function is preserved.
func (m *Manager) Overwrite(ctx context.Context, node *graph.Node, nb *notebook.Notebook) error {
	src, ok := node.Source.(graph.FunctionSource)
	if !ok {
		return &pysrc.FunctionNotFoundError{Module: "", Function: node.Name}
	}

	moduleSrc, err := os.ReadFile(src.Module)
	if err != nil {
		return err
	}

	body := notebook.ToScript(inject.Strip(nb))
	out, err := m.analyzer.ReplaceBody(ctx, moduleSrc, src.Module, src.Function, body)
	if err != nil {
		return err
	}

	perm := os.FileMode(0o644)
	if info, err := os.Stat(src.Module); err == nil {
		perm = info.Mode().Perm()
	}
	return os.WriteFile(src.Module, out, perm)
}
