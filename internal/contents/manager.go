// Package contents implements the virtual contents manager: the single
// entry point for listing, reading, writing, deleting and renaming paths
// against the composed real+virtual filesystem. Per path it decides whether
// to serve the plain file, inject a parameters cell into a task script, or
// delegate to the function-task directory manager. It also owns the task
// graph cache and its invalidation.
package contents

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vk/pipebook/internal/ctxlog"
	"github.com/vk/pipebook/internal/funcdir"
	"github.com/vk/pipebook/internal/graph"
	"github.com/vk/pipebook/internal/hcladapter"
	"github.com/vk/pipebook/internal/inject"
	"github.com/vk/pipebook/internal/notebook"
	"github.com/vk/pipebook/internal/pysrc"
	"github.com/vk/pipebook/internal/spec"
	"github.com/vk/pipebook/internal/yamladapter"
)

// MetadataSuffix is the side-channel file convention: each product location
// may have a bookkeeping file at <product> + MetadataSuffix left over from a
// previous run. Saving the owning task's source deletes it, because it no
// longer reflects the edited code.
const MetadataSuffix = ".source"

// ErrUnsupported is returned for delete and rename on synthetic paths:
// function tasks are edited in place only.
var ErrUnsupported = errors.New("operation not supported for function task entries")

// Config configures a Manager.
type Config struct {
	// Root is the directory served to the host. Required.
	Root string
	// EntryPoint optionally pins the specification file or a directory to
	// search; empty means $ENTRY_POINT and then upward discovery from Root.
	EntryPoint string
	// LoaderFor overrides format adapter selection, mainly for tests.
	LoaderFor func(path string) spec.Loader
}

// Manager is the contents manager facade.
type Manager struct {
	root       string
	entryPoint string
	loaderFor  func(path string) spec.Loader
	analyzer   *pysrc.Analyzer
	vdir       *funcdir.Manager
	cache      graphCache
}

// DefaultLoaderFor picks the format adapter by file extension: .hcl gets the
// HCL adapter, everything else YAML.
func DefaultLoaderFor(p string) spec.Loader {
	if strings.EqualFold(filepath.Ext(p), ".hcl") {
		return hcladapter.NewLoader()
	}
	return yamladapter.NewLoader()
}

// New creates a Manager serving cfg.Root.
func New(cfg Config) (*Manager, error) {
	if cfg.Root == "" {
		return nil, errors.New("Root is a required configuration field and cannot be empty")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}
	loaderFor := cfg.LoaderFor
	if loaderFor == nil {
		loaderFor = DefaultLoaderFor
	}
	analyzer := pysrc.NewAnalyzer()
	return &Manager{
		root:       root,
		entryPoint: cfg.EntryPoint,
		loaderFor:  loaderFor,
		analyzer:   analyzer,
		vdir:       funcdir.New(analyzer),
	}, nil
}

// Invalidate drops the cached task graph; the next access reloads it.
func (m *Manager) Invalidate() {
	m.cache.Invalidate()
}

// abs maps an API path (slash-separated, relative to the served root) to an
// absolute filesystem path. The cleaned path may not escape the root.
func (m *Manager) abs(apiPath string) (string, error) {
	cleaned := path.Clean("/" + strings.Trim(apiPath, "/"))
	full := filepath.Join(m.root, filepath.FromSlash(cleaned))
	if full != m.root && !strings.HasPrefix(full, m.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the served root", apiPath)
	}
	return full, nil
}

// apiPath maps an absolute filesystem path back to the host's slash form.
func (m *Manager) apiPath(abs string) string {
	rel, err := filepath.Rel(m.root, abs)
	if err != nil || rel == "." {
		return ""
	}
	return filepath.ToSlash(rel)
}

// List returns the directory model for an API path: the real entries merged
// with any synthetic function-task entries that belong to that directory.
func (m *Manager) List(ctx context.Context, apiPath string) (*Model, error) {
	abs, err := m.abs(apiPath)
	if err != nil {
		return nil, err
	}
	g := m.current(ctx)

	info, err := os.Stat(abs)
	switch {
	case err == nil && info.IsDir():
		return m.listDir(ctx, g, abs, info)
	case err == nil:
		return nil, fmt.Errorf("%s is not a directory", apiPath)
	case g != nil && m.vdir.HasTasksIn(g, abs):
		// A purely virtual group directory.
		return m.listVirtual(ctx, g, abs)
	default:
		return nil, fmt.Errorf("directory %s: %w", apiPath, os.ErrNotExist)
	}
}

func (m *Manager) listDir(ctx context.Context, g *graph.Graph, abs string, info os.FileInfo) (*Model, error) {
	dirents, err := os.ReadDir(abs)
	if err != nil {
		return nil, err
	}

	var children []Model
	seen := make(map[string]bool, len(dirents))
	for _, de := range dirents {
		child := filepath.Join(abs, de.Name())
		fi, err := de.Info()
		if err != nil {
			continue
		}
		seen[de.Name()] = true
		entry := Model{
			Name:         de.Name(),
			Path:         m.apiPath(child),
			Writable:     true,
			Created:      fi.ModTime(),
			LastModified: fi.ModTime(),
		}
		switch {
		case de.IsDir():
			entry.Type = TypeDirectory
		case strings.EqualFold(filepath.Ext(de.Name()), ".ipynb"):
			entry.Type = TypeNotebook
		default:
			entry.Type = TypeFile
		}
		children = append(children, entry)
	}

	if g != nil {
		for _, e := range m.vdir.EntriesIn(ctx, g, abs, false) {
			if seen[e.Name] {
				// A real file with the task's name shadows the synthetic
				// entry; Get resolves real paths first anyway.
				continue
			}
			children = append(children, Model{
				Name:         e.Name,
				Path:         m.apiPath(filepath.Join(abs, e.Name)),
				Type:         TypeNotebook,
				Writable:     true,
				Created:      e.LastModified,
				LastModified: e.LastModified,
			})
		}
	}

	sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })

	return &Model{
		Name:         filepath.Base(abs),
		Path:         m.apiPath(abs),
		Type:         TypeDirectory,
		Format:       FormatJSON,
		Writable:     true,
		Created:      info.ModTime(),
		LastModified: info.ModTime(),
		Content:      children,
	}, nil
}

func (m *Manager) listVirtual(ctx context.Context, g *graph.Graph, abs string) (*Model, error) {
	var children []Model
	for _, e := range m.vdir.EntriesIn(ctx, g, abs, false) {
		children = append(children, Model{
			Name:         e.Name,
			Path:         m.apiPath(filepath.Join(abs, e.Name)),
			Type:         TypeNotebook,
			Writable:     true,
			Created:      e.LastModified,
			LastModified: e.LastModified,
		})
	}
	return &Model{
		Name:    filepath.Base(abs),
		Path:    m.apiPath(abs),
		Type:    TypeDirectory,
		Format:  FormatJSON,
		Content: children,
	}, nil
}

// Get returns the model at an API path. Task scripts come back as notebooks
// with the parameters cell injected; files outside the pipeline come back
// unmodified, so everything stays browsable. Directories delegate to List.
func (m *Manager) Get(ctx context.Context, apiPath string, withContent bool) (*Model, error) {
	abs, err := m.abs(apiPath)
	if err != nil {
		return nil, err
	}
	g := m.current(ctx)

	info, err := os.Stat(abs)
	switch {
	case err == nil && info.IsDir():
		return m.List(ctx, apiPath)
	case err == nil:
		return m.getFile(ctx, g, abs, info, withContent)
	case g != nil:
		return m.getVirtual(ctx, g, abs, withContent)
	default:
		return nil, fmt.Errorf("%s: %w", apiPath, os.ErrNotExist)
	}
}

// getFile serves a real file, converting script files to notebooks and
// injecting the parameters cell when the file is a task source.
func (m *Manager) getFile(ctx context.Context, g *graph.Graph, abs string, info os.FileInfo, withContent bool) (*Model, error) {
	model := &Model{
		Name:         filepath.Base(abs),
		Path:         m.apiPath(abs),
		Type:         TypeFile,
		Writable:     true,
		Created:      info.ModTime(),
		LastModified: info.ModTime(),
	}

	ext := strings.ToLower(filepath.Ext(abs))
	isScript := ext == ".py"
	isNotebook := ext == ".ipynb"
	if isScript || isNotebook {
		model.Type = TypeNotebook
	}
	if !withContent {
		return model, nil
	}

	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}

	switch {
	case isScript:
		nb := notebook.FromScript(string(raw))
		nb, err = m.injectFor(ctx, g, abs, nb)
		if err != nil {
			return nil, err
		}
		model.Format = FormatJSON
		model.Content = nb
	case isNotebook:
		nb := notebook.New()
		if err := nb.UnmarshalJSON(raw); err != nil {
			return nil, fmt.Errorf("reading notebook %s: %w", abs, err)
		}
		nb, err = m.injectFor(ctx, g, abs, nb)
		if err != nil {
			return nil, err
		}
		model.Format = FormatJSON
		model.Content = nb
	default:
		model.Format = FormatText
		model.Mimetype = "text/plain"
		model.Content = string(raw)
	}
	return model, nil
}

// injectFor applies the cell injector when abs is a task source. A path that
// matches no task is returned unchanged, not an error: files outside the
// pipeline are still browsable, just never annotated.
func (m *Manager) injectFor(ctx context.Context, g *graph.Graph, abs string, nb *notebook.Notebook) (*notebook.Notebook, error) {
	if g == nil {
		return nb, nil
	}
	node := g.ByScriptPath(abs)
	if node == nil {
		return nb, nil
	}
	out, err := inject.Inject(nb, node)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// getVirtual serves a synthetic function-task path.
func (m *Manager) getVirtual(ctx context.Context, g *graph.Graph, abs string, withContent bool) (*Model, error) {
	node := m.vdir.Resolve(g, abs)
	if node == nil {
		return nil, fmt.Errorf("%s: %w", m.apiPath(abs), os.ErrNotExist)
	}

	src := node.Source.(graph.FunctionSource)
	model := &Model{
		Name:     node.Name,
		Path:     m.apiPath(abs),
		Type:     TypeNotebook,
		Writable: true,
	}
	if info, err := os.Stat(src.Module); err == nil {
		model.Created = info.ModTime()
		model.LastModified = info.ModTime()
	}
	if !withContent {
		return model, nil
	}

	nb, err := m.vdir.NotebookAt(ctx, g, node)
	if err != nil {
		return nil, err
	}
	model.Format = FormatJSON
	model.Content = nb
	return model, nil
}

// Save persists a model at an API path. Any injected cell is stripped
// first; the persisted form never contains it. Saving a task's source also
// deletes leftover product metadata files. The path parameter is required:
// a model arriving without one is rejected rather than guessed at.
func (m *Manager) Save(ctx context.Context, model *Model, apiPath string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)
	if apiPath == "" && model.Path == "" {
		return nil, errors.New("save requires a path")
	}
	if apiPath == "" {
		apiPath = model.Path
	}
	abs, err := m.abs(apiPath)
	if err != nil {
		return nil, err
	}
	g := m.current(ctx)

	switch model.Type {
	case TypeDirectory:
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, err
		}
	case TypeNotebook:
		nb := model.Notebook()
		if nb == nil {
			return nil, errors.New("notebook model has no notebook content")
		}
		if err := m.saveNotebook(ctx, g, abs, nb); err != nil {
			return nil, err
		}
	case TypeFile, "":
		text, ok := model.Content.(string)
		if !ok {
			return nil, errors.New("file model content must be a string")
		}
		if err := os.WriteFile(abs, []byte(text), 0o644); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown model type %q", model.Type)
	}

	logger.Debug("Saved.", "path", apiPath, "type", model.Type)
	return m.Get(ctx, apiPath, false)
}

// saveNotebook round-trips a notebook back to its on-disk representation.
func (m *Manager) saveNotebook(ctx context.Context, g *graph.Graph, abs string, nb *notebook.Notebook) error {
	stripped := inject.Strip(nb)

	if _, err := os.Stat(abs); err != nil && g != nil {
		// Not a real file: a synthetic function-task path.
		if node := m.vdir.Resolve(g, abs); node != nil {
			if err := m.vdir.Overwrite(ctx, node, stripped); err != nil {
				return err
			}
			m.removeProductMetadata(ctx, node)
			return nil
		}
	}

	var raw []byte
	if strings.EqualFold(filepath.Ext(abs), ".ipynb") {
		data, err := stripped.MarshalJSON()
		if err != nil {
			return err
		}
		raw = data
	} else {
		raw = []byte(notebook.ToScript(stripped))
	}
	if err := os.WriteFile(abs, raw, 0o644); err != nil {
		return err
	}

	if g != nil {
		if node := g.ByScriptPath(abs); node != nil {
			m.removeProductMetadata(ctx, node)
		}
	}
	return nil
}

// removeProductMetadata deletes stale side-channel files next to the task's
// products. A missing file is the normal case and not an error.
func (m *Manager) removeProductMetadata(ctx context.Context, node *graph.Node) {
	logger := ctxlog.FromContext(ctx)
	for _, p := range node.ProductPaths {
		meta := p + MetadataSuffix
		err := os.Remove(meta)
		switch {
		case err == nil:
			logger.Debug("Removed stale product metadata.", "path", meta)
		case os.IsNotExist(err):
		default:
			logger.Warn("Could not remove product metadata.", "path", meta, "error", err)
		}
	}
}

// Delete removes a real file or empty directory. Synthetic paths cannot be
// deleted through this surface.
func (m *Manager) Delete(ctx context.Context, apiPath string) error {
	abs, err := m.abs(apiPath)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		if g := m.current(ctx); g != nil && m.vdir.Resolve(g, abs) != nil {
			return fmt.Errorf("delete %s: %w", apiPath, ErrUnsupported)
		}
		return fmt.Errorf("%s: %w", apiPath, os.ErrNotExist)
	}
	return os.Remove(abs)
}

// Rename moves a real file or directory. Synthetic paths cannot be renamed
// through this surface.
func (m *Manager) Rename(ctx context.Context, oldPath, newPath string) error {
	absOld, err := m.abs(oldPath)
	if err != nil {
		return err
	}
	absNew, err := m.abs(newPath)
	if err != nil {
		return err
	}
	if _, err := os.Stat(absOld); err != nil {
		if g := m.current(ctx); g != nil && m.vdir.Resolve(g, absOld) != nil {
			return fmt.Errorf("rename %s: %w", oldPath, ErrUnsupported)
		}
		return fmt.Errorf("%s: %w", oldPath, os.ErrNotExist)
	}
	return os.Rename(absOld, absNew)
}
