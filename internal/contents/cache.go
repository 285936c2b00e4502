package contents

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/vk/pipebook/internal/ctxlog"
	"github.com/vk/pipebook/internal/graph"
	"github.com/vk/pipebook/internal/spec"
)

// graphCache holds the active task graph together with the identity of the
// load it came from. The graph value is immutable; invalidation swaps the
// whole triple under the lock, so readers only ever observe a fully
// published graph.
type graphCache struct {
	mu       sync.Mutex
	graph    *graph.Graph
	specPath string
	mtime    time.Time
}

// Invalidate drops the cached graph so the next access reloads. The spec
// watcher uses this to make server-mode hot reload immediate.
func (c *graphCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.graph = nil
}

// current returns the task graph to use for this access, reloading the
// specification when it changed on disk, when hot reload demands it, or
// when nothing is loaded yet. A reload failure keeps the previous graph
// usable when one exists: browsing must never break because the spec is
// momentarily unparsable. A missing specification means "no pipeline here"
// and yields a nil graph, which disables injection but nothing else.
func (m *Manager) current(ctx context.Context) *graph.Graph {
	c := &m.cache
	c.mu.Lock()
	defer c.mu.Unlock()
	logger := ctxlog.FromContext(ctx)

	path, err := spec.Locate(ctx, m.root, m.entryPoint)
	if err != nil {
		if !errors.Is(err, spec.ErrNotFound) {
			logger.Warn("Specification discovery failed.", "error", err)
		}
		c.graph = nil
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		logger.Warn("Cannot stat specification.", "path", path, "error", err)
		return c.graph
	}

	fresh := c.graph != nil &&
		c.specPath == path &&
		!c.graph.Meta.HotReload &&
		info.ModTime().Equal(c.mtime)
	if fresh {
		return c.graph
	}

	s, err := m.loaderFor(path).Load(ctx, path)
	if err != nil {
		logger.Warn("Specification reload failed; keeping previous graph.",
			"path", path, "error", err)
		return c.graph
	}
	g, err := graph.Build(ctx, s, m.analyzer)
	if err != nil {
		logger.Warn("Task graph build failed; keeping previous graph.",
			"path", path, "error", err)
		return c.graph
	}

	c.graph = g
	c.specPath = path
	c.mtime = info.ModTime()
	logger.Debug("Task graph refreshed.", "path", path, "tasks", len(g.Nodes()))
	return g
}
