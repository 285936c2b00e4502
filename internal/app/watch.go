package app

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/vk/pipebook/internal/spec"
)

// watchSpec watches the specification file's directory and invalidates the
// task graph cache on any write, create, rename or removal touching a
// recognized specification file name. The directory, not the file, is
// watched because editors replace files on save and the inode would
// otherwise be lost. Returns a stop function.
func (a *App) watchSpec(ctx context.Context) (func(), error) {
	specPath, err := spec.Locate(ctx, a.config.Root, a.config.EntryPoint)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(specPath)); err != nil {
		watcher.Close()
		return nil, err
	}

	names := make(map[string]bool, len(spec.FileNames))
	for _, n := range spec.FileNames {
		names[n] = true
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !names[filepath.Base(event.Name)] {
					continue
				}
				a.logger.Debug("Specification changed on disk; invalidating graph.",
					"path", event.Name, "op", event.Op.String())
				a.manager.Invalidate()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				a.logger.Warn("Specification watcher error", "error", err)
			case <-ctx.Done():
				return
			}
		}
	}()

	a.logger.Info("👀 Watching specification", "path", specPath)
	return func() { watcher.Close() }, nil
}
