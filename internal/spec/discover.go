package spec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/pipebook/internal/ctxlog"
	"github.com/vk/pipebook/internal/fsutil"
)

// EntryPointEnv overrides the default specification discovery path. It may
// name the specification file itself or a directory to search.
const EntryPointEnv = "ENTRY_POINT"

// FileNames lists the specification file names Locate recognizes, in
// preference order.
var FileNames = []string{"pipeline.yaml", "pipeline.yml", "pipeline.hcl"}

// Locate resolves an entry point to the absolute path of a specification
// file. An empty entryPoint falls back to $ENTRY_POINT and then to walking
// upward from root. A directory entry point is searched recursively; the
// shallowest specification file wins. Returns ErrNotFound when every
// searched path comes up empty.
func Locate(ctx context.Context, root, entryPoint string) (string, error) {
	logger := ctxlog.FromContext(ctx)

	if entryPoint == "" {
		entryPoint = os.Getenv(EntryPointEnv)
	}

	if entryPoint == "" {
		found, err := fsutil.FindUpward(root, FileNames...)
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("searching upward from %s: %w", root, ErrNotFound)
		}
		if err != nil {
			return "", err
		}
		logger.Debug("Specification located.", "path", found)
		return found, nil
	}

	if !filepath.IsAbs(entryPoint) {
		entryPoint = filepath.Join(root, entryPoint)
	}

	info, err := os.Stat(entryPoint)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("entry point %s: %w", entryPoint, ErrNotFound)
		}
		return "", err
	}

	if !info.IsDir() {
		return filepath.Abs(entryPoint)
	}

	found, err := fsutil.FindShallowest(entryPoint, FileNames...)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("searching %s: %w", entryPoint, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	logger.Debug("Specification located.", "path", found, "entry_point", entryPoint)
	return filepath.Abs(found)
}
