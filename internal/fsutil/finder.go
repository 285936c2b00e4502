// Package fsutil provides file system search helpers.
package fsutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FindUpward looks for a file with one of the given names in start and then
// in each of its ancestors, returning the first match. It returns
// os.ErrNotExist when the filesystem root is reached without a match.
func FindUpward(start string, names ...string) (string, error) {
	if len(names) == 0 {
		panic("names must not be empty")
	}

	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}

	for {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}

// FindShallowest walks root recursively and returns the match with the
// fewest path separators, so a top-level file wins over one buried in a
// subdirectory. Ties break lexicographically to keep the result stable.
func FindShallowest(root string, names ...string) (string, error) {
	if len(names) == 0 {
		panic("names must not be empty")
	}

	var matches []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		for _, name := range names {
			if d.Name() == name {
				matches = append(matches, path)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", os.ErrNotExist
	}

	sort.Slice(matches, func(i, j int) bool {
		di := strings.Count(matches[i], string(filepath.Separator))
		dj := strings.Count(matches[j], string(filepath.Separator))
		if di != dj {
			return di < dj
		}
		return matches[i] < matches[j]
	})
	return matches[0], nil
}
