package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestFindUpward(t *testing.T) {
	t.Run("finds file in the start directory", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "pipeline.yaml"))

		found, err := FindUpward(dir, "pipeline.yaml")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "pipeline.yaml"), found)
	})

	t.Run("walks ancestors", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "pipeline.yaml"))
		nested := filepath.Join(dir, "a", "b")
		require.NoError(t, os.MkdirAll(nested, 0o755))

		found, err := FindUpward(nested, "pipeline.yaml")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "pipeline.yaml"), found)
	})

	t.Run("prefers earlier names", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "pipeline.yaml"))
		writeFile(t, filepath.Join(dir, "pipeline.hcl"))

		found, err := FindUpward(dir, "pipeline.yaml", "pipeline.hcl")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "pipeline.yaml"), found)
	})

	t.Run("reports not exist when nothing matches", func(t *testing.T) {
		_, err := FindUpward(t.TempDir(), "pipeline.yaml")
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestFindShallowest(t *testing.T) {
	t.Run("top-level file wins over nested", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "sub", "deep", "pipeline.yaml"))
		writeFile(t, filepath.Join(dir, "sub", "pipeline.yaml"))

		found, err := FindShallowest(dir, "pipeline.yaml")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "sub", "pipeline.yaml"), found)
	})

	t.Run("ties break lexicographically", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "b", "pipeline.yaml"))
		writeFile(t, filepath.Join(dir, "a", "pipeline.yaml"))

		found, err := FindShallowest(dir, "pipeline.yaml")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "a", "pipeline.yaml"), found)
	})

	t.Run("reports not exist when nothing matches", func(t *testing.T) {
		_, err := FindShallowest(t.TempDir(), "pipeline.yaml")
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
