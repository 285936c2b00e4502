package cli_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/pipebook/internal/cli"
)

func TestParse(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		out := &bytes.Buffer{}
		cfg, shouldExit, err := cli.Parse(nil, out)
		require.NoError(t, err)
		assert.False(t, shouldExit)
		assert.Equal(t, ".", cfg.Root)
		assert.Equal(t, ":9595", cfg.ListenAddr)
		assert.Equal(t, "json", cfg.LogFormat)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.False(t, cfg.Watch)
	})

	t.Run("positional root argument", func(t *testing.T) {
		cfg, _, err := cli.Parse([]string{"/srv/project"}, &bytes.Buffer{})
		require.NoError(t, err)
		assert.Equal(t, "/srv/project", cfg.Root)
	})

	t.Run("root flag wins over the positional argument", func(t *testing.T) {
		cfg, _, err := cli.Parse([]string{"-root", "/srv/a", "/srv/b"}, &bytes.Buffer{})
		require.NoError(t, err)
		assert.Equal(t, "/srv/a", cfg.Root)
	})

	t.Run("all flags", func(t *testing.T) {
		args := []string{
			"-entry-point", "pipelines/pipeline.yaml",
			"-listen", "127.0.0.1:8899",
			"-healthcheck-port", "8080",
			"-log-format", "text",
			"-log-level", "debug",
			"-watch",
			"/srv/project",
		}
		cfg, _, err := cli.Parse(args, &bytes.Buffer{})
		require.NoError(t, err)
		assert.Equal(t, "pipelines/pipeline.yaml", cfg.EntryPoint)
		assert.Equal(t, "127.0.0.1:8899", cfg.ListenAddr)
		assert.Equal(t, 8080, cfg.HealthcheckPort)
		assert.Equal(t, "text", cfg.LogFormat)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.True(t, cfg.Watch)
	})

	t.Run("help requests a clean exit", func(t *testing.T) {
		out := &bytes.Buffer{}
		cfg, shouldExit, err := cli.Parse([]string{"-h"}, out)
		require.NoError(t, err)
		assert.Nil(t, cfg)
		assert.True(t, shouldExit)
		assert.Contains(t, out.String(), "Usage:")
	})

	t.Run("unknown flags return an exit error", func(t *testing.T) {
		_, _, err := cli.Parse([]string{"--nope"}, &bytes.Buffer{})
		require.Error(t, err)

		var exitErr *cli.ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 2, exitErr.Code)
	})

	t.Run("invalid log format", func(t *testing.T) {
		_, _, err := cli.Parse([]string{"-log-format", "xml"}, &bytes.Buffer{})
		var exitErr *cli.ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Contains(t, exitErr.Message, "log-format")
	})

	t.Run("invalid log level", func(t *testing.T) {
		_, _, err := cli.Parse([]string{"-log-level", "verbose"}, &bytes.Buffer{})
		var exitErr *cli.ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Contains(t, exitErr.Message, "log-level")
	})
}
