package app

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/pipebook/internal/contents"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	config  *Config
	manager *contents.Manager
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger and contents
// manager. A failure to construct the manager is a fatal startup error.
func NewApp(outW io.Writer, cfg *Config) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	logger.Debug("Logger configured successfully.")

	manager, err := contents.New(contents.Config{
		Root:       cfg.Root,
		EntryPoint: cfg.EntryPoint,
	})
	if err != nil {
		panic(fmt.Errorf("failed to initialize contents manager: %w", err))
	}
	logger.Debug("Contents manager initialized.", "root", cfg.Root)

	return &App{
		outW:    outW,
		logger:  logger,
		config:  cfg,
		manager: manager,
	}
}

// Manager returns the application's contents manager. This is primarily for testing.
func (a *App) Manager() *contents.Manager {
	return a.manager
}
