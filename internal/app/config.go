package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// Root is the directory served to the host.
	Root string
	// EntryPoint pins the pipeline specification (file or directory);
	// empty means $ENTRY_POINT and then upward discovery from Root.
	EntryPoint string

	ListenAddr      string
	HealthcheckPort int
	LogFormat       string
	LogLevel        string
	// Watch enables the fsnotify watcher that invalidates the task graph
	// the moment the specification file changes, instead of waiting for
	// the next request's modification-time check.
	Watch bool
}

// NewConfig validates a Config.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.Root == "" {
		return nil, errors.New("Root is a required configuration field and cannot be empty")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":9595"
	}
	return &cfg, nil
}
