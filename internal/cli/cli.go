// Package cli parses command-line arguments into an app configuration.
package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/pipebook/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated app
// Config, a boolean indicating if the program should exit cleanly, or an
// ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("pipebook", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
pipebook - serve pipeline task sources to a notebook editor as notebooks.

Usage:
  pipebook [options] [ROOT]

Arguments:
  ROOT
    Directory to serve. Defaults to the current directory.

Options:
`)
		flagSet.PrintDefaults()
	}

	rootFlag := flagSet.String("root", "", "Directory to serve.")
	entryFlag := flagSet.String("entry-point", "", "Pipeline specification file or directory to search. Overrides discovery and $ENTRY_POINT.")
	listenFlag := flagSet.String("listen", ":9595", "Address for the contents API server.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	watchFlag := flagSet.Bool("watch", false, "Watch the specification file and reload the task graph immediately on change.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	root := ""
	if *rootFlag != "" {
		root = *rootFlag
	} else if flagSet.NArg() > 0 {
		root = flagSet.Arg(0)
	} else {
		root = "."
	}
	slog.Debug("Root directory determined.", "root", root)

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		Root:            root,
		EntryPoint:      *entryFlag,
		ListenAddr:      *listenFlag,
		HealthcheckPort: *healthPortFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		Watch:           *watchFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
