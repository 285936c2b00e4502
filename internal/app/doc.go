// Package app wires the contents manager to its runtime surface: logger
// construction, configuration, the HTTP server that speaks the host's
// contents protocol, the health check endpoint and the optional
// specification watcher.
package app
