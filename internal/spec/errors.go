package spec

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Locate when no specification file exists on any
// searched path.
var ErrNotFound = errors.New("no pipeline specification found")

// InvalidError wraps a parse failure from a format adapter. The original
// parser diagnostics stay reachable through Unwrap so callers can report
// them verbatim.
type InvalidError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid pipeline specification %s: %v", e.Path, e.Err)
}

// Unwrap exposes the underlying parser error.
func (e *InvalidError) Unwrap() error {
	return e.Err
}
