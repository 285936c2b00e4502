// Package spec defines the format-agnostic pipeline specification model and
// the Loader interface implemented by the format adapters (yamladapter,
// hcladapter). It also owns specification discovery: resolving an entry
// point (explicit file, directory, or nothing at all) to the concrete
// specification file on disk.
package spec
