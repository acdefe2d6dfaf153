// Package config holds compile-time constants shared across the pipeline.
// There is no runtime configuration: no files, no environment variables,
// no on-disk formats.
package config

// Version is the current mincaml version, set at build time via -ldflags.
var Version = "0.1.0"

const SourceFileExt = ".ml"

// IsTestMode normalizes generated type-variable display (every type
// variable prints as '_) so test output is deterministic regardless of
// how many fresh type variables earlier tests happened to allocate.
var IsTestMode = false
