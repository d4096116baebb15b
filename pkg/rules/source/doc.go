// Package source loads rule libraries from their storage locations.
//
// The file source reads YAML rule documents from a file or directory; the
// memory source serves a fixed list for tests and embedding. Sources only
// produce rule lists — installing them into a live engine (and re-installing
// on change) is the caller's job, typically wired through rules.Watcher.
package source
