// Package cli provides shared helpers for the securecheck command-line
// tool: output formatting and signal-aware contexts.
package cli
