package engine

import "errors"

// Common sentinel errors
var (
	// ErrEngineClosed indicates the engine has been shut down.
	ErrEngineClosed = errors.New("engine closed")

	// ErrNilContext indicates Evaluate was called without a context record.
	ErrNilContext = errors.New("evaluation context is nil")
)
