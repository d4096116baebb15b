package state

import "context"

// Provider is the external persistence backend for conversation state.
// Implementations live in the storage subpackage. Both methods may fail
// transiently; callers log and continue.
type Provider interface {
	// Get returns the stored state for the tuple, or (nil, nil) when the
	// tuple has no record.
	Get(ctx context.Context, t Tuple) (*ConversationState, error)

	// Save stores or replaces the state record.
	Save(ctx context.Context, s *ConversationState) error
}
