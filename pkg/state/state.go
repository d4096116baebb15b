package state

import (
	"strings"
	"time"
)

// DefaultStateLifetime is the expiry horizon for freshly synthesized states.
const DefaultStateLifetime = 24 * time.Hour

// Tuple identifies one conversation context.
type Tuple struct {
	TokenID        string `json:"token_id"`
	ConversationID string `json:"conversation_id"`
	AccountID      string `json:"account_id,omitempty"`
}

// Key returns the stable state key "{tokenId}:{conversationId}:{accountId|""}".
func (t Tuple) Key() string {
	return t.TokenID + ":" + t.ConversationID + ":" + t.AccountID
}

// ParseKey splits a state key back into its tuple. The account part may be
// empty. Returns false if the key does not have three segments.
func ParseKey(key string) (Tuple, bool) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 {
		return Tuple{}, false
	}
	return Tuple{TokenID: parts[0], ConversationID: parts[1], AccountID: parts[2]}, true
}

// FlagAction is the kind of flag mutation recorded in history.
type FlagAction string

const (
	FlagSet   FlagAction = "set"
	FlagUnset FlagAction = "unset"
)

// FlagEvent is one entry in a state's flag history.
type FlagEvent struct {
	Flag      string     `json:"flag"`
	Action    FlagAction `json:"action"`
	RuleID    string     `json:"rule_id"`
	Timestamp int64      `json:"timestamp_ms"`
}

// ConversationState is the persistent per-tuple record. Timestamps are Unix
// milliseconds. Instances published to the cache or to results are immutable;
// use Clone before mutating.
type ConversationState struct {
	ID          string          `json:"id"`
	Flags       map[string]bool `json:"flags"`
	FlagHistory []FlagEvent     `json:"flag_history"`
	ExpiresAt   int64           `json:"expires_at"`
	CreatedAt   int64           `json:"created_at"`
	UpdatedAt   int64           `json:"updated_at"`
}

// New synthesizes a fresh state for the tuple with empty flags and the
// default lifetime.
func New(t Tuple, now time.Time) *ConversationState {
	ms := now.UnixMilli()
	return &ConversationState{
		ID:        t.Key(),
		Flags:     make(map[string]bool),
		ExpiresAt: now.Add(DefaultStateLifetime).UnixMilli(),
		CreatedAt: ms,
		UpdatedAt: ms,
	}
}

// Clone returns a deep copy suitable for mutation.
func (s *ConversationState) Clone() *ConversationState {
	flags := make(map[string]bool, len(s.Flags))
	for k, v := range s.Flags {
		flags[k] = v
	}
	history := make([]FlagEvent, len(s.FlagHistory), len(s.FlagHistory)+2)
	copy(history, s.FlagHistory)
	return &ConversationState{
		ID:          s.ID,
		Flags:       flags,
		FlagHistory: history,
		ExpiresAt:   s.ExpiresAt,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

// Expired reports whether the state's lifetime has elapsed.
func (s *ConversationState) Expired(now time.Time) bool {
	return s.ExpiresAt > 0 && now.UnixMilli() > s.ExpiresAt
}
