package engine

import (
	"encoding/json"
	"time"

	"github.com/securecheckio/rules-engine/pkg/rules"
	"github.com/securecheckio/rules-engine/pkg/state"
)

// EvaluationContext is one message to classify, together with the
// conversation identifiers that scope its state.
type EvaluationContext struct {
	// TokenID identifies the calling integration or API token.
	TokenID string `json:"token_id"`

	// ConversationID identifies the conversation within the token.
	ConversationID string `json:"conversation_id"`

	// AccountID optionally narrows the tuple to an end-user account.
	AccountID string `json:"account_id,omitempty"`

	// Message is the raw text to evaluate.
	Message string `json:"message"`

	// State, when non-nil, overrides cache and provider lookup for this
	// call. Test and admin surfaces use it to evaluate against synthetic
	// state without touching live conversations.
	State *state.ConversationState `json:"state,omitempty"`
}

// Tuple returns the conversation tuple for the context.
func (c *EvaluationContext) Tuple() state.Tuple {
	return state.Tuple{
		TokenID:        c.TokenID,
		ConversationID: c.ConversationID,
		AccountID:      c.AccountID,
	}
}

// EvaluationResult is one entry in the ordered output of Evaluate.
//
// Matched=false results appear only when a rule passed its match stages but
// was gated by its threshold, or when a rule was skipped with a diagnostic;
// Reason explains which. Matched=true results carry a snapshot of the
// post-mutation conversation state.
type EvaluationResult struct {
	Matched bool         `json:"matched"`
	Rule    *rules.Rule  `json:"rule,omitempty"`
	Action  rules.Action `json:"action,omitempty"`

	// State is the post-mutation snapshot for matched results. It is never
	// mutated by later rules in the same pass.
	State *state.ConversationState `json:"state,omitempty"`

	// Reason explains non-match results (threshold gate, bad pattern).
	Reason string `json:"reason,omitempty"`

	// MatchedPattern names what matched: the joined keywords, the first
	// regex match, or "semantic match (XX.X%)".
	MatchedPattern string `json:"matched_pattern,omitempty"`

	// Similarity is set for semantic-stage matches.
	Similarity float64 `json:"similarity,omitempty"`

	// EvalTime is how long this rule's evaluation took. JSON encodes it as
	// fractional milliseconds.
	EvalTime time.Duration `json:"eval_time_ms"`
}

// MarshalJSON encodes the result with EvalTime in fractional milliseconds.
func (r EvaluationResult) MarshalJSON() ([]byte, error) {
	type plain EvaluationResult
	return json.Marshal(struct {
		plain
		EvalTime float64 `json:"eval_time_ms"`
	}{plain(r), float64(r.EvalTime.Microseconds()) / 1000})
}

// Stats is a point-in-time snapshot of engine resource usage.
type Stats struct {
	RulesLoaded    int `json:"rules_loaded"`
	CacheSize      int `json:"cache_size"`
	RegexCacheSize int `json:"regex_cache_size"`
}
