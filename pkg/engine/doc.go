// Package engine evaluates conversational messages against a priority-
// sorted library of threat rules and emits the actions to take.
//
// # Evaluation Flow
//
//	EvaluationContext (message + conversation tuple)
//	       ↓
//	Hydrate conversation state (override → cache → provider → synthesize)
//	       ↓
//	For each enabled rule in priority order:
//	  Flag gate holds? → staged match (content → pcre → semantic)
//	    Matched → threshold gate → mutate state (copy-on-write) → result
//	    block+critical fired → stop the pass
//	       ↓
//	Write matched states through to the provider
//
// The staging order is an economics decision: substring checks run before
// regexes, regexes before the (network-priced) semantic backend, and a rule
// fails out of the pass at the first stage that rejects it.
//
// # State Machine
//
// Rules may set, unset, and check named conversation flags, which is how
// multi-message attacks are recognized: an early rule marks the
// conversation, a later rule matches only when the marks are present. Flag
// mutations are copy-on-write; every matched result carries the exact state
// snapshot it produced, untouched by later rules in the pass.
//
// # Failure Semantics
//
// No rule-level failure aborts an evaluation. Invalid regexes surface as a
// diagnostic non-match result for the owning rule; semantic backend and
// state provider failures are logged and degrade to "no match" / fresh
// state respectively.
//
// # Thread Safety
//
// Concurrent evaluations of distinct conversation tuples are safe. The rule
// list, regex cache, threshold tracker, and state cache are shared and
// internally synchronized; rule loads swap the list atomically.
package engine
