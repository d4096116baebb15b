package rules

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrNoRulesLoaded indicates the set has never been loaded.
	ErrNoRulesLoaded = errors.New("no rules loaded")

	// ErrDuplicateRuleID indicates two rules in one load share an id.
	ErrDuplicateRuleID = errors.New("duplicate rule id")
)

// ConfigError describes a malformed rule field.
type ConfigError struct {
	RuleID  string
	Field   string
	Message string
}

// Error returns the error message.
func (e *ConfigError) Error() string {
	if e.RuleID == "" {
		return fmt.Sprintf("rule config: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("rule %s: %s: %s", e.RuleID, e.Field, e.Message)
}
