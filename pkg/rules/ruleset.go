package rules

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Set holds the currently loaded, enabled, priority-sorted rules.
//
// Loads replace the entire list with a copy-on-write swap: evaluations that
// took a snapshot before the swap keep iterating the old slice, new
// evaluations see the new one. The slices themselves are never mutated after
// publication.
type Set struct {
	mu     sync.RWMutex
	rules  []*Rule
	logger *slog.Logger
}

// NewSet creates an empty rule set.
func NewSet(logger *slog.Logger) *Set {
	if logger == nil {
		logger = slog.Default()
	}
	return &Set{logger: logger.With("component", "rules.set")}
}

// Load validates and installs a new rule list, replacing the previous one.
// Disabled rules are dropped; the remainder is stably sorted by priority key
// so equal-priority rules keep author order. Inert enabled rules are kept
// (they never match) so that rule_count reflects the operator's intent.
func (s *Set) Load(rules []*Rule) error {
	seen := make(map[string]struct{}, len(rules))
	enabled := make([]*Rule, 0, len(rules))

	for _, r := range rules {
		if r == nil {
			continue
		}
		if err := r.Validate(); err != nil {
			return err
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateRuleID, r.ID)
		}
		seen[r.ID] = struct{}{}

		if !r.IsEnabled() {
			continue
		}
		if r.Inert() {
			s.logger.Warn("rule declares no stages and no flag gate, it will never match",
				"rule_id", r.ID)
		}
		enabled = append(enabled, r)
	}

	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].PriorityKey() < enabled[j].PriorityKey()
	})

	s.mu.Lock()
	s.rules = enabled
	s.mu.Unlock()

	s.logger.Info("rules loaded",
		"total", len(rules),
		"enabled", len(enabled),
	)
	return nil
}

// Snapshot returns the current sorted rule list. Callers must treat the
// returned slice and the rules it points to as read-only.
func (s *Set) Snapshot() []*Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rules
}

// Count returns the number of loaded (enabled) rules.
func (s *Set) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

// Get returns the loaded rule with the given id, or nil.
func (s *Set) Get(id string) *Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rules {
		if r.ID == id {
			return r
		}
	}
	return nil
}
