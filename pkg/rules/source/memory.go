package source

import (
	"context"

	"github.com/securecheckio/rules-engine/pkg/rules"
)

// MemorySource is an in-memory rule source for tests and embedding.
type MemorySource struct {
	rules []*rules.Rule
}

// NewMemorySource creates a source serving the given rules.
func NewMemorySource(list ...*rules.Rule) *MemorySource {
	return &MemorySource{rules: list}
}

// LoadRules returns a copy of the stored list.
func (s *MemorySource) LoadRules(ctx context.Context) ([]*rules.Rule, error) {
	out := make([]*rules.Rule, len(s.rules))
	copy(out, s.rules)
	return out, nil
}

// SetRules replaces the stored list.
func (s *MemorySource) SetRules(list []*rules.Rule) {
	s.rules = list
}
