package rules

import (
	"errors"
	"testing"
)

func boolPtr(b bool) *bool { return &b }

// TestPriorityKey verifies the action/stage weighting.
func TestPriorityKey(t *testing.T) {
	tests := []struct {
		name string
		rule *Rule
		want int
	}{
		{
			name: "pass with content only",
			rule: &Rule{ID: "r", Action: ActionPass, Content: []string{"x"}},
			want: 1,
		},
		{
			name: "set_flag with content and flags",
			rule: &Rule{ID: "r", Action: ActionSetFlag, Content: []string{"x"},
				Flags: &FlagSpec{Set: []string{"f"}}},
			want: 15,
		},
		{
			name: "flag with pcre",
			rule: &Rule{ID: "r", Action: ActionFlag, PCRE: []string{`\d+`}},
			want: 22,
		},
		{
			name: "alert with semantic",
			rule: &Rule{ID: "r", Action: ActionAlert, Semantic: []string{"phrase"}},
			want: 33,
		},
		{
			name: "block with all stages and flags",
			rule: &Rule{ID: "r", Action: ActionBlock, Content: []string{"x"},
				PCRE: []string{`y`}, Semantic: []string{"z"},
				Flags: &FlagSpec{Check: []string{"f"}}},
			want: 50,
		},
		{
			name: "allow counts as other",
			rule: &Rule{ID: "r", Action: ActionAllow, Content: []string{"x"}},
			want: 51,
		},
		{
			name: "sanitize counts as other",
			rule: &Rule{ID: "r", Action: ActionSanitize},
			want: 50,
		},
		{
			name: "flags spec with only ttl does not cost",
			rule: &Rule{ID: "r", Action: ActionPass, Content: []string{"x"},
				Flags: &FlagSpec{TTL: 60}},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.PriorityKey(); got != tt.want {
				t.Errorf("PriorityKey() = %d, want %d", got, tt.want)
			}
		})
	}
}

// TestSetLoad_FiltersAndSorts verifies disabled filtering and stable priority order.
func TestSetLoad_FiltersAndSorts(t *testing.T) {
	set := NewSet(nil)

	err := set.Load([]*Rule{
		{ID: "blocker", Action: ActionBlock, Content: []string{"x"}},
		{ID: "disabled", Action: ActionPass, Content: []string{"x"}, Enabled: boolPtr(false)},
		{ID: "marker-a", Action: ActionPass, Content: []string{"x"}},
		{ID: "marker-b", Action: ActionPass, Content: []string{"x"}},
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := set.Count(); got != 3 {
		t.Fatalf("Count() = %d, want 3", got)
	}

	order := set.Snapshot()
	want := []string{"marker-a", "marker-b", "blocker"}
	for i, id := range want {
		if order[i].ID != id {
			t.Errorf("order[%d] = %s, want %s", i, order[i].ID, id)
		}
	}
}

// TestSetLoad_StableOrder verifies equal-priority rules keep author order
// across repeated loads.
func TestSetLoad_StableOrder(t *testing.T) {
	list := []*Rule{
		{ID: "first", Action: ActionPass, Content: []string{"a"}},
		{ID: "second", Action: ActionPass, Content: []string{"b"}},
		{ID: "third", Action: ActionPass, Content: []string{"c"}},
	}

	set := NewSet(nil)
	for i := 0; i < 3; i++ {
		if err := set.Load(list); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		snapshot := set.Snapshot()
		for j, want := range []string{"first", "second", "third"} {
			if snapshot[j].ID != want {
				t.Fatalf("load %d: order[%d] = %s, want %s", i, j, snapshot[j].ID, want)
			}
		}
	}
}

// TestSetLoad_DuplicateID verifies duplicate ids are rejected.
func TestSetLoad_DuplicateID(t *testing.T) {
	set := NewSet(nil)
	err := set.Load([]*Rule{
		{ID: "dup", Content: []string{"x"}},
		{ID: "dup", Content: []string{"y"}},
	})
	if !errors.Is(err, ErrDuplicateRuleID) {
		t.Fatalf("Load() error = %v, want ErrDuplicateRuleID", err)
	}
}

// TestSetLoad_InertRuleAccepted verifies an inert enabled rule loads cleanly.
func TestSetLoad_InertRuleAccepted(t *testing.T) {
	set := NewSet(nil)
	if err := set.Load([]*Rule{{ID: "inert"}}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := set.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
}

// TestRuleValidate covers field validation.
func TestRuleValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    *Rule
		wantErr bool
	}{
		{"valid minimal", &Rule{ID: "r", Content: []string{"x"}}, false},
		{"missing id", &Rule{Content: []string{"x"}}, true},
		{"blank id", &Rule{ID: "   "}, true},
		{"threshold negative", &Rule{ID: "r", Threshold: -1}, true},
		{"window negative", &Rule{ID: "r", Window: -5}, true},
		{"semantic threshold above one", &Rule{ID: "r", SemanticThreshold: 1.5}, true},
		{"bad severity", &Rule{ID: "r", Severity: "extreme"}, true},
		{"bad action", &Rule{ID: "r", Action: "explode"}, true},
		{"stateful only", &Rule{ID: "r", Flags: &FlagSpec{Check: []string{"f"}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestRuleDefaults verifies nil-pointer defaults.
func TestRuleDefaults(t *testing.T) {
	r := &Rule{ID: "r"}

	if !r.IsEnabled() {
		t.Error("IsEnabled() = false for nil Enabled, want true")
	}
	if !r.CaseInsensitive() {
		t.Error("CaseInsensitive() = false for nil NoCase, want true")
	}
	if got := r.EffectiveSemanticThreshold(); got != DefaultSemanticThreshold {
		t.Errorf("EffectiveSemanticThreshold() = %v, want %v", got, DefaultSemanticThreshold)
	}
	if got := r.Flags.EffectiveTTL(); got != DefaultStateTTLSeconds {
		t.Errorf("EffectiveTTL() = %d, want %d", got, DefaultStateTTLSeconds)
	}

	r.NoCase = boolPtr(false)
	if r.CaseInsensitive() {
		t.Error("CaseInsensitive() = true for explicit false")
	}
}
