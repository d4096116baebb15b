package engine

import (
	"testing"
	"time"

	"github.com/securecheckio/rules-engine/pkg/rules"
	"github.com/securecheckio/rules-engine/pkg/state"
)

var trackerTuple = state.Tuple{TokenID: "tok", ConversationID: "conv"}

// TestThreshold_NoGateAlwaysFires verifies rules without a complete gate
// always fire.
func TestThreshold_NoGateAlwaysFires(t *testing.T) {
	tracker := NewThresholdTracker()
	now := time.Now()

	tests := []struct {
		name string
		rule *rules.Rule
	}{
		{"no threshold", &rules.Rule{ID: "r"}},
		{"threshold without window", &rules.Rule{ID: "r", Threshold: 3}},
		{"window without threshold", &rules.Rule{ID: "r", Window: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 5; i++ {
				if !tracker.Check(tt.rule, trackerTuple, now) {
					t.Fatalf("Check() #%d = false, want true", i)
				}
			}
		})
	}
}

// TestThreshold_DrainAndRestart verifies the count-up, fire, drain cycle.
func TestThreshold_DrainAndRestart(t *testing.T) {
	tracker := NewThresholdTracker()
	rule := &rules.Rule{ID: "burst", Threshold: 3, Window: 10}
	now := time.Now()

	// First two qualifying matches are held.
	if tracker.Check(rule, trackerTuple, now) {
		t.Fatal("Check() #1 fired, want held")
	}
	if tracker.Check(rule, trackerTuple, now.Add(time.Second)) {
		t.Fatal("Check() #2 fired, want held")
	}
	// Third fires and drains the window.
	if !tracker.Check(rule, trackerTuple, now.Add(2*time.Second)) {
		t.Fatal("Check() #3 held, want fired")
	}
	// The drained window restarts counting from one.
	if tracker.Check(rule, trackerTuple, now.Add(3*time.Second)) {
		t.Fatal("Check() after drain fired, want held")
	}
}

// TestThreshold_WindowExpiry verifies a lapsed window restarts.
func TestThreshold_WindowExpiry(t *testing.T) {
	tracker := NewThresholdTracker()
	rule := &rules.Rule{ID: "burst", Threshold: 3, Window: 10}
	now := time.Now()

	tracker.Check(rule, trackerTuple, now)
	tracker.Check(rule, trackerTuple, now.Add(time.Second))

	// 11s later the window has lapsed: this is match one of a new window,
	// not match three of the old one.
	if tracker.Check(rule, trackerTuple, now.Add(11*time.Second)) {
		t.Fatal("Check() after window lapse fired, want held")
	}
}

// TestThreshold_OneIsImmediate verifies threshold=1 fires on every match.
func TestThreshold_OneIsImmediate(t *testing.T) {
	tracker := NewThresholdTracker()
	rule := &rules.Rule{ID: "single", Threshold: 1, Window: 10}
	now := time.Now()

	for i := 0; i < 3; i++ {
		if !tracker.Check(rule, trackerTuple, now.Add(time.Duration(i)*time.Second)) {
			t.Fatalf("Check() #%d = false, want true", i)
		}
	}
}

// TestThreshold_TupleIsolation verifies counters are scoped per tuple.
func TestThreshold_TupleIsolation(t *testing.T) {
	tracker := NewThresholdTracker()
	rule := &rules.Rule{ID: "burst", Threshold: 2, Window: 10}
	now := time.Now()

	other := state.Tuple{TokenID: "tok", ConversationID: "other-conv"}

	tracker.Check(rule, trackerTuple, now)

	// A different conversation starts its own window.
	if tracker.Check(rule, other, now) {
		t.Fatal("Check() for fresh tuple fired, want held")
	}
	// Back on the first tuple the second match fires.
	if !tracker.Check(rule, trackerTuple, now.Add(time.Second)) {
		t.Fatal("Check() #2 on original tuple held, want fired")
	}
}

// TestThreshold_AccountScoping verifies accountId participates in the key.
func TestThreshold_AccountScoping(t *testing.T) {
	tracker := NewThresholdTracker()
	rule := &rules.Rule{ID: "burst", Threshold: 2, Window: 10}
	now := time.Now()

	withAccount := state.Tuple{TokenID: "tok", ConversationID: "conv", AccountID: "acct"}

	tracker.Check(rule, trackerTuple, now)
	if tracker.Check(rule, withAccount, now) {
		t.Fatal("account-scoped tuple shared the anonymous tuple's counter")
	}
}
