package engine

import (
	"sync"
	"time"

	"github.com/securecheckio/rules-engine/pkg/rules"
	"github.com/securecheckio/rules-engine/pkg/state"
)

// thresholdEntry is one live counting window for a (tuple, rule) pair.
type thresholdEntry struct {
	count      int
	firstMatch time.Time
	windowEnd  time.Time
}

// ThresholdTracker counts qualifying matches per (conversation tuple, rule)
// and decides when a thresholded rule fires.
//
// The window drains on fire: once count reaches the threshold the entry is
// deleted, so the next qualifying match starts a fresh window. Entries whose
// window has lapsed are replaced lazily on next access; there is no
// background sweeper.
//
// ThresholdTracker is safe for concurrent use across tuples.
type ThresholdTracker struct {
	mu       sync.Mutex
	trackers map[string]map[string]*thresholdEntry
}

// NewThresholdTracker creates an empty tracker.
func NewThresholdTracker() *ThresholdTracker {
	return &ThresholdTracker{
		trackers: make(map[string]map[string]*thresholdEntry),
	}
}

// Check reports whether the rule should fire for this qualifying match.
// Rules without a complete threshold gate always fire.
func (t *ThresholdTracker) Check(rule *rules.Rule, tuple state.Tuple, now time.Time) bool {
	if !rule.HasThreshold() {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := tuple.Key()
	byRule := t.trackers[key]
	if byRule == nil {
		byRule = make(map[string]*thresholdEntry)
		t.trackers[key] = byRule
	}

	entry := byRule[rule.ID]
	if entry == nil || now.After(entry.windowEnd) {
		byRule[rule.ID] = &thresholdEntry{
			count:      1,
			firstMatch: now,
			windowEnd:  now.Add(time.Duration(rule.Window) * time.Second),
		}
		return rule.Threshold == 1
	}

	entry.count++
	if entry.count >= rule.Threshold {
		delete(byRule, rule.ID)
		if len(byRule) == 0 {
			delete(t.trackers, key)
		}
		return true
	}
	return false
}

// Reset drops all counters for the tuple.
func (t *ThresholdTracker) Reset(tuple state.Tuple) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.trackers, tuple.Key())
}

// Clear drops all counters.
func (t *ThresholdTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trackers = make(map[string]map[string]*thresholdEntry)
}
