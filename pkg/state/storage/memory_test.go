package storage

import (
	"context"
	"testing"
	"time"

	"github.com/securecheckio/rules-engine/pkg/state"
)

// TestMemoryStore_RoundTrip verifies save/get isolation.
func TestMemoryStore_RoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	tuple := state.Tuple{TokenID: "tok", ConversationID: "conv"}

	got, err := store.Get(ctx, tuple)
	if err != nil || got != nil {
		t.Fatalf("Get() on empty store = %v, %v; want nil, nil", got, err)
	}

	s := state.New(tuple, time.Now())
	s.Flags["f"] = true
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err = store.Get(ctx, tuple)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil || !got.Flags["f"] {
		t.Fatalf("Get() = %+v, want saved flags", got)
	}

	// The store hands out copies, not its internal record.
	got.Flags["g"] = true
	again, _ := store.Get(ctx, tuple)
	if again.Flags["g"] {
		t.Error("mutating a returned state changed the stored record")
	}
}

// TestMemoryStore_Expiry verifies expired records vanish on read.
func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	tuple := state.Tuple{TokenID: "tok", ConversationID: "conv"}

	s := state.New(tuple, time.Now())
	s.ExpiresAt = time.Now().Add(-time.Minute).UnixMilli()
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Get(ctx, tuple)
	if err != nil || got != nil {
		t.Fatalf("Get() on expired record = %v, %v; want nil, nil", got, err)
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d after expiry read, want 0", store.Len())
	}
}
