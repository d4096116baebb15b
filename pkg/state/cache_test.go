package state

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// stubProvider records saves for flush assertions.
type stubProvider struct {
	mu    sync.Mutex
	saved map[string]int
	fail  error
}

func newStubProvider() *stubProvider {
	return &stubProvider{saved: make(map[string]int)}
}

func (p *stubProvider) Get(context.Context, Tuple) (*ConversationState, error) {
	return nil, nil
}

func (p *stubProvider) Save(_ context.Context, s *ConversationState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.saved[s.ID]++
	return nil
}

func (p *stubProvider) saves(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saved[id]
}

func testCache(provider Provider, cfg *CacheConfig) (*Cache, *time.Time) {
	c := NewCache(cfg, provider, nil)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func tupleN(i int) Tuple {
	return Tuple{TokenID: "tok", ConversationID: fmt.Sprintf("conv-%d", i)}
}

// TestCache_GetSet verifies basic presence and the TTL-by-last-access rule.
func TestCache_GetSet(t *testing.T) {
	cache, now := testCache(nil, nil)
	tuple := tupleN(0)

	if _, ok := cache.Get(tuple); ok {
		t.Fatal("Get() on empty cache reported a hit")
	}

	cache.Set(tuple, New(tuple, *now))
	if _, ok := cache.Get(tuple); !ok {
		t.Fatal("Get() missed a fresh entry")
	}

	// Accesses keep the entry alive past the original TTL horizon.
	for i := 0; i < 3; i++ {
		*now = now.Add(4 * time.Minute)
		if _, ok := cache.Get(tuple); !ok {
			t.Fatalf("entry expired despite access refresh (step %d)", i)
		}
	}

	// Five idle minutes expire it.
	*now = now.Add(5 * time.Minute)
	if _, ok := cache.Get(tuple); ok {
		t.Fatal("Get() returned an entry idle past its TTL")
	}
	if got := cache.Size(); got != 0 {
		t.Errorf("Size() = %d after expiry sweep on access, want 0", got)
	}
}

// TestCache_LRUEviction verifies the oldest-access entry is evicted at
// capacity.
func TestCache_LRUEviction(t *testing.T) {
	cache, now := testCache(nil, &CacheConfig{
		TTL: 5 * time.Minute, MaxSize: 3, FlushInterval: time.Hour,
	})

	for i := 0; i < 3; i++ {
		cache.Set(tupleN(i), New(tupleN(i), *now))
		*now = now.Add(time.Second)
	}

	// Touch 0 so 1 becomes the least recently accessed.
	if _, ok := cache.Get(tupleN(0)); !ok {
		t.Fatal("entry 0 missing")
	}

	cache.Set(tupleN(3), New(tupleN(3), *now))

	if cache.Size() != 3 {
		t.Errorf("Size() = %d, want 3", cache.Size())
	}
	if _, ok := cache.Get(tupleN(1)); ok {
		t.Error("least recently accessed entry survived eviction")
	}
	if _, ok := cache.Get(tupleN(0)); !ok {
		t.Error("recently accessed entry was evicted")
	}
}

// TestCache_FlushBeforeEvict verifies a dirty entry is persisted before
// being dropped.
func TestCache_FlushBeforeEvict(t *testing.T) {
	provider := newStubProvider()
	cache, now := testCache(provider, &CacheConfig{
		TTL: 5 * time.Minute, MaxSize: 2, FlushInterval: time.Hour,
	})

	dirty := tupleN(0)
	cache.Set(dirty, New(dirty, *now))
	cache.MarkDirty(dirty)
	*now = now.Add(time.Second)

	cache.Set(tupleN(1), New(tupleN(1), *now))
	*now = now.Add(time.Second)

	// Inserting a third entry evicts the dirty one; it must be saved first.
	cache.Set(tupleN(2), New(tupleN(2), *now))

	if got := provider.saves(dirty.Key()); got != 1 {
		t.Fatalf("dirty entry saved %d times on eviction, want 1", got)
	}
}

// TestCache_BatchedFlush verifies the debounced background flush persists
// all dirty entries and clears the set.
func TestCache_BatchedFlush(t *testing.T) {
	provider := newStubProvider()
	cache := NewCache(&CacheConfig{
		TTL: 5 * time.Minute, MaxSize: 100, FlushInterval: 20 * time.Millisecond,
	}, provider, nil)

	now := time.Now()
	for i := 0; i < 3; i++ {
		cache.Set(tupleN(i), New(tupleN(i), now))
		cache.MarkDirty(tupleN(i))
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if provider.saves(tupleN(0).Key()) == 1 &&
			provider.saves(tupleN(1).Key()) == 1 &&
			provider.saves(tupleN(2).Key()) == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	for i := 0; i < 3; i++ {
		if got := provider.saves(tupleN(i).Key()); got != 1 {
			t.Errorf("entry %d saved %d times, want 1", i, got)
		}
	}

	// The dirty set drained; an explicit flush writes nothing new.
	if err := cache.FlushWrites(context.Background()); err != nil {
		t.Fatalf("FlushWrites() error = %v", err)
	}
	if got := provider.saves(tupleN(0).Key()); got != 1 {
		t.Errorf("entry 0 saved %d times after redundant flush, want 1", got)
	}
}

// TestCache_FlushError verifies flush surfaces the first save error after
// attempting every entry.
func TestCache_FlushError(t *testing.T) {
	provider := newStubProvider()
	provider.fail = fmt.Errorf("backend down")
	cache, now := testCache(provider, &CacheConfig{
		TTL: 5 * time.Minute, MaxSize: 100, FlushInterval: time.Hour,
	})

	cache.Set(tupleN(0), New(tupleN(0), *now))
	cache.MarkDirty(tupleN(0))

	if err := cache.FlushWrites(context.Background()); err == nil {
		t.Fatal("FlushWrites() error = nil, want backend error")
	}
}

// TestCache_Clear verifies entries and pending writes are dropped.
func TestCache_Clear(t *testing.T) {
	provider := newStubProvider()
	cache, now := testCache(provider, &CacheConfig{
		TTL: 5 * time.Minute, MaxSize: 100, FlushInterval: time.Hour,
	})

	cache.Set(tupleN(0), New(tupleN(0), *now))
	cache.MarkDirty(tupleN(0))
	cache.Clear()

	if cache.Size() != 0 {
		t.Errorf("Size() = %d after Clear, want 0", cache.Size())
	}
	if err := cache.FlushWrites(context.Background()); err != nil {
		t.Fatalf("FlushWrites() error = %v", err)
	}
	if got := provider.saves(tupleN(0).Key()); got != 0 {
		t.Errorf("cleared entry was flushed %d times, want 0", got)
	}
}

// TestCache_CloseFlushes verifies Close performs a final flush and is
// idempotent.
func TestCache_CloseFlushes(t *testing.T) {
	provider := newStubProvider()
	cache, now := testCache(provider, &CacheConfig{
		TTL: 5 * time.Minute, MaxSize: 100, FlushInterval: time.Hour,
	})

	cache.Set(tupleN(0), New(tupleN(0), *now))
	cache.MarkDirty(tupleN(0))

	if err := cache.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := provider.saves(tupleN(0).Key()); got != 1 {
		t.Fatalf("Close flushed %d times, want 1", got)
	}
	if err := cache.Close(context.Background()); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}
