package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pricepilot/pkg/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(t *testing.T, clock *fakeClock, maxEntries int) *QueryCache {
	t.Helper()
	c, err := New(Options{TTL: 24 * time.Hour, MaxEntries: maxEntries, Clock: clock.Now})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func countingCompute(calls *atomic.Int32) func(context.Context) ([]models.ProductResult, error) {
	return func(context.Context) ([]models.ProductResult, error) {
		calls.Add(1)
		r := models.NewResult("Amazon")
		r.Title = "Echo Dot"
		return []models.ProductResult{r}, nil
	}
}

func TestGetOrCompute_TTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := newTestCache(t, clock, 0)

	var calls atomic.Int32
	compute := countingCompute(&calls)
	ctx := context.Background()

	if _, err := c.GetOrCompute(ctx, "echo dot", compute); err != nil {
		t.Fatal(err)
	}
	clock.Advance(23 * time.Hour)
	if _, err := c.GetOrCompute(ctx, "echo dot", compute); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 compute inside TTL, got %d", calls.Load())
	}

	clock.Advance(2 * time.Hour)
	got, err := c.GetOrCompute(ctx, "echo dot", compute)
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected recompute after TTL, got %d calls", calls.Load())
	}
	if len(got) != 1 || got[0].Title != "Echo Dot" {
		t.Errorf("unexpected payload %+v", got)
	}
}

func TestGetOrCompute_KeyNormalization(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	c := newTestCache(t, clock, 0)

	var calls atomic.Int32
	compute := countingCompute(&calls)
	for _, q := range []string{"Echo Dot", "  echo dot ", "ECHO DOT"} {
		if _, err := c.GetOrCompute(context.Background(), q, compute); err != nil {
			t.Fatal(err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("expected normalized keys to share an entry, got %d computes", calls.Load())
	}
}

func TestGetOrCompute_ErrorsAreNotCached(t *testing.T) {
	c := newTestCache(t, &fakeClock{now: time.Now()}, 0)
	boom := errors.New("pool closed")

	_, err := c.GetOrCompute(context.Background(), "tv", func(context.Context) ([]models.ProductResult, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected compute error, got %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.Len())
	}
}

func TestGetOrCompute_PayloadIsSnapshot(t *testing.T) {
	c := newTestCache(t, &fakeClock{now: time.Now()}, 0)
	price := 499.0
	r := models.NewResult("Croma")
	r.PriceValue = &price
	payload := []models.ProductResult{r}

	c.Set("cable", payload)
	payload[0].Title = "mutated"
	*payload[0].PriceValue = 1

	got, ok := c.Get("cable")
	if !ok {
		t.Fatal("expected hit")
	}
	if got[0].Title != models.Unavailable || *got[0].PriceValue != 499 {
		t.Errorf("cache entry was mutated through caller slice: %+v", got[0])
	}
}

func TestQueryCache_BoundedLRU(t *testing.T) {
	c := newTestCache(t, &fakeClock{now: time.Now()}, 2)
	c.Set("a", nil)
	c.Set("b", nil)
	c.Get("a")
	c.Set("c", nil)

	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
	if _, ok := c.entries.Peek("b"); ok {
		t.Error("expected least recently used key b to be evicted")
	}
}

func TestGetOrCompute_ConcurrentMissesShareCompute(t *testing.T) {
	c := newTestCache(t, &fakeClock{now: time.Now()}, 0)

	var calls atomic.Int32
	gate := make(chan struct{})
	compute := func(context.Context) ([]models.ProductResult, error) {
		calls.Add(1)
		<-gate
		return []models.ProductResult{models.NewResult("Ajio")}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GetOrCompute(context.Background(), "kurta", compute); err != nil {
				t.Error(err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("expected 1 compute, got %d", calls.Load())
	}

	// Distinct keys from many goroutines must not race.
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Set(string(rune('a'+i)), nil)
		}(i)
	}
	wg.Wait()
}
