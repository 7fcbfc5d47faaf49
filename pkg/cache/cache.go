package cache

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"pricepilot/pkg/logger"
	"pricepilot/pkg/models"
)

const (
	DefaultTTL        = 24 * time.Hour
	DefaultMaxEntries = 1024
)

type Clock func() time.Time

type Options struct {
	TTL        time.Duration
	MaxEntries int
	Clock      Clock
}

type entry struct {
	storedAt time.Time
	payload  []models.ProductResult
}

// QueryCache memoizes aggregate search results per normalized query. Entries
// expire after TTL and the least recently used entry is evicted once
// MaxEntries is reached. Safe for concurrent use; concurrent misses on the
// same key share one computation.
type QueryCache struct {
	ttl     time.Duration
	now     Clock
	entries *lru.Cache[string, entry]
	group   singleflight.Group
}

func New(opts Options) (*QueryCache, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	entries, err := lru.New[string, entry](opts.MaxEntries)
	if err != nil {
		return nil, err
	}
	return &QueryCache{ttl: opts.TTL, now: opts.Clock, entries: entries}, nil
}

// Key is the lowercased, trimmed query text.
func Key(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// Get returns a copy of a fresh entry's payload.
func (c *QueryCache) Get(query string) ([]models.ProductResult, bool) {
	e, ok := c.entries.Get(Key(query))
	if !ok || c.now().Sub(e.storedAt) >= c.ttl {
		return nil, false
	}
	return clone(e.payload), true
}

// Set replaces the entry for query wholesale.
func (c *QueryCache) Set(query string, payload []models.ProductResult) {
	c.entries.Add(Key(query), entry{storedAt: c.now(), payload: clone(payload)})
}

// GetOrCompute returns the cached payload while it is younger than TTL and
// otherwise stores and returns a fresh one from compute. Compute errors are
// returned and nothing is stored.
func (c *QueryCache) GetOrCompute(ctx context.Context, query string, compute func(context.Context) ([]models.ProductResult, error)) ([]models.ProductResult, error) {
	key := Key(query)
	if payload, ok := c.Get(key); ok {
		logger.Dedup("Cache hit for %q", key)
		return payload, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if payload, ok := c.Get(key); ok {
			return payload, nil
		}
		payload, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, payload)
		return payload, nil
	})
	if err != nil {
		return nil, err
	}
	return clone(v.([]models.ProductResult)), nil
}

func (c *QueryCache) Len() int {
	return c.entries.Len()
}

func clone(in []models.ProductResult) []models.ProductResult {
	if in == nil {
		return nil
	}
	out := make([]models.ProductResult, len(in))
	copy(out, in)
	for i := range out {
		if p := out[i].PriceValue; p != nil {
			v := *p
			out[i].PriceValue = &v
		}
	}
	return out
}
