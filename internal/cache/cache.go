package cache

import (
	"context"
	"sync"
	"time"

	"github.com/surfwatch/marine-forecast-service/internal/clock"
	"github.com/surfwatch/marine-forecast-service/internal/models"
)

// Cache defines the interface for forecast caching implementations.
// Get returns cached data if present and not expired, Set stores data.
type Cache interface {
	Get(ctx context.Context, key string) (models.Forecast, bool, error)
	Set(ctx context.Context, key string, value models.Forecast) error
}

// entry stores a cached forecast with its insertion timestamp. Entries are
// never mutated after insertion; replacement is a single map assignment.
type entry struct {
	value      models.Forecast
	insertedAt time.Time
}

// BoundedCache implements Cache with a fixed capacity and TTL. When full,
// Set evicts the single oldest-inserted entry (insertion order, not usage
// order). Expired entries are removed lazily on Get and by a background
// sweep, bounding memory even under a read-light workload.
type BoundedCache struct {
	mu       sync.Mutex
	data     map[string]entry
	order    []string // insertion order, oldest first
	capacity int
	ttl      time.Duration
	clk      clock.Clock
	stopCh   chan struct{}
	stopOnce sync.Once
}

// Option configures a BoundedCache.
type Option func(*BoundedCache)

// WithClock injects a clock, used by tests to simulate TTL expiry.
func WithClock(c clock.Clock) Option {
	return func(b *BoundedCache) { b.clk = c }
}

// NewBoundedCache creates a BoundedCache with the given capacity and TTL.
// sweepInterval controls the background sweep; zero disables it.
func NewBoundedCache(capacity int, ttl, sweepInterval time.Duration, opts ...Option) *BoundedCache {
	if capacity <= 0 {
		capacity = 100
	}
	b := &BoundedCache{
		data:     make(map[string]entry),
		capacity: capacity,
		ttl:      ttl,
		clk:      clock.Real{},
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if sweepInterval > 0 {
		go b.sweepLoop(sweepInterval)
	}
	return b
}

// Get retrieves the cached forecast for key if present and not expired.
// Expired entries are removed on access.
func (b *BoundedCache) Get(ctx context.Context, key string) (models.Forecast, bool, error) {
	if ctx.Err() != nil {
		return models.Forecast{}, false, ctx.Err()
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.data[key]
	if !ok {
		return models.Forecast{}, false, nil
	}
	if b.expired(e, b.clk.Now()) {
		b.remove(key)
		return models.Forecast{}, false, nil
	}
	return e.value, true, nil
}

// Set stores a forecast, evicting the oldest-inserted entry when at capacity.
func (b *BoundedCache) Set(ctx context.Context, key string, value models.Forecast) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.data[key]; exists {
		b.removeFromOrder(key)
	} else if len(b.data) >= b.capacity {
		b.remove(b.order[0])
	}
	b.data[key] = entry{value: value, insertedAt: b.clk.Now()}
	b.order = append(b.order, key)
	return nil
}

// Len returns the current number of entries. Used by the stats surface.
func (b *BoundedCache) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Capacity returns the configured maximum number of entries.
func (b *BoundedCache) Capacity() int { return b.capacity }

// Sweep removes all expired entries. Called by the sweep loop and by tests.
func (b *BoundedCache) Sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clk.Now()
	removed := 0
	for key, e := range b.data {
		if b.expired(e, now) {
			b.remove(key)
			removed++
		}
	}
	return removed
}

// Close stops the background sweep goroutine.
func (b *BoundedCache) Close() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

func (b *BoundedCache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.Sweep()
		case <-b.stopCh:
			return
		}
	}
}

func (b *BoundedCache) expired(e entry, now time.Time) bool {
	return b.ttl > 0 && now.Sub(e.insertedAt) > b.ttl
}

// remove deletes key from the map and the insertion-order list.
// Caller must hold mu.
func (b *BoundedCache) remove(key string) {
	delete(b.data, key)
	b.removeFromOrder(key)
}

func (b *BoundedCache) removeFromOrder(key string) {
	for i, k := range b.order {
		if k == key {
			b.order = append(b.order[:i], b.order[i+1:]...)
			return
		}
	}
}
