package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/surfwatch/marine-forecast-service/internal/clock"
	"github.com/surfwatch/marine-forecast-service/internal/models"
)

func testForecast(wave float64) models.Forecast {
	return models.Forecast{
		Marine:     models.MarineConditions{WaveHeight: wave},
		Provenance: models.ProvenanceSimulated,
	}
}

// TestBoundedCache_GetSet verifies that Set stores values and Get retrieves
// them correctly with the expected data.
func TestBoundedCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewBoundedCache(10, time.Minute, 0)

	val := testForecast(1.2)
	if err := c.Set(ctx, "29.9000_122.3000_2026-08-30", val); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "29.9000_122.3000_2026-08-30")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got.Marine.WaveHeight != val.Marine.WaveHeight {
		t.Errorf("Get() wave = %v, want %v", got.Marine.WaveHeight, val.Marine.WaveHeight)
	}
}

// TestBoundedCache_Get_Miss verifies that Get returns ok=false when
// the requested key does not exist in cache.
func TestBoundedCache_Get_Miss(t *testing.T) {
	ctx := context.Background()
	c := NewBoundedCache(10, time.Minute, 0)

	_, ok, err := c.Get(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}

// TestBoundedCache_CapacityEviction verifies that inserting N+1 distinct keys
// into a cache of capacity N leaves exactly N entries, with the
// oldest-inserted key evicted.
func TestBoundedCache_CapacityEviction(t *testing.T) {
	ctx := context.Background()
	const capacity = 5
	c := NewBoundedCache(capacity, time.Minute, 0)

	for i := 0; i <= capacity; i++ {
		key := fmt.Sprintf("key-%d", i)
		if err := c.Set(ctx, key, testForecast(float64(i))); err != nil {
			t.Fatalf("Set(%s) error = %v", key, err)
		}
	}

	if got := c.Len(); got != capacity {
		t.Errorf("Len() = %d, want %d", got, capacity)
	}
	if _, ok, _ := c.Get(ctx, "key-0"); ok {
		t.Error("oldest-inserted key-0 still present, want evicted")
	}
	if _, ok, _ := c.Get(ctx, "key-1"); !ok {
		t.Error("key-1 absent, want present")
	}
}

// TestBoundedCache_ReplaceDoesNotEvict verifies that overwriting an existing
// key at capacity replaces the entry without evicting another key.
func TestBoundedCache_ReplaceDoesNotEvict(t *testing.T) {
	ctx := context.Background()
	c := NewBoundedCache(2, time.Minute, 0)

	_ = c.Set(ctx, "a", testForecast(1))
	_ = c.Set(ctx, "b", testForecast(2))
	_ = c.Set(ctx, "a", testForecast(3))

	if got := c.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
	got, ok, _ := c.Get(ctx, "a")
	if !ok || got.Marine.WaveHeight != 3 {
		t.Errorf("Get(a) = %v, %v, want replaced value 3", got.Marine.WaveHeight, ok)
	}
	if _, ok, _ := c.Get(ctx, "b"); !ok {
		t.Error("Get(b) ok = false, want true")
	}
}

// TestBoundedCache_TTLExpiry verifies that a read after TTL has elapsed
// returns absent even when no write occurred in between.
func TestBoundedCache_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC))
	c := NewBoundedCache(10, 30*time.Minute, 0, WithClock(clk))

	_ = c.Set(ctx, "a", testForecast(1))
	clk.Advance(31 * time.Minute)

	_, ok, err := c.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for expired entry")
	}
	if got := c.Len(); got != 0 {
		t.Errorf("Len() = %d, want 0 after lazy removal", got)
	}
}

// TestBoundedCache_Sweep verifies that Sweep removes all expired entries
// without any Get or Set in between.
func TestBoundedCache_Sweep(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC))
	c := NewBoundedCache(10, 30*time.Minute, 0, WithClock(clk))

	_ = c.Set(ctx, "old", testForecast(1))
	clk.Advance(20 * time.Minute)
	_ = c.Set(ctx, "young", testForecast(2))
	clk.Advance(15 * time.Minute)

	removed := c.Sweep()
	if removed != 1 {
		t.Errorf("Sweep() removed = %d, want 1", removed)
	}
	if _, ok, _ := c.Get(ctx, "young"); !ok {
		t.Error("young entry removed by sweep, want kept")
	}
}

// TestBoundedCache_ContextCancelled verifies that operations fail when the
// context is already cancelled.
func TestBoundedCache_ContextCancelled(t *testing.T) {
	c := NewBoundedCache(10, time.Minute, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Set(ctx, "a", testForecast(1)); err == nil {
		t.Error("Set() error = nil, want context error")
	}
	if _, _, err := c.Get(ctx, "a"); err == nil {
		t.Error("Get() error = nil, want context error")
	}
}
