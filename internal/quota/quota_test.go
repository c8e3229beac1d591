package quota

import (
	"testing"
	"time"

	"github.com/surfwatch/marine-forecast-service/internal/clock"
)

// TestTracker_DeniesWhenExhausted verifies that after spending the full
// budget on one day, the next spend on the same day is denied.
func TestTracker_DeniesWhenExhausted(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC))
	tr := NewTracker(25, clk)

	for i := 0; i < 25; i++ {
		if !tr.CanSpend() {
			t.Fatalf("CanSpend() = false after %d spends, want true", i)
		}
		tr.Spend()
	}
	if tr.CanSpend() {
		t.Error("CanSpend() = true after 25 spends, want false")
	}
	if got := tr.Remaining(); got != 0 {
		t.Errorf("Remaining() = %d, want 0", got)
	}
}

// TestTracker_DayRollover verifies that the budget resets on a day boundary.
func TestTracker_DayRollover(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 8, 30, 23, 0, 0, 0, time.UTC))
	tr := NewTracker(25, clk)

	for i := 0; i < 25; i++ {
		tr.Spend()
	}
	if tr.CanSpend() {
		t.Fatal("CanSpend() = true on exhausted day, want false")
	}

	clk.Advance(2 * time.Hour) // crosses midnight
	if !tr.CanSpend() {
		t.Error("CanSpend() = false on new day, want true")
	}
	if got := tr.Remaining(); got != 25 {
		t.Errorf("Remaining() = %d after rollover, want 25", got)
	}
	if got := tr.Used(); got != 0 {
		t.Errorf("Used() = %d after rollover, want 0", got)
	}
}

// TestTracker_CanSpendIsPureRead verifies that CanSpend does not consume
// budget.
func TestTracker_CanSpendIsPureRead(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC))
	tr := NewTracker(5, clk)

	for i := 0; i < 10; i++ {
		tr.CanSpend()
	}
	if got := tr.Remaining(); got != 5 {
		t.Errorf("Remaining() = %d after repeated CanSpend, want 5", got)
	}
}
