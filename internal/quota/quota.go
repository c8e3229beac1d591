package quota

import (
	"sync"

	"github.com/surfwatch/marine-forecast-service/internal/clock"
)

// Tracker enforces a calendar-day budget of remote provider calls. The count
// resets when the current date differs from the stored date. The ceiling is
// deliberately conservative to preserve a free-tier budget across many
// tracked spots.
type Tracker struct {
	mu   sync.Mutex
	date string // "2006-01-02" of the day the count belongs to
	used int
	max  int
	clk  clock.Clock
}

// NewTracker creates a Tracker with the given daily ceiling. clk may be nil,
// in which case the system clock is used.
func NewTracker(max int, clk clock.Clock) *Tracker {
	if max <= 0 {
		max = 25
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Tracker{max: max, clk: clk}
}

// CanSpend reports whether the daily budget has room. Pure read aside from
// the day rollover.
func (t *Tracker) CanSpend() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	return t.used < t.max
}

// Spend consumes one unit of the daily budget. Call only after the
// corresponding remote call succeeded.
func (t *Tracker) Spend() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	t.used++
}

// Remaining returns the number of units left today.
func (t *Tracker) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	if t.used >= t.max {
		return 0
	}
	return t.max - t.used
}

// Used returns the number of units spent today. Used by the stats surface.
func (t *Tracker) Used() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	return t.used
}

// Max returns the daily ceiling.
func (t *Tracker) Max() int { return t.max }

// rollover resets the count when the stored date is not today.
// Caller must hold mu.
func (t *Tracker) rollover() {
	today := t.clk.Now().Format("2006-01-02")
	if t.date != today {
		t.date = today
		t.used = 0
	}
}
