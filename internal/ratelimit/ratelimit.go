package ratelimit

import (
	"errors"
	"sync"
	"time"

	"github.com/surfwatch/marine-forecast-service/internal/clock"
)

// ErrRateLimitExceeded is returned when the sliding window is full. This is
// surfaced to the caller rather than degraded, since it reflects caller-side
// burstiness rather than provider trouble.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// SlidingWindow admits outbound calls while fewer than limit admissions have
// occurred in the trailing window. Timestamps older than the window are
// pruned on every check; the new timestamp is recorded only on admission.
type SlidingWindow struct {
	mu         sync.Mutex
	timestamps []time.Time
	limit      int
	window     time.Duration
	clk        clock.Clock
}

// NewSlidingWindow creates a limiter admitting limit calls per window.
// clk may be nil, in which case the system clock is used.
func NewSlidingWindow(limit int, window time.Duration, clk clock.Clock) *SlidingWindow {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &SlidingWindow{limit: limit, window: window, clk: clk}
}

// Allow prunes expired timestamps and admits the call if the window has
// room, recording the admission. Returns ErrRateLimitExceeded otherwise.
func (l *SlidingWindow) Allow() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clk.Now()
	l.prune(now)
	if len(l.timestamps) >= l.limit {
		return ErrRateLimitExceeded
	}
	l.timestamps = append(l.timestamps, now)
	return nil
}

// InWindow returns the number of admissions in the trailing window.
// Used by the stats surface.
func (l *SlidingWindow) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.clk.Now())
	return len(l.timestamps)
}

// Limit returns the configured ceiling.
func (l *SlidingWindow) Limit() int { return l.limit }

// prune drops timestamps older than the window. Caller must hold mu.
func (l *SlidingWindow) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.timestamps) && !l.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.timestamps = append(l.timestamps[:0], l.timestamps[i:]...)
	}
}
