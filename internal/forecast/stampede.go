package forecast

import "sync"

// stampedeTracker counts in-flight miss fills per forecast key so the service
// can observe when several callers race to fill the same entry.
type stampedeTracker struct {
	mu       sync.Mutex
	inflight map[string]int64
}

func newStampedeTracker() *stampedeTracker {
	return &stampedeTracker{inflight: make(map[string]int64)}
}

// misses records one in-flight fill for key and returns the concurrent count
// including this one.
func (t *stampedeTracker) misses(key string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight[key]++
	return t.inflight[key]
}

// done retires one in-flight fill for key.
func (t *stampedeTracker) done(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := t.inflight[key] - 1; n > 0 {
		t.inflight[key] = n
	} else {
		delete(t.inflight, key)
	}
}
