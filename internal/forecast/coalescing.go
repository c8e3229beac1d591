package forecast

import (
	"sync"

	"github.com/surfwatch/marine-forecast-service/internal/models"
)

// coalescedCall is a single in-flight fill that late arrivals wait on.
type coalescedCall struct {
	done chan struct{}
	val  models.Forecast
	err  error
}

// requestCoalescer collapses concurrent fills for the same forecast key into
// one execution whose result every waiter shares.
type requestCoalescer struct {
	mu    sync.Mutex
	calls map[string]*coalescedCall
}

func newRequestCoalescer() *requestCoalescer {
	return &requestCoalescer{calls: make(map[string]*coalescedCall)}
}

// do runs fn for key, or waits for an already-running fn for the same key and
// returns its result.
func (c *requestCoalescer) do(key string, fn func() (models.Forecast, error)) (models.Forecast, error) {
	c.mu.Lock()
	if call, ok := c.calls[key]; ok {
		c.mu.Unlock()
		<-call.done
		return call.val, call.err
	}
	call := &coalescedCall{done: make(chan struct{})}
	c.calls[key] = call
	c.mu.Unlock()

	call.val, call.err = fn()

	c.mu.Lock()
	delete(c.calls, key)
	c.mu.Unlock()
	close(call.done)

	return call.val, call.err
}
