package watch

import (
	"context"
	"sync"
	"time"
)

// Queue is a run queue of depth one. Requests made while a pass is running
// collapse into a single follow-up pass.
type Queue struct {
	requests chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{requests: make(chan struct{}, 1)}
}

// Request asks for a pass. It never blocks and reports false when a pass
// was already pending.
func (q *Queue) Request() bool {
	select {
	case q.requests <- struct{}{}:
		return true
	default:
		return false
	}
}

// Serve runs fn once per pending request, one call at a time, until ctx is
// done. A call in progress is never interrupted by Serve.
func (q *Queue) Serve(ctx context.Context, fn func(context.Context)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.requests:
		}

		// Cancellation wins over a request that arrived in the same instant.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fn(ctx)
	}
}

// debouncer delays a callback until events stop arriving for delay.
type debouncer struct {
	mu       sync.Mutex
	delay    time.Duration
	timer    *time.Timer
	callback func()
}

// trigger schedules the callback to run after the debounce delay
func (d *debouncer) trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.delay <= 0 {
		callback()
		return
	}

	d.callback = callback

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		cb := d.callback
		d.mu.Unlock()

		if cb != nil {
			cb()
		}
	})
}

// stop cancels a scheduled callback.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.callback = nil
}
