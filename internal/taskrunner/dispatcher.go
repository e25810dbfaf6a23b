// SPDX-License-Identifier: MIT
package taskrunner

import (
	"context"
	"sync"
)

// Poster hands a callback to the goroutine that owns the receiving state.
// Post must not block and must not run fn on the caller's goroutine.
type Poster interface {
	Post(fn func())
}

// PosterFunc adapts a function to Poster.
type PosterFunc func(fn func())

func (f PosterFunc) Post(fn func()) { f(fn) }

// Dispatcher is a Poster backed by an unbounded queue. The controlling
// goroutine drains it with Run or Drain.
type Dispatcher struct {
	mu     sync.Mutex
	queue  []func()
	notify chan struct{}
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{notify: make(chan struct{}, 1)}
}

// Post queues fn. It never blocks.
func (d *Dispatcher) Post(fn func()) {
	d.mu.Lock()
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// Ready is signalled after Post; select on it to learn when to Drain.
func (d *Dispatcher) Ready() <-chan struct{} { return d.notify }

// Drain runs every queued callback on the calling goroutine and returns how
// many ran. Callbacks posted while draining run in the same call.
func (d *Dispatcher) Drain() int {
	n := 0
	for {
		d.mu.Lock()
		pending := d.queue
		d.queue = nil
		d.mu.Unlock()

		if len(pending) == 0 {
			return n
		}
		for _, fn := range pending {
			fn()
		}
		n += len(pending)
	}
}

// Run drains the queue whenever something is posted until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.Drain()
			return ctx.Err()
		case <-d.notify:
			d.Drain()
		}
	}
}
