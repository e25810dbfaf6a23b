// SPDX-License-Identifier: MIT
/*
Package taskrunner runs chains of steps on a dedicated worker goroutine.

A chain runs its steps strictly in order and stops at the first step that
returns false (or panics). Every scheduled chain ends in exactly one
signal: finished, or error with a message naming the failing step. Signals
never run on the worker; they are handed to a Poster so that the owner of
the state they touch (the main loop, the TUI) runs them.

Steps cannot be cancelled. Anything that waits must bound its own wait.
*/
package taskrunner

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"fractalwave/internal/log"
	"fractalwave/internal/metrics"
)

// ErrClosed is returned when scheduling on a closed runner.
var ErrClosed = errors.New("taskrunner: runner closed")

type Runner struct {
	poster  Poster
	log     *log.Logger
	metrics *metrics.Metrics
	seq     atomic.Uint64

	mu         sync.Mutex
	cond       *sync.Cond
	queue      []Chain
	closed     bool
	onFinished []func(chain string)
	onError    []func(chain, msg string)

	done chan struct{}
}

// Option customizes a Runner.
type Option func(*Runner)

// WithMetrics counts finished and failed chains.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner starts the worker goroutine. Signals are delivered through
// poster.
func NewRunner(poster Poster, opts ...Option) *Runner {
	r := &Runner{
		poster: poster,
		log:    log.New("taskrunner"),
		done:   make(chan struct{}),
	}
	r.cond = sync.NewCond(&r.mu)
	for _, opt := range opts {
		opt(r)
	}
	go r.loop()
	return r
}

// OnFinished registers a handler for chains that ran every step.
func (r *Runner) OnFinished(fn func(chain string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFinished = append(r.onFinished, fn)
}

// OnError registers a handler for aborted chains.
func (r *Runner) OnError(fn func(chain, msg string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onError = append(r.onError, fn)
}

// ScheduleChain runs steps as an unnamed chain.
func (r *Runner) ScheduleChain(steps ...Step) error {
	return r.Schedule(NewChain(fmt.Sprintf("chain-%d", r.seq.Add(1)), steps...))
}

// Schedule queues c and returns immediately. Chains run one at a time in
// scheduling order.
func (r *Runner) Schedule(c Chain) error {
	c.steps = c.Steps()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.queue = append(r.queue, c)
	r.cond.Signal()
	return nil
}

// Pending returns the number of chains waiting to start.
func (r *Runner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Close rejects further chains, waits for queued ones to complete and stops
// the worker.
func (r *Runner) Close() error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		r.cond.Broadcast()
	}
	r.mu.Unlock()

	<-r.done
	return nil
}

func (r *Runner) loop() {
	defer close(r.done)
	for {
		r.mu.Lock()
		for len(r.queue) == 0 && !r.closed {
			r.cond.Wait()
		}
		if len(r.queue) == 0 {
			r.mu.Unlock()
			return
		}
		c := r.queue[0]
		r.queue[0] = Chain{}
		r.queue = r.queue[1:]
		r.mu.Unlock()

		r.run(c)
	}
}

func (r *Runner) run(c Chain) {
	r.log.Debugf("chain %q: starting (%d steps)", c.name, len(c.steps))
	for _, step := range c.steps {
		ok, panicked := runStep(step)
		if ok {
			continue
		}

		var msg string
		if panicked != nil {
			msg = fmt.Sprintf("chain %q: step %q panicked: %v, aborting", c.name, step.Name(), panicked)
		} else {
			msg = fmt.Sprintf("chain %q: step %q returned false, aborting", c.name, step.Name())
		}
		r.log.Warnf("%s", msg)
		r.metrics.ChainFailed(c.name)
		r.signalError(c.name, msg)
		return
	}

	r.log.Debugf("chain %q: finished", c.name)
	r.metrics.ChainFinished(c.name)
	r.signalFinished(c.name)
}

func runStep(step Step) (ok bool, panicked any) {
	defer func() {
		if p := recover(); p != nil {
			ok, panicked = false, p
		}
	}()
	return step.Run(), nil
}

func (r *Runner) signalFinished(chain string) {
	r.mu.Lock()
	handlers := r.onFinished
	r.mu.Unlock()
	if len(handlers) == 0 {
		return
	}
	r.poster.Post(func() {
		for _, h := range handlers {
			h(chain)
		}
	})
}

func (r *Runner) signalError(chain, msg string) {
	r.mu.Lock()
	handlers := r.onError
	r.mu.Unlock()
	if len(handlers) == 0 {
		return
	}
	r.poster.Post(func() {
		for _, h := range handlers {
			h(chain, msg)
		}
	})
}
