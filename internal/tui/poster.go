// SPDX-License-Identifier: MIT
package tui

import (
	"context"

	"fractalwave/internal/taskrunner"

	tea "github.com/charmbracelet/bubbletea"
)

// drainMsg tells the UI loop that posted callbacks are waiting.
type drainMsg struct{}

// Poster delivers task runner signals on the Bubble Tea update loop. Post
// never blocks the worker: callbacks are queued and the program is nudged
// with a drainMsg, and the model runs them from Update.
type Poster struct {
	queue *taskrunner.Dispatcher
}

var _ taskrunner.Poster = (*Poster)(nil)

func NewPoster() *Poster {
	return &Poster{queue: taskrunner.NewDispatcher()}
}

func (p *Poster) Post(fn func()) { p.queue.Post(fn) }

// Drain runs the queued callbacks on the calling goroutine.
func (p *Poster) Drain() int { return p.queue.Drain() }

// Forward sends a drainMsg to program whenever callbacks are queued, until
// ctx is done.
func (p *Poster) Forward(ctx context.Context, program *tea.Program) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.queue.Ready():
			program.Send(drainMsg{})
		}
	}
}
