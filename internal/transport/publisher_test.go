// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	active atomic.Bool
	level  atomic.Uint32
}

func (s *fakeSource) VisualizationActive() bool { return s.active.Load() }
func (s *fakeSource) Bands() []float32 {
	v := float32(s.level.Load())
	return []float32{v, v / 2}
}

type recordingTransport struct {
	name   string
	mu     sync.Mutex
	frames []Frame
	closed bool
	err    error
}

func (r *recordingTransport) Name() string { return r.name }

func (r *recordingTransport) Send(f Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
	return r.err
}

func (r *recordingTransport) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingTransport) snapshot() ([]Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Frame(nil), r.frames...), r.closed
}

func TestPublisherSendsWhileActive(t *testing.T) {
	src := &fakeSource{}
	src.level.Store(8)
	src.active.Store(true)
	ok := &recordingTransport{name: "ok"}
	failing := &recordingTransport{name: "failing", err: errors.New("unreachable")}

	p := NewPublisher(src, time.Millisecond, []Transport{ok, failing})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		frames, _ := ok.snapshot()
		return len(frames) >= 3
	}, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	frames, closed := ok.snapshot()
	assert.True(t, closed, "transports are closed when Run returns")
	for i, f := range frames {
		assert.Equal(t, uint32(i+1), f.Seq)
		assert.Equal(t, []float32{8, 4}, f.Bands)
		assert.NotZero(t, f.Timestamp)
	}

	// A failing transport does not stop the others.
	failed, _ := failing.snapshot()
	assert.Len(t, failed, len(frames))
}

func TestPublisherSkipsWhileInactive(t *testing.T) {
	src := &fakeSource{}
	rec := &recordingTransport{name: "rec"}
	p := NewPublisher(src, time.Millisecond, []Transport{rec})

	for range 10 {
		p.publish()
	}
	frames, _ := rec.snapshot()
	assert.Empty(t, frames)

	src.active.Store(true)
	p.publish()
	frames, _ = rec.snapshot()
	require.Len(t, frames, 1)
	assert.Equal(t, uint32(1), frames[0].Seq, "sequence counts sent frames only")
}

func TestPublisherInvalidInterval(t *testing.T) {
	p := NewPublisher(&fakeSource{}, 0, nil)
	assert.Equal(t, DefaultInterval, p.interval)
}

func TestLoggingTransport(t *testing.T) {
	lt := NewLoggingTransport()
	assert.Equal(t, "log", lt.Name())
	assert.NoError(t, lt.Send(Frame{Seq: 1, Bands: []float32{0.5, 1}}))
	assert.NoError(t, lt.Close())
	assert.Equal(t, "[0.5 1]", formatBands([]float32{0.5, 1}))
}
