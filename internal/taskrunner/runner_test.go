// SPDX-License-Identifier: MIT
package taskrunner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorder collects signals as they are delivered by a Dispatcher.
type recorder struct {
	mu       sync.Mutex
	finished []string
	errors   []string
	steps    []string
}

func (r *recorder) step(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, name)
}

func (r *recorder) snapshot() (finished, errs, steps []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.finished...), append([]string(nil), r.errors...), append([]string(nil), r.steps...)
}

func newTestRunner(t *testing.T) (*Runner, *Dispatcher, *recorder) {
	t.Helper()
	d := NewDispatcher()
	r := NewRunner(d)
	rec := &recorder{}
	r.OnFinished(func(chain string) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.finished = append(rec.finished, chain)
	})
	r.OnError(func(chain, msg string) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.errors = append(rec.errors, msg)
	})
	t.Cleanup(func() { r.Close() })
	return r, d, rec
}

// settle closes the runner so every queued chain has completed, then drains
// the dispatcher.
func settle(t *testing.T, r *Runner, d *Dispatcher) {
	t.Helper()
	require.NoError(t, r.Close())
	d.Drain()
}

func TestChainAbortsOnFalse(t *testing.T) {
	r, d, rec := newTestRunner(t)

	require.NoError(t, r.Schedule(NewChain("launch").
		Check("one", func() bool { rec.step("one"); return true }).
		Check("two", func() bool { rec.step("two"); return false }).
		Do("three", func() { rec.step("three") })))
	settle(t, r, d)

	finished, errs, steps := rec.snapshot()
	assert.Equal(t, []string{"one", "two"}, steps, "step after the failing check must not run")
	assert.Empty(t, finished)
	require.Len(t, errs, 1)
	assert.Equal(t, `chain "launch": step "two" returned false, aborting`, errs[0])
}

func TestChainFinishesOnce(t *testing.T) {
	r, d, rec := newTestRunner(t)

	require.NoError(t, r.ScheduleChain(
		Check("a", func() bool { rec.step("a"); return true }),
		Check("b", func() bool { rec.step("b"); return true }),
	))
	settle(t, r, d)

	finished, errs, steps := rec.snapshot()
	assert.Equal(t, []string{"a", "b"}, steps)
	assert.Len(t, finished, 1)
	assert.Empty(t, errs)
}

func TestChainWithOnlyDoStepsFinishes(t *testing.T) {
	r, d, rec := newTestRunner(t)

	require.NoError(t, r.Schedule(NewChain("plain").Do("x", func() {}).Do("y", func() {})))
	require.NoError(t, r.Schedule(NewChain("empty")))
	settle(t, r, d)

	finished, errs, _ := rec.snapshot()
	assert.Equal(t, []string{"plain", "empty"}, finished)
	assert.Empty(t, errs)
}

func TestPanickingStepIsReported(t *testing.T) {
	r, d, rec := newTestRunner(t)

	require.NoError(t, r.Schedule(NewChain("boom").
		Do("explode", func() { panic("kaboom") }).
		Do("after", func() { rec.step("after") })))
	require.NoError(t, r.Schedule(NewChain("next").Do("ok", func() { rec.step("ok") })))
	settle(t, r, d)

	finished, errs, steps := rec.snapshot()
	assert.Equal(t, []string{"ok"}, steps, "worker survives the panic")
	assert.Equal(t, []string{"next"}, finished)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], `step "explode" panicked: kaboom`)
}

func TestChainsRunInSchedulingOrder(t *testing.T) {
	r, d, rec := newTestRunner(t)

	release := make(chan struct{})
	require.NoError(t, r.Schedule(NewChain("first").Do("wait", func() {
		<-release
		rec.step("first")
	})))
	for _, name := range []string{"second", "third", "fourth"} {
		require.NoError(t, r.Schedule(NewChain(name).Do(name, func() { rec.step(name) })))
	}
	close(release)
	settle(t, r, d)

	_, _, steps := rec.snapshot()
	assert.Equal(t, []string{"first", "second", "third", "fourth"}, steps)
}

func TestSignalsAreNotDeliveredOnWorker(t *testing.T) {
	r, d, rec := newTestRunner(t)

	require.NoError(t, r.Schedule(NewChain("quiet").Do("x", func() {})))
	require.NoError(t, r.Close())

	finished, _, _ := rec.snapshot()
	assert.Empty(t, finished, "handlers must wait for the poster")

	assert.Equal(t, 1, d.Drain())
	finished, _, _ = rec.snapshot()
	assert.Equal(t, []string{"quiet"}, finished)
}

func TestScheduleAfterClose(t *testing.T) {
	r, _, _ := newTestRunner(t)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close(), "Close is idempotent")

	err := r.Schedule(NewChain("late"))
	assert.True(t, errors.Is(err, ErrClosed))
	assert.ErrorIs(t, r.ScheduleChain(Do("x", func() {})), ErrClosed)
}

func TestScheduleIsFireAndForget(t *testing.T) {
	r, d, _ := newTestRunner(t)

	release := make(chan struct{})
	start := time.Now()
	require.NoError(t, r.Schedule(NewChain("slow").Do("block", func() { <-release })))
	require.NoError(t, r.Schedule(NewChain("queued")))
	assert.Less(t, time.Since(start), time.Second)
	assert.Eventually(t, func() bool { return r.Pending() == 1 }, time.Second, time.Millisecond)

	close(release)
	settle(t, r, d)
}

func TestChainBuilderIsValueSemantics(t *testing.T) {
	base := NewChain("base").Do("a", func() {})
	left := base.Do("left", func() {})
	right := base.Do("right", func() {})

	assert.Equal(t, 1, base.Len())
	require.Equal(t, 2, left.Len())
	require.Equal(t, 2, right.Len())
	assert.Equal(t, "left", left.Steps()[1].Name())
	assert.Equal(t, "right", right.Steps()[1].Name())
}

func TestDispatcherRun(t *testing.T) {
	d := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- d.Run(ctx) }()

	got := make(chan int, 3)
	for i := range 3 {
		d.Post(func() { got <- i })
	}
	for want := range 3 {
		select {
		case v := <-got:
			assert.Equal(t, want, v)
		case <-time.After(time.Second):
			t.Fatal("callback not run")
		}
	}

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestDispatcherDrainRunsNestedPosts(t *testing.T) {
	d := NewDispatcher()
	var order []int
	d.Post(func() {
		order = append(order, 1)
		d.Post(func() { order = append(order, 2) })
	})

	assert.Equal(t, 2, d.Drain())
	assert.Equal(t, []int{1, 2}, order)
	assert.Zero(t, d.Drain())
}

func TestPosterFunc(t *testing.T) {
	var posted int
	p := PosterFunc(func(fn func()) { posted++; fn() })
	ran := false
	p.Post(func() { ran = true })
	assert.Equal(t, 1, posted)
	assert.True(t, ran)
}
