// SPDX-License-Identifier: MIT
package visualizer

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"fractalwave/internal/config"
	"fractalwave/internal/shm"
	"fractalwave/internal/taskrunner"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeGate struct {
	mu      sync.Mutex
	active  bool
	changes int
}

func (g *fakeGate) SetVisualizationActive(active bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = active
	g.changes++
}

func (g *fakeGate) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// writeRenderer creates a shell script standing in for the renderer. When
// ready is set it creates the marker named by the environment.
func writeRenderer(t *testing.T, ready bool) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("renderer stand-in is a shell script")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	body := "#!/bin/sh\n"
	if ready {
		body += "touch \"$" + EnvReadyFile + "\"\n"
	}
	body += "while :; do sleep 0.05; done\n"

	// Short enough to survive the kernel's 15 character comm limit.
	path := filepath.Join(t.TempDir(), fmt.Sprintf("fwr%d.sh", os.Getpid()%100000))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func testLauncher(t *testing.T, executable string) (*Launcher, *fakeGate) {
	t.Helper()
	cfg := config.Default().Visualizer
	cfg.Executable = executable
	cfg.FindTimeout = 2 * time.Second
	cfg.ReadyTimeout = 2 * time.Second
	cfg.PollInterval = 10 * time.Millisecond

	gate := &fakeGate{}
	l := NewLauncher(cfg, shm.Options{Name: "fwtest", Dir: t.TempDir(), NumBands: 16}, gate)
	t.Cleanup(func() { l.Terminate() })
	return l, gate
}

// runChain runs c to completion and returns the error message, if any.
func runChain(t *testing.T, c taskrunner.Chain) (finished bool, errMsg string) {
	t.Helper()
	d := taskrunner.NewDispatcher()
	r := taskrunner.NewRunner(d)
	r.OnFinished(func(string) { finished = true })
	r.OnError(func(_, msg string) { errMsg = msg })
	require.NoError(t, r.Schedule(c))
	require.NoError(t, r.Close())
	d.Drain()
	return finished, errMsg
}

func TestChainOrder(t *testing.T) {
	l, _ := testLauncher(t, "/opt/renderer")
	names := []string{}
	for _, s := range l.Chain().Steps() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{
		"terminate existing renderers",
		"remove stale ready marker",
		"launch renderer",
		"locate renderer process",
		"wait for renderer ready",
		"attach",
	}, names)
	assert.Equal(t, ChainName, l.Chain().Name())
}

func TestLaunchNotConfigured(t *testing.T) {
	l, gate := testLauncher(t, "")
	assert.False(t, l.Configured())
	assert.ErrorIs(t, l.launch(), ErrNotConfigured)

	finished, msg := runChain(t, l.Chain())
	assert.False(t, finished)
	assert.Contains(t, msg, `step "launch renderer" returned false`)
	assert.False(t, gate.Active())
}

func TestHandshakeAttaches(t *testing.T) {
	l, gate := testLauncher(t, writeRenderer(t, true))

	finished, msg := runChain(t, l.Chain())
	require.True(t, finished, "chain error: %s", msg)
	assert.True(t, gate.Active())
	assert.True(t, l.Running())
	assert.NotZero(t, l.PID())
	assert.FileExists(t, l.ReadyMarker())

	require.NoError(t, l.Terminate())
	assert.False(t, gate.Active())
	assert.False(t, l.Running())
	assert.NoFileExists(t, l.ReadyMarker())
}

func TestHandshakeReadyTimeout(t *testing.T) {
	l, gate := testLauncher(t, writeRenderer(t, false))
	l.cfg.ReadyTimeout = 200 * time.Millisecond

	start := time.Now()
	finished, msg := runChain(t, l.Chain())
	assert.False(t, finished)
	assert.Contains(t, msg, `step "wait for renderer ready" returned false`)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, gate.Active())
}

func TestHandshakeRendererDiesEarly(t *testing.T) {
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("true not available")
	}
	bin, _ := exec.LookPath("true")
	l, _ := testLauncher(t, bin)
	l.cfg.TerminateExisting = false
	l.cfg.ProcessName = "fw-no-such-process"
	l.cfg.FindTimeout = 300 * time.Millisecond

	finished, msg := runChain(t, l.Chain())
	assert.False(t, finished)
	assert.NotEmpty(t, msg)
}

func TestTerminateExistingRenderer(t *testing.T) {
	script := writeRenderer(t, true)
	stale := exec.Command(script)
	require.NoError(t, stale.Start())
	staleDone := make(chan struct{})
	go func() {
		stale.Wait()
		close(staleDone)
	}()
	t.Cleanup(func() {
		stale.Process.Kill()
		<-staleDone
	})

	l, _ := testLauncher(t, script)
	finished, msg := runChain(t, l.Chain())
	require.True(t, finished, "chain error: %s", msg)

	select {
	case <-staleDone:
	case <-time.After(5 * time.Second):
		t.Fatal("stale renderer was not terminated")
	}
	assert.NotEqual(t, int32(stale.Process.Pid), l.PID())
	assert.True(t, l.Running())
}

func TestTerminateWhenIdle(t *testing.T) {
	l, gate := testLauncher(t, "/opt/renderer")
	assert.NoError(t, l.Terminate())
	assert.False(t, gate.Active())
	assert.Equal(t, 1, gate.changes)
}

func TestSameProcessName(t *testing.T) {
	assert.True(t, sameProcessName("Renderer.exe", "renderer"))
	assert.True(t, sameProcessName("viz", "viz"))
	assert.False(t, sameProcessName("viz", "vizard"))
}

func TestProcessNameDefaultsToExecutable(t *testing.T) {
	l, _ := testLauncher(t, "/opt/fractal/renderer")
	assert.Equal(t, "renderer", l.ProcessName())
	l.cfg.ProcessName = "custom"
	assert.Equal(t, "custom", l.ProcessName())
}
