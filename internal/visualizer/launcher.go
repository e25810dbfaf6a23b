// SPDX-License-Identifier: MIT
/*
Package visualizer launches and supervises the external renderer that reads
the shared spectrum segment.

The handshake is a task chain (see Launcher.Chain):

 1. terminate renderers left over from an earlier run
 2. remove a stale ready marker
 3. start the executable
 4. locate the running renderer process (bounded polling)
 5. wait for the ready marker (bounded)
 6. open the visualization gate on the engine

Each waiting step is bounded by the configured timeouts; the runner cannot
cancel a step.
*/
package visualizer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shirou/gopsutil/v3/process"

	"fractalwave/internal/config"
	"fractalwave/internal/log"
	"fractalwave/internal/shm"
	"fractalwave/internal/taskrunner"
)

// ErrNotConfigured is returned when no renderer executable is set.
var ErrNotConfigured = errors.New("visualizer: no executable configured")

// ChainName names the handshake chain in signals and metrics.
const ChainName = "visualizer"

// Environment passed to the renderer.
const (
	EnvShmName   = "FRACTALWAVE_SHM_NAME"
	EnvShmPath   = "FRACTALWAVE_SHM_PATH"
	EnvNumBands  = "FRACTALWAVE_BANDS"
	EnvReadyFile = "FRACTALWAVE_READY_FILE"
)

const terminateGrace = 2 * time.Second

// Gate is the engine switch that starts capture and publishing.
type Gate interface {
	SetVisualizationActive(active bool)
}

type Launcher struct {
	cfg  config.VisualizerConfig
	shm  shm.Options
	gate Gate
	log  *log.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	exited chan struct{} // closed when cmd has been reaped
	pid    int32         // located renderer, may differ from cmd's pid
}

// NewLauncher prepares a launcher for the renderer described by cfg that
// reads the segment described by opts.
func NewLauncher(cfg config.VisualizerConfig, opts shm.Options, gate Gate) *Launcher {
	return &Launcher{
		cfg:  cfg,
		shm:  opts,
		gate: gate,
		log:  log.New("visualizer"),
	}
}

// Configured reports whether an executable is set.
func (l *Launcher) Configured() bool { return l.cfg.Executable != "" }

// ProcessName is the name used to find renderer processes.
func (l *Launcher) ProcessName() string {
	if l.cfg.ProcessName != "" {
		return l.cfg.ProcessName
	}
	return filepath.Base(l.cfg.Executable)
}

// ReadyMarker is the file the renderer creates once it renders.
func (l *Launcher) ReadyMarker() string { return l.shm.ReadyMarker() }

// Chain returns the launch handshake as a task chain.
func (l *Launcher) Chain() taskrunner.Chain {
	return taskrunner.NewChain(ChainName).
		Check("terminate existing renderers", l.terminateExistingStep).
		Do("remove stale ready marker", l.removeReadyMarker).
		Check("launch renderer", l.launchStep).
		Check("locate renderer process", l.locateStep).
		Check("wait for renderer ready", l.waitReadyStep).
		Do("attach", func() { l.gate.SetVisualizationActive(true) })
}

// Running reports whether the renderer started by this launcher is alive.
func (l *Launcher) Running() bool {
	l.mu.Lock()
	exited := l.exited
	l.mu.Unlock()
	if exited == nil {
		return false
	}
	select {
	case <-exited:
		return false
	default:
		return true
	}
}

// PID returns the located renderer process, or 0.
func (l *Launcher) PID() int32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pid
}

// Terminate closes the visualization gate and stops the renderer. It is
// safe to call when nothing is running.
func (l *Launcher) Terminate() error {
	l.gate.SetVisualizationActive(false)

	l.mu.Lock()
	cmd, exited, pid := l.cmd, l.exited, l.pid
	l.cmd, l.exited, l.pid = nil, nil, 0
	l.mu.Unlock()

	var errs []error
	if pid != 0 && (cmd == nil || int(pid) != cmd.Process.Pid) {
		if p, err := process.NewProcess(pid); err == nil {
			errs = append(errs, stopProcess(p))
		}
	}
	if cmd != nil {
		errs = append(errs, stopCommand(cmd, exited))
	}
	l.removeReadyMarker()
	return errors.Join(errs...)
}

// --- Handshake steps ---

func (l *Launcher) terminateExistingStep() bool {
	if !l.cfg.TerminateExisting {
		return true
	}
	procs, err := l.findByName(l.ProcessName())
	if err != nil {
		l.log.Errorf("listing processes: %v", err)
		return false
	}
	for _, p := range procs {
		l.log.Infof("terminating existing renderer (pid %d)", p.Pid)
		if err := stopProcess(p); err != nil {
			l.log.Errorf("terminating pid %d: %v", p.Pid, err)
			return false
		}
	}
	return true
}

func (l *Launcher) removeReadyMarker() {
	if err := os.Remove(l.ReadyMarker()); err != nil && !errors.Is(err, os.ErrNotExist) {
		l.log.Warnf("removing ready marker: %v", err)
	}
}

func (l *Launcher) launchStep() bool {
	if err := l.launch(); err != nil {
		l.log.Errorf("launching renderer: %v", err)
		return false
	}
	return true
}

func (l *Launcher) launch() error {
	if !l.Configured() {
		return ErrNotConfigured
	}
	if l.Running() {
		return fmt.Errorf("renderer already running")
	}

	cmd := exec.Command(l.cfg.Executable, l.cfg.Args...)
	cmd.Env = append(os.Environ(),
		EnvShmName+"="+l.shm.Name,
		EnvShmPath+"="+l.shm.Path(),
		EnvNumBands+"="+strconv.Itoa(l.shm.NumBands),
		EnvReadyFile+"="+l.ReadyMarker(),
	)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", l.cfg.Executable, err)
	}

	exited := make(chan struct{})
	go func() {
		err := cmd.Wait()
		l.log.Debugf("renderer exited: %v", err)
		close(exited)
	}()

	l.mu.Lock()
	l.cmd, l.exited = cmd, exited
	l.mu.Unlock()
	l.log.Infof("started %s (pid %d)", l.cfg.Executable, cmd.Process.Pid)
	return nil
}

// locateStep finds the renderer process: the launched child while it is
// alive, otherwise a process with the renderer's name (for launchers that
// hand off to another process and exit).
func (l *Launcher) locateStep() bool {
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.FindTimeout)
	defer cancel()

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if pid := l.locate(); pid != 0 {
			l.mu.Lock()
			l.pid = pid
			l.mu.Unlock()
			l.log.Debugf("renderer process located (pid %d)", pid)
			return true
		}
		select {
		case <-ctx.Done():
			l.log.Errorf("renderer process %q not found within %s", l.ProcessName(), l.cfg.FindTimeout)
			return false
		case <-ticker.C:
		}
	}
}

func (l *Launcher) locate() int32 {
	l.mu.Lock()
	cmd := l.cmd
	l.mu.Unlock()
	if cmd != nil && l.Running() {
		return int32(cmd.Process.Pid)
	}
	procs, err := l.findByName(l.ProcessName())
	if err != nil || len(procs) == 0 {
		return 0
	}
	return procs[0].Pid
}

// waitReadyStep waits for the ready marker to appear. The marker directory
// is watched; polling at PollInterval covers filesystems without change
// notification and lets the step notice a renderer that died.
func (l *Launcher) waitReadyStep() bool {
	marker := l.ReadyMarker()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		l.log.Warnf("watching ready marker: %v, falling back to polling", err)
	} else {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(marker)); err != nil {
			l.log.Warnf("watching %s: %v, falling back to polling", filepath.Dir(marker), err)
		}
	}

	var events <-chan fsnotify.Event
	if watcher != nil {
		events = watcher.Events
	}

	timeout := time.NewTimer(l.cfg.ReadyTimeout)
	defer timeout.Stop()
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := os.Stat(marker); err == nil {
			l.log.Infof("renderer ready")
			return true
		}
		if !l.alive() {
			l.log.Errorf("renderer exited before becoming ready")
			return false
		}

		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Name == marker && ev.Has(fsnotify.Create) {
				l.log.Infof("renderer ready")
				return true
			}
		case <-ticker.C:
		case <-timeout.C:
			l.log.Errorf("renderer not ready within %s", l.cfg.ReadyTimeout)
			return false
		}
	}
}

// alive reports whether the located renderer still exists.
func (l *Launcher) alive() bool {
	if l.Running() {
		return true
	}
	pid := l.PID()
	if pid == 0 {
		return false
	}
	ok, err := process.PidExists(pid)
	return err == nil && ok
}

// findByName lists running processes called name, excluding this process
// and the launched child.
func (l *Launcher) findByName(name string) ([]*process.Process, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	self := int32(os.Getpid())
	var child int32
	l.mu.Lock()
	if l.cmd != nil {
		child = int32(l.cmd.Process.Pid)
	}
	l.mu.Unlock()

	var out []*process.Process
	for _, p := range procs {
		if p.Pid == self || p.Pid == child {
			continue
		}
		pname, err := p.Name()
		if err != nil {
			continue
		}
		if sameProcessName(pname, name) {
			out = append(out, p)
		}
	}
	return out, nil
}

func sameProcessName(a, b string) bool {
	trim := func(s string) string { return strings.TrimSuffix(strings.ToLower(s), ".exe") }
	return trim(a) == trim(b)
}

// stopProcess asks p to terminate and kills it after a grace period.
func stopProcess(p *process.Process) error {
	if err := p.Terminate(); err != nil {
		if ok, _ := process.PidExists(p.Pid); !ok {
			return nil
		}
		return p.Kill()
	}
	deadline := time.Now().Add(terminateGrace)
	for time.Now().Before(deadline) {
		if running, err := p.IsRunning(); err != nil || !running {
			return nil
		}
		if status, err := p.Status(); err == nil && len(status) > 0 && status[0] == process.Zombie {
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return p.Kill()
}

// stopCommand terminates a child we started and waits for it to be reaped.
func stopCommand(cmd *exec.Cmd, exited <-chan struct{}) error {
	select {
	case <-exited:
		return nil
	default:
	}

	if p, err := process.NewProcess(int32(cmd.Process.Pid)); err == nil {
		p.Terminate()
	}
	select {
	case <-exited:
		return nil
	case <-time.After(terminateGrace):
	}

	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	<-exited
	return nil
}
