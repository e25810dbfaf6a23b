// SPDX-License-Identifier: MIT
/*
Package control is the media controller: a queue of tracks in front of the
playback engine, auto-advance when a track ends, and the visualizer toggle
that runs the renderer handshake on the task runner.

Controller methods may be called from any goroutine; they serialize on an
internal mutex. Task runner signals arrive through the runner's Poster.
*/
package control

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"fractalwave/internal/audio"
	"fractalwave/internal/log"
	"fractalwave/internal/taskrunner"
)

// Player is the engine control surface the controller drives.
type Player interface {
	ReplaceTrack(path string) bool
	TogglePause()
	Stop()
	CurrentTrackPath() string
	TrackFinished() <-chan struct{}
	SetVisualizationActive(active bool)
	VisualizationActive() bool
}

// Visualizer launches and stops the external renderer.
type Visualizer interface {
	Configured() bool
	Running() bool
	Chain() taskrunner.Chain
	Terminate() error
}

// TaskRunner schedules chains and reports how they end.
type TaskRunner interface {
	Schedule(c taskrunner.Chain) error
	OnFinished(fn func(chain string))
	OnError(fn func(chain, msg string))
}

type Controller struct {
	player Player
	viz    Visualizer
	runner TaskRunner
	log    *log.Logger

	mu         sync.Mutex
	queue      []string
	index      int // -1 when nothing was started
	vizChain   string
	vizPending bool
	lastError  string
}

func NewController(player Player, runner TaskRunner, viz Visualizer) *Controller {
	c := &Controller{
		player: player,
		viz:    viz,
		runner: runner,
		log:    log.New("control"),
		index:  -1,
	}
	runner.OnFinished(c.chainFinished)
	runner.OnError(c.chainFailed)
	return c
}

// --- Queue ---

// SetQueue replaces the queue. Playback is not touched.
func (c *Controller) SetQueue(paths []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = slices.Clone(paths)
	c.index = -1
}

// Enqueue appends paths to the queue.
func (c *Controller) Enqueue(paths ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, paths...)
}

func (c *Controller) Queue() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.queue)
}

// Index returns the queue position of the current track, or -1.
func (c *Controller) Index() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// --- Transport ---

// PlayIndex plays queue entry i. Selecting the track that is already
// loaded toggles pause instead of restarting it.
func (c *Controller) PlayIndex(i int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.queue) {
		return false
	}
	if i == c.index && c.player.CurrentTrackPath() == c.queue[i] {
		c.player.TogglePause()
		return true
	}
	return c.playLocked(i)
}

// Next plays the following queue entry. At the end of the queue it stops
// and returns false.
func (c *Controller) Next() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.advanceLocked(c.index + 1)
}

// Previous plays the preceding queue entry, or restarts the first one.
func (c *Controller) Previous() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return false
	}
	return c.playLocked(max(c.index-1, 0))
}

// TogglePause pauses or resumes; with nothing loaded it starts the queue.
func (c *Controller) TogglePause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.player.CurrentTrackPath() == "" {
		return c.advanceLocked(max(c.index, 0))
	}
	c.player.TogglePause()
	return true
}

func (c *Controller) playLocked(i int) bool {
	c.index = i
	if !c.player.ReplaceTrack(c.queue[i]) {
		c.log.Warnf("could not play %s", c.queue[i])
		return false
	}
	return true
}

// advanceLocked plays the first playable entry at or after i, skipping
// files that fail to load.
func (c *Controller) advanceLocked(i int) bool {
	for ; i < len(c.queue); i++ {
		if c.playLocked(i) {
			return true
		}
	}
	c.player.Stop()
	return false
}

// Run advances the queue whenever the current track ends, until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	finished := c.player.TrackFinished()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-finished:
			c.onTrackFinished()
		}
	}
}

func (c *Controller) onTrackFinished() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index+1 >= len(c.queue) {
		c.log.Infof("end of queue")
		return
	}
	c.advanceLocked(c.index + 1)
}

// --- Visualizer ---

// ToggleVisualizer attaches or detaches the renderer. Without a configured
// executable only the engine gate is switched, for renderers started by
// hand. Otherwise the launch handshake is scheduled on the task runner.
func (c *Controller) ToggleVisualizer() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vizPending {
		c.log.Debugf("visualizer handshake already in progress")
		return
	}
	if c.player.VisualizationActive() || c.viz.Running() {
		if err := c.viz.Terminate(); err != nil {
			c.log.Warnf("stopping renderer: %v", err)
		}
		c.player.SetVisualizationActive(false)
		return
	}

	c.lastError = ""
	if !c.viz.Configured() {
		c.player.SetVisualizationActive(true)
		return
	}

	chain := c.viz.Chain()
	if err := c.runner.Schedule(chain); err != nil {
		c.lastError = err.Error()
		c.log.Errorf("scheduling visualizer launch: %v", err)
		return
	}
	c.vizChain = chain.Name()
	c.vizPending = true
}

// VisualizerPending reports whether the launch handshake is running.
func (c *Controller) VisualizerPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vizPending
}

// LastError returns the message of the most recent failed handshake.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

func (c *Controller) chainFinished(chain string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if chain != c.vizChain {
		return
	}
	c.vizPending = false
	c.log.Infof("visualizer attached")
}

func (c *Controller) chainFailed(chain, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if chain != c.vizChain {
		return
	}
	c.vizPending = false
	c.lastError = msg
	c.player.SetVisualizationActive(false)
	if err := c.viz.Terminate(); err != nil {
		c.log.Warnf("cleaning up renderer: %v", err)
	}
	c.log.Errorf("visualizer launch failed: %s", msg)
}

// Close stops the renderer.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viz.Terminate()
}

// --- Files ---

// ScanDir lists the playable files directly inside dir, sorted by name.
func ScanDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && audio.IsSupported(e.Name()) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(out)
	return out, nil
}

// ExpandPaths turns command line arguments into a queue: directories are
// scanned, files are kept in order.
func ExpandPaths(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		fi, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !fi.IsDir() {
			out = append(out, arg)
			continue
		}
		files, err := ScanDir(arg)
		if err != nil {
			return nil, err
		}
		out = append(out, files...)
	}
	return out, nil
}
