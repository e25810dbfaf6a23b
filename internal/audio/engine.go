// SPDX-License-Identifier: MIT
/*
Package audio implements the playback engine:
- Whole-file decoding (WAV, FLAC, MP3 natively, others through ffmpeg)
- A PortAudio output stream whose callback renders the active track
- Capture of the rendered block into a sample ring, spectral analysis and
  publishing of the band levels while a visualizer is attached

Thread Safety:
- Control methods (LoadFile, Play, Seek, ...) are serialized by a mutex and
  may be called from any goroutine
- The render callback shares state with them only through atomics; the
  active session is handed over with an atomic pointer
- Replacing or unloading a session waits until every callback that could
  have loaded the old one has returned
- Pre-allocates buffers to avoid GC in hot path
- Locks OS thread during audio processing
*/
package audio

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"fractalwave/internal/analysis"
	"fractalwave/internal/buffer"
	"fractalwave/internal/config"
	"fractalwave/internal/log"
	"fractalwave/internal/metrics"
)

// State is the transport state seen by the control surface.
type State int

const (
	StateEmpty State = iota
	StateStopped
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const quiescePoll = 100 * time.Microsecond

type Engine struct {
	// Core configuration and collaborators.
	config     *config.Config
	log        *log.Logger
	metrics    *metrics.Metrics
	openStream StreamOpener
	sink       analysis.BandSink

	// Control domain.
	mu         sync.Mutex
	stream     OutputStream
	streamRate int

	// Shared with the render callback.
	current    atomic.Pointer[session]
	entered    atomic.Uint64 // callbacks started
	exited     atomic.Uint64 // callbacks finished
	vizActive  atomic.Bool
	sampleRate atomic.Uint64 // math.Float64bits of the stream rate
	bandBits   []atomic.Uint32
	finished   chan struct{}

	// Render domain, touched only by the callback.
	channels    int
	ring        *buffer.Ring
	analyzer    *analysis.Analyzer
	mono        []float32
	lastSession *session
	lastViz     bool
}

// Option customizes an Engine.
type Option func(*Engine)

// WithMetrics records render, analysis and publish counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithStreamOpener replaces the PortAudio stream, e.g. with a fake in tests.
func WithStreamOpener(open StreamOpener) Option {
	return func(e *Engine) { e.openStream = open }
}

// NewEngine builds an engine from cfg. sink receives every completed band
// vector while visualization is active; it may be nil.
func NewEngine(cfg *config.Config, sink analysis.BandSink, opts ...Option) (*Engine, error) {
	windowFunc, err := analysis.ParseWindowFunc(cfg.Analysis.Window)
	if err != nil {
		return nil, err
	}
	analyzer, err := analysis.NewAnalyzer(cfg.Analysis.WindowSize, windowFunc, nil)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:     cfg,
		log:        log.New("playback"),
		openStream: OpenPortAudioStream,
		sink:       sink,
		streamRate: int(cfg.Audio.DefaultSampleRate),
		bandBits:   make([]atomic.Uint32, analyzer.NumBands()),
		finished:   make(chan struct{}, 1),
		channels:   cfg.Audio.OutputChannels,
		ring:       buffer.NewRing(cfg.Analysis.WindowSize),
		analyzer:   analyzer,
		mono:       make([]float32, cfg.Audio.FramesPerBuffer),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.sampleRate.Store(math.Float64bits(float64(e.streamRate)))

	e.log.Debugf("engine ready (window %d/%s, %d ch, %d frames per buffer)",
		analyzer.WindowSize(), windowFunc, e.channels, len(e.mono))
	return e, nil
}

// Start opens and starts the output stream at the current stream rate.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stream != nil {
		return nil
	}
	return e.openStreamLocked(e.streamRate)
}

// Close unloads the current track and closes the output stream.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unloadLocked()
	return e.closeStreamLocked()
}

func (e *Engine) openStreamLocked(rate int) error {
	params := StreamParams{
		DeviceID:        e.config.Audio.OutputDevice,
		Channels:        e.channels,
		FramesPerBuffer: e.config.Audio.FramesPerBuffer,
		SampleRate:      float64(rate),
		LowLatency:      e.config.Audio.LowLatency,
	}
	stream, err := e.openStream(params, e.processOutputStream)
	if err != nil {
		return err
	}
	e.setRate(rate)
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("starting output stream: %w", err)
	}
	e.stream = stream
	e.log.Infof("output stream running at %d Hz", rate)
	return nil
}

func (e *Engine) closeStreamLocked() error {
	if e.stream == nil {
		return nil
	}
	stream := e.stream
	e.stream = nil
	if err := stream.Stop(); err != nil {
		stream.Close()
		return err
	}
	return stream.Close()
}

// SetOutputDevice moves output to another PortAudio device. A running
// stream is reopened at the current rate; if the new device refuses it the
// previous device is reopened and the error returned.
func (e *Engine) SetOutputDevice(id int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.config.Audio.OutputDevice
	if id == prev {
		return nil
	}
	e.config.Audio.OutputDevice = id
	if e.stream == nil {
		return nil
	}
	if err := e.closeStreamLocked(); err != nil {
		e.log.Warnf("closing output stream: %v", err)
	}
	if err := e.openStreamLocked(e.streamRate); err != nil {
		e.config.Audio.OutputDevice = prev
		if rerr := e.openStreamLocked(e.streamRate); rerr != nil {
			e.log.Errorf("reopening previous output device %d: %v", prev, rerr)
		}
		return fmt.Errorf("switching to output device %d: %w", id, err)
	}
	return nil
}

// OutputDevice returns the configured device index (-1 for the host default).
func (e *Engine) OutputDevice() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config.Audio.OutputDevice
}

func (e *Engine) setRate(rate int) {
	e.streamRate = rate
	e.sampleRate.Store(math.Float64bits(float64(rate)))
}

// --- Control surface ---

// LoadFile decodes path and makes it the current track without starting
// playback. It returns false if the file cannot be decoded or the stream
// cannot run at its sample rate; the previous track is kept in both cases.
func (e *Engine) LoadFile(path string) bool {
	track, err := DecodeFile(path)
	if err != nil {
		e.log.Errorf("loading %s: %v", path, err)
		e.metrics.TrackLoad(false)
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadLocked(track)
}

// loadLocked swaps track in. The current session is released only once the
// stream runs at the track's rate.
func (e *Engine) loadLocked(track *Track) bool {
	if !e.matchRateLocked(track.SampleRate) {
		e.metrics.TrackLoad(false)
		return false
	}
	e.unloadLocked()
	e.current.Store(newSession(track))
	e.metrics.TrackLoad(true)
	e.log.Infof("loaded %s (%d Hz, %d ch, %s)", track.Path, track.SampleRate, track.Channels,
		track.Duration().Round(time.Second))
	return true
}

// matchRateLocked reopens a running stream at rate. On failure the stream
// is reopened at the previous rate and the current session resumes as it was.
func (e *Engine) matchRateLocked(rate int) bool {
	if rate == e.streamRate {
		return true
	}
	if e.stream == nil {
		e.setRate(rate)
		return true
	}

	// The current session must not render at the new rate.
	cur := e.current.Load()
	wasPlaying := cur != nil && cur.playing.Swap(false)

	prev := e.streamRate
	if err := e.closeStreamLocked(); err != nil {
		e.log.Warnf("closing stream for rate change: %v", err)
	}
	if err := e.openStreamLocked(rate); err != nil {
		e.log.Errorf("reopening output stream at %d Hz: %v", rate, err)
		if err := e.openStreamLocked(prev); err != nil {
			e.log.Errorf("restoring output stream at %d Hz: %v", prev, err)
		}
		if wasPlaying {
			cur.playing.Store(true)
		}
		return false
	}
	return true
}

// UnloadFile stops playback and releases the current track. When it returns
// no render callback is still using the released track.
func (e *Engine) UnloadFile() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unloadLocked()
}

func (e *Engine) unloadLocked() {
	old := e.current.Swap(nil)
	if old == nil {
		return
	}
	old.playing.Store(false)
	e.quiesce()
	e.log.Debugf("unloaded %s", old.track.Path)
}

// quiesce waits until every callback that started before the call has
// returned. Callbacks that start afterwards load the new session.
func (e *Engine) quiesce() {
	target := e.entered.Load()
	for e.exited.Load() < target {
		time.Sleep(quiescePoll)
	}
}

// ReplaceTrack unloads the current track, loads path and starts playing it.
// On failure the engine is left empty; the previous track is not restored.
func (e *Engine) ReplaceTrack(path string) bool {
	track, err := DecodeFile(path)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.unloadLocked()
	if err != nil {
		e.log.Errorf("replacing track with %s: %v", path, err)
		e.metrics.TrackLoad(false)
		return false
	}
	if !e.loadLocked(track) {
		return false
	}
	e.playLocked()
	return true
}

// Play starts the current track from the beginning. No-op when empty.
func (e *Engine) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playLocked()
}

func (e *Engine) playLocked() {
	s := e.current.Load()
	if s == nil {
		return
	}
	s.position.Store(0)
	s.playing.Store(true)
}

// Stop halts playback and keeps the position.
func (e *Engine) Stop() {
	if s := e.current.Load(); s != nil {
		s.playing.Store(false)
	}
}

// TogglePause resumes a stopped track or pauses a playing one. Resuming a
// track that played to its end starts it over. No-op when empty.
func (e *Engine) TogglePause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.current.Load()
	if s == nil {
		return
	}
	if s.playing.Load() {
		s.playing.Store(false)
		return
	}
	if s.position.Load() >= s.track.Frames() {
		s.position.Store(0)
	}
	s.playing.Store(true)
}

// Seek moves the play head, clamped to [0, TrackLength()]. It does not
// change the play/pause state.
func (e *Engine) Seek(pos time.Duration) {
	s := e.current.Load()
	if s == nil {
		return
	}
	frames := durationToFrames(pos, s.track.SampleRate)
	s.position.Store(max(0, min(frames, s.track.Frames())))
}

// --- Queries ---

func (e *Engine) IsPlaying() bool {
	s := e.current.Load()
	return s != nil && s.playing.Load()
}

func (e *Engine) HasAudioLoaded() bool { return e.current.Load() != nil }

func (e *Engine) State() State {
	s := e.current.Load()
	switch {
	case s == nil:
		return StateEmpty
	case s.playing.Load():
		return StatePlaying
	default:
		return StateStopped
	}
}

// CurrentPosition returns the play head, or 0 when empty.
func (e *Engine) CurrentPosition() time.Duration {
	s := e.current.Load()
	if s == nil {
		return 0
	}
	return framesToDuration(s.position.Load(), s.track.SampleRate)
}

// TrackLength returns the duration of the current track, or 0 when empty.
func (e *Engine) TrackLength() time.Duration {
	s := e.current.Load()
	if s == nil {
		return 0
	}
	return s.track.Duration()
}

// CurrentTrackPath returns the loaded file, or "" when empty.
func (e *Engine) CurrentTrackPath() string {
	s := e.current.Load()
	if s == nil {
		return ""
	}
	return s.track.Path
}

// StreamRate returns the rate the output stream runs (or will run) at.
func (e *Engine) StreamRate() int {
	return int(math.Float64frombits(e.sampleRate.Load()))
}

// TrackFinished delivers a value each time a track plays to its end. At
// most one notification is buffered.
func (e *Engine) TrackFinished() <-chan struct{} { return e.finished }

// --- Spectral read surface ---

// SetVisualizationActive gates capture, analysis and publishing. Turning it
// off zeroes the band snapshot.
func (e *Engine) SetVisualizationActive(active bool) {
	if e.vizActive.Swap(active) == active {
		return
	}
	if !active {
		e.zeroBands()
	}
	e.metrics.VisualizationActive(active)
	e.log.Debugf("visualization active: %v", active)
}

func (e *Engine) VisualizationActive() bool { return e.vizActive.Load() }

func (e *Engine) zeroBands() {
	for i := range e.bandBits {
		e.bandBits[i].Store(0)
	}
}

// FrequencyBandLevel returns the most recent level of band, or 0 for an
// unknown band.
func (e *Engine) FrequencyBandLevel(band int) float32 {
	if band < 0 || band >= len(e.bandBits) {
		return 0
	}
	return math.Float32frombits(e.bandBits[band].Load())
}

// Bands returns a copy of the most recent band levels. Individual bands are
// read atomically; the vector as a whole may mix two analysis cycles.
func (e *Engine) Bands() []float32 {
	out := make([]float32, len(e.bandBits))
	for i := range e.bandBits {
		out[i] = math.Float32frombits(e.bandBits[i].Load())
	}
	return out
}

var _ analysis.SpectrumProvider = (*Engine)(nil)

// --- Render path ---

// processOutputStream is the core audio rendering callback.
// Performance Critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - Uses pre-allocated buffers only
// - No dynamic allocations or locks in the hot path
func (e *Engine) processOutputStream(out []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	e.entered.Add(1)
	defer e.exited.Add(1)

	e.render(out, e.current.Load())
}

func (e *Engine) render(out []float32, s *session) {
	e.metrics.RenderCycle()

	viz := e.vizActive.Load()
	if s != e.lastSession || (viz && !e.lastViz) {
		// Never analyze a window that spans two tracks or a capture gap.
		e.ring.Clear()
		e.lastSession = s
	}
	if !viz && e.lastViz {
		// A cycle that saw the gate open may have stored bands after
		// SetVisualizationActive cleared them.
		e.zeroBands()
	}
	e.lastViz = viz

	e.fill(out, s)

	if !viz {
		return
	}
	e.capture(out)

	ran := e.analyzer.Analyze(e.ring, math.Float64frombits(e.sampleRate.Load()))
	e.metrics.Analysis(ran)
	if !ran {
		return
	}
	bands := e.analyzer.Bands()
	if e.sink != nil {
		e.metrics.Publish(e.sink.Publish(bands))
	}
	for i, v := range bands {
		e.bandBits[i].Store(math.Float32bits(v))
	}
}

// fill writes the next block of the session into out, or silence.
func (e *Engine) fill(out []float32, s *session) {
	ch := e.channels
	frames := int64(len(out) / ch)

	if s == nil || !s.playing.Load() {
		clear(out)
		return
	}

	track := s.track
	tc := track.Channels
	total := track.Frames()
	pos := s.position.Load()
	n := max(0, min(frames, total-pos))

	const scale = 1.0 / 32768.0
	for f := range n {
		src := track.Samples[(pos+f)*int64(tc):]
		dst := out[f*int64(ch):]
		for c := range ch {
			dst[c] = float32(src[c%tc]) * scale
		}
	}
	clear(out[n*int64(ch):])

	s.advance(pos, n)
	if pos+n >= total {
		s.playing.Store(false)
		select {
		case e.finished <- struct{}{}:
		default:
		}
	}
}

// capture mixes the block down to mono (mean of all output channels) and
// pushes it into the ring.
func (e *Engine) capture(out []float32) {
	ch := e.channels
	frames := len(out) / ch
	inv := 1 / float32(ch)

	for start := 0; start < frames; start += len(e.mono) {
		chunk := min(len(e.mono), frames-start)
		for i := range chunk {
			frame := out[(start+i)*ch : (start+i+1)*ch]
			var sum float32
			for _, v := range frame {
				sum += v
			}
			e.mono[i] = sum * inv
		}
		e.ring.Push(e.mono[:chunk])
	}
}
