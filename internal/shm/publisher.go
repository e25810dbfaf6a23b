// SPDX-License-Identifier: MIT
/*
Package shm exposes the band levels to another process through a named,
OS-backed shared memory segment.

Layout: NumBands consecutive float32 values in the host's native byte order.
There is no header, version or sequence field. Consumers must know NumBands
and the band order out of band.

There is no cross-process synchronization. The publisher overwrites the
whole segment on every Publish and a reader may observe a frame that is
partly old and partly new. Consumers must tolerate torn frames; at the
publish cadence (one frame per render block) a torn frame is at worst one
block stale in some bands.

Backing store:
  - Linux/macOS: a regular file <Dir>/<Name>, mmap'd MAP_SHARED per publish.
    Dir defaults to /dev/shm on Linux.
  - Windows: a pagefile-backed mapping named Local\<Name>.
*/
package shm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"fractalwave/internal/log"

	"golang.org/x/time/rate"
)

const (
	// DefaultName matches what the bundled renderer opens.
	DefaultName = "FractalWaveFFT"

	// BytesPerBand is the size of one float32 level.
	BytesPerBand = 4

	retryInterval = time.Second
)

var (
	ErrUnsupported = errors.New("shared memory is not supported on " + runtime.GOOS)
	ErrClosed      = errors.New("shared memory segment closed")
	ErrNotFound    = errors.New("shared memory segment not found")
)

// Options configures both sides of the segment.
type Options struct {
	Name     string
	Dir      string // unix only; empty selects DefaultDir()
	NumBands int
	Flush    bool // msync / FlushViewOfFile after each write
	Remove   bool // delete the backing file on Close (unix)
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = DefaultName
	}
	if o.Dir == "" {
		o.Dir = DefaultDir()
	}
	return o
}

// Size is the segment size in bytes.
func (o Options) Size() int { return o.NumBands * BytesPerBand }

// Path is the backing file on unix. On Windows it is informational only.
func (o Options) Path() string {
	o = o.withDefaults()
	return filepath.Join(o.Dir, o.Name)
}

// ReadyMarker is the file a renderer creates once it has attached and is
// rendering.
func (o Options) ReadyMarker() string {
	return o.Path() + ".ready"
}

// DefaultDir returns /dev/shm on Linux when it exists, os.TempDir() otherwise.
func DefaultDir() string {
	if runtime.GOOS == "linux" {
		if fi, err := os.Stat("/dev/shm"); err == nil && fi.IsDir() {
			return "/dev/shm"
		}
	}
	return os.TempDir()
}

// Publisher writes band vectors into the segment. It is owned by the render
// callback: Publish must not be called concurrently, and Close must not
// overlap a Publish.
type Publisher struct {
	opts Options
	log  *log.Logger

	seg         *segment
	lastAttempt time.Time
	failures    rate.Sometimes
	closed      bool
}

// NewPublisher returns a publisher; the segment itself is created lazily
// on the first Publish.
func NewPublisher(opts Options) *Publisher {
	if opts.NumBands <= 0 {
		panic(fmt.Sprintf("shm: invalid band count %d", opts.NumBands))
	}
	return &Publisher{
		opts:     opts.withDefaults(),
		log:      log.New("shm"),
		failures: rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

// Publish writes exactly NumBands float32 values. A shorter bands slice is
// zero-padded and a longer one truncated. It returns false when the
// segment is unavailable; creation is retried at most once per second.
func (p *Publisher) Publish(bands []float32) bool {
	if p.closed {
		return false
	}
	if p.seg == nil {
		now := time.Now()
		if !p.lastAttempt.IsZero() && now.Sub(p.lastAttempt) < retryInterval {
			return false
		}
		p.lastAttempt = now

		seg, err := createSegment(p.opts)
		if err != nil {
			p.failures.Do(func() {
				p.log.Errorf("creating segment %q: %v", p.opts.Name, err)
			})
			return false
		}
		p.seg = seg
		p.log.Debugf("segment %q created (%d bytes)", p.opts.Name, p.opts.Size())
	}

	if err := p.seg.write(bands, p.opts.Flush); err != nil {
		p.failures.Do(func() {
			p.log.Errorf("writing segment %q: %v", p.opts.Name, err)
		})
		return false
	}
	return true
}

// Ready reports whether the segment has been created.
func (p *Publisher) Ready() bool { return p.seg != nil }

func (p *Publisher) Options() Options { return p.opts }

// Close releases the segment. Further Publish calls return false.
func (p *Publisher) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if p.seg == nil {
		return nil
	}
	err := p.seg.close(p.opts.Remove)
	p.seg = nil
	return err
}
