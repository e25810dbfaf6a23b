// SPDX-License-Identifier: MIT
package shm

import "fmt"

// Reader is the consumer side of the segment, as an external renderer would
// see it. It makes no attempt to detect torn frames.
type Reader struct {
	opts Options
	seg  *segment
}

// OpenReader attaches to an existing segment. It returns an error wrapping
// ErrNotFound when no publisher has created it yet.
func OpenReader(opts Options) (*Reader, error) {
	if opts.NumBands <= 0 {
		return nil, fmt.Errorf("invalid band count %d", opts.NumBands)
	}
	opts = opts.withDefaults()
	seg, err := openSegment(opts)
	if err != nil {
		return nil, err
	}
	return &Reader{opts: opts, seg: seg}, nil
}

// ReadBands copies min(len(dst), NumBands) levels into dst.
func (r *Reader) ReadBands(dst []float32) error {
	if r.seg == nil {
		return ErrClosed
	}
	return r.seg.read(dst)
}

func (r *Reader) NumBands() int { return r.opts.NumBands }

func (r *Reader) Close() error {
	if r.seg == nil {
		return nil
	}
	err := r.seg.close(false)
	r.seg = nil
	return err
}
