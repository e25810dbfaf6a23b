// SPDX-License-Identifier: MIT
/*
Package buffer holds the sample ring the render callback captures into.

A Ring keeps the most recent Capacity() mono samples. Writes never block and
never fail: once full, each new sample overwrites the oldest one. The ring has
no internal locking. It is owned by the render callback, which is the only
writer, and is only read synchronously from that same callback.

	ring := buffer.NewRing(4)
	ring.Push([]float32{1, 2, 3, 4, 5})
	ring.Snapshot() // [2 3 4 5]
*/
package buffer

import "fmt"

type Ring struct {
	data  []float32
	head  int // next write index
	count int // valid samples, <= len(data)
}

// NewRing returns an empty ring holding up to capacity samples.
// It panics if capacity is not positive.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		panic(fmt.Sprintf("buffer: invalid ring capacity %d", capacity))
	}
	return &Ring{data: make([]float32, capacity)}
}

// Push appends samples, overwriting the oldest entries once full. Pushing
// more than Capacity() samples in one call leaves exactly the last
// Capacity() of them.
func (r *Ring) Push(samples []float32) {
	capacity := len(r.data)
	if len(samples) >= capacity {
		copy(r.data, samples[len(samples)-capacity:])
		r.head = 0
		r.count = capacity
		return
	}

	// At most two copies: up to the end of the backing array, then the wrap.
	n := copy(r.data[r.head:], samples)
	if n < len(samples) {
		copy(r.data, samples[n:])
	}
	r.head = (r.head + len(samples)) % capacity
	r.count = min(r.count+len(samples), capacity)
}

// Snapshot returns a copy of all valid samples, oldest first.
func (r *Ring) Snapshot() []float32 {
	out := make([]float32, r.count)
	r.Latest(out)
	return out
}

// Latest copies the most recent min(len(dst), Len()) samples into dst in
// chronological order and returns how many were copied. It does not allocate.
func (r *Ring) Latest(dst []float32) int {
	n := min(len(dst), r.count)
	if n == 0 {
		return 0
	}
	capacity := len(r.data)
	start := r.head - n
	if start < 0 {
		start += capacity
	}
	copied := copy(dst[:n], r.data[start:min(start+n, capacity)])
	if copied < n {
		copy(dst[copied:n], r.data[:n-copied])
	}
	return n
}

// Clear discards all samples. Capacity is unchanged.
func (r *Ring) Clear() {
	r.head = 0
	r.count = 0
}

// Len returns the number of valid samples.
func (r *Ring) Len() int { return r.count }

// Capacity returns the fixed number of samples the ring can hold.
func (r *Ring) Capacity() int { return len(r.data) }

// Full reports whether Len() == Capacity().
func (r *Ring) Full() bool { return r.count == len(r.data) }
