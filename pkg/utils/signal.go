// SPDX-License-Identifier: MIT
/*
Package utils holds signal generators and sinks shared by tests across the
module: synthetic tones to drive the analyzer and the engine, and a
recording sink that stands in for the shared-memory publisher.
*/
package utils

import (
	"math"
	"sync"
)

// MockSink records published band vectors. It satisfies analysis.BandSink.
type MockSink struct {
	mu       sync.Mutex
	LastData []float32
	Calls    int
	Fail     bool // Publish returns false when set
}

// Publish stores a copy of bands instead of writing shared memory.
func (m *MockSink) Publish(bands []float32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastData = make([]float32, len(bands))
	copy(m.LastData, bands)
	m.Calls++
	return !m.Fail
}

// Snapshot returns the last recorded vector and the number of calls.
func (m *MockSink) Snapshot() ([]float32, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float32(nil), m.LastData...), m.Calls
}

// GenerateSineWave returns size samples of a sine at frequency with the
// given peak amplitude.
func GenerateSineWave(size int, sampleRate, frequency float64, amplitude float32) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = amplitude * float32(math.Sin(2*math.Pi*frequency*t))
	}
	return buffer
}

// GenerateComplexWave returns a 440 Hz fundamental with two harmonics,
// peaking below 1.0.
func GenerateComplexWave(size int, sampleRate float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = float32(signal * 0.9)
	}
	return buffer
}

// ToInt16 converts [-1, 1] samples to 16-bit PCM, clipping out-of-range values.
func ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * math.MaxInt16)
		out[i] = int16(max(math.MinInt16, min(math.MaxInt16, v)))
	}
	return out
}

// Interleave duplicates a mono signal into channels interleaved channels.
func Interleave[T any](mono []T, channels int) []T {
	out := make([]T, len(mono)*channels)
	for i, s := range mono {
		for c := range channels {
			out[i*channels+c] = s
		}
	}
	return out
}

// FindPeakBin returns the index of the largest value in values[startBin:endBin+1].
// Bounds are clamped to the slice.
func FindPeakBin[T ~float32 | ~float64](values []T, startBin, endBin int) int {
	if len(values) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(values) {
		endBin = len(values) - 1
	}

	peakBin := startBin
	peakValue := values[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if values[bin] > peakValue {
			peakValue = values[bin]
			peakBin = bin
		}
	}

	return peakBin
}
