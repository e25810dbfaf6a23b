// SPDX-License-Identifier: MIT
/*
Package analysis turns the newest window of captured samples into a per-band
magnitude vector.

Each Analyze call copies the most recent WindowSize samples out of the ring,
multiplies them by the precomputed window, runs a real forward FFT and
averages |X[k]| over the bins of every band. The output fully replaces the
previous vector. There is no decay or smoothing between frames.

All buffers are allocated by NewAnalyzer; Analyze itself does not allocate,
so it is safe to call from the render callback.
*/
package analysis

import (
	"fmt"
	"math"

	"fractalwave/internal/buffer"
	"fractalwave/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
)

// DefaultWindowSize is 2^13 samples, about 186 ms at 44.1 kHz.
const DefaultWindowSize = 8192

// Pre-allocated buffers for FFT calculations.
type fftWorkspace struct {
	samples   []float32    // Most recent window copied from the ring.
	input     []float64    // Windowed input signal.
	fftOutput []complex128 // n/2+1 coefficients of the real transform.
	magnitude []float64    // |X[k]| for k in [0, n/2].
	window    []float64    // Pre-calculated window coefficients.
}

// Analyzer is owned by the render callback. None of its methods are safe
// for concurrent use; readers on other goroutines go through the engine's
// atomic band snapshot instead.
type Analyzer struct {
	fft        *fourier.FFT
	size       int
	windowFunc WindowFunc
	bands      []BandRange
	workspace  fftWorkspace

	frame  []float64 // 2·size interleaved (re, im)
	levels []float32 // one level per band
}

// NewAnalyzer builds an analyzer for windowSize-point transforms. windowSize
// must be a power of two and bands must pass ValidateBands. A nil bands
// slice selects DefaultBands.
func NewAnalyzer(windowSize int, fn WindowFunc, bands []BandRange) (*Analyzer, error) {
	if !bitint.IsPowerOfTwo(windowSize) || windowSize < 2 {
		return nil, fmt.Errorf("window size must be a power of 2, got %d", windowSize)
	}
	if bands == nil {
		bands = DefaultBands()
	}
	if err := ValidateBands(bands); err != nil {
		return nil, fmt.Errorf("invalid band table: %w", err)
	}

	half := windowSize/2 + 1
	return &Analyzer{
		fft:        fourier.NewFFT(windowSize),
		size:       windowSize,
		windowFunc: fn,
		bands:      append([]BandRange(nil), bands...),
		workspace: fftWorkspace{
			samples:   make([]float32, windowSize),
			input:     make([]float64, windowSize),
			fftOutput: make([]complex128, half),
			magnitude: make([]float64, half),
			window:    windowCoefficients(windowSize, fn),
		},
		frame:  make([]float64, 2*windowSize),
		levels: make([]float32, len(bands)),
	}, nil
}

// Analyze consumes the newest WindowSize samples of buf. With fewer samples
// buffered it does nothing and returns false, leaving the previous levels
// in place. A sampleRate that is not positive and finite is treated as
// DefaultSampleRate.
func (a *Analyzer) Analyze(buf *buffer.Ring, sampleRate float64) bool {
	if buf == nil || buf.Len() < a.size {
		return false
	}
	sampleRate = normalizeRate(sampleRate)
	ws := &a.workspace

	// --- 1. Window the most recent samples ---
	buf.Latest(ws.samples)
	for i, s := range ws.samples {
		ws.input[i] = float64(s) * ws.window[i]
	}

	// --- 2. Forward transform ---
	a.fft.Coefficients(ws.fftOutput, ws.input)

	// --- 3. Interleaved frame and magnitudes ---
	// The real transform yields bins 0..n/2; the rest of the frame is the
	// conjugate mirror, X[n-k] = conj(X[k]).
	for k, c := range ws.fftOutput {
		re, im := real(c), imag(c)
		a.frame[2*k] = re
		a.frame[2*k+1] = im
		if k > 0 && k < a.size/2 {
			a.frame[2*(a.size-k)] = re
			a.frame[2*(a.size-k)+1] = -im
		}
		ws.magnitude[k] = math.Sqrt(re*re + im*im)
	}

	// --- 4. Band averages ---
	for i, band := range a.bands {
		start := binIndex(band.Min, sampleRate, a.size)
		end := binIndex(band.Max, sampleRate, a.size)
		if end <= start {
			a.levels[i] = 0
			continue
		}
		var sum float64
		for _, m := range ws.magnitude[start:end] {
			sum += m
		}
		level := float32(sum / float64(end-start))
		if math.IsNaN(float64(level)) || math.IsInf(float64(level), 0) {
			level = 0
		}
		a.levels[i] = level
	}
	return true
}

// Bands returns the analyzer-owned level slice. It is overwritten by the
// next successful Analyze.
func (a *Analyzer) Bands() []float32 { return a.levels }

// BandLevel returns the level of band i, or 0 when i is out of range.
func (a *Analyzer) BandLevel(i int) float32 {
	if i < 0 || i >= len(a.levels) {
		return 0
	}
	return a.levels[i]
}

// Frame returns the last spectral frame as 2·WindowSize interleaved
// (re, im) values.
func (a *Analyzer) Frame() []float64 { return a.frame }

// Magnitudes returns |X[k]| for k in [0, WindowSize/2].
func (a *Analyzer) Magnitudes() []float64 { return a.workspace.magnitude }

// BinRange reports the [start, end) bins band i covers at sampleRate.
func (a *Analyzer) BinRange(i int, sampleRate float64) (start, end int) {
	if i < 0 || i >= len(a.bands) {
		return 0, 0
	}
	sampleRate = normalizeRate(sampleRate)
	return binIndex(a.bands[i].Min, sampleRate, a.size), binIndex(a.bands[i].Max, sampleRate, a.size)
}

// FrequencyForBin returns the center frequency (Hz) of bin k.
func (a *Analyzer) FrequencyForBin(k int, sampleRate float64) float64 {
	if k < 0 || k > a.size/2 {
		return 0
	}
	return float64(k) * normalizeRate(sampleRate) / float64(a.size)
}

func (a *Analyzer) WindowSize() int        { return a.size }
func (a *Analyzer) WindowFunc() WindowFunc { return a.windowFunc }
func (a *Analyzer) NumBands() int          { return len(a.bands) }

// Reset zeroes the levels and the frame.
func (a *Analyzer) Reset() {
	clear(a.levels)
	clear(a.frame)
	clear(a.workspace.magnitude)
}
