// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"math"
)

// NumBands is the length of the default band table and of the published
// spectrum. Consumers of the shared segment rely on it.
const NumBands = 16

// DefaultSampleRate is used whenever the caller passes a rate that is not a
// positive finite number.
const DefaultSampleRate = 44100.0

// BandRange is a half-open frequency interval [Min, Max) in Hz.
type BandRange struct {
	Min float64
	Max float64
}

// defaultBands covers 20 Hz to 20 kHz. Low frequencies get fine resolution:
// 14 bands spaced logarithmically from 20 to 500 Hz (ratio (500/20)^(1/14)),
// then two wide bands split at sqrt(500·20000).
var defaultBands = [NumBands]BandRange{
	{20.00, 25.17},
	{25.17, 31.68},
	{31.68, 39.86},
	{39.86, 50.17},
	{50.17, 63.14},
	{63.14, 79.46},
	{79.46, 100.00},
	{100.00, 125.85},
	{125.85, 158.38},
	{158.38, 199.32},
	{199.32, 250.85},
	{250.85, 315.69},
	{315.69, 397.30},
	{397.30, 500.00},
	{500.00, 3162.28},
	{3162.28, 20000.00},
}

// DefaultBands returns a copy of the standard 16-band table.
func DefaultBands() []BandRange {
	out := make([]BandRange, NumBands)
	copy(out, defaultBands[:])
	return out
}

var errNoBands = errors.New("at least one band is required")

// ValidateBands checks that bands are non-empty, contiguous and increasing.
func ValidateBands(bands []BandRange) error {
	if len(bands) == 0 {
		return errNoBands
	}
	for i, b := range bands {
		if !(b.Min >= 0) || !(b.Max > b.Min) || math.IsInf(b.Max, 0) {
			return fmt.Errorf("band %d: invalid range [%g, %g)", i, b.Min, b.Max)
		}
		if i > 0 && b.Min != bands[i-1].Max {
			return fmt.Errorf("band %d: starts at %g Hz, previous band ends at %g Hz", i, b.Min, bands[i-1].Max)
		}
	}
	return nil
}

// binIndex maps a frequency to an FFT bin for an n-point transform,
// clamped to [0, n/2].
func binIndex(freq, sampleRate float64, n int) int {
	bin := int(freq * float64(n) / sampleRate)
	return max(0, min(bin, n/2))
}

// normalizeRate substitutes DefaultSampleRate for unusable rates.
func normalizeRate(sampleRate float64) float64 {
	if !(sampleRate > 0) || math.IsInf(sampleRate, 0) {
		return DefaultSampleRate
	}
	return sampleRate
}
