// SPDX-License-Identifier: MIT
package analysis

// BandSink receives every completed band vector on the render path.
// Implementations must not block and must not retain bands after returning.
// The shared-memory publisher is the production sink.
type BandSink interface {
	Publish(bands []float32) bool
}

// SpectrumProvider is the read surface for code outside the render path.
type SpectrumProvider interface {
	Bands() []float32
	FrequencyBandLevel(band int) float32
}
