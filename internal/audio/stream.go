// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"
)

// StreamParams describes the output stream the engine asks for.
type StreamParams struct {
	DeviceID        int
	Channels        int
	FramesPerBuffer int
	SampleRate      float64
	LowLatency      bool
}

// OutputStream is the subset of *portaudio.Stream the engine drives.
type OutputStream interface {
	Start() error
	Stop() error
	Close() error
}

// StreamOpener opens an output stream that calls render for every block.
// render receives interleaved float32 samples, Channels per frame.
type StreamOpener func(params StreamParams, render func(out []float32)) (OutputStream, error)

// OpenPortAudioStream is the production StreamOpener.
func OpenPortAudioStream(params StreamParams, render func(out []float32)) (OutputStream, error) {
	device, err := OutputDevice(params.DeviceID)
	if err != nil {
		return nil, err
	}

	var latency time.Duration
	if params.LowLatency {
		latency = device.DefaultLowOutputLatency
	} else {
		latency = device.DefaultHighOutputLatency
	}

	streamParams := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: 0, // No input device
			Device:   nil,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: params.Channels,
			Device:   device,
			Latency:  latency,
		},
		FramesPerBuffer: params.FramesPerBuffer,
		SampleRate:      params.SampleRate,
	}

	stream, err := portaudio.OpenStream(streamParams, render)
	if err != nil {
		return nil, fmt.Errorf("opening output stream on %q at %.0f Hz: %w", device.Name, params.SampleRate, err)
	}
	return stream, nil
}
