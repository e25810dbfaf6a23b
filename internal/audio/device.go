// SPDX-License-Identifier: MIT
package audio

import (
	"time"

	"github.com/gordonklaus/portaudio"
)

// Device represents an audio device
type Device struct {
	ID                int
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	LowLatency        time.Duration
	HighLatency       time.Duration
	Default           bool // host default output
}

// HostDevices returns all devices PortAudio reports. PortAudio must be
// initialized.
func HostDevices() ([]Device, error) {
	infos, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}

	var defaultName string
	if d, err := portaudio.DefaultOutputDevice(); err == nil && d != nil {
		defaultName = d.Name
	}

	devices := make([]Device, len(infos))
	for i, info := range infos {
		devices[i] = Device{
			ID:                i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			LowLatency:        info.DefaultLowOutputLatency,
			HighLatency:       info.DefaultHighOutputLatency,
			Default:           info.Name == defaultName && info.MaxOutputChannels > 0,
		}
		if info.HostApi != nil {
			devices[i].HostAPI = info.HostApi.Name
		}
	}

	return devices, nil
}

// OutputDevices filters HostDevices to devices with output channels.
func OutputDevices() ([]Device, error) {
	all, err := HostDevices()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, d := range all {
		if d.MaxOutputChannels > 0 {
			out = append(out, d)
		}
	}
	return out, nil
}
