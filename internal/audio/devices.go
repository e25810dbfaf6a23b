// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/gordonklaus/portaudio"
)

// DefaultDeviceID selects the host's default output device.
const DefaultDeviceID = -1

// Initialize sets up the PortAudio subsystem.
// This must be called before any audio operations and paired with a Terminate() call.
func Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate cleanly shuts down the PortAudio subsystem.
// This should be deferred immediately after Initialize().
func Terminate() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// OutputDevice retrieves the audio output device for the given device ID.
// DefaultDeviceID (-1) returns the system default output device.
// Returns an error if the device ID is invalid or the device has no outputs.
func OutputDevice(deviceID int) (*portaudio.DeviceInfo, error) {
	if deviceID == DefaultDeviceID {
		device, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return nil, fmt.Errorf("no default output device: %w", err)
		}
		return device, nil
	}

	devices, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}
	if deviceID < 0 || deviceID >= len(devices) {
		return nil, fmt.Errorf("invalid device ID: %d", deviceID)
	}
	if devices[deviceID].MaxOutputChannels == 0 {
		return nil, fmt.Errorf("device %d (%s) has no output channels", deviceID, devices[deviceID].Name)
	}
	return devices[deviceID], nil
}

// ListDevices writes information about all output-capable devices to w:
// ID and name, channel count, default sample rate and latency range. The
// default device is highlighted.
func ListDevices(w io.Writer) error {
	devices, err := HostDevices()
	if err != nil {
		return err
	}

	heading := color.New(color.Bold)
	id := color.New(color.FgCyan)
	def := color.New(color.FgGreen)

	heading.Fprintf(w, "\nAvailable Output Devices\n\n")

	for _, d := range devices {
		if d.MaxOutputChannels == 0 {
			continue
		}
		id.Fprintf(w, "[%d]", d.ID)
		fmt.Fprintf(w, " %s", d.Name)
		if d.Default {
			def.Fprint(w, " (default)")
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "    Output channels: %d, Host API: %s\n", d.MaxOutputChannels, d.HostAPI)
		fmt.Fprintf(w, "    Default sample rate: %.0f Hz\n", d.DefaultSampleRate)
		fmt.Fprintf(w, "    Latency: Low=%.2fms, High=%.2fms\n",
			d.LowLatency.Seconds()*1000, d.HighLatency.Seconds()*1000)
		fmt.Fprintln(w)
	}

	return nil
}

// paDevicesFunc returns all available PortAudio devices; tests replace it.
var paDevicesFunc = portaudio.Devices
