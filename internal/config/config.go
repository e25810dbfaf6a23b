// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the player.
const (
	// Audio output
	DefaultDeviceID        = MinDeviceID // Default to system default device
	DefaultOutputChannels  = 2           // Stereo
	DefaultFramesPerBuffer = 512         // Balanced latency/performance
	DefaultLowLatency      = false       // Standard latency mode
	DefaultSampleRate      = 44100       // Used until a track sets the stream rate

	// Spectral analysis
	DefaultWindowSize = 8192 // 2^13 samples
	DefaultWindow     = "hann"

	// Shared memory
	DefaultShmName = "FractalWaveFFT"

	// Visualizer handshake
	DefaultFindTimeout  = 10 * time.Second
	DefaultReadyTimeout = 10 * time.Second
	DefaultPollInterval = 100 * time.Millisecond

	// Network mirror
	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultUDPSendInterval  = 33 * time.Millisecond // ~30Hz
	DefaultWebSocketAddress = "127.0.0.1:8080"
	DefaultWebSocketMaxRate = 30.0 // frames per second per client

	// Metrics
	DefaultMetricsAddress = "127.0.0.1:9464"

	// Hardware and processing limits
	MinDeviceID        = -1     // -1 represents system default device
	MinSampleRate      = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate      = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames    = 8192   // Maximum frames per buffer
	MinWindowSize      = 256
	MaxWindowSize      = 65536
	MaxOutputChannels  = 8
	DefaultConfigFile  = "fractalwave.yaml"
	DefaultLogLevel    = "info"
	MinPollInterval    = time.Millisecond
	DefaultProcessName = ""
)

// Default returns the built-in configuration used when no file is found.
func Default() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		Audio: AudioConfig{
			OutputDevice:      DefaultDeviceID,
			OutputChannels:    DefaultOutputChannels,
			FramesPerBuffer:   DefaultFramesPerBuffer,
			LowLatency:        DefaultLowLatency,
			DefaultSampleRate: DefaultSampleRate,
		},
		Analysis: AnalysisConfig{
			WindowSize: DefaultWindowSize,
			Window:     DefaultWindow,
		},
		SharedMemory: SharedMemoryConfig{
			Name:  DefaultShmName,
			Flush: true,
		},
		Visualizer: VisualizerConfig{
			ProcessName:       DefaultProcessName,
			FindTimeout:       DefaultFindTimeout,
			ReadyTimeout:      DefaultReadyTimeout,
			PollInterval:      DefaultPollInterval,
			TerminateExisting: true,
		},
		Transport: TransportConfig{
			UDPEnabled:       false,
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  DefaultUDPSendInterval,
			WebSocketEnabled: false,
			WebSocketAddress: DefaultWebSocketAddress,
			WebSocketMaxRate: DefaultWebSocketMaxRate,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: DefaultMetricsAddress,
		},
	}
}
