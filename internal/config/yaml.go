// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"fractalwave/internal/log"
	"fractalwave/pkg/bitint"

	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	LogLevel     string             `yaml:"log_level"`     // Logging level (e.g., "debug", "info", "warn", "error").
	Audio        AudioConfig        `yaml:"audio"`         // Output stream settings.
	Analysis     AnalysisConfig     `yaml:"analysis"`      // Spectral analysis settings.
	SharedMemory SharedMemoryConfig `yaml:"shared_memory"` // Band publishing segment.
	Visualizer   VisualizerConfig   `yaml:"visualizer"`    // External renderer process.
	Transport    TransportConfig    `yaml:"transport"`     // Network mirror of the band levels.
	Metrics      MetricsConfig      `yaml:"metrics"`       // Prometheus endpoint.
}

// AudioConfig holds settings related to audio output.
type AudioConfig struct {
	OutputDevice      int     `yaml:"output_device"`       // PortAudio device index for output (-1 for default).
	OutputChannels    int     `yaml:"output_channels"`     // Number of output channels the stream is opened with.
	FramesPerBuffer   int     `yaml:"frames_per_buffer"`   // Frames per render callback.
	LowLatency        bool    `yaml:"low_latency"`         // Request low latency settings from PortAudio device.
	DefaultSampleRate float64 `yaml:"default_sample_rate"` // Stream rate before the first track is loaded.
}

// AnalysisConfig holds the analyzer settings.
type AnalysisConfig struct {
	WindowSize int    `yaml:"window_size"` // FFT window length in samples (power of two).
	Window     string `yaml:"window"`      // Window function name (e.g., "hann", "hamming").
}

// SharedMemoryConfig names the segment the band levels are published into.
type SharedMemoryConfig struct {
	Name  string `yaml:"name"`  // Segment name (Local\<name> on Windows, <dir>/<name> elsewhere).
	Dir   string `yaml:"dir"`   // Backing directory on Linux/macOS; empty for the platform default.
	Flush bool   `yaml:"flush"` // Flush the mapping after every write.
}

// VisualizerConfig describes the external renderer and its handshake timeouts.
type VisualizerConfig struct {
	Executable        string        `yaml:"executable"`         // Renderer binary; empty disables the visualizer.
	Args              []string      `yaml:"args"`               // Extra arguments passed to the renderer.
	ProcessName       string        `yaml:"process_name"`       // Process name to look for; defaults to the executable's base name.
	FindTimeout       time.Duration `yaml:"find_timeout"`       // How long to wait for the process to appear.
	ReadyTimeout      time.Duration `yaml:"ready_timeout"`      // How long to wait for the ready marker.
	PollInterval      time.Duration `yaml:"poll_interval"`      // Process lookup polling interval.
	TerminateExisting bool          `yaml:"terminate_existing"` // Kill stale renderer processes before launching.
	AutoLaunch        bool          `yaml:"auto_launch"`        // Launch the renderer at startup.
}

// TransportConfig holds settings related to sending band levels over the network.
type TransportConfig struct {
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Enable sending band frames over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port for UDP packets (e.g., "127.0.0.1:9090").
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between frames for all transports.
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Serve band frames to WebSocket clients.
	WebSocketAddress string        `yaml:"websocket_address"`  // Listen address for the WebSocket server.
	WebSocketMaxRate float64       `yaml:"websocket_max_rate"` // Max frames per second per client.
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations (DefaultConfigFile). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{DefaultConfigFile}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks ranges and cross-field requirements. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error, fatal", c.LogLevel))
	}

	// Audio
	if c.Audio.OutputDevice < MinDeviceID {
		errs = append(errs, fmt.Errorf("audio.output_device must be >= %d, got %d", MinDeviceID, c.Audio.OutputDevice))
	}
	if c.Audio.OutputChannels < 1 || c.Audio.OutputChannels > MaxOutputChannels {
		errs = append(errs, fmt.Errorf("audio.output_channels must be between 1 and %d, got %d", MaxOutputChannels, c.Audio.OutputChannels))
	}
	if c.Audio.FramesPerBuffer < 1 || c.Audio.FramesPerBuffer > MaxBufferFrames {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer must be between 1 and %d, got %d", MaxBufferFrames, c.Audio.FramesPerBuffer))
	}
	if c.Audio.DefaultSampleRate < MinSampleRate || c.Audio.DefaultSampleRate > MaxSampleRate {
		errs = append(errs, fmt.Errorf("audio.default_sample_rate must be between %d and %d, got %g", MinSampleRate, MaxSampleRate, c.Audio.DefaultSampleRate))
	}

	// Analysis
	if !bitint.IsPowerOfTwo(c.Analysis.WindowSize) || c.Analysis.WindowSize < MinWindowSize || c.Analysis.WindowSize > MaxWindowSize {
		errs = append(errs, fmt.Errorf("analysis.window_size must be a power of 2 between %d and %d, got %d", MinWindowSize, MaxWindowSize, c.Analysis.WindowSize))
	}

	// Shared memory
	if c.SharedMemory.Name == "" || strings.ContainsAny(c.SharedMemory.Name, `/\`) {
		errs = append(errs, fmt.Errorf("shared_memory.name %q must be non-empty and contain no path separators", c.SharedMemory.Name))
	}

	// Visualizer
	if c.Visualizer.AutoLaunch && c.Visualizer.Executable == "" {
		errs = append(errs, errors.New("visualizer.executable must be set when visualizer.auto_launch is enabled"))
	}
	if c.Visualizer.FindTimeout <= 0 || c.Visualizer.ReadyTimeout <= 0 {
		errs = append(errs, errors.New("visualizer.find_timeout and visualizer.ready_timeout must be positive"))
	}
	if c.Visualizer.PollInterval < MinPollInterval {
		errs = append(errs, fmt.Errorf("visualizer.poll_interval must be at least %s", MinPollInterval))
	}

	// Transport
	if c.Transport.UDPEnabled {
		if _, _, err := net.SplitHostPort(c.Transport.UDPTargetAddress); err != nil {
			errs = append(errs, fmt.Errorf("transport.udp_target_address %q appears invalid: %w", c.Transport.UDPTargetAddress, err))
		}
	}
	if (c.Transport.UDPEnabled || c.Transport.WebSocketEnabled) && c.Transport.UDPSendInterval <= 0 {
		errs = append(errs, errors.New("transport.udp_send_interval must be positive when a transport is enabled"))
	}
	if c.Transport.WebSocketEnabled {
		if _, _, err := net.SplitHostPort(c.Transport.WebSocketAddress); err != nil {
			errs = append(errs, fmt.Errorf("transport.websocket_address %q appears invalid: %w", c.Transport.WebSocketAddress, err))
		}
		if c.Transport.WebSocketMaxRate <= 0 {
			errs = append(errs, errors.New("transport.websocket_max_rate must be positive"))
		}
	}

	// Metrics
	if c.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(c.Metrics.Address); err != nil {
			errs = append(errs, fmt.Errorf("metrics.address %q appears invalid: %w", c.Metrics.Address, err))
		}
	}

	return errors.Join(errs...)
}

// applyEnvOverrides applies ENV_* variables on top of the file or defaults.
// Unparseable values are logged and ignored.
func (cfg *Config) applyEnvOverrides() {
	// ENV_{...}
	// These are general overrides.

	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = val
		log.Infof("configuration: Overriding log_level from env: %s", val)
	}
	// ENV_OUTPUT_DEVICE
	envInt("ENV_OUTPUT_DEVICE", "audio.output_device", &cfg.Audio.OutputDevice)
	// ENV_WINDOW_SIZE
	envInt("ENV_WINDOW_SIZE", "analysis.window_size", &cfg.Analysis.WindowSize)
	// ENV_SHM_NAME
	envString("ENV_SHM_NAME", "shared_memory.name", &cfg.SharedMemory.Name)
	// ENV_SHM_DIR
	envString("ENV_SHM_DIR", "shared_memory.dir", &cfg.SharedMemory.Dir)
	// ENV_VISUALIZER_EXECUTABLE
	envString("ENV_VISUALIZER_EXECUTABLE", "visualizer.executable", &cfg.Visualizer.Executable)

	// ENV_UDP_{...}
	// These are specific to the transport layer.

	// ENV_UDP_ENABLED
	envBool("ENV_UDP_ENABLED", "transport.udp_enabled", &cfg.Transport.UDPEnabled)
	// ENV_UDP_TARGET_ADDRESS
	envString("ENV_UDP_TARGET_ADDRESS", "transport.udp_target_address", &cfg.Transport.UDPTargetAddress)
	// ENV_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Transport.UDPSendInterval = dur
			log.Infof("configuration: Overriding transport.udp_send_interval from env: %s", dur)
		} else {
			log.Warnf("configuration: Ignoring ENV_UDP_SEND_INTERVAL=%q: %v", val, err)
		}
	}
	// ENV_WEBSOCKET_ENABLED
	envBool("ENV_WEBSOCKET_ENABLED", "transport.websocket_enabled", &cfg.Transport.WebSocketEnabled)

	// ENV_METRICS_ENABLED
	envBool("ENV_METRICS_ENABLED", "metrics.enabled", &cfg.Metrics.Enabled)
}

func envString(name, key string, dst *string) {
	if val, ok := os.LookupEnv(name); ok {
		*dst = val
		log.Infof("configuration: Overriding %s from env: %s", key, val)
	}
}

func envBool(name, key string, dst *bool) {
	if val, ok := os.LookupEnv(name); ok {
		bVal, err := strconv.ParseBool(val)
		if err != nil {
			log.Warnf("configuration: Ignoring %s=%q: %v", name, val, err)
			return
		}
		*dst = bVal
		log.Infof("configuration: Overriding %s from env: %v", key, bVal)
	}
}

func envInt(name, key string, dst *int) {
	if val, ok := os.LookupEnv(name); ok {
		iVal, err := strconv.Atoi(val)
		if err != nil {
			log.Warnf("configuration: Ignoring %s=%q: %v", name, val, err)
			return
		}
		*dst = iVal
		log.Infof("configuration: Overriding %s from env: %d", key, iVal)
	}
}
