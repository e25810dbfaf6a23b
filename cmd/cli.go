// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"time"

	"fractalwave/internal/config"
	"fractalwave/pkg/build"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Commands other than playback. CommandHelp means cobra already printed
// help or the version and there is nothing left to run.
const (
	CommandHelp    = "help"
	CommandList    = "list"
	CommandBands   = "bands"
	CommandConvert = "convert"
	CommandVersion = "version"
)

// Options is the parsed command line. Command is empty for playback.
type Options struct {
	Command    string
	ConfigPath string
	Paths      []string

	DeviceID        int
	FramesPerBuffer int
	LowLatency      bool
	Visualize       bool
	Headless        bool
	Verbose         bool

	Interactive bool // list

	Interval  time.Duration // bands
	Count     int
	CheckTorn bool

	flags *pflag.FlagSet
}

// ParseArgs parses args (without the program name).
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	options := &Options{Command: CommandHelp}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name + " [flags] [FILE|DIR ...]",
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = ""
			options.Paths = args
			return nil
		},
	}
	options.flags = rootCmd.PersistentFlags()

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available output devices",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandList
		},
	}
	listCmd.Flags().BoolVarP(&options.Interactive, "interactive", "i", false,
		"Pick a device interactively and print its ID")
	rootCmd.AddCommand(listCmd)

	// Bands command
	bandsCmd := &cobra.Command{
		Use:   "bands",
		Short: "Read the published band levels from shared memory, as a renderer would",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if options.Interval <= 0 {
				return fmt.Errorf("--interval must be positive, got %s", options.Interval)
			}
			options.Command = CommandBands
			return nil
		},
	}
	bandsCmd.Flags().DurationVar(&options.Interval, "interval", 100*time.Millisecond,
		"Time between reads")
	bandsCmd.Flags().IntVarP(&options.Count, "count", "n", 0,
		"Stop after this many reads (0 reads until interrupted)")
	bandsCmd.Flags().BoolVar(&options.CheckTorn, "check-torn", false,
		"Read every frame twice and report how often the publisher wrote in between")
	rootCmd.AddCommand(bandsCmd)

	// Convert command
	convertCmd := &cobra.Command{
		Use:   "convert INPUT OUTPUT.wav",
		Short: "Decode an audio file and write it as 16-bit WAV",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandConvert
			options.Paths = args
		},
	}
	rootCmd.AddCommand(convertCmd)

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandVersion
		},
	})

	// Configuration
	rootCmd.PersistentFlags().StringVarP(&options.ConfigPath, "config", "c", "",
		"Path to the YAML configuration file (default "+config.DefaultConfigFile+" if present)")

	// Audio Device Configuration
	rootCmd.PersistentFlags().IntVarP(&options.DeviceID, "device", "d", config.DefaultDeviceID,
		"Specify output device ID. Use 'list' command to see available devices.")
	rootCmd.PersistentFlags().IntVarP(&options.FramesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	rootCmd.PersistentFlags().BoolVarP(&options.LowLatency, "low-latency", "l", config.DefaultLowLatency,
		"Use low latency mode for real-time processing")

	// Playback
	rootCmd.Flags().BoolVarP(&options.Visualize, "visualize", "V", false,
		"Launch the visualizer on start")
	rootCmd.Flags().BoolVar(&options.Headless, "headless", false,
		"Play the queue without the terminal UI")

	// Debug Configuration
	rootCmd.PersistentFlags().BoolVarP(&options.Verbose, "verbose", "v", false,
		"Show verbose output")

	// Execute the CLI
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	return options, nil
}

// Apply copies the flags that were given explicitly over cfg.
func (o *Options) Apply(cfg *config.Config) {
	if o.changed("device") {
		cfg.Audio.OutputDevice = o.DeviceID
	}
	if o.changed("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = o.FramesPerBuffer
	}
	if o.changed("low-latency") {
		cfg.Audio.LowLatency = o.LowLatency
	}
	if o.Verbose {
		cfg.LogLevel = "debug"
	}
}

func (o *Options) changed(name string) bool {
	return o.flags != nil && o.flags.Changed(name)
}
