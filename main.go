// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"fractalwave/cmd"
	"fractalwave/internal/analysis"
	"fractalwave/internal/audio"
	"fractalwave/internal/config"
	"fractalwave/internal/control"
	"fractalwave/internal/log"
	"fractalwave/internal/metrics"
	"fractalwave/internal/shm"
	"fractalwave/internal/taskrunner"
	"fractalwave/internal/transport"
	"fractalwave/internal/transport/udp"
	"fractalwave/internal/tui"
	"fractalwave/internal/visualizer"
	"fractalwave/pkg/build"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// main is the entry point for the player.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load configuration
//   - Execute one-off commands if requested
//   - Initialize PortAudio and construct every component once
//
// 2. Concurrent Phase (Hot Path):
//   - Output stream callback renders, analyzes and publishes
//   - Controller, transports and metrics run in an errgroup
//   - Terminal UI (or the headless dispatcher) owns the control goroutine
//
// 3. Shutdown Phase (Cold Path):
//   - Signal or quit cancels the group
//   - Renderer, runner, engine and segment are closed in reverse order
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	if err := build.Initialize(); err != nil {
		log.Debugf("Build: %v, using development defaults", err)
	}

	opts, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}
	switch opts.Command {
	case cmd.CommandHelp:
		return
	case cmd.CommandVersion:
		cmd.PrintVersion(os.Stdout)
		return
	}

	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		log.Fatalf("Config: %v", err)
	}
	opts.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Config: %v", err)
	}
	if level, ok := log.ParseLevel(cfg.LogLevel); ok {
		log.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = execute(ctx, cfg, opts)
	stop()
	if err != nil {
		log.Fatalf("%v", err)
	}
}

// execute runs the selected command. One-off commands don't start the engine.
func execute(ctx context.Context, cfg *config.Config, opts *cmd.Options) error {
	switch opts.Command {
	case cmd.CommandBands:
		return cmd.WatchBands(ctx, os.Stdout, cfg.SharedMemory, opts)
	case cmd.CommandConvert:
		return cmd.Convert(os.Stdout, opts.Paths[0], opts.Paths[1])
	case cmd.CommandList:
		if err := audio.Initialize(); err != nil {
			return err
		}
		defer audio.Terminate()
		return cmd.ListDevices(os.Stdout, opts.Interactive, cfg.Audio.OutputDevice)
	}
	return play(ctx, cfg, opts)
}

func play(ctx context.Context, cfg *config.Config, opts *cmd.Options) error {
	queue, err := control.ExpandPaths(opts.Paths)
	if err != nil {
		return err
	}
	if opts.Headless && len(queue) == 0 {
		return errors.New("headless mode needs at least one file to play")
	}

	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		if m, err = metrics.New(prometheus.NewRegistry()); err != nil {
			return err
		}
	}

	shmOpts := shm.Options{
		Name:     cfg.SharedMemory.Name,
		Dir:      cfg.SharedMemory.Dir,
		NumBands: analysis.NumBands,
		Flush:    cfg.SharedMemory.Flush,
		Remove:   true,
	}
	segment := shm.NewPublisher(shmOpts)

	engine, err := audio.NewEngine(cfg, segment, audio.WithMetrics(m))
	if err != nil {
		return err
	}
	// The segment belongs to the render callback; it is closed only after
	// the stream has stopped.
	defer func() {
		if err := engine.Close(); err != nil {
			log.Warnf("Closing engine: %v", err)
		}
		if err := segment.Close(); err != nil {
			log.Warnf("Closing shared memory: %v", err)
		}
	}()
	if err := engine.Start(); err != nil {
		return err
	}

	// Runner signals go to whichever goroutine owns control.
	var (
		poster     taskrunner.Poster
		dispatcher *taskrunner.Dispatcher
		uiPoster   *tui.Poster
	)
	if opts.Headless {
		dispatcher = taskrunner.NewDispatcher()
		poster = dispatcher
	} else {
		uiPoster = tui.NewPoster()
		poster = uiPoster
	}
	runner := taskrunner.NewRunner(poster, taskrunner.WithMetrics(m))
	defer runner.Close()

	launcher := visualizer.NewLauncher(cfg.Visualizer, shmOpts, engine)
	ctl := control.NewController(engine, runner, launcher)
	defer func() {
		if err := ctl.Close(); err != nil {
			log.Warnf("Stopping renderer: %v", err)
		}
	}()
	ctl.SetQueue(queue)

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ctl.Run(gctx) })

	if m != nil {
		g.Go(func() error { return m.Serve(gctx, cfg.Metrics.Address) })
	}

	transports, err := buildTransports(gctx, g, cfg.Transport)
	if err != nil {
		cancel()
		g.Wait()
		return err
	}
	if len(transports) > 0 {
		pub := transport.NewPublisher(engine, cfg.Transport.UDPSendInterval, transports, transport.WithMetrics(m))
		g.Go(func() error { return pub.Run(gctx) })
	}

	if len(queue) > 0 {
		ctl.Next()
	}
	if opts.Visualize || cfg.Visualizer.AutoLaunch {
		ctl.ToggleVisualizer()
	}

	if opts.Headless {
		log.Infof("Playing %d file(s), Ctrl+C to stop", len(queue))
		g.Go(func() error {
			if err := dispatcher.Run(gctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	} else {
		restore, err := logToFile()
		if err != nil {
			cancel()
			g.Wait()
			return err
		}
		defer restore()
		g.Go(func() error {
			defer cancel()
			return tui.Run(gctx, tui.NewModel(engine, ctl, uiPoster))
		})
	}

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	return g.Wait()
}

// buildTransports creates the enabled network mirrors. The WebSocket server
// runs in g.
func buildTransports(ctx context.Context, g *errgroup.Group, cfg config.TransportConfig) ([]transport.Transport, error) {
	var transports []transport.Transport

	if cfg.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.UDPTargetAddress)
		if err != nil {
			return nil, err
		}
		transports = append(transports, sender)
	}

	if cfg.WebSocketEnabled {
		wst := transport.NewWebSocketTransport(cfg.WebSocketAddress, cfg.WebSocketMaxRate)
		g.Go(func() error {
			if err := wst.Serve(ctx); !errors.Is(err, transport.ErrClosed) {
				return err
			}
			return nil
		})
		transports = append(transports, wst)
	}

	if len(transports) > 0 && log.GetLevel() == log.LevelDebug {
		transports = append(transports, transport.NewLoggingTransport())
	}
	return transports, nil
}

// logToFile moves log output off the terminal while the UI owns it.
func logToFile() (restore func(), err error) {
	path := filepath.Join(os.TempDir(), "fractalwave.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	log.SetOutput(f)
	return func() {
		log.SetOutput(os.Stderr)
		f.Close()
	}, nil
}
