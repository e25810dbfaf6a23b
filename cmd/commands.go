// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"fractalwave/internal/analysis"
	"fractalwave/internal/audio"
	"fractalwave/internal/config"
	"fractalwave/internal/shm"
	"fractalwave/internal/tui"
	"fractalwave/pkg/build"

	"github.com/fatih/color"
)

// ListDevices prints the output devices, or lets the user pick one.
// PortAudio must be initialized.
func ListDevices(w io.Writer, interactive bool, current int) error {
	if !interactive {
		return audio.ListDevices(w)
	}
	device, ok, err := tui.RunDevicePicker(current)
	if err != nil || !ok {
		return err
	}
	fmt.Fprintf(w, "Selected [%d] %s\nRun with --device %d to use it.\n", device.ID, device.Name, device.ID)
	return nil
}

// WatchBands attaches to the shared-memory segment as a consumer and prints
// one line of levels per read until ctx is done or o.Count reads were made.
// With CheckTorn every frame is read twice back to back; differing reads mean
// the publisher wrote in between and a single read could have been torn.
func WatchBands(ctx context.Context, w io.Writer, cfg config.SharedMemoryConfig, o *Options) error {
	reader, err := shm.OpenReader(shm.Options{
		Name:     cfg.Name,
		Dir:      cfg.Dir,
		NumBands: analysis.NumBands,
	})
	if err != nil {
		return fmt.Errorf("attaching to %s: %w", cfg.Name, err)
	}
	defer reader.Close()

	first := make([]float32, reader.NumBands())
	second := make([]float32, reader.NumBands())
	ticker := time.NewTicker(o.Interval)
	defer ticker.Stop()

	changed := 0
	reads := 0
loop:
	for {
		if err := reader.ReadBands(first); err != nil {
			return err
		}
		if o.CheckTorn {
			if err := reader.ReadBands(second); err != nil {
				return err
			}
			if !slices.Equal(first, second) {
				changed++
			}
		}
		reads++
		fmt.Fprintln(w, formatLevels(first))

		if o.Count > 0 && reads >= o.Count {
			break
		}
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
		}
	}

	if o.CheckTorn {
		fmt.Fprintf(w, "%d of %d reads overlapped a write (%.1f%%)\n",
			changed, reads, 100*float64(changed)/float64(max(reads, 1)))
	}
	return nil
}

func formatLevels(levels []float32) string {
	var sb strings.Builder
	for i, v := range levels {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%8.3f", v)
	}
	return sb.String()
}

// Convert decodes in with the player's decoders and writes it to out as
// 16-bit PCM WAV.
func Convert(w io.Writer, in, out string) error {
	track, err := audio.DecodeFile(in)
	if err != nil {
		return err
	}
	if err := track.WriteWAV(out); err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(w, "Wrote %s", out)
	fmt.Fprintf(w, " (%d Hz, %d ch, %s)\n", track.SampleRate, track.Channels, track.Duration().Round(time.Millisecond))
	return nil
}

// PrintVersion writes the build information.
func PrintVersion(w io.Writer) {
	fmt.Fprintln(w, build.GetBuildFlags().String())
}
