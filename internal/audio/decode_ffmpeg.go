// SPDX-License-Identifier: MIT
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const (
	ffmpegSampleRate = 44100
	ffmpegChannels   = 2
)

// ffmpegPath is swapped out by tests.
var ffmpegPath = "ffmpeg"

// decodeFFmpeg runs ffmpeg to decode formats without a native decoder
// (ogg, opus, m4a) to interleaved 16-bit stereo at 44.1 kHz.
func decodeFFmpeg(path string) (*Track, error) {
	bin, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("%s: ffmpeg not available (%v): %w", path, err, ErrUnsupportedFormat)
	}

	cmd := exec.Command(bin,
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprint(ffmpegSampleRate),
		"-ac", fmt.Sprint(ffmpegChannels),
		"-loglevel", "error",
		"pipe:1",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && stderr.Len() > 0 {
			return nil, fmt.Errorf("ffmpeg decode %s: %s", path, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("ffmpeg decode %s: %w", path, err)
	}

	samples := pcmToInt16(out, ffmpegChannels)
	if len(samples) == 0 {
		return nil, fmt.Errorf("ffmpeg decode %s: no audio frames", path)
	}
	return &Track{
		Path:       path,
		Samples:    samples,
		Channels:   ffmpegChannels,
		SampleRate: ffmpegSampleRate,
	}, nil
}

// pcmToInt16 converts s16le bytes to samples, dropping any trailing partial
// frame.
func pcmToInt16(pcm []byte, channels int) []int16 {
	frameBytes := 2 * channels
	pcm = pcm[:len(pcm)-len(pcm)%frameBytes]

	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}
