// SPDX-License-Identifier: MIT
package audio

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/hajimehoshi/go-mp3"
)

// go-mp3 always produces 16-bit little-endian stereo.
const mp3Channels = 2

func decodeMP3(f *os.File, path string) (*Track, error) {
	d, err := mp3.NewDecoder(bufio.NewReader(f))
	if err != nil {
		return nil, err
	}

	pcm, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("reading mp3 frames: %w", err)
	}

	return &Track{
		Path:       path,
		Samples:    pcmToInt16(pcm, mp3Channels),
		Channels:   mp3Channels,
		SampleRate: d.SampleRate(),
	}, nil
}
