// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

func decodeWAV(f *os.File, path string) (*Track, error) {
	d := wav.NewDecoder(f)
	d.ReadInfo()
	if !d.IsValidFile() {
		return nil, fmt.Errorf("not a valid WAV file: %w", ErrUnsupportedFormat)
	}
	switch d.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth %d: %w", d.BitDepth, ErrUnsupportedFormat)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, err
	}

	samples := make([]int16, len(buf.Data))
	shift := int(d.BitDepth) - 16
	for i, v := range buf.Data {
		switch {
		case d.BitDepth == 8:
			// 8-bit WAV is unsigned.
			samples[i] = int16((v - 128) << 8)
		case shift > 0:
			samples[i] = int16(v >> shift)
		default:
			samples[i] = int16(v)
		}
	}

	return &Track{
		Path:       path,
		Samples:    samples,
		Channels:   int(d.NumChans),
		SampleRate: int(d.SampleRate),
	}, nil
}
