// SPDX-License-Identifier: MIT
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tphakala/flac"
)

func decodeFLAC(f *os.File, path string) (*Track, error) {
	d, err := flac.NewDecoder(f)
	if err != nil {
		return nil, err
	}

	bytesPerSample := d.BitsPerSample / 8
	switch d.BitsPerSample {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth %d: %w", d.BitsPerSample, ErrUnsupportedFormat)
	}

	samples := make([]int16, 0, int(d.TotalSamples)*d.NChannels)
	for {
		frame, err := d.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		// Frames are interleaved little-endian samples.
		for i := 0; i+bytesPerSample <= len(frame); i += bytesPerSample {
			var s int16
			switch d.BitsPerSample {
			case 16:
				s = int16(binary.LittleEndian.Uint16(frame[i:]))
			case 24:
				v := int32(frame[i]) | int32(frame[i+1])<<8 | int32(int8(frame[i+2]))<<16
				s = int16(v >> 8)
			case 32:
				s = int16(int32(binary.LittleEndian.Uint32(frame[i:])) >> 16)
			}
			samples = append(samples, s)
		}
	}

	return &Track{
		Path:       path,
		Samples:    samples,
		Channels:   d.NChannels,
		SampleRate: d.SampleRate,
	}, nil
}
