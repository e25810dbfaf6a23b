// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// recordChunkFrames bounds the intermediate buffer handed to the encoder.
const recordChunkFrames = 4096

// WriteWAV records the decoded track as 16-bit PCM WAV to path.
func (t *Track) WriteWAV(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := t.EncodeWAV(file); err != nil {
		file.Close()
		os.Remove(path)
		return err
	}
	return file.Close()
}

// EncodeWAV writes the track as 16-bit PCM WAV to w.
func (t *Track) EncodeWAV(w io.WriteSeeker) error {
	if t.Channels <= 0 || t.SampleRate <= 0 {
		return fmt.Errorf("encode %s: invalid track (%d ch, %d Hz)", t.Path, t.Channels, t.SampleRate)
	}

	encoder := wav.NewEncoder(w, t.SampleRate, 16, t.Channels, 1)
	sampleBuf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: t.Channels,
			SampleRate:  t.SampleRate,
		},
		Data:           make([]int, 0, recordChunkFrames*t.Channels),
		SourceBitDepth: 16,
	}

	for start := 0; start < len(t.Samples); start += cap(sampleBuf.Data) {
		end := min(start+cap(sampleBuf.Data), len(t.Samples))
		sampleBuf.Data = sampleBuf.Data[:0]
		for _, s := range t.Samples[start:end] {
			sampleBuf.Data = append(sampleBuf.Data, int(s))
		}
		if err := encoder.Write(sampleBuf); err != nil {
			return fmt.Errorf("encode %s: %w", t.Path, err)
		}
	}

	return encoder.Close()
}
