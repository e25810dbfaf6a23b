// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrUnsupportedFormat is returned for files no decoder accepts.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// SupportedExtensions lists the file types the player offers in directory
// scans. Entries without a native decoder go through ffmpeg.
var SupportedExtensions = []string{".mp3", ".wav", ".flac", ".ogg", ".opus", ".m4a"}

// Track is a fully decoded file: interleaved 16-bit PCM at its native rate.
type Track struct {
	Path       string
	Samples    []int16
	Channels   int
	SampleRate int
}

// Frames returns the number of sample frames (samples per channel).
func (t *Track) Frames() int64 {
	if t.Channels <= 0 {
		return 0
	}
	return int64(len(t.Samples) / t.Channels)
}

// Duration returns the playing time of the track.
func (t *Track) Duration() time.Duration {
	return framesToDuration(t.Frames(), t.SampleRate)
}

func framesToDuration(frames int64, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}

func durationToFrames(d time.Duration, sampleRate int) int64 {
	return int64(d) * int64(sampleRate) / int64(time.Second)
}

// decoder fills a Track from an open file.
type decoder func(f *os.File, path string) (*Track, error)

var decoders = map[string]decoder{
	".wav":  decodeWAV,
	".flac": decodeFLAC,
	".mp3":  decodeMP3,
}

// IsSupported reports whether path has one of SupportedExtensions.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// DecodeFile decodes path entirely into memory. WAV, FLAC and MP3 are decoded
// natively; other supported formats are handed to ffmpeg.
func DecodeFile(path string) (*Track, error) {
	ext := strings.ToLower(filepath.Ext(path))
	dec, ok := decoders[ext]
	if !ok {
		if !IsSupported(path) {
			return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
		}
		return decodeFFmpeg(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	track, err := dec(f, path)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if track.Channels <= 0 || track.SampleRate <= 0 {
		return nil, fmt.Errorf("decode %s: invalid stream (%d ch, %d Hz)", path, track.Channels, track.SampleRate)
	}
	if len(track.Samples) == 0 {
		return nil, fmt.Errorf("decode %s: no audio frames", path)
	}
	return track, nil
}
