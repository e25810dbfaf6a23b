// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestWAV records a track with the given samples to dir/name.
func writeTestWAV(t testing.TB, dir, name string, samples []int16, channels, sampleRate int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	track := &Track{Path: path, Samples: samples, Channels: channels, SampleRate: sampleRate}
	require.NoError(t, track.WriteWAV(path))
	return path
}

// constantSamples returns frames*channels copies of v.
func constantSamples(v int16, frames, channels int) []int16 {
	s := make([]int16, frames*channels)
	for i := range s {
		s[i] = v
	}
	return s
}

func TestDecodeWAVRoundTrip(t *testing.T) {
	samples := []int16{0, 1000, -1000, 32767, -32768, 42, 7, -7}
	path := writeTestWAV(t, t.TempDir(), "tone.wav", samples, 2, 48000)

	track, err := DecodeFile(path)
	require.NoError(t, err)

	assert.Equal(t, path, track.Path)
	assert.Equal(t, 2, track.Channels)
	assert.Equal(t, 48000, track.SampleRate)
	assert.Equal(t, samples, track.Samples)
	assert.Equal(t, int64(4), track.Frames())
}

func TestDecodeFileErrors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.wav")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not RIFF"), 0o644))

	t.Run("Unsupported extension", func(t *testing.T) {
		_, err := DecodeFile(filepath.Join(dir, "notes.txt"))
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})
	t.Run("Missing file", func(t *testing.T) {
		_, err := DecodeFile(filepath.Join(dir, "missing.wav"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
	t.Run("Corrupt WAV", func(t *testing.T) {
		_, err := DecodeFile(garbage)
		assert.Error(t, err)
	})
}

func TestDecodeFFmpegUnavailable(t *testing.T) {
	orig := ffmpegPath
	t.Cleanup(func() { ffmpegPath = orig })
	ffmpegPath = filepath.Join(t.TempDir(), "no-such-ffmpeg")

	_, err := DecodeFile("song.ogg")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat), "got %v", err)
}

func TestIsSupported(t *testing.T) {
	for _, tt := range []struct {
		path string
		want bool
	}{
		{"a.mp3", true},
		{"b.WAV", true},
		{"dir/c.flac", true},
		{"d.opus", true},
		{"e.txt", false},
		{"noext", false},
	} {
		assert.Equal(t, tt.want, IsSupported(tt.path), tt.path)
	}
}

func TestPCMToInt16DropsPartialFrame(t *testing.T) {
	// Two full stereo frames plus three stray bytes.
	pcm := []byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80, 0xff, 0x7f, 0xaa, 0xbb, 0xcc}
	assert.Equal(t, []int16{1, -1, -32768, 32767}, pcmToInt16(pcm, 2))
}

func TestTrackDuration(t *testing.T) {
	track := &Track{Samples: make([]int16, 44100*2*3), Channels: 2, SampleRate: 44100}
	assert.Equal(t, 3*time.Second, track.Duration())
	assert.Equal(t, int64(44100*3), durationToFrames(track.Duration(), track.SampleRate))

	empty := &Track{}
	assert.Zero(t, empty.Frames())
	assert.Zero(t, empty.Duration())
}

func TestEncodeWAVRejectsInvalidTrack(t *testing.T) {
	err := (&Track{Path: "x"}).WriteWAV(filepath.Join(t.TempDir(), "x.wav"))
	assert.Error(t, err)
}
