// SPDX-License-Identifier: MIT
//go:build linux || darwin

package shm

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestSegmentFileLayout(t *testing.T) {
	opts := testOptions(t)
	opts.Remove = false
	p := NewPublisher(opts)

	want := levels(testBands, 0.5)
	if !p.Publish(want) {
		t.Fatal("Publish() = false")
	}
	p.Close()

	raw, err := os.ReadFile(opts.Path())
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(raw) != testBands*BytesPerBand {
		t.Fatalf("segment is %d bytes, want %d", len(raw), testBands*BytesPerBand)
	}
	for i, w := range want {
		got := math.Float32frombits(binary.NativeEndian.Uint32(raw[i*4:]))
		if got != w {
			t.Errorf("band %d = %f, want %f", i, got, w)
		}
	}
}

func TestCloseRemovesBackingFile(t *testing.T) {
	opts := testOptions(t)
	p := NewPublisher(opts)
	p.Publish(levels(testBands, 1))
	p.Close()

	if _, err := os.Stat(opts.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("backing file still present after Close: %v", err)
	}
}

func TestPublishRetriesCreationAtMostOncePerSecond(t *testing.T) {
	opts := testOptions(t)
	opts.Dir = filepath.Join(opts.Dir, "missing")
	p := NewPublisher(opts)

	if p.Publish(levels(testBands, 1)) {
		t.Fatal("Publish() into a missing directory = true")
	}
	first := p.lastAttempt

	// The directory appears, but the retry window has not elapsed.
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if p.Publish(levels(testBands, 1)) {
		t.Fatal("Publish() retried inside the retry window")
	}
	if p.lastAttempt != first {
		t.Fatal("creation attempted again inside the retry window")
	}

	p.lastAttempt = first.Add(-retryInterval)
	if !p.Publish(levels(testBands, 1)) {
		t.Error("Publish() after the retry window = false")
	}
	p.Close()
}
