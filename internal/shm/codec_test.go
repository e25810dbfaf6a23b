// SPDX-License-Identifier: MIT
package shm

import (
	"slices"
	"testing"
)

func TestEncodeZeroFillsAndDecodeTruncates(t *testing.T) {
	mem := make([]byte, 4*BytesPerBand)
	for i := range mem {
		mem[i] = 0xff
	}
	encode(mem, []float32{1.5, -2})

	got := make([]float32, 4)
	decode(got, mem)
	if want := []float32{1.5, -2, 0, 0}; !slices.Equal(got, want) {
		t.Errorf("decode() = %v, want %v", got, want)
	}

	short := make([]float32, 1)
	decode(short, mem)
	if short[0] != 1.5 {
		t.Errorf("decode() into short slice = %v, want [1.5]", short)
	}

	encode(mem, []float32{1, 2, 3, 4, 5, 6})
	decode(got, mem)
	if want := []float32{1, 2, 3, 4}; !slices.Equal(got, want) {
		t.Errorf("extra values not dropped: %v", got)
	}
}
