// SPDX-License-Identifier: MIT
package shm

import (
	"encoding/binary"
	"math"
)

// encode writes values as native-endian float32, zero-filling the remainder.
func encode(mem []byte, values []float32) {
	n := len(mem) / BytesPerBand
	for i := range n {
		var v float32
		if i < len(values) {
			v = values[i]
		}
		binary.NativeEndian.PutUint32(mem[i*BytesPerBand:], math.Float32bits(v))
	}
}

func decode(dst []float32, mem []byte) {
	n := min(len(dst), len(mem)/BytesPerBand)
	for i := range n {
		dst[i] = math.Float32frombits(binary.NativeEndian.Uint32(mem[i*BytesPerBand:]))
	}
}
