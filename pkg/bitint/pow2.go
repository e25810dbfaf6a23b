// SPDX-License-Identifier: MIT
/*
Package bitint provides the power-of-two helpers used to size FFT windows and
sample buffers. Everything here is branch-light, allocation free and safe to
call from the render callback.

Usage:

	// Round a requested analysis window up to something the FFT accepts.
	size := bitint.NextPowerOfTwo(6000) // 8192

	// Reject a configured window size before building the analyzer.
	if !bitint.IsPowerOfTwo(size) { ... }

	// FFT order (log2 of the window), e.g. 13 for 8192.
	order := bitint.Log2(size)

NextPowerOfTwo subtracts one before taking the bit length so exact powers of
two map to themselves: for 8, bits.Len(7) is 3 and 1<<3 is 8 again, whereas
bits.Len(8) would be 4 and double the input.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= n.
// Zero and negative inputs return 1.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// IsPowerOfTwo reports whether n is a positive power of two. A power of two
// has exactly one bit set, so clearing the lowest set bit leaves zero.
//
//	Input  Output  Binary
//	8      true    1000 & 0111 = 0000
//	7      false   0111 & 0110 = 0110
//	0      false   not positive
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Log2 returns floor(log2(n)) for n > 0 and -1 otherwise. For powers of two
// this is the FFT order.
func Log2(n int) int {
	if n <= 0 {
		return -1
	}
	return bits.Len(uint(n)) - 1
}
