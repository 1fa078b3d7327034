// SPDX-License-Identifier: MIT

/*
Package bitint provides the power-of-2 helpers used when sizing FFT
windows and capture buffers.

NextPowerOfTwo subtracts one before taking the bit length so that exact
powers of 2 are preserved:

	8 -> 7 (0111) -> Len = 3 -> 1<<3 = 8
	9 -> 8 (1000) -> Len = 4 -> 1<<4 = 16
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the next power of 2 >= size. Non-positive sizes
// return 1.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2.
// A power of 2 has exactly one bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// ClampPowerOfTwo rounds size up to a power of 2 and limits it to
// [lo, hi]. Both bounds are expected to be powers of 2 themselves.
func ClampPowerOfTwo(size, lo, hi int) int {
	p := NextPowerOfTwo(size)
	if p < lo {
		return lo
	}
	if p > hi {
		return hi
	}
	return p
}
