// SPDX-License-Identifier: MIT
package bitint

import (
	"fmt"
	"testing"
)

func TestNextPowerOfTwo(t *testing.T) {
	tests := []struct {
		n        int
		expected int
	}{
		{-10, 1},     // Negative number
		{0, 1},       // Zero
		{1, 1},       // Smallest power
		{8, 8},       // Already power of two
		{10, 16},     // Not power of two
		{255, 256},   // FFT sized
		{1000, 1024}, // Large number
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d→%d", tt.n, tt.expected), func(t *testing.T) {
			if got := NextPowerOfTwo(tt.n); got != tt.expected {
				t.Errorf("NextPowerOfTwo(%d) = %d, expected %d", tt.n, got, tt.expected)
			}
		})
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	tests := []struct {
		n        int
		expected bool
	}{
		{-8, false},
		{0, false},
		{1, true},
		{7, false},
		{256, true},
		{1023, false},
		{4096, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.n), func(t *testing.T) {
			if got := IsPowerOfTwo(tt.n); got != tt.expected {
				t.Errorf("IsPowerOfTwo(%d) = %v, expected %v", tt.n, got, tt.expected)
			}
		})
	}
}

func TestClampPowerOfTwo(t *testing.T) {
	tests := []struct {
		size, lo, hi, expected int
	}{
		{100, 32, 4096, 128},
		{8, 32, 4096, 32},
		{10000, 32, 4096, 4096},
		{256, 32, 4096, 256},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d[%d,%d]", tt.size, tt.lo, tt.hi), func(t *testing.T) {
			if got := ClampPowerOfTwo(tt.size, tt.lo, tt.hi); got != tt.expected {
				t.Errorf("ClampPowerOfTwo(%d, %d, %d) = %d, expected %d", tt.size, tt.lo, tt.hi, got, tt.expected)
			}
		})
	}
}

func BenchmarkNextPowerOfTwo(b *testing.B) {
	b.ReportAllocs()
	for b.Loop() {
		_ = NextPowerOfTwo(1000)
	}
}
