// SPDX-License-Identifier: MIT

// Package utils holds synthetic signal generators used to exercise the
// capture and analysis paths without a microphone.
package utils

import "math"

// GenerateSineWave returns size samples of a sine at frequency, scaled to
// 90% of int32 full scale.
func GenerateSineWave(size int, sampleRate, frequency float64) []int32 {
	return GenerateTone(size, sampleRate, frequency, 0.9)
}

// GenerateTone returns size samples of a sine at frequency with the given
// peak amplitude in [0,1] of int32 full scale.
func GenerateTone(size int, sampleRate, frequency, amplitude float64) []int32 {
	buffer := make([]int32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = int32(math.Sin(2*math.Pi*frequency*t) * math.MaxInt32 * amplitude)
	}
	return buffer
}

// GenerateComplexWave returns a 440Hz fundamental with two harmonics, the
// rough shape of an idling engine note.
func GenerateComplexWave(size int, sampleRate float64) []int32 {
	buffer := make([]int32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = int32(signal * math.MaxInt32 * 0.9)
	}
	return buffer
}

// Silence returns size zero samples.
func Silence(size int) []int32 {
	return make([]int32, size)
}

// FindPeakBin returns the index of the largest magnitude in
// [startBin, endBin]. Out of range bounds are clamped.
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	if startBin < 0 {
		startBin = 0
	}
	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}
	return peakBin
}
