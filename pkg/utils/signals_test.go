// SPDX-License-Identifier: MIT
package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testSize = 1024

func peakedMagnitudes() []float64 {
	m := make([]float64, testSize)
	for i := range m {
		m[i] = math.Exp(-0.01 * math.Pow(float64(i-testSize/4), 2))
	}
	return m
}

func TestGenerateComplexWave(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		sampleRate float64
	}{
		{"Standard", 1024, 44100},
		{"Small", 16, 8000},
		{"Large", 8192, 96000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GenerateComplexWave(tt.size, tt.sampleRate)
			assert.Len(t, result, tt.size)
			assert.NotEqual(t, Silence(tt.size), result, "signal should have content")
		})
	}
}

func TestGenerateSineWave(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		sampleRate float64
		frequency  float64
	}{
		{"A4 Note", 1024, 44100, 440.0},
		{"Middle C", 1024, 44100, 261.63},
		{"High Sample Rate", 1024, 192000, 440.0},
		{"Low Sample Rate", 1024, 8000, 440.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GenerateSineWave(tt.size, tt.sampleRate, tt.frequency)
			assert.Len(t, result, tt.size)

			samplesPerCycle := tt.sampleRate / tt.frequency
			if samplesPerCycle <= 2 || float64(tt.size) <= samplesPerCycle {
				return
			}
			crossings := 0
			for i := 1; i < tt.size; i++ {
				if (result[i-1] < 0) != (result[i] < 0) {
					crossings++
				}
			}
			// Two crossings per cycle, 20% margin for phase.
			expected := float64(tt.size) / (samplesPerCycle / 2)
			assert.InDelta(t, expected, float64(crossings), 0.2*expected)
		})
	}
}

func TestGenerateToneAmplitude(t *testing.T) {
	buf := GenerateTone(800, 8000, 100, 0.5)
	var peak int32
	for _, s := range buf {
		if s > peak {
			peak = s
		}
	}
	assert.InDelta(t, 0.5, float64(peak)/math.MaxInt32, 0.01)
}

func TestFindPeakBin(t *testing.T) {
	mags := peakedMagnitudes()
	tests := []struct {
		name     string
		mags     []float64
		start    int
		end      int
		expected int
	}{
		{"Full Range", mags, 0, testSize - 1, testSize / 4},
		{"Partial Range Start", mags, testSize / 8, testSize - 1, testSize / 4},
		{"Partial Range End", mags, 0, testSize / 3, testSize / 4},
		{"Negative Start", mags, -10, testSize - 1, testSize / 4},
		{"Out of Range End", mags, 0, testSize * 2, testSize / 4},
		{"Empty Slice", []float64{}, 0, 10, 0},
		{"Single Value", []float64{1.0}, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FindPeakBin(tt.mags, tt.start, tt.end))
		})
	}
}
