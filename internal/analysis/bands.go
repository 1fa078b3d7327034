// SPDX-License-Identifier: MIT
package analysis

import "math"

// Band is the RMS level of a frequency range in a FeatureFrame.
type Band struct {
	Name   string  `json:"name"`
	LowHz  float64 `json:"low_hz"`
	HighHz float64 `json:"high_hz"`
	Level  float64 `json:"level"`
}

// DefaultBands splits the audible range into the usual mixing bands. The
// top band ends at Nyquist.
func DefaultBands(sampleRate float64) []Band {
	return []Band{
		{Name: "sub", LowHz: 20, HighHz: 60},
		{Name: "bass", LowHz: 60, HighHz: 250},
		{Name: "lowMid", LowHz: 250, HighHz: 500},
		{Name: "mid", LowHz: 500, HighHz: 2000},
		{Name: "highMid", LowHz: 2000, HighHz: 4000},
		{Name: "treble", LowHz: 4000, HighHz: sampleRate / 2},
	}
}

// BandLevels returns the RMS level per band of a frame produced from a
// transform of fftSize points at sampleRate. Bands without bins read 0.
func BandLevels(frame *FeatureFrame, sampleRate float64, fftSize int) []Band {
	bands := DefaultBands(sampleRate)
	if frame == nil || fftSize <= 0 {
		return bands
	}

	binHz := sampleRate / float64(fftSize)
	counts := make([]int, len(bands))
	for i, v := range frame.Values {
		freq := float64(i) * binHz
		for b := range bands {
			if freq >= bands[b].LowHz && freq < bands[b].HighHz {
				bands[b].Level += v * v
				counts[b]++
				break
			}
		}
	}
	for b := range bands {
		if counts[b] > 0 {
			bands[b].Level = math.Min(1, math.Sqrt(bands[b].Level/float64(counts[b])))
		}
	}
	return bands
}
