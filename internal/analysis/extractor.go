// SPDX-License-Identifier: MIT
/*
Package analysis turns the live capture stream into feature frames.

The capture callback feeds raw buffers into an FFTProcessor; on every
scheduler tick the Extractor normalises the latest spectrum into a
FeatureFrame and publishes it as the single current value. Readers never
see a frame that is being written.
*/
package analysis

import (
	"math"
	"sync/atomic"
	"time"
)

// FeatureFrame is one normalised magnitude vector. Values has FFTSize/2
// entries, each in [0,1]. Frames are read-only once published.
type FeatureFrame struct {
	Seq    uint64
	At     time.Time
	Values []float64
}

// StateSource reports whether the owning capture session is recording.
type StateSource interface {
	Recording() bool
}

// Extractor publishes the current FeatureFrame while the session records.
// Process runs on the audio callback, Tick on the scheduler goroutine.
type Extractor struct {
	fft      *FFTProcessor
	state    StateSource
	channels int
	mono     []int32   // Process only.
	scratch  []float64 // Tick only.
	seq      uint64    // Tick only.
	latest   atomic.Pointer[FeatureFrame]
	active   bool // Tick only.
}

// NewExtractor creates an extractor bound to a session's recording state.
// Buffers arrive interleaved with the given number of channels; only the
// first channel is analysed.
func NewExtractor(fft *FFTProcessor, state StateSource, channels int) *Extractor {
	if channels < 1 {
		channels = 1
	}
	e := &Extractor{
		fft:      fft,
		state:    state,
		channels: channels,
		scratch:  make([]float64, fft.GetFFTSize()/2+1),
	}
	if channels > 1 {
		e.mono = make([]int32, fft.GetFFTSize())
	}
	return e
}

// Process feeds one captured buffer into the transform.
func (e *Extractor) Process(in []int32) {
	if e.channels == 1 {
		e.fft.Process(in)
		return
	}

	frames := len(in) / e.channels
	if frames > cap(e.mono) {
		e.mono = make([]int32, frames)
	}
	mono := e.mono[:frames]
	for i := range mono {
		mono[i] = in[i*e.channels]
	}
	e.fft.Process(mono)
}

// Reset drops the spectrum of the previous session. The capture session
// calls it before the first buffer of a new recording.
func (e *Extractor) Reset() {
	e.fft.Reset()
	e.latest.Store(nil)
}

// Tick publishes a new frame, or clears the current one when the session
// is not recording.
func (e *Extractor) Tick(now time.Time) {
	if !e.state.Recording() {
		if e.active {
			e.active = false
			e.fft.Reset()
		}
		e.latest.Store(nil)
		return
	}
	e.active = true

	if err := e.fft.GetMagnitudesInto(e.scratch); err != nil {
		return
	}

	values := make([]float64, e.fft.GetFFTSize()/2)
	normalize(values, e.scratch, e.fft.FullScale())

	e.seq++
	e.latest.Store(&FeatureFrame{Seq: e.seq, At: now, Values: values})
}

// Latest returns the current frame, nil when there is no audio activity.
func (e *Extractor) Latest() *FeatureFrame {
	return e.latest.Load()
}

// Bins is the length of every published frame.
func (e *Extractor) Bins() int {
	return e.fft.GetFFTSize() / 2
}

// normalize divides mags by fullScale and clamps into dst. Non-finite
// magnitudes become 0.
func normalize(dst, mags []float64, fullScale float64) {
	if fullScale <= 0 || math.IsNaN(fullScale) || math.IsInf(fullScale, 0) {
		clear(dst)
		return
	}
	for i := range dst {
		v := mags[i] / fullScale
		switch {
		case math.IsNaN(v) || v <= 0:
			v = 0
		case v > 1:
			v = 1
		}
		dst[i] = v
	}
}
