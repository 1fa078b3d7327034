// SPDX-License-Identifier: MIT
package transport

import (
	"time"

	"whisperer/internal/analysis"
)

// FrameSource provides the latest feature frame.
type FrameSource interface {
	Latest() *analysis.FeatureFrame
}

// FrameFeed forwards feature frames to a transport at most once per
// interval. It runs as a scheduler ticker.
type FrameFeed struct {
	source     FrameSource
	out        Transport
	interval   time.Duration
	sampleRate float64
	fftSize    int

	lastSent time.Time // Tick only.
	lastSeq  uint64    // Tick only.
}

// NewFrameFeed creates a feed. sampleRate and fftSize are used to attach
// band levels; pass zero to omit them.
func NewFrameFeed(source FrameSource, out Transport, interval time.Duration, sampleRate float64, fftSize int) *FrameFeed {
	return &FrameFeed{source: source, out: out, interval: interval, sampleRate: sampleRate, fftSize: fftSize}
}

// Tick sends the current frame when it is new and the interval elapsed.
func (f *FrameFeed) Tick(now time.Time) {
	frame := f.source.Latest()
	if frame == nil || frame.Seq == f.lastSeq {
		return
	}
	if !f.lastSent.IsZero() && now.Sub(f.lastSent) < f.interval {
		return
	}
	f.lastSent = now
	f.lastSeq = frame.Seq

	payload := FramePayload{Seq: frame.Seq, At: frame.At, Values: frame.Values}
	if f.sampleRate > 0 && f.fftSize > 0 {
		payload.Bands = analysis.BandLevels(frame, f.sampleRate, f.fftSize)
	}
	_ = f.out.Send(Message{Type: TypeFrame, Data: payload})
}
