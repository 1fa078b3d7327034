// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math/cmplx"
	"strings"
	"sync"

	applog "whisperer/internal/log"
	"whisperer/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc selects the analysis window applied before the FFT.
type WindowFunc int

const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

var windowNames = [...]string{
	BartlettHann:    "BartlettHann",
	Blackman:        "Blackman",
	BlackmanNuttall: "BlackmanNuttall",
	Hann:            "Hann",
	Hamming:         "Hamming",
	Lanczos:         "Lanczos",
	Nuttall:         "Nuttall",
}

func (w WindowFunc) String() string {
	if w < 0 || int(w) >= len(windowNames) {
		return fmt.Sprintf("WindowFunc(%d)", int(w))
	}
	return windowNames[w]
}

// ParseWindowFunc converts a case-insensitive name to a WindowFunc. Unknown
// names return Hann together with an error.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(name) {
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Hann, fmt.Errorf("unknown FFT window function name: '%s'", name)
	}
}

// Pre-allocated buffers for the transform. The device callback writes, the
// scheduler reads.
type fftWorkspace struct {
	input     []float64
	fftOutput []complex128
	magnitude []float64
	window    []float64
	mu        sync.RWMutex
}

// FFTProcessor keeps the magnitude spectrum of the most recent input buffer.
// Process is allocation free and safe to call from the audio callback.
type FFTProcessor struct {
	fft        *fourier.FFT
	fftSize    int
	sampleRate float64
	windowSum  float64
	workspace  fftWorkspace
}

// NewFFTProcessor creates a processor for fftSize points (power of two).
func NewFFTProcessor(fftSize int, sampleRate float64, windowType WindowFunc) (*FFTProcessor, error) {
	if !bitint.IsPowerOfTwo(fftSize) {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", fftSize)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}

	coeffs := make([]float64, fftSize)
	applyWindow(coeffs, windowType)

	var sum float64
	for _, c := range coeffs {
		sum += c
	}

	// Real input yields N/2 + 1 complex values.
	magnitudeSize := fftSize/2 + 1

	applog.Debugf("analysis: FFT processor (size %d, %.1f Hz, window %s)", fftSize, sampleRate, windowType)

	return &FFTProcessor{
		fft:        fourier.NewFFT(fftSize),
		fftSize:    fftSize,
		sampleRate: sampleRate,
		windowSum:  sum,
		workspace: fftWorkspace{
			input:     make([]float64, fftSize),
			fftOutput: make([]complex128, magnitudeSize),
			magnitude: make([]float64, magnitudeSize),
			window:    coeffs,
		},
	}, nil
}

// Process windows the buffer, transforms it and stores the magnitudes.
// Shorter buffers are zero padded, longer ones use the most recent fftSize
// samples.
func (p *FFTProcessor) Process(in []int32) {
	const normFactor = 1.0 / float64(0x80000000) // int32 to [-1.0, 1.0).

	if len(in) > p.fftSize {
		in = in[len(in)-p.fftSize:]
	}

	p.workspace.mu.Lock()
	defer p.workspace.mu.Unlock()

	for i := range p.fftSize {
		if i < len(in) {
			p.workspace.input[i] = float64(in[i]) * normFactor * p.workspace.window[i]
		} else {
			p.workspace.input[i] = 0
		}
	}

	p.fft.Coefficients(p.workspace.fftOutput, p.workspace.input)

	for i, c := range p.workspace.fftOutput {
		p.workspace.magnitude[i] = cmplx.Abs(c)
	}
}

// Reset clears the stored spectrum so a new session starts from silence.
func (p *FFTProcessor) Reset() {
	p.workspace.mu.Lock()
	clear(p.workspace.magnitude)
	p.workspace.mu.Unlock()
}

// GetMagnitudes returns a copy of the latest magnitudes.
func (p *FFTProcessor) GetMagnitudes() []float64 {
	p.workspace.mu.RLock()
	defer p.workspace.mu.RUnlock()

	out := make([]float64, len(p.workspace.magnitude))
	copy(out, p.workspace.magnitude)
	return out
}

// GetMagnitudesInto copies the latest magnitudes into dest, which must have
// length fftSize/2 + 1.
func (p *FFTProcessor) GetMagnitudesInto(dest []float64) error {
	p.workspace.mu.RLock()
	defer p.workspace.mu.RUnlock()

	if len(dest) != len(p.workspace.magnitude) {
		return fmt.Errorf("destination slice length %d does not match required length %d", len(dest), len(p.workspace.magnitude))
	}
	copy(dest, p.workspace.magnitude)
	return nil
}

// GetFrequencyForBin returns the centre frequency of bin i in Hz.
func (p *FFTProcessor) GetFrequencyForBin(i int) float64 {
	if i < 0 || i >= len(p.workspace.fftOutput) {
		return 0
	}
	return float64(i) * (p.sampleRate / float64(p.fftSize))
}

// GetFFTSize returns the number of FFT points.
func (p *FFTProcessor) GetFFTSize() int {
	return p.fftSize
}

// GetSampleRate returns the input sample rate in Hz.
func (p *FFTProcessor) GetSampleRate() float64 {
	return p.sampleRate
}

// FullScale is the magnitude a full-scale sinusoid centred on a bin reaches
// with the configured window.
func (p *FFTProcessor) FullScale() float64 {
	return p.windowSum / 2
}

func applyWindow(coeffs []float64, windowType WindowFunc) {
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch windowType {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		applog.Warnf("analysis: unknown window function %d, using Hann", windowType)
		window.Hann(coeffs)
	}
}
