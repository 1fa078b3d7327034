// SPDX-License-Identifier: MIT
/*
Package render draws the live feature stream as a particle field.

The renderer owns a fixed pool of particles. On every scheduler tick it
derives an activity level from the current feature frame, moves the pool,
respawns dead or escaped particles in place and draws the result onto a
Surface. It runs whether or not audio is being captured; without frames the
activity decays to rest.
*/
package render

import (
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"whisperer/internal/analysis"
	"whisperer/internal/config"
	applog "whisperer/internal/log"
)

// FrameSource provides the latest published feature frame, nil when there
// is no audio activity.
type FrameSource interface {
	Latest() *analysis.FeatureFrame
}

// Options configure a Renderer.
type Options struct {
	Particles int
	Decay     float64
	MaxRadius float64
	Width     int
	Height    int
	Seed      uint64 // 0 seeds from the clock.
}

// OptionsFromConfig maps the render configuration to Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Particles: cfg.Render.Particles,
		Decay:     cfg.Render.Decay,
		MaxRadius: cfg.Render.MaxRadius,
		Width:     cfg.Render.Width,
		Height:    cfg.Render.Height,
		Seed:      cfg.Render.Seed,
	}
}

// Renderer is the particle field. Tick, Resize and Close may be called
// from different goroutines.
type Renderer struct {
	mu        sync.Mutex
	surface   Surface
	source    FrameSource
	rng       *rand.Rand
	particles []Particle
	points    []Point
	decay     float64
	maxRadius float64
	width     float64
	height    float64
	activity  float64
	closed    bool

	active atomic.Bool
}

// NewRenderer spawns the particle pool and sizes the surface.
func NewRenderer(surface Surface, source FrameSource, opts Options) *Renderer {
	if opts.Particles <= 0 {
		opts.Particles = config.DefaultParticleCount
	}
	if opts.Decay <= 0 || opts.Decay >= 1 {
		opts.Decay = config.DefaultDecay
	}
	if opts.MaxRadius < minRadius {
		opts.MaxRadius = config.DefaultMaxRadius
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = config.DefaultCanvasWidth, config.DefaultCanvasHeight
	}
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	r := &Renderer{
		surface:   surface,
		source:    source,
		rng:       rand.New(rand.NewPCG(seed, seed>>1|1)),
		particles: make([]Particle, opts.Particles),
		decay:     opts.Decay,
		maxRadius: opts.MaxRadius,
		width:     float64(opts.Width),
		height:    float64(opts.Height),
	}
	surface.Resize(opts.Width, opts.Height)
	for i := range r.particles {
		r.particles[i].spawn(r.rng, r.width, r.height, r.maxRadius)
	}
	applog.Debugf("render: %d particles on %dx%d", opts.Particles, opts.Width, opts.Height)
	return r
}

// SetActive marks the field as excited. The app sets it while a recording
// or an analysis is running.
func (r *Renderer) SetActive(active bool) {
	r.active.Store(active)
}

// Active reports the excitation flag.
func (r *Renderer) Active() bool {
	return r.active.Load()
}

// Tick advances the field by one frame and draws it.
func (r *Renderer) Tick(time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	var values []float64
	if r.source != nil {
		values = usableValues(r.source.Latest())
	}

	if values != nil {
		r.activity = meanAbs(values)
	} else {
		r.activity *= r.decay
		if r.activity < activityZero {
			r.activity = 0
		}
	}

	active := r.active.Load()

	r.surface.Fade()
	for i := range r.particles {
		p := &r.particles[i]
		if active {
			p.excite(r.rng, r.activity, r.maxRadius)
		}
		p.advance()
		if p.Life <= 0 || p.outside(r.width, r.height) {
			p.spawn(r.rng, r.width, r.height, r.maxRadius)
		}
		r.surface.Circle(Point{X: p.X, Y: p.Y}, p.Radius, p.color())
	}

	if active && values != nil {
		r.surface.Polyline(r.waveform(values), waveformColor)
	}
	r.surface.Present()
}

// waveform maps values onto vertical offsets around the mid-line. The
// backing slice is reused between ticks.
func (r *Renderer) waveform(values []float64) []Point {
	r.points = r.points[:0]
	step := r.width / float64(len(values))
	mid := r.height / 2
	for i, v := range values {
		r.points = append(r.points, Point{X: float64(i) * step, Y: mid + v*r.height/2})
	}
	return r.points
}

// Resize tracks the container size. The surface is resized only when the
// size actually changes.
func (r *Renderer) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || (float64(width) == r.width && float64(height) == r.height) {
		return
	}
	r.width, r.height = float64(width), float64(height)
	r.surface.Resize(width, height)
}

// Size returns the current surface extents.
func (r *Renderer) Size() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.width), int(r.height)
}

// Activity returns the current activity level.
func (r *Renderer) Activity() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activity
}

// Particles returns a copy of the pool.
func (r *Renderer) Particles() []Particle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Particle, len(r.particles))
	copy(out, r.particles)
	return out
}

// Close stops all further drawing. It is safe to call more than once.
func (r *Renderer) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// usableValues returns the frame values, or nil when the frame is absent,
// empty or contains non-finite numbers.
func usableValues(frame *analysis.FeatureFrame) []float64 {
	if frame == nil || len(frame.Values) == 0 {
		return nil
	}
	for _, v := range frame.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
	}
	return frame.Values
}

func meanAbs(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += math.Abs(v)
	}
	return sum / float64(len(values))
}
