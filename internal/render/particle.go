// SPDX-License-Identifier: MIT
package render

import "math/rand/v2"

const (
	minLife      = 60.0
	lifeSpread   = 60.0
	spawnSpeed   = 2.0
	spawnRadius  = 3.0
	minRadius    = 1.0
	jitterScale  = 0.2
	growthScale  = 0.5
	maxOpacity   = 0.8
	saturation   = 0.7
	lightness    = 0.6
	activityZero = 1e-3
)

// Particle is one member of the fixed pool.
type Particle struct {
	X, Y    float64
	VX, VY  float64
	Radius  float64
	Life    float64
	MaxLife float64
	Hue     float64
}

// Opacity fades linearly with remaining life.
func (p *Particle) Opacity() float64 {
	if p.MaxLife <= 0 || p.Life <= 0 {
		return 0
	}
	return p.Life / p.MaxLife * maxOpacity
}

func (p *Particle) color() Color {
	return Color{H: p.Hue, S: saturation, L: lightness, A: p.Opacity()}
}

func (p *Particle) outside(width, height float64) bool {
	return p.X < 0 || p.X > width || p.Y < 0 || p.Y > height
}

// spawn resets p in place with fresh random values.
func (p *Particle) spawn(rng *rand.Rand, width, height, maxRadius float64) {
	p.X = rng.Float64() * width
	p.Y = rng.Float64() * height
	p.VX = (rng.Float64() - 0.5) * spawnSpeed
	p.VY = (rng.Float64() - 0.5) * spawnSpeed
	p.Radius = min(rng.Float64()*spawnRadius+minRadius, maxRadius)
	p.Life = minLife + rng.Float64()*lifeSpread
	p.MaxLife = p.Life
	p.Hue = rng.Float64() * 360
}

// excite applies one tick of audio driven motion.
func (p *Particle) excite(rng *rand.Rand, activity, maxRadius float64) {
	p.VX += (rng.Float64() - 0.5) * jitterScale * activity
	p.VY += (rng.Float64() - 0.5) * jitterScale * activity
	p.Radius = max(minRadius, min(p.Radius+growthScale*activity, maxRadius))
}

func (p *Particle) advance() {
	p.X += p.VX
	p.Y += p.VY
	p.Life--
}
