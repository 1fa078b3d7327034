// SPDX-License-Identifier: MIT
package render

import (
	"math"
	"strings"
	"sync"
)

// Terminal cells are roughly twice as tall as wide.
const (
	CellWidth  = 4
	CellHeight = 8
)

const (
	gridFade   = 0.9 // Share of the previous frame kept by Fade.
	waveMarker = -1.0
)

var intensityRamp = []rune(" .:-=+*#%@")

type cell struct {
	level float64 // [0,1], or waveMarker for the waveform.
	hue   float64
}

// Grid is a Surface that rasterises onto a character grid for terminal
// display. Drawing goes to a back buffer; Present publishes it.
type Grid struct {
	mu         sync.Mutex
	cols, rows int
	back       []cell
	front      []cell
}

// NewGrid creates an empty grid.
func NewGrid() *Grid {
	return &Grid{}
}

// Resize implements Surface. Extents are in pixels and mapped onto cells.
func (g *Grid) Resize(width, height int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cols = max(1, width/CellWidth)
	g.rows = max(1, height/CellHeight)
	g.back = make([]cell, g.cols*g.rows)
	g.front = make([]cell, g.cols*g.rows)
}

// Fade implements Surface.
func (g *Grid) Fade() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.back {
		if g.back[i].level == waveMarker {
			g.back[i].level = 0
			continue
		}
		g.back[i].level *= gridFade
	}
}

// Circle implements Surface. A particle lights the cells its disc covers.
func (g *Grid) Circle(center Point, radius float64, c Color) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.back) == 0 {
		return
	}

	c0, r0 := g.cellOf(center.X-radius, center.Y-radius)
	c1, r1 := g.cellOf(center.X+radius, center.Y+radius)
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			cx := (float64(col) + 0.5) * CellWidth
			cy := (float64(row) + 0.5) * CellHeight
			if math.Hypot(cx-center.X, cy-center.Y) > radius+CellWidth/2 {
				continue
			}
			cl := &g.back[row*g.cols+col]
			if cl.level != waveMarker && c.A > cl.level {
				cl.level = c.A
				cl.hue = c.H
			}
		}
	}
}

// Polyline implements Surface. Segments are sampled once per column.
func (g *Grid) Polyline(points []Point, c Color) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.back) == 0 || len(points) == 0 {
		return
	}

	mark := func(p Point) {
		col, row := g.cellOf(p.X, p.Y)
		g.back[row*g.cols+col] = cell{level: waveMarker, hue: c.H}
	}
	mark(points[0])
	for i := 1; i < len(points); i++ {
		a, b := points[i-1], points[i]
		steps := max(1, int(math.Abs(b.X-a.X)/CellWidth))
		for s := 1; s <= steps; s++ {
			t := float64(s) / float64(steps)
			mark(Point{X: a.X + (b.X-a.X)*t, Y: a.Y + (b.Y-a.Y)*t})
		}
	}
}

// Present implements Surface.
func (g *Grid) Present() {
	g.mu.Lock()
	copy(g.front, g.back)
	g.mu.Unlock()
}

// Dimensions returns the grid size in cells.
func (g *Grid) Dimensions() (cols, rows int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cols, g.rows
}

// Lines returns the last presented frame, one string per row.
func (g *Grid) Lines() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	lines := make([]string, g.rows)
	var sb strings.Builder
	for row := range g.rows {
		sb.Reset()
		for col := range g.cols {
			sb.WriteRune(cellRune(g.front[row*g.cols+col]))
		}
		lines[row] = sb.String()
	}
	return lines
}

// String joins Lines with newlines.
func (g *Grid) String() string {
	return strings.Join(g.Lines(), "\n")
}

func (g *Grid) cellOf(x, y float64) (col, row int) {
	col = clampInt(int(x/CellWidth), 0, g.cols-1)
	row = clampInt(int(y/CellHeight), 0, g.rows-1)
	return col, row
}

func cellRune(c cell) rune {
	if c.level == waveMarker {
		return '~'
	}
	idx := int(c.level * float64(len(intensityRamp)))
	return intensityRamp[clampInt(idx, 0, len(intensityRamp)-1)]
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
