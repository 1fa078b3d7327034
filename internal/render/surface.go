// SPDX-License-Identifier: MIT
package render

// Point is a position in surface coordinates.
type Point struct {
	X, Y float64
}

// Color is an HSL colour with alpha. Hue is in degrees, the rest in [0,1].
type Color struct {
	H, S, L, A float64
}

// Surface is the drawing target of the renderer. Coordinates are in the
// units passed to Resize, origin top left.
type Surface interface {
	// Resize changes the drawable extents.
	Resize(width, height int)
	// Fade dims the previous frame so particles leave short trails.
	Fade()
	Circle(center Point, radius float64, c Color)
	Polyline(points []Point, c Color)
	// Present marks the frame complete.
	Present()
}

var waveformColor = Color{H: 207, S: 0.89, L: 0.68, A: 0.6}
