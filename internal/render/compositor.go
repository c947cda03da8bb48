// SPDX-License-Identifier: MIT

// Package render turns decoded frames into the output surface: it blends
// crossfading sources, warps the result into the six projection regions
// and presents the composite.
package render

import (
	"errors"
	"fmt"
	"math"

	"github.com/kschult4/Halloween-2025/internal/frame"
	"github.com/kschult4/Halloween-2025/internal/masks"
)

var ErrSingularMask = errors.New("mask quadrilateral has no valid perspective transform")

// Compositor warps the source frame into each configured region mask and
// composites the warped regions onto a black canvas in fixed region
// order. Owned by the render loop; not safe for concurrent use.
type Compositor struct {
	width  int
	height int
	canvas *frame.Frame
}

// NewCompositor creates a compositor for the given output surface size.
func NewCompositor(width, height int) *Compositor {
	return &Compositor{
		width:  width,
		height: height,
		canvas: frame.New(width, height),
	}
}

// Render maps src onto every region of set and returns the composited
// output frame. The returned frame is reused across calls; callers must
// not retain it past the next Render.
func (c *Compositor) Render(src *frame.Frame, set *masks.Set) (*frame.Frame, error) {
	clear(c.canvas.Data)
	c.canvas.Timestamp = src.Timestamp

	for i := range set.Regions {
		if err := c.warpRegion(src, set.Regions[i]); err != nil {
			return nil, fmt.Errorf("region %d: %w", i, err)
		}
	}
	return c.canvas, nil
}

// warpRegion computes the homography mapping the full source rectangle
// onto the mask quadrilateral and resamples by inverse mapping: each
// covered output pixel is mapped back into source space and sampled
// bilinearly.
func (c *Compositor) warpRegion(src *frame.Frame, m masks.Mask) error {
	// Mask corners in output pixel coordinates.
	var quad [4]masks.Point
	for i, p := range m.Corners {
		quad[i] = masks.Point{X: p.X * float64(c.width), Y: p.Y * float64(c.height)}
	}

	h, err := squareToQuad(quad)
	if err != nil {
		return err
	}
	inv, err := h.invert()
	if err != nil {
		return err
	}

	minX, minY, maxX, maxY := m.Bounds()
	x0 := clampInt(int(math.Floor(minX*float64(c.width))), 0, c.width-1)
	x1 := clampInt(int(math.Ceil(maxX*float64(c.width))), 0, c.width-1)
	y0 := clampInt(int(math.Floor(minY*float64(c.height))), 0, c.height-1)
	y1 := clampInt(int(math.Ceil(maxY*float64(c.height))), 0, c.height-1)

	sw := float64(src.Width - 1)
	sh := float64(src.Height - 1)

	for y := y0; y <= y1; y++ {
		fy := float64(y) + 0.5
		for x := x0; x <= x1; x++ {
			u, v, ok := inv.apply(float64(x)+0.5, fy)
			if !ok || u < 0 || u > 1 || v < 0 || v > 1 {
				continue
			}
			r, g, b := sampleBilinear(src, u*sw, v*sh)
			c.canvas.Set(x, y, r, g, b)
		}
	}
	return nil
}

// homography is a 3x3 projective transform.
type homography [9]float64

// squareToQuad builds the transform taking the unit square corners
// (0,0),(1,0),(1,1),(0,1) to the quad corners in clockwise-from-top-left
// order (Heckbert's square-to-quad construction).
func squareToQuad(q [4]masks.Point) (homography, error) {
	x0, y0 := q[0].X, q[0].Y // (0,0)
	x1, y1 := q[1].X, q[1].Y // (1,0)
	x2, y2 := q[2].X, q[2].Y // (1,1)
	x3, y3 := q[3].X, q[3].Y // (0,1)

	sx := x0 - x1 + x2 - x3
	sy := y0 - y1 + y2 - y3

	var h homography
	if math.Abs(sx) < 1e-12 && math.Abs(sy) < 1e-12 {
		// Affine case.
		h = homography{
			x1 - x0, x3 - x0, x0,
			y1 - y0, y3 - y0, y0,
			0, 0, 1,
		}
		return h, nil
	}

	dx1 := x1 - x2
	dx2 := x3 - x2
	dy1 := y1 - y2
	dy2 := y3 - y2

	den := dx1*dy2 - dx2*dy1
	if math.Abs(den) < 1e-12 {
		return h, ErrSingularMask
	}

	g := (sx*dy2 - dx2*sy) / den
	k := (dx1*sy - sx*dy1) / den

	h = homography{
		x1 - x0 + g*x1, x3 - x0 + k*x3, x0,
		y1 - y0 + g*y1, y3 - y0 + k*y3, y0,
		g, k, 1,
	}
	return h, nil
}

// invert returns the inverse transform.
func (h homography) invert() (homography, error) {
	a, b, c := h[0], h[1], h[2]
	d, e, f := h[3], h[4], h[5]
	g, k, l := h[6], h[7], h[8]

	det := a*(e*l-f*k) - b*(d*l-f*g) + c*(d*k-e*g)
	if math.Abs(det) < 1e-12 {
		return homography{}, ErrSingularMask
	}
	inv := homography{
		(e*l - f*k) / det, (c*k - b*l) / det, (b*f - c*e) / det,
		(f*g - d*l) / det, (a*l - c*g) / det, (c*d - a*f) / det,
		(d*k - e*g) / det, (b*g - a*k) / det, (a*e - b*d) / det,
	}
	return inv, nil
}

// apply maps (x, y) through the transform. ok is false at the horizon
// (w <= 0), where the projective map is undefined.
func (h homography) apply(x, y float64) (u, v float64, ok bool) {
	w := h[6]*x + h[7]*y + h[8]
	if w <= 1e-12 && w >= -1e-12 {
		return 0, 0, false
	}
	u = (h[0]*x + h[1]*y + h[2]) / w
	v = (h[3]*x + h[4]*y + h[5]) / w
	return u, v, true
}

// sampleBilinear samples src at fractional coordinates.
func sampleBilinear(src *frame.Frame, x, y float64) (byte, byte, byte) {
	ix := int(x)
	iy := int(y)
	if ix < 0 {
		ix = 0
	}
	if iy < 0 {
		iy = 0
	}
	ix2 := ix + 1
	iy2 := iy + 1
	if ix2 > src.Width-1 {
		ix2 = src.Width - 1
	}
	if iy2 > src.Height-1 {
		iy2 = src.Height - 1
	}

	fx := x - float64(ix)
	fy := y - float64(iy)

	r00, g00, b00 := src.At(ix, iy)
	r10, g10, b10 := src.At(ix2, iy)
	r01, g01, b01 := src.At(ix, iy2)
	r11, g11, b11 := src.At(ix2, iy2)

	lerp2 := func(c00, c10, c01, c11 byte) byte {
		top := float64(c00) + (float64(c10)-float64(c00))*fx
		bot := float64(c01) + (float64(c11)-float64(c01))*fx
		return byte(top + (bot-top)*fy + 0.5)
	}
	return lerp2(r00, r10, r01, r11), lerp2(g00, g10, g01, g11), lerp2(b00, b10, b01, b11)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
