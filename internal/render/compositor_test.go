// SPDX-License-Identifier: MIT

package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kschult4/Halloween-2025/internal/frame"
	"github.com/kschult4/Halloween-2025/internal/masks"
)

func solid(w, h int, r, g, b byte) *frame.Frame {
	f := frame.New(w, h)
	for i := 0; i < len(f.Data); i += 3 {
		f.Data[i], f.Data[i+1], f.Data[i+2] = r, g, b
	}
	return f
}

func TestRenderDefaultBandsCoverCanvas(t *testing.T) {
	c := NewCompositor(60, 60)
	src := solid(8, 8, 10, 200, 30)

	out, err := c.Render(src, masks.Default())
	require.NoError(t, err)
	require.Equal(t, 60, out.Width)

	// The six bands tile the canvas, so a solid source paints every pixel.
	for _, p := range [][2]int{{0, 0}, {59, 0}, {30, 30}, {0, 59}, {59, 59}, {17, 42}} {
		r, g, b := out.At(p[0], p[1])
		assert.Equal(t, byte(10), r, "pixel %v", p)
		assert.Equal(t, byte(200), g, "pixel %v", p)
		assert.Equal(t, byte(30), b, "pixel %v", p)
	}
}

func TestRenderMapsFullSourceIntoEachRegion(t *testing.T) {
	c := NewCompositor(60, 60)

	// Left half white, right half black.
	src := frame.New(8, 8)
	for y := 0; y < 8; y++ {
		for x := 0; x < 4; x++ {
			src.Set(x, y, 255, 255, 255)
		}
	}

	out, err := c.Render(src, masks.Default())
	require.NoError(t, err)

	// Every band maps the whole source horizontally, so the canvas splits
	// left/right regardless of which band a row falls in.
	for _, y := range []int{5, 25, 55} {
		r, _, _ := out.At(5, y)
		assert.Equal(t, byte(255), r, "left side row %d", y)
		r, _, _ = out.At(55, y)
		assert.Equal(t, byte(0), r, "right side row %d", y)
	}
}

func TestRenderVerticalMappingWithinBand(t *testing.T) {
	c := NewCompositor(60, 60)

	// Top half red, bottom half blue.
	src := frame.New(8, 8)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if y < 4 {
				src.Set(x, y, 255, 0, 0)
			} else {
				src.Set(x, y, 0, 0, 255)
			}
		}
	}

	out, err := c.Render(src, masks.Default())
	require.NoError(t, err)

	// Band 2 spans canvas rows 20..29; the source's full height is
	// compressed into it.
	r, _, b := out.At(30, 21)
	assert.Equal(t, byte(255), r)
	assert.Equal(t, byte(0), b)

	r, _, b = out.At(30, 28)
	assert.Equal(t, byte(0), r)
	assert.Equal(t, byte(255), b)
}

func TestRenderRejectsCollinearQuad(t *testing.T) {
	c := NewCompositor(40, 40)
	src := solid(4, 4, 1, 2, 3)

	set := masks.Default()
	set.Regions[0] = masks.Mask{Corners: [4]masks.Point{
		{X: 0, Y: 0.5}, {X: 0.3, Y: 0.5}, {X: 1, Y: 0.5}, {X: 0.6, Y: 0.5},
	}}

	_, err := c.Render(src, set)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSingularMask)
}

func TestSquareToQuadRoundTrip(t *testing.T) {
	// A proper trapezoid exercises the projective (non-affine) path.
	quad := [4]masks.Point{
		{X: 10, Y: 5}, {X: 50, Y: 8}, {X: 44, Y: 38}, {X: 4, Y: 30},
	}

	h, err := squareToQuad(quad)
	require.NoError(t, err)
	inv, err := h.invert()
	require.NoError(t, err)

	unit := [4][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	for i, c := range unit {
		x, y, ok := h.apply(c[0], c[1])
		require.True(t, ok)
		assert.InDelta(t, quad[i].X, x, 1e-9, "corner %d x", i)
		assert.InDelta(t, quad[i].Y, y, 1e-9, "corner %d y", i)

		u, v, ok := inv.apply(quad[i].X, quad[i].Y)
		require.True(t, ok)
		assert.InDelta(t, c[0], u, 1e-9, "corner %d u", i)
		assert.InDelta(t, c[1], v, 1e-9, "corner %d v", i)
	}
}

func TestSquareToQuadAffineRectangle(t *testing.T) {
	quad := [4]masks.Point{
		{X: 2, Y: 3}, {X: 12, Y: 3}, {X: 12, Y: 9}, {X: 2, Y: 9},
	}

	h, err := squareToQuad(quad)
	require.NoError(t, err)

	x, y, ok := h.apply(0.5, 0.5)
	require.True(t, ok)
	assert.InDelta(t, 7.0, x, 1e-9)
	assert.InDelta(t, 6.0, y, 1e-9)
}

func TestRenderReusesCanvas(t *testing.T) {
	c := NewCompositor(30, 30)
	src := solid(4, 4, 9, 9, 9)

	a, err := c.Render(src, masks.Default())
	require.NoError(t, err)
	b, err := c.Render(src, masks.Default())
	require.NoError(t, err)
	assert.Same(t, a, b)
}
