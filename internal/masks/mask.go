// SPDX-License-Identifier: MIT

// Package masks models the six projection region quadrilaterals and their
// JSON persistence. The on-disk format is shared with the external mask
// editor and must round-trip corner coordinates bit-identically.
package masks

import (
	"errors"
	"fmt"
	"math"
)

// RegionCount is fixed by the physical display: six projection surfaces.
const RegionCount = 6

var (
	ErrWrongCount = errors.New("mask file must contain exactly six regions")
	ErrDegenerate = errors.New("mask region has zero area")
	ErrNotSimple  = errors.New("mask region is self-intersecting")
)

// Point is a 2-D point in normalized output-surface coordinates.
type Point struct {
	X float64
	Y float64
}

// Mask is one projection region: four corners ordered clockwise from
// top-left.
type Mask struct {
	Corners [4]Point
}

// Set is an immutable ordered sequence of the six region masks. The
// compositor reads a Set snapshot; edits swap in a new Set, never mutate
// one in place.
type Set struct {
	Regions [RegionCount]Mask
}

// Default returns six full-width horizontal bands, the geometry of an
// unwarped 6-strip projection.
func Default() *Set {
	s := &Set{}
	for i := 0; i < RegionCount; i++ {
		top := float64(i) / RegionCount
		bottom := float64(i+1) / RegionCount
		s.Regions[i] = Mask{Corners: [4]Point{
			{X: 0, Y: top},
			{X: 1, Y: top},
			{X: 1, Y: bottom},
			{X: 0, Y: bottom},
		}}
	}
	return s
}

// Validate rejects a set whose regions are degenerate or self-intersecting.
// Overlap between regions is deliberately not checked; non-overlap is a
// configuration responsibility.
func (s *Set) Validate() error {
	for i := range s.Regions {
		if err := s.Regions[i].Validate(); err != nil {
			return fmt.Errorf("region %d: %w", i, err)
		}
	}
	return nil
}

// Validate checks that the quadrilateral is simple and has non-zero area.
func (m Mask) Validate() error {
	if math.Abs(m.Area()) < 1e-9 {
		return ErrDegenerate
	}
	// A quadrilateral is simple iff neither pair of opposite edges crosses.
	c := m.Corners
	if segmentsCross(c[0], c[1], c[2], c[3]) || segmentsCross(c[1], c[2], c[3], c[0]) {
		return ErrNotSimple
	}
	return nil
}

// Area returns the signed shoelace area of the quadrilateral.
func (m Mask) Area() float64 {
	var sum float64
	for i := 0; i < 4; i++ {
		a := m.Corners[i]
		b := m.Corners[(i+1)%4]
		sum += a.X*b.Y - b.X*a.Y
	}
	return sum / 2
}

// Bounds returns the axis-aligned bounding box of the quadrilateral.
func (m Mask) Bounds() (minX, minY, maxX, maxY float64) {
	minX, minY = m.Corners[0].X, m.Corners[0].Y
	maxX, maxY = minX, minY
	for _, c := range m.Corners[1:] {
		minX = math.Min(minX, c.X)
		minY = math.Min(minY, c.Y)
		maxX = math.Max(maxX, c.X)
		maxY = math.Max(maxY, c.Y)
	}
	return minX, minY, maxX, maxY
}

func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// segmentsCross reports whether the open segments pq and rs properly
// intersect. Shared endpoints do not count.
func segmentsCross(p, q, r, s Point) bool {
	d1 := cross(r, s, p)
	d2 := cross(r, s, q)
	d3 := cross(p, q, r)
	d4 := cross(p, q, s)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}
