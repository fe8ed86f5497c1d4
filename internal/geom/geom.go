// Package geom provides the small pixel/metric geometry vocabulary shared by
// the tracking pipeline: 2D points, displacement vectors, and axis-aligned
// bounding boxes in image coordinates.
package geom

import "math"

// Point is a 2D position. The unit (pixels or metres) is determined by
// context: raw and stabilised track positions are pixels, projected
// positions are metres.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Vec is a 2D displacement.
type Vec struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// Sub returns p - q as a displacement.
func (p Point) Sub(q Point) Vec {
	return Vec{DX: p.X - q.X, DY: p.Y - q.Y}
}

// Minus returns the point shifted back by v.
func (p Point) Minus(v Vec) Point {
	return Point{X: p.X - v.DX, Y: p.Y - v.DY}
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// IsFinite reports whether both coordinates are finite numbers.
func (p Point) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Add returns the accumulated displacement v + w.
func (v Vec) Add(w Vec) Vec {
	return Vec{DX: v.DX + w.DX, DY: v.DY + w.DY}
}

// Box is an axis-aligned bounding box in pixel space with (X1, Y1) the
// top-left and (X2, Y2) the bottom-right corner.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Center returns the geometric centre of the box.
func (b Box) Center() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// Foot returns the bottom-centre of the box: the approximate ground contact
// point of a standing player, which is what gets projected onto the pitch
// plane.
func (b Box) Foot() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: b.Y2}
}

// Width returns the horizontal extent of the box.
func (b Box) Width() float64 { return b.X2 - b.X1 }

// Height returns the vertical extent of the box.
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

// Valid reports whether the box has positive area and finite corners.
// Detectors occasionally emit degenerate or inverted boxes on partial
// occlusion; those are dropped upstream rather than tracked.
func (b Box) Valid() bool {
	for _, v := range []float64{b.X1, b.Y1, b.X2, b.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.X2 > b.X1 && b.Y2 > b.Y1
}
