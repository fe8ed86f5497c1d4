// Package pitch projects stabilised pixel positions onto the pitch plane.
//
// A fixed 4-point correspondence between a pixel-space quadrilateral and a
// real-world rectangle in metres defines a homography; the projector
// solves it once at startup and afterwards applies it as a cached matrix
// multiplication. The inverse transform is exposed for renderers that draw
// metric data back onto video frames.
package pitch

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/fieldsight/pitchtrack/internal/geom"
)

// ErrDegenerateCalibration is returned when the 4-point correspondence
// does not define an invertible homography (collinear or coincident
// points). This is a configuration error: fatal at startup, before any
// frame is processed.
var ErrDegenerateCalibration = errors.New("pitch: calibration does not define an invertible homography")

// Calibration is a fixed 4-point correspondence between the visible pitch
// segment in pixel space and its real-world extent in metres. Constant for
// a given camera setup; never mutated during processing.
type Calibration struct {
	PixelQuad [4]geom.Point
	WorldQuad [4]geom.Point
}

// CalibrationFromQuads builds a Calibration from configuration arrays.
func CalibrationFromQuads(pixel, world [4][2]float64) Calibration {
	var c Calibration
	for i := 0; i < 4; i++ {
		c.PixelQuad[i] = geom.Point{X: pixel[i][0], Y: pixel[i][1]}
		c.WorldQuad[i] = geom.Point{X: world[i][0], Y: world[i][1]}
	}
	return c
}

// Projector applies the calibrated homography. Stateless after
// construction; safe for concurrent use.
type Projector struct {
	cal Calibration

	// h and hInv are the forward and inverse homographies, row-major.
	h    [9]float64
	hInv [9]float64
}

// NewProjector solves the homography from the calibration and verifies it
// is invertible. Degenerate calibrations fail here, never mid-video.
func NewProjector(cal Calibration) (*Projector, error) {
	h, err := solveHomography(cal.PixelQuad, cal.WorldQuad)
	if err != nil {
		return nil, err
	}

	var H mat.Dense
	H.ReuseAs(3, 3)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			H.Set(i, j, h[i*3+j])
		}
	}

	var inv mat.Dense
	if err := inv.Inverse(&H); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateCalibration, err)
	}

	p := &Projector{cal: cal, h: h}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			p.hInv[i*3+j] = inv.At(i, j)
		}
	}
	return p, nil
}

// solveHomography computes the 3x3 transform mapping src[i] -> dst[i].
// Each correspondence contributes two rows of the standard 8x8 DLT
// system; the ninth matrix element is fixed at 1.
func solveHomography(src, dst [4]geom.Point) ([9]float64, error) {
	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)

	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y

		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y})
		b.SetVec(2*i, u)
		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y})
		b.SetVec(2*i+1, v)
	}

	var sol mat.VecDense
	if err := sol.SolveVec(a, b); err != nil {
		return [9]float64{}, fmt.Errorf("%w: %v", ErrDegenerateCalibration, err)
	}

	var h [9]float64
	for i := 0; i < 8; i++ {
		h[i] = sol.AtVec(i)
	}
	h[8] = 1
	return h, nil
}

// apply runs a 3x3 homography on a point. ok is false when the point maps
// to the plane at infinity (w ≈ 0), which happens near the horizon line.
func apply(h [9]float64, p geom.Point) (geom.Point, bool) {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if math.Abs(w) < 1e-12 {
		return geom.Point{}, false
	}
	return geom.Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}, true
}

// Project maps a stabilised pixel position to metric pitch coordinates.
// ok is false for positions outside the calibrated quadrilateral (a
// player briefly out of the calibrated view) or numerically unstable
// ones; no clamping is applied. Rejecting implausible downstream speeds
// is the kinematics estimator's job, not the projector's.
func (p *Projector) Project(pt geom.Point) (geom.Point, bool) {
	if !pt.IsFinite() || !p.InsideQuad(pt) {
		return geom.Point{}, false
	}
	return apply(p.h, pt)
}

// Unproject maps a metric position back to stabilised pixel space. It is
// the exact inverse of Project for points inside the calibrated quad;
// outside it carries no correctness guarantee beyond the matrix algebra.
func (p *Projector) Unproject(pt geom.Point) (geom.Point, bool) {
	return apply(p.hInv, pt)
}

// InsideQuad reports whether a pixel position lies inside the calibrated
// quadrilateral, by ray casting against its edges.
func (p *Projector) InsideQuad(pt geom.Point) bool {
	quad := p.cal.PixelQuad
	inside := false
	j := 3
	for i := 0; i < 4; i++ {
		pi, pj := quad[i], quad[j]
		if (pi.Y > pt.Y) != (pj.Y > pt.Y) &&
			pt.X < (pj.X-pi.X)*(pt.Y-pi.Y)/(pj.Y-pi.Y)+pi.X {
			inside = !inside
		}
		j = i
	}
	return inside
}

// Calibration returns the correspondence the projector was built from.
func (p *Projector) Calibration() Calibration { return p.cal }
