// Package camera estimates frame-to-frame camera motion and corrects
// track positions into a stationary reference frame.
//
// A broadcast camera pans and zooms to follow play; raw pixel positions
// therefore mix player motion with camera motion. The estimator measures
// the camera component from sparse optical-flow features on the static
// frame edges and exposes a cumulative per-frame offset; subtracting that
// offset from a raw position yields the stabilised position every
// geometric stage works in.
package camera

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/fieldsight/pitchtrack/internal/geom"
)

// FlowVector is one tracked feature's displacement between a consecutive
// frame pair: the feature sat at (X0, Y0) in the earlier frame and moved
// by (DX, DY).
type FlowVector struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// EdgeMask selects the static border bands of the frame. Features inside
// the active-play area are dominated by player motion, not camera motion,
// and would bias the estimate; only features whose origin falls in one of
// the edge bands count.
type EdgeMask struct {
	LeftPx   int
	RightPx  int
	TopPx    int
	BottomPx int
}

// Contains reports whether (x, y) lies in one of the mask bands of a
// frameW×frameH frame.
func (m EdgeMask) Contains(x, y float64, frameW, frameH int) bool {
	if x < float64(m.LeftPx) || x >= float64(frameW-m.RightPx) {
		return true
	}
	if y < float64(m.TopPx) && m.TopPx > 0 {
		return true
	}
	if y >= float64(frameH-m.BottomPx) && m.BottomPx > 0 {
		return true
	}
	return false
}

// EstimatorConfig holds the camera motion estimation parameters.
type EstimatorConfig struct {
	Mask        EdgeMask
	FrameWidth  int
	FrameHeight int

	// MinFeatures is the minimum number of masked flow vectors required
	// for an estimate; below it the frame falls back to zero displacement.
	MinFeatures int

	// MinDisplacementPx is the deadband: aggregate motion below this
	// magnitude is treated as a still camera, so sub-pixel flow jitter
	// does not accumulate into offset drift.
	MinDisplacementPx float64
}

// Estimator accumulates the cumulative camera offset series. It is a
// single-writer, append-only structure: Observe is called once per
// consecutive frame pair, in order, and offsets are never revised.
type Estimator struct {
	cfg EstimatorConfig

	// offsets[f] is the cumulative displacement of the camera at frame f
	// relative to frame 0. offsets[0] = (0,0) by construction.
	offsets []geom.Vec

	degenerateFrames int
}

// NewEstimator creates an estimator with offset (0,0) for frame 0.
func NewEstimator(cfg EstimatorConfig) *Estimator {
	return &Estimator{
		cfg:     cfg,
		offsets: []geom.Vec{{}},
	}
}

// RestoreEstimator rebuilds an estimator from a previously finalised
// offset series so a run can resume mid-video. The series must start at
// frame 0; an empty series behaves like NewEstimator.
func RestoreEstimator(cfg EstimatorConfig, offsets []geom.Vec) *Estimator {
	e := NewEstimator(cfg)
	if len(offsets) > 0 {
		e.offsets = make([]geom.Vec, len(offsets))
		copy(e.offsets, offsets)
	}
	return e
}

// Observe ingests the flow vectors measured between the last observed
// frame and the next one, appends the new cumulative offset, and returns
// the per-frame displacement that was applied. A frame with too few
// trackable background features contributes zero displacement rather than
// a spurious jump: an incorrect large displacement would corrupt every
// subsequent offset.
func (e *Estimator) Observe(vectors []FlowVector) geom.Vec {
	d := e.displacement(vectors)
	prev := e.offsets[len(e.offsets)-1]
	e.offsets = append(e.offsets, prev.Add(d))
	return d
}

func (e *Estimator) displacement(vectors []FlowVector) geom.Vec {
	dxs := make([]float64, 0, len(vectors))
	dys := make([]float64, 0, len(vectors))
	for _, v := range vectors {
		if !e.cfg.Mask.Contains(v.X0, v.Y0, e.cfg.FrameWidth, e.cfg.FrameHeight) {
			continue
		}
		if math.IsNaN(v.DX) || math.IsNaN(v.DY) || math.IsInf(v.DX, 0) || math.IsInf(v.DY, 0) {
			continue
		}
		dxs = append(dxs, v.DX)
		dys = append(dys, v.DY)
	}

	if len(dxs) < e.cfg.MinFeatures {
		e.degenerateFrames++
		return geom.Vec{}
	}

	// Median per axis: individual features on the edge bands still catch
	// the odd moving object (a substitute warming up, a flag), and the
	// median ignores them where a mean would not.
	sort.Float64s(dxs)
	sort.Float64s(dys)
	d := geom.Vec{
		DX: stat.Quantile(0.5, stat.LinInterp, dxs, nil),
		DY: stat.Quantile(0.5, stat.LinInterp, dys, nil),
	}

	if math.Hypot(d.DX, d.DY) < e.cfg.MinDisplacementPx {
		return geom.Vec{}
	}
	return d
}

// Offset returns the cumulative camera offset at the given frame.
// Frames beyond the observed range return the latest known offset, so a
// consumer slightly ahead of the estimator degrades gracefully instead of
// reading garbage.
func (e *Estimator) Offset(frame int) geom.Vec {
	switch {
	case frame < 0:
		return geom.Vec{}
	case frame >= len(e.offsets):
		return e.offsets[len(e.offsets)-1]
	}
	return e.offsets[frame]
}

// Offsets returns a copy of the cumulative offset series.
func (e *Estimator) Offsets() []geom.Vec {
	out := make([]geom.Vec, len(e.offsets))
	copy(out, e.offsets)
	return out
}

// Frames returns the number of frames with a computed offset.
func (e *Estimator) Frames() int { return len(e.offsets) }

// DegenerateFrames returns how many frames fell back to zero displacement
// for lack of trackable features.
func (e *Estimator) DegenerateFrames() int { return e.degenerateFrames }

// Correct maps a raw pixel position into the stabilised reference frame:
// corrected = raw - offset(frame). Pure given the offset series.
func (e *Estimator) Correct(p geom.Point, frame int) geom.Point {
	return p.Minus(e.Offset(frame))
}

// Validate checks the estimator configuration at startup.
func (c EstimatorConfig) Validate() error {
	if c.FrameWidth <= 0 || c.FrameHeight <= 0 {
		return fmt.Errorf("frame dimensions must be positive, got %dx%d", c.FrameWidth, c.FrameHeight)
	}
	if c.Mask.LeftPx+c.Mask.RightPx >= c.FrameWidth {
		return fmt.Errorf("edge mask bands (%d+%d) cover the whole frame width %d",
			c.Mask.LeftPx, c.Mask.RightPx, c.FrameWidth)
	}
	if c.MinFeatures < 1 {
		return fmt.Errorf("min features must be at least 1, got %d", c.MinFeatures)
	}
	return nil
}
