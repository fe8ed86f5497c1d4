// Package kinematics derives speed and cumulative distance from metric
// trajectories.
//
// Speed is estimated over fixed non-overlapping frame windows rather than
// per frame: projected foot positions jitter by tens of centimetres, and
// differentiating them frame-to-frame amplifies the noise into nonsense.
// A five-frame window at broadcast frame rates trades ~0.2s of latency
// for stable estimates.
package kinematics

import (
	"fmt"
	"sort"

	"github.com/fieldsight/pitchtrack/internal/geom"
)

// Sample is one windowed kinematic estimate for a track. Frame is the
// first frame of the window.
type Sample struct {
	TrackID int
	Frame   int

	// SpeedKmh is the mean speed across the window. HasSpeed is false
	// when the window spans a metric gap (occluded, outside the
	// calibrated area); cumulative distance is still carried.
	SpeedKmh float64
	HasSpeed bool

	// DistanceM is cumulative metres travelled since the track's first
	// complete window. Monotone non-decreasing.
	DistanceM float64

	// Implausible marks speeds above the configured ceiling, almost
	// always a projection artifact near the quad boundary or an identity
	// swap. The sample is kept for inspection, not silently dropped.
	Implausible bool
}

// Config for the estimator. All fields required.
type Config struct {
	WindowFrames int
	FrameRate    float64
	// MaxPlausibleSpeedKmh flags, never filters. World-record sprint
	// pace is ~37 km/h.
	MaxPlausibleSpeedKmh float64
}

func (c Config) Validate() error {
	if c.WindowFrames < 2 {
		return fmt.Errorf("kinematics: window must cover at least 2 frames, got %d", c.WindowFrames)
	}
	if c.FrameRate <= 0 {
		return fmt.Errorf("kinematics: frame rate must be positive, got %g", c.FrameRate)
	}
	if c.MaxPlausibleSpeedKmh <= 0 {
		return fmt.Errorf("kinematics: speed ceiling must be positive, got %g", c.MaxPlausibleSpeedKmh)
	}
	return nil
}

// Estimator computes windowed kinematics. Stateless between calls;
// Estimate is a pure function of its inputs, so recomputation over the
// same trajectory always yields the same samples.
type Estimator struct {
	cfg Config
}

func NewEstimator(cfg Config) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Estimator{cfg: cfg}, nil
}

// Estimate walks a track's metric trajectory in fixed windows starting at
// the track's first observed frame. positions maps frame index to metric
// position; frames missing from the map are gaps. Windows containing any
// gap produce a sample without a speed value, and contribute nothing to
// cumulative distance (gap means unknown, not zero).
func (e *Estimator) Estimate(trackID int, positions map[int]geom.Point) []Sample {
	if len(positions) == 0 {
		return nil
	}

	frames := make([]int, 0, len(positions))
	for f := range positions {
		frames = append(frames, f)
	}
	sort.Ints(frames)
	first, last := frames[0], frames[len(frames)-1]

	w := e.cfg.WindowFrames
	windowSec := float64(w) / e.cfg.FrameRate

	// Windows span w frame intervals; the last frame of one window is
	// the first of the next, so displacement and duration line up.
	var samples []Sample
	total := 0.0
	for start := first; start+w <= last; start += w {
		end := start + w
		s := Sample{TrackID: trackID, Frame: start, DistanceM: total}

		p0, ok0 := positions[start]
		p1, ok1 := positions[end]
		if ok0 && ok1 && windowComplete(positions, start, end) {
			d := p0.Dist(p1)
			total += d
			s.DistanceM = total
			s.SpeedKmh = d / windowSec * 3.6
			s.HasSpeed = true
			s.Implausible = s.SpeedKmh > e.cfg.MaxPlausibleSpeedKmh
		}
		samples = append(samples, s)
	}
	return samples
}

func windowComplete(positions map[int]geom.Point, start, end int) bool {
	for f := start; f <= end; f++ {
		if _, ok := positions[f]; !ok {
			return false
		}
	}
	return true
}
