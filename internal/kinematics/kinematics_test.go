package kinematics

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsight/pitchtrack/internal/geom"
)

func newTestEstimator(t *testing.T) *Estimator {
	t.Helper()
	e, err := NewEstimator(Config{
		WindowFrames:         5,
		FrameRate:            24,
		MaxPlausibleSpeedKmh: 44,
	})
	require.NoError(t, err)
	return e
}

// walk lays out a straight-line trajectory at a fixed metres-per-frame
// step, starting at frame 0.
func walk(frames int, stepM float64) map[int]geom.Point {
	pos := make(map[int]geom.Point, frames)
	for f := 0; f < frames; f++ {
		pos[f] = geom.Point{X: float64(f) * stepM, Y: 10}
	}
	return pos
}

func TestEstimateConstantSpeed(t *testing.T) {
	e := newTestEstimator(t)

	// 0.05 m per frame at 24 fps = 1.2 m/s = 4.32 km/h.
	samples := e.Estimate(101, walk(11, 0.05))
	require.Len(t, samples, 2)

	for i, s := range samples {
		assert.Equal(t, 101, s.TrackID)
		assert.True(t, s.HasSpeed, "sample %d", i)
		assert.InDelta(t, 4.32, s.SpeedKmh, 1e-9, "sample %d", i)
		assert.False(t, s.Implausible)
	}
	assert.Equal(t, 0, samples[0].Frame)
	assert.Equal(t, 5, samples[1].Frame)
	assert.InDelta(t, 0.25, samples[0].DistanceM, 1e-9)
	assert.InDelta(t, 0.50, samples[1].DistanceM, 1e-9)
}

func TestEstimateGapWindowSkipsSpeedKeepsDistance(t *testing.T) {
	e := newTestEstimator(t)

	pos := walk(16, 0.05)
	delete(pos, 7) // occluded mid-window

	samples := e.Estimate(101, pos)
	require.Len(t, samples, 3)

	assert.True(t, samples[0].HasSpeed)
	assert.False(t, samples[1].HasSpeed, "window over the gap has no speed")
	assert.True(t, samples[2].HasSpeed)

	// Distance freezes through the gap window instead of dropping to
	// zero, then resumes.
	assert.InDelta(t, 0.25, samples[0].DistanceM, 1e-9)
	assert.InDelta(t, 0.25, samples[1].DistanceM, 1e-9)
	assert.InDelta(t, 0.50, samples[2].DistanceM, 1e-9)
}

func TestEstimateDistanceMonotone(t *testing.T) {
	e := newTestEstimator(t)

	pos := walk(41, 0.08)
	delete(pos, 12)
	delete(pos, 13)
	delete(pos, 27)

	samples := e.Estimate(101, pos)
	require.NotEmpty(t, samples)
	prev := 0.0
	for i, s := range samples {
		assert.GreaterOrEqual(t, s.DistanceM, prev, "sample %d", i)
		prev = s.DistanceM
	}
}

func TestEstimateImplausibleFlagged(t *testing.T) {
	e := newTestEstimator(t)

	// 2 m per frame at 24 fps = 172.8 km/h; an identity swap, not a run.
	samples := e.Estimate(101, walk(6, 2))
	require.Len(t, samples, 1)
	assert.True(t, samples[0].HasSpeed)
	assert.True(t, samples[0].Implausible)
	assert.InDelta(t, 172.8, samples[0].SpeedKmh, 1e-9)
}

func TestEstimateIdempotent(t *testing.T) {
	e := newTestEstimator(t)

	pos := walk(23, 0.07)
	delete(pos, 9)

	first := e.Estimate(101, pos)
	second := e.Estimate(101, pos)
	assert.Empty(t, cmp.Diff(first, second))
}

func TestEstimateShortTrajectory(t *testing.T) {
	e := newTestEstimator(t)

	// Fewer frames than one window: no samples at all.
	assert.Nil(t, e.Estimate(101, walk(4, 0.05)))
	assert.Nil(t, e.Estimate(101, nil))
}

func TestEstimateStartsAtFirstObservedFrame(t *testing.T) {
	e := newTestEstimator(t)

	pos := make(map[int]geom.Point)
	for f := 100; f <= 110; f++ {
		pos[f] = geom.Point{X: float64(f) * 0.05, Y: 5}
	}

	samples := e.Estimate(101, pos)
	require.Len(t, samples, 2)
	assert.Equal(t, 100, samples[0].Frame)
	assert.Equal(t, 105, samples[1].Frame)
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"window too small", Config{WindowFrames: 1, FrameRate: 24, MaxPlausibleSpeedKmh: 44}},
		{"zero frame rate", Config{WindowFrames: 5, FrameRate: 0, MaxPlausibleSpeedKmh: 44}},
		{"zero ceiling", Config{WindowFrames: 5, FrameRate: 24, MaxPlausibleSpeedKmh: 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewEstimator(tc.cfg)
			assert.Error(t, err)
		})
	}
}
