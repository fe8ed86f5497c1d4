package pitch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsight/pitchtrack/internal/config"
	"github.com/fieldsight/pitchtrack/internal/geom"
)

func defaultCalibration(t *testing.T) Calibration {
	t.Helper()
	cfg := config.MustLoadDefaultConfig()
	require.NotNil(t, cfg.PixelQuad)
	require.NotNil(t, cfg.WorldQuad)
	return CalibrationFromQuads(*cfg.PixelQuad, *cfg.WorldQuad)
}

func TestProjectorCornersMapExactly(t *testing.T) {
	cal := defaultCalibration(t)
	p, err := NewProjector(cal)
	require.NoError(t, err)

	// The homography is solved from the corners, so each corner must land
	// on its world counterpart up to float tolerance. Corners sit on the
	// quad boundary where ray casting is ambiguous; nudge toward the
	// centroid to keep the containment test out of the picture.
	var cx, cy float64
	for _, c := range cal.PixelQuad {
		cx += c.X / 4
		cy += c.Y / 4
	}
	for i, corner := range cal.PixelQuad {
		px := geom.Point{
			X: corner.X + (cx-corner.X)*1e-6,
			Y: corner.Y + (cy-corner.Y)*1e-6,
		}
		got, ok := p.Project(px)
		require.True(t, ok, "corner %d", i)
		assert.InDelta(t, cal.WorldQuad[i].X, got.X, 1e-2, "corner %d X", i)
		assert.InDelta(t, cal.WorldQuad[i].Y, got.Y, 1e-2, "corner %d Y", i)
	}
}

func TestProjectorRoundTrip(t *testing.T) {
	p, err := NewProjector(defaultCalibration(t))
	require.NoError(t, err)

	pts := []geom.Point{
		{X: 600, Y: 600},
		{X: 400, Y: 800},
		{X: 900, Y: 500},
	}
	for _, px := range pts {
		world, ok := p.Project(px)
		require.True(t, ok)
		back, ok := p.Unproject(world)
		require.True(t, ok)
		assert.InDelta(t, px.X, back.X, 1e-6)
		assert.InDelta(t, px.Y, back.Y, 1e-6)
	}
}

func TestProjectorOutsideQuad(t *testing.T) {
	p, err := NewProjector(defaultCalibration(t))
	require.NoError(t, err)

	for _, px := range []geom.Point{
		{X: 5, Y: 5},          // far top-left corner of the frame
		{X: 1900, Y: 100},     // top-right, outside the visible segment
		{X: 0, Y: 1080},       // bottom-left frame corner
		{X: -50, Y: 500},      // off-frame
		{X: math.NaN(), Y: 1}, // non-finite
	} {
		_, ok := p.Project(px)
		assert.False(t, ok, "point %+v should be outside", px)
	}
}

func TestProjectorWorldCoordinatesInRange(t *testing.T) {
	cal := defaultCalibration(t)
	p, err := NewProjector(cal)
	require.NoError(t, err)

	// Any pixel inside the quad must land inside the world rectangle.
	world, ok := p.Project(geom.Point{X: 700, Y: 650})
	require.True(t, ok)
	assert.GreaterOrEqual(t, world.X, 0.0)
	assert.LessOrEqual(t, world.X, 23.32)
	assert.GreaterOrEqual(t, world.Y, 0.0)
	assert.LessOrEqual(t, world.Y, 68.0)
}

func TestDegenerateCalibrationRejected(t *testing.T) {
	// All four pixel points collinear: no invertible homography exists.
	cal := Calibration{
		PixelQuad: [4]geom.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}},
		WorldQuad: [4]geom.Point{{X: 0, Y: 68}, {X: 0, Y: 0}, {X: 23.32, Y: 0}, {X: 23.32, Y: 68}},
	}
	_, err := NewProjector(cal)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDegenerateCalibration)
}

func TestCalibrationFromQuads(t *testing.T) {
	c := CalibrationFromQuads(
		[4][2]float64{{1, 2}, {3, 4}, {5, 6}, {7, 8}},
		[4][2]float64{{0, 68}, {0, 0}, {23.32, 0}, {23.32, 68}},
	)
	assert.Equal(t, geom.Point{X: 1, Y: 2}, c.PixelQuad[0])
	assert.Equal(t, geom.Point{X: 23.32, Y: 68}, c.WorldQuad[3])
}
