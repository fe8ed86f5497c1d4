package track

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsight/pitchtrack/internal/detect"
)

func TestInterpolateBallFillsBoundedGap(t *testing.T) {
	t.Parallel()
	m := NewManager(testConfig())

	// Ball observed at frames 10 and 14 only: a gap of 3 frames, within
	// the bound of 10.
	m.Update(10, []detect.Detection{ballDet(100, 200, 0.9)})
	for f := 11; f <= 13; f++ {
		m.Update(f, nil)
	}
	m.Update(14, []detect.Detection{ballDet(180, 240, 0.9)})

	m.InterpolateBall()

	ball := m.Ball()
	require.NotNil(t, ball)

	prevX, prevY := 100.0, 200.0
	for f := 11; f <= 13; f++ {
		p, ok := ball.Raw[f]
		require.True(t, ok, "frame %d should be interpolated", f)
		assert.True(t, ball.Interpolated[f])

		// Strictly between the endpoints, monotonically progressing.
		assert.Greater(t, p.X, prevX)
		assert.Less(t, p.X, 180.0)
		assert.Greater(t, p.Y, prevY)
		assert.Less(t, p.Y, 240.0)
		prevX, prevY = p.X, p.Y
	}

	assert.Equal(t, 3, m.Diagnostics().InterpolatedFrames)
	// Endpoints stay observed, not interpolated.
	assert.False(t, ball.Interpolated[10])
	assert.False(t, ball.Interpolated[14])
}

func TestInterpolateBallExactMidpoints(t *testing.T) {
	t.Parallel()
	m := NewManager(testConfig())

	m.Update(0, []detect.Detection{ballDet(0, 0, 0.9)})
	m.Update(1, nil)
	m.Update(2, nil)
	m.Update(3, []detect.Detection{ballDet(30, 60, 0.9)})

	m.InterpolateBall()

	ball := m.Ball()
	assert.InDelta(t, 10, ball.Raw[1].X, 1e-9)
	assert.InDelta(t, 20, ball.Raw[1].Y, 1e-9)
	assert.InDelta(t, 20, ball.Raw[2].X, 1e-9)
	assert.InDelta(t, 40, ball.Raw[2].Y, 1e-9)
}

func TestInterpolateBallLeavesLongGapOpen(t *testing.T) {
	t.Parallel()
	m := NewManager(testConfig())

	// Ball missing for 50 consecutive frames with a bound of 10: those
	// frames report no observation, not an interpolated guess.
	m.Update(0, []detect.Detection{ballDet(100, 200, 0.9)})
	for f := 1; f <= 50; f++ {
		m.Update(f, nil)
	}
	m.Update(51, []detect.Detection{ballDet(900, 700, 0.9)})

	m.InterpolateBall()

	ball := m.Ball()
	for f := 1; f <= 50; f++ {
		assert.False(t, ball.HasObservation(f), "frame %d must stay a gap", f)
	}
	assert.Equal(t, 0, m.Diagnostics().InterpolatedFrames)
	assert.Equal(t, 50, m.Diagnostics().UnfilledGapFrames)
}

func TestInterpolateBallIgnoresLeadingGap(t *testing.T) {
	t.Parallel()
	m := NewManager(testConfig())

	for f := 0; f < 5; f++ {
		m.Update(f, nil)
	}
	m.Update(5, []detect.Detection{ballDet(100, 200, 0.9)})
	m.InterpolateBall()

	ball := m.Ball()
	for f := 0; f < 5; f++ {
		assert.False(t, ball.HasObservation(f))
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()
	m := NewManager(testConfig())

	m.Update(0, []detect.Detection{playerDet(100, 100, 0.9), ballDet(500, 500, 0.9)})
	m.Update(1, []detect.Detection{playerDet(106, 102, 0.9)})
	m.Update(2, []detect.Detection{playerDet(112, 104, 0.9), ballDet(520, 510, 0.9)})
	m.InterpolateBall()
	m.SetTeam(m.People()[0].ID, 1)

	restored := RestoreManager(testConfig(), m.Snapshot())

	if diff := cmp.Diff(m.Snapshot(), restored.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch after restore (-want +got):\n%s", diff)
	}
	assert.Equal(t, m.LastFrame(), restored.LastFrame())

	// The restored manager must keep assigning fresh IDs.
	restored.Update(3, []detect.Detection{playerDet(800, 800, 0.9)})
	people := restored.People()
	assert.Equal(t, people[0].ID+1, people[1].ID)
}
