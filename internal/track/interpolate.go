package track

import "github.com/fieldsight/pitchtrack/internal/geom"

// InterpolateBall fills short gaps in the ball track by linear
// interpolation between the surrounding observed positions. Gaps longer
// than the configured bound are left as true gaps: downstream consumers
// must treat those frames as "no ball observation", never "ball at
// origin". Leading and trailing gaps (no endpoint on one side) are never
// filled.
func (m *Manager) InterpolateBall() {
	ball := m.tracks[BallTrackID]
	if ball == nil {
		return
	}

	frames := ball.Frames()
	for i := 1; i < len(frames); i++ {
		prev, next := frames[i-1], frames[i]
		gap := next - prev - 1
		if gap == 0 {
			continue
		}
		if gap > m.Config.MaxBallGapFrames {
			m.diag.UnfilledGapFrames += gap
			continue
		}

		p0 := ball.Raw[prev]
		p1 := ball.Raw[next]
		span := float64(next - prev)
		for f := prev + 1; f < next; f++ {
			alpha := float64(f-prev) / span
			ball.Raw[f] = geom.Point{
				X: p0.X + (p1.X-p0.X)*alpha,
				Y: p0.Y + (p1.Y-p0.Y)*alpha,
			}
			ball.Interpolated[f] = true
			m.diag.InterpolatedFrames++
		}
	}
}
