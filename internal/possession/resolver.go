// Package possession assigns the ball to at most one player per frame.
//
// Assignment is stateless: each frame is resolved on its own from the
// ball center and the player bounding boxes, with no hysteresis or
// carry-over between frames. A running team tally layered on top carries
// the last possessor's team forward through contested frames.
package possession

import (
	"github.com/fieldsight/pitchtrack/internal/geom"
)

// Candidate is one player considered for possession in a single frame.
type Candidate struct {
	TrackID int
	Box     geom.Box
}

// Record is the possession outcome for one frame. TrackID is nil when no
// player is close enough to the ball, or the ball was not observed.
type Record struct {
	Frame   int
	TrackID *int
}

// Resolver assigns per-frame ball possession. Stateless; safe for
// concurrent use.
type Resolver struct {
	maxDistancePx float64
}

// NewResolver returns a resolver with the given assignment radius in
// pixels. Distances beyond it leave the frame without a possessor.
func NewResolver(maxDistancePx float64) *Resolver {
	return &Resolver{maxDistancePx: maxDistancePx}
}

// distanceTo measures from a player box to the ball center. The original
// heuristic takes the nearer of the two bottom corners, approximating the
// player's feet without pose information.
func distanceTo(box geom.Box, ball geom.Point) float64 {
	left := geom.Point{X: box.X1, Y: box.Y2}
	right := geom.Point{X: box.X2, Y: box.Y2}
	dl := left.Dist(ball)
	dr := right.Dist(ball)
	if dl < dr {
		return dl
	}
	return dr
}

// Resolve picks the possessor for one frame. A nil ball position (not
// detected, gap not interpolated) yields no possessor. Exact distance
// ties go to the lowest track ID, keeping reruns deterministic.
func (r *Resolver) Resolve(frame int, ball *geom.Point, players []Candidate) Record {
	rec := Record{Frame: frame}
	if ball == nil || !ball.IsFinite() {
		return rec
	}

	best := -1
	bestDist := 0.0
	for _, c := range players {
		if !c.Box.Valid() {
			continue
		}
		d := distanceTo(c.Box, *ball)
		if d > r.maxDistancePx {
			continue
		}
		switch {
		case best < 0, d < bestDist:
			best, bestDist = c.TrackID, d
		case d == bestDist && c.TrackID < best:
			best = c.TrackID
		}
	}
	if best >= 0 {
		id := best
		rec.TrackID = &id
	}
	return rec
}

// TeamFrame is one entry of the running team-control series.
type TeamFrame struct {
	Frame  int
	TeamID int
	// Known is false before the first resolved possession, when no team
	// has touched the ball yet.
	Known bool
}

// TeamControl accumulates which team controls the ball over time. Frames
// without a possessor inherit the last possessing team, matching how
// broadcast statistics count contested spells.
type TeamControl struct {
	lastTeam int
	known    bool
	series   []TeamFrame
	counts   map[int]int
}

func NewTeamControl() *TeamControl {
	return &TeamControl{counts: make(map[int]int)}
}

// Observe records one frame. teamID is ignored unless hasHolder is true.
// Frames must be observed in order.
func (tc *TeamControl) Observe(frame int, teamID int, hasHolder bool) {
	if hasHolder {
		tc.lastTeam = teamID
		tc.known = true
	}
	tc.series = append(tc.series, TeamFrame{Frame: frame, TeamID: tc.lastTeam, Known: tc.known})
	if tc.known {
		tc.counts[tc.lastTeam]++
	}
}

// Series returns the per-frame control record in observation order.
func (tc *TeamControl) Series() []TeamFrame {
	out := make([]TeamFrame, len(tc.series))
	copy(out, tc.series)
	return out
}

// Share returns each team's fraction of the frames attributed to any
// team. Empty when no team ever held the ball.
func (tc *TeamControl) Share() map[int]float64 {
	total := 0
	for _, n := range tc.counts {
		total += n
	}
	out := make(map[int]float64, len(tc.counts))
	if total == 0 {
		return out
	}
	for team, n := range tc.counts {
		out[team] = float64(n) / float64(total)
	}
	return out
}
