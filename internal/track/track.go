// Package track maintains persistent object identities across video frames.
//
// The manager consumes per-frame detections and owns an arena of Track
// records indexed by track ID. Tracks are created on first sighting and
// never deleted mid-video; frames where an object goes undetected are
// recorded as gaps, and short ball gaps are filled by interpolation after
// the fact.
package track

import (
	"sort"

	"github.com/fieldsight/pitchtrack/internal/detect"
	"github.com/fieldsight/pitchtrack/internal/geom"
)

// BallTrackID is the fixed identity of the single ball track. There is at
// most one ball on the pitch, so the ball needs no association machinery
// beyond "the ball track".
const BallTrackID = 1

// firstPersonID is the first ID handed to a spawned player/referee track.
const firstPersonID = 100

// Track is one persistent identity across the whole video. It owns three
// parallel frame-indexed position logs over the same lifetime: raw pixel,
// camera-stabilised pixel, and projected metric. Within one frame a track
// has at most one position in each view.
type Track struct {
	ID    int
	Class detect.Class

	// Raw holds detector-space pixel positions: foot point for people,
	// box centre for the ball.
	Raw map[int]geom.Point

	// Stabilized holds camera-motion-corrected pixel positions. Populated
	// by ApplyCorrection once the offset series is final.
	Stabilized map[int]geom.Point

	// Metric holds pitch-plane positions in metres. A frame present in
	// Stabilized but absent here projected outside the calibrated quad.
	Metric map[int]geom.Point

	// Boxes holds the raw detection box per observed frame (used by the
	// jersey-colour collaborator and by possession distance).
	Boxes map[int]geom.Box

	// Interpolated marks frames whose Raw position was filled in rather
	// than observed.
	Interpolated map[int]bool

	FirstFrame int
	LastFrame  int

	// TeamID is an external annotation from the team-assignment
	// collaborator; the manager stores it but never computes it.
	TeamID *int
}

// HasObservation reports whether the track has a raw position for frame,
// observed or interpolated.
func (t *Track) HasObservation(frame int) bool {
	_, ok := t.Raw[frame]
	return ok
}

// Frames returns the track's observed frame indices in ascending order.
func (t *Track) Frames() []int {
	frames := make([]int, 0, len(t.Raw))
	for f := range t.Raw {
		frames = append(frames, f)
	}
	sort.Ints(frames)
	return frames
}

// lastKnownBefore returns the most recent raw position at or before frame,
// or false when the track has no observation yet.
func (t *Track) lastKnownBefore(frame int) (geom.Point, bool) {
	for f := frame; f >= t.FirstFrame; f-- {
		if p, ok := t.Raw[f]; ok {
			return p, true
		}
	}
	return geom.Point{}, false
}

func newTrack(id int, class detect.Class, frame int) *Track {
	return &Track{
		ID:           id,
		Class:        class,
		Raw:          make(map[int]geom.Point),
		Stabilized:   make(map[int]geom.Point),
		Metric:       make(map[int]geom.Point),
		Boxes:        make(map[int]geom.Box),
		Interpolated: make(map[int]bool),
		FirstFrame:   frame,
		LastFrame:    frame,
	}
}

// anchor returns the position a detection contributes to its track: the
// foot point for people (the ground contact that projects onto the pitch
// plane) and the box centre for the ball.
func anchor(d detect.Detection) geom.Point {
	if d.Class == detect.ClassBall {
		return d.Box.Center()
	}
	return d.Box.Foot()
}
