package track

import (
	"math"
	"sort"

	"github.com/fieldsight/pitchtrack/internal/detect"
	"github.com/fieldsight/pitchtrack/internal/geom"
)

// ManagerConfig holds the association parameters of the track manager.
type ManagerConfig struct {
	// MaxAssociationDistancePx gates detection-to-track association: a
	// detection farther than this from every track's previous position
	// spawns a new track instead.
	MaxAssociationDistancePx float64

	// TieEpsilonPx is the distance band within which two candidate
	// detections count as equidistant; the higher-confidence detection
	// wins the track.
	TieEpsilonPx float64

	// MaxBallGapFrames bounds ball gap interpolation. Gaps longer than
	// this stay true gaps.
	MaxBallGapFrames int
}

// Diagnostics counts recoverable per-frame conditions. These surface on
// the output model so consumers can judge run quality; none of them stop
// the pipeline.
type Diagnostics struct {
	DroppedDetections  int `json:"dropped_detections"`
	SpawnedTracks      int `json:"spawned_tracks"`
	MissedObservations int `json:"missed_observations"`
	InterpolatedFrames int `json:"interpolated_frames"`
	UnfilledGapFrames  int `json:"unfilled_gap_frames"`
}

// Manager owns the track arena and establishes frame-to-frame
// correspondence. It is a single-writer structure: Update must be called
// with strictly increasing frame indices from one goroutine.
type Manager struct {
	Config ManagerConfig

	tracks map[int]*Track
	order  []int // track IDs in creation order, for deterministic iteration
	nextID int

	lastFrame int
	diag      Diagnostics
}

// NewManager creates an empty track arena.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		Config: cfg,
		tracks: make(map[int]*Track),
		nextID: firstPersonID,
		lastFrame: -1,
	}
}

// Observation is one track's position in one frame, as returned by Update.
type Observation struct {
	TrackID int
	Class   detect.Class
	Box     geom.Box
	Point   geom.Point
}

// Update consumes the detections of one frame and returns the per-track
// observations recorded for it. Tracks with no matching detection are
// marked missing (no position appended) rather than terminated.
func (m *Manager) Update(frame int, dets []detect.Detection) []Observation {
	m.lastFrame = frame

	var ball []detect.Detection
	var people []detect.Detection
	for _, d := range dets {
		if !d.Box.Valid() || !d.Class.Valid() {
			m.diag.DroppedDetections++
			continue
		}
		if d.Class == detect.ClassBall {
			ball = append(ball, d)
		} else {
			people = append(people, d)
		}
	}

	obs := m.updatePeople(frame, people)
	if o, ok := m.updateBall(frame, ball); ok {
		obs = append(obs, o)
	}

	// Count active person tracks that went unobserved this frame.
	for _, id := range m.order {
		t := m.tracks[id]
		if t.Class != detect.ClassBall && frame > t.FirstFrame && !t.HasObservation(frame) {
			m.diag.MissedObservations++
		}
	}

	return obs
}

// candidate is one feasible detection-to-track pairing.
type candidate struct {
	detIdx   int
	trackID  int
	dist     float64
	detConf  float64
}

// updatePeople associates player/goalkeeper/referee detections with
// existing tracks by greedy nearest-previous-position matching under the
// distance gate. Unmatched detections spawn tracks.
func (m *Manager) updatePeople(frame int, dets []detect.Detection) []Observation {
	obs := make([]Observation, 0, len(dets))
	assignedDet := make([]bool, len(dets))
	assignedTrack := make(map[int]bool)

	// Detections carrying an upstream track ID bypass association.
	for i, d := range dets {
		if d.TrackID == nil {
			continue
		}
		id := *d.TrackID
		t, ok := m.tracks[id]
		if !ok {
			t = m.spawn(id, d.Class, frame)
		}
		if t.HasObservation(frame) {
			// One position per track per frame; a second claim on the
			// same identity is detector noise.
			m.diag.DroppedDetections++
			assignedDet[i] = true
			continue
		}
		obs = append(obs, m.record(t, frame, d))
		assignedDet[i] = true
		assignedTrack[id] = true
	}

	// Build all feasible pairings for the remaining detections.
	var cands []candidate
	for i, d := range dets {
		if assignedDet[i] {
			continue
		}
		p := anchor(d)
		for _, id := range m.order {
			t := m.tracks[id]
			if t.Class == detect.ClassBall || assignedTrack[id] {
				continue
			}
			prev, ok := t.lastKnownBefore(frame - 1)
			if !ok {
				continue
			}
			dist := p.Dist(prev)
			if dist > m.Config.MaxAssociationDistancePx {
				continue
			}
			cands = append(cands, candidate{detIdx: i, trackID: id, dist: dist, detConf: d.Confidence})
		}
	}

	// Greedy nearest-first. Within the tie band the higher-confidence
	// detection wins; final tie-break on track ID keeps the order stable.
	eps := m.Config.TieEpsilonPx
	sort.Slice(cands, func(a, b int) bool {
		ca, cb := cands[a], cands[b]
		if math.Abs(ca.dist-cb.dist) <= eps {
			if ca.detConf != cb.detConf {
				return ca.detConf > cb.detConf
			}
			return ca.trackID < cb.trackID
		}
		return ca.dist < cb.dist
	})

	for _, c := range cands {
		if assignedDet[c.detIdx] || assignedTrack[c.trackID] {
			continue
		}
		t := m.tracks[c.trackID]
		obs = append(obs, m.record(t, frame, dets[c.detIdx]))
		assignedDet[c.detIdx] = true
		assignedTrack[c.trackID] = true
	}

	// Anything still unmatched is a new identity.
	for i, d := range dets {
		if assignedDet[i] {
			continue
		}
		t := m.spawn(m.nextID, d.Class, frame)
		m.nextID++
		obs = append(obs, m.record(t, frame, d))
	}

	return obs
}

// updateBall appends the best ball detection to the single ball track.
// With several candidate balls, the one nearest the last known ball
// position wins; with no history, the most confident one does.
func (m *Manager) updateBall(frame int, dets []detect.Detection) (Observation, bool) {
	if len(dets) == 0 {
		return Observation{}, false
	}

	t, ok := m.tracks[BallTrackID]
	if !ok {
		t = m.spawn(BallTrackID, detect.ClassBall, frame)
	}

	best := 0
	if prev, known := t.lastKnownBefore(frame - 1); known {
		bestDist := anchor(dets[0]).Dist(prev)
		for i := 1; i < len(dets); i++ {
			if d := anchor(dets[i]).Dist(prev); d < bestDist {
				best, bestDist = i, d
			}
		}
	} else {
		for i := 1; i < len(dets); i++ {
			if dets[i].Confidence > dets[best].Confidence {
				best = i
			}
		}
	}

	return m.record(t, frame, dets[best]), true
}

func (m *Manager) spawn(id int, class detect.Class, frame int) *Track {
	t := newTrack(id, class, frame)
	m.tracks[id] = t
	m.order = append(m.order, id)
	m.diag.SpawnedTracks++
	if id >= m.nextID {
		m.nextID = id + 1
	}
	return t
}

func (m *Manager) record(t *Track, frame int, d detect.Detection) Observation {
	p := anchor(d)
	t.Raw[frame] = p
	t.Boxes[frame] = d.Box
	if frame > t.LastFrame {
		t.LastFrame = frame
	}
	if frame < t.FirstFrame {
		t.FirstFrame = frame
	}
	return Observation{TrackID: t.ID, Class: t.Class, Box: d.Box, Point: p}
}

// Track returns the track with the given ID, or nil.
func (m *Manager) Track(id int) *Track {
	return m.tracks[id]
}

// Ball returns the ball track, or nil if the ball was never detected.
func (m *Manager) Ball() *Track {
	return m.tracks[BallTrackID]
}

// Tracks returns all tracks in creation order.
func (m *Manager) Tracks() []*Track {
	out := make([]*Track, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.tracks[id])
	}
	return out
}

// People returns all non-ball tracks in creation order.
func (m *Manager) People() []*Track {
	out := make([]*Track, 0, len(m.order))
	for _, id := range m.order {
		if t := m.tracks[id]; t.Class != detect.ClassBall {
			out = append(out, t)
		}
	}
	return out
}

// LastFrame returns the highest frame index seen by Update, or -1.
func (m *Manager) LastFrame() int { return m.lastFrame }

// Diagnostics returns the accumulated recoverable-condition counters.
func (m *Manager) Diagnostics() Diagnostics { return m.diag }

// SetTeam stores an externally computed team annotation on a track.
// Unknown IDs are ignored: the collaborator may lag behind track creation.
func (m *Manager) SetTeam(trackID, teamID int) {
	if t, ok := m.tracks[trackID]; ok {
		team := teamID
		t.TeamID = &team
	}
}

// ApplyCorrection populates the stabilised view of every track by
// subtracting the per-frame camera offset from every raw position,
// players and ball alike. Must run before any geometric reasoning.
func (m *Manager) ApplyCorrection(offsetAt func(frame int) geom.Vec) {
	for _, id := range m.order {
		t := m.tracks[id]
		for f, p := range t.Raw {
			t.Stabilized[f] = p.Minus(offsetAt(f))
		}
	}
}

// ApplyProjection populates the metric view from the stabilised one.
// Positions that project outside the calibrated quad are left absent from
// the metric view; that absence is a projection gap, not a tracking gap.
func (m *Manager) ApplyProjection(project func(geom.Point) (geom.Point, bool)) {
	for _, id := range m.order {
		t := m.tracks[id]
		for f, p := range t.Stabilized {
			if q, ok := project(p); ok {
				t.Metric[f] = q
			}
		}
	}
}
