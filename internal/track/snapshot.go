package track

import (
	"github.com/fieldsight/pitchtrack/internal/detect"
	"github.com/fieldsight/pitchtrack/internal/geom"
)

// Snapshot is the serialisable state of the track arena up to a frame.
// Together with the camera offset series it is sufficient to resume a run
// from the next frame; derived views (stabilised, metric) are recomputed,
// not persisted here.
type Snapshot struct {
	NextID      int             `json:"next_id"`
	LastFrame   int             `json:"last_frame"`
	Diagnostics Diagnostics     `json:"diagnostics"`
	Tracks      []TrackSnapshot `json:"tracks"`
}

// TrackSnapshot is one track's observed history.
type TrackSnapshot struct {
	ID         int                `json:"id"`
	Class      detect.Class       `json:"class"`
	TeamID     *int               `json:"team_id,omitempty"`
	FirstFrame int                `json:"first_frame"`
	LastFrame  int                `json:"last_frame"`
	Positions  []PositionSnapshot `json:"positions"`
}

// PositionSnapshot is one observed (or interpolated) raw position.
type PositionSnapshot struct {
	Frame        int        `json:"frame"`
	Point        geom.Point `json:"point"`
	Box          geom.Box   `json:"box"`
	Interpolated bool       `json:"interpolated,omitempty"`
}

// Snapshot captures the manager state for persistence.
func (m *Manager) Snapshot() Snapshot {
	snap := Snapshot{
		NextID:      m.nextID,
		LastFrame:   m.lastFrame,
		Diagnostics: m.diag,
	}
	for _, id := range m.order {
		t := m.tracks[id]
		ts := TrackSnapshot{
			ID:         t.ID,
			Class:      t.Class,
			TeamID:     t.TeamID,
			FirstFrame: t.FirstFrame,
			LastFrame:  t.LastFrame,
		}
		for _, f := range t.Frames() {
			ts.Positions = append(ts.Positions, PositionSnapshot{
				Frame:        f,
				Point:        t.Raw[f],
				Box:          t.Boxes[f],
				Interpolated: t.Interpolated[f],
			})
		}
		snap.Tracks = append(snap.Tracks, ts)
	}
	return snap
}

// RestoreManager rebuilds a manager from a snapshot so processing can
// continue from snapshot.LastFrame+1.
func RestoreManager(cfg ManagerConfig, snap Snapshot) *Manager {
	m := NewManager(cfg)
	m.lastFrame = snap.LastFrame
	m.diag = snap.Diagnostics

	// Snapshot tracks are stored in creation order; restoring in slice
	// order preserves deterministic iteration.
	for _, ts := range snap.Tracks {
		t := newTrack(ts.ID, ts.Class, ts.FirstFrame)
		t.LastFrame = ts.LastFrame
		t.TeamID = ts.TeamID
		for _, ps := range ts.Positions {
			t.Raw[ps.Frame] = ps.Point
			t.Boxes[ps.Frame] = ps.Box
			if ps.Interpolated {
				t.Interpolated[ps.Frame] = true
			}
		}
		m.tracks[ts.ID] = t
		m.order = append(m.order, ts.ID)
	}

	m.nextID = snap.NextID
	if m.nextID < firstPersonID {
		m.nextID = firstPersonID
	}
	return m
}
