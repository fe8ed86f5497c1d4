package store

import (
	"database/sql"
	"fmt"
)

// TrackRow is one track's metadata as served by the API.
type TrackRow struct {
	TrackID    int    `json:"track_id"`
	Class      string `json:"class"`
	TeamID     *int   `json:"team_id,omitempty"`
	FirstFrame int    `json:"first_frame"`
	LastFrame  int    `json:"last_frame"`
}

// PositionRow is one frame of one track. Stabilised and metric values are
// nil for frames that never projected (outside the calibrated area).
type PositionRow struct {
	TrackID      int      `json:"track_id"`
	Frame        int      `json:"frame"`
	RawX         float64  `json:"raw_x"`
	RawY         float64  `json:"raw_y"`
	StabX        *float64 `json:"stab_x,omitempty"`
	StabY        *float64 `json:"stab_y,omitempty"`
	MetricX      *float64 `json:"metric_x,omitempty"`
	MetricY      *float64 `json:"metric_y,omitempty"`
	Interpolated bool     `json:"interpolated,omitempty"`
}

// PossessionRow is the resolved possession for one frame.
type PossessionRow struct {
	Frame   int  `json:"frame"`
	TrackID *int `json:"track_id,omitempty"`
	TeamID  *int `json:"team_id,omitempty"`
}

// KinematicRow is one windowed speed/distance sample.
type KinematicRow struct {
	TrackID     int      `json:"track_id"`
	Frame       int      `json:"frame"`
	SpeedKmh    *float64 `json:"speed_kmh,omitempty"`
	DistanceM   float64  `json:"distance_m"`
	Implausible bool     `json:"implausible,omitempty"`
}

// Tracks lists a run's tracks.
func (s *Store) Tracks(runID string) ([]TrackRow, error) {
	rows, err := s.Query(
		`SELECT track_id, class, team_id, first_frame, last_frame
		 FROM tracks WHERE run_id = ? ORDER BY track_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: query tracks: %w", err)
	}
	defer rows.Close()

	var out []TrackRow
	for rows.Next() {
		var r TrackRow
		var team sql.NullInt64
		if err := rows.Scan(&r.TrackID, &r.Class, &team, &r.FirstFrame, &r.LastFrame); err != nil {
			return nil, fmt.Errorf("store: scan track row: %w", err)
		}
		if team.Valid {
			id := int(team.Int64)
			r.TeamID = &id
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Positions returns a run's per-frame positions, optionally filtered to
// one track (trackID >= 0) and/or one frame (frame >= 0).
func (s *Store) Positions(runID string, trackID, frame int) ([]PositionRow, error) {
	q := `SELECT track_id, frame, raw_x, raw_y, stab_x, stab_y, metric_x, metric_y, interpolated
	      FROM track_positions WHERE run_id = ?`
	args := []interface{}{runID}
	if trackID >= 0 {
		q += ` AND track_id = ?`
		args = append(args, trackID)
	}
	if frame >= 0 {
		q += ` AND frame = ?`
		args = append(args, frame)
	}
	q += ` ORDER BY track_id, frame`

	rows, err := s.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query positions: %w", err)
	}
	defer rows.Close()

	var out []PositionRow
	for rows.Next() {
		var r PositionRow
		var sx, sy, mx, my sql.NullFloat64
		var interpolated int
		if err := rows.Scan(&r.TrackID, &r.Frame, &r.RawX, &r.RawY,
			&sx, &sy, &mx, &my, &interpolated); err != nil {
			return nil, fmt.Errorf("store: scan position row: %w", err)
		}
		if sx.Valid {
			r.StabX, r.StabY = &sx.Float64, &sy.Float64
		}
		if mx.Valid {
			r.MetricX, r.MetricY = &mx.Float64, &my.Float64
		}
		r.Interpolated = interpolated != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// PossessionRecords returns a run's per-frame possession series.
func (s *Store) PossessionRecords(runID string) ([]PossessionRow, error) {
	rows, err := s.Query(
		`SELECT frame, track_id, team_id FROM possession
		 WHERE run_id = ? ORDER BY frame`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: query possession: %w", err)
	}
	defer rows.Close()

	var out []PossessionRow
	for rows.Next() {
		var r PossessionRow
		var trackID, teamID sql.NullInt64
		if err := rows.Scan(&r.Frame, &trackID, &teamID); err != nil {
			return nil, fmt.Errorf("store: scan possession row: %w", err)
		}
		if trackID.Valid {
			id := int(trackID.Int64)
			r.TrackID = &id
		}
		if teamID.Valid {
			id := int(teamID.Int64)
			r.TeamID = &id
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// KinematicSamples returns a run's samples, optionally filtered to one
// track (trackID >= 0).
func (s *Store) KinematicSamples(runID string, trackID int) ([]KinematicRow, error) {
	q := `SELECT track_id, frame, speed_kmh, distance_m, implausible
	      FROM kinematic_samples WHERE run_id = ?`
	args := []interface{}{runID}
	if trackID >= 0 {
		q += ` AND track_id = ?`
		args = append(args, trackID)
	}
	q += ` ORDER BY track_id, frame`

	rows, err := s.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query kinematics: %w", err)
	}
	defer rows.Close()

	var out []KinematicRow
	for rows.Next() {
		var r KinematicRow
		var speed sql.NullFloat64
		var implausible int
		if err := rows.Scan(&r.TrackID, &r.Frame, &speed, &r.DistanceM, &implausible); err != nil {
			return nil, fmt.Errorf("store: scan kinematic row: %w", err)
		}
		if speed.Valid {
			r.SpeedKmh = &speed.Float64
		}
		r.Implausible = implausible != 0
		out = append(out, r)
	}
	return out, rows.Err()
}
