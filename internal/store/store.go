// Package store persists processing runs to sqlite.
//
// The database is a result cache, not part of the processing core: a run
// writes its complete output once, and the API server reads it back.
// Snapshots for resuming an interrupted run are reconstructed from the
// same tables rather than stored as blobs.
package store

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/fieldsight/pitchtrack/internal/detect"
	"github.com/fieldsight/pitchtrack/internal/geom"
	"github.com/fieldsight/pitchtrack/internal/kinematics"
	"github.com/fieldsight/pitchtrack/internal/pipeline"
	"github.com/fieldsight/pitchtrack/internal/possession"
	"github.com/fieldsight/pitchtrack/internal/track"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrRunNotFound is returned when a run ID has no row.
var ErrRunNotFound = errors.New("store: run not found")

type Store struct {
	*sql.DB
}

// Open opens (creating if needed) the sqlite database at path and applies
// any pending migrations. The migrations ship embedded in the binary, so
// a deployment is a single file plus its database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// sqlite serialises writers; a single connection avoids SQLITE_BUSY
	// between the run writer and API readers.
	db.SetMaxOpenConns(1)

	s := &Store{db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("store: migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("store: migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: migration up failed: %w", err)
	}
	return nil
}

type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }

// Run is one processing run's metadata row.
type Run struct {
	ID         string     `json:"id"`
	Video      string     `json:"video"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	LastFrame  int        `json:"last_frame"`
	Quality    string     `json:"quality,omitempty"`
}

// CreateRun registers a new run and returns its ID.
func (s *Store) CreateRun(video string) (string, error) {
	id := uuid.NewString()
	_, err := s.Exec(`INSERT INTO runs (id, video) VALUES (?, ?)`, id, video)
	if err != nil {
		return "", fmt.Errorf("store: create run: %w", err)
	}
	return id, nil
}

// GetRun loads a run's metadata.
func (s *Store) GetRun(id string) (*Run, error) {
	var r Run
	var finished sql.NullTime
	err := s.QueryRow(
		`SELECT id, video, started_at, finished_at, last_frame, quality_json
		 FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.Video, &r.StartedAt, &finished, &r.LastFrame, &r.Quality)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get run: %w", err)
	}
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	return &r, nil
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns() ([]Run, error) {
	rows, err := s.Query(
		`SELECT id, video, started_at, finished_at, last_frame, quality_json
		 FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Video, &r.StartedAt, &finished, &r.LastFrame, &r.Quality); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		if finished.Valid {
			r.FinishedAt = &finished.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SaveResults writes a run's complete output in one transaction,
// replacing anything a prior partial save left behind, and marks the run
// finished.
func (s *Store) SaveResults(runID string, res *pipeline.Results) error {
	tx, err := s.Begin()
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"tracks", "track_positions", "camera_offsets", "possession", "kinematic_samples"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("store: clear %s: %w", table, err)
		}
	}

	if err := insertTracks(tx, runID, res.Tracks); err != nil {
		return err
	}
	if err := insertOffsets(tx, runID, res.Offsets); err != nil {
		return err
	}
	if err := insertPossession(tx, runID, res.Possession, res.TeamControl); err != nil {
		return err
	}
	if err := insertKinematics(tx, runID, res.Kinematics); err != nil {
		return err
	}

	quality, err := json.Marshal(res.Quality)
	if err != nil {
		return fmt.Errorf("store: marshal quality: %w", err)
	}
	nextID := 100
	for _, t := range res.Tracks {
		if t.ID != track.BallTrackID && t.ID >= nextID {
			nextID = t.ID + 1
		}
	}
	if _, err := tx.Exec(
		`UPDATE runs SET finished_at = CURRENT_TIMESTAMP, last_frame = ?,
		 next_track_id = ?, quality_json = ? WHERE id = ?`,
		res.LastFrame, nextID, string(quality), runID,
	); err != nil {
		return fmt.Errorf("store: finish run: %w", err)
	}

	return tx.Commit()
}

func insertTracks(tx *sql.Tx, runID string, tracks []*track.Track) error {
	trackStmt, err := tx.Prepare(
		`INSERT INTO tracks (run_id, track_id, class, team_id, first_frame, last_frame)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare tracks: %w", err)
	}
	defer trackStmt.Close()

	posStmt, err := tx.Prepare(
		`INSERT INTO track_positions (run_id, track_id, frame,
		   raw_x, raw_y, stab_x, stab_y, metric_x, metric_y,
		   box_x1, box_y1, box_x2, box_y2, interpolated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare positions: %w", err)
	}
	defer posStmt.Close()

	for _, t := range tracks {
		var team interface{}
		if t.TeamID != nil {
			team = *t.TeamID
		}
		if _, err := trackStmt.Exec(runID, t.ID, string(t.Class), team, t.FirstFrame, t.LastFrame); err != nil {
			return fmt.Errorf("store: insert track %d: %w", t.ID, err)
		}

		for _, f := range t.Frames() {
			raw := t.Raw[f]
			box := t.Boxes[f]
			stabX, stabY := nullPoint(t.Stabilized, f)
			metX, metY := nullPoint(t.Metric, f)
			if _, err := posStmt.Exec(runID, t.ID, f,
				raw.X, raw.Y, stabX, stabY, metX, metY,
				box.X1, box.Y1, box.X2, box.Y2, boolInt(t.Interpolated[f]),
			); err != nil {
				return fmt.Errorf("store: insert position track %d frame %d: %w", t.ID, f, err)
			}
		}
	}
	return nil
}

func nullPoint(m map[int]geom.Point, frame int) (interface{}, interface{}) {
	if p, ok := m[frame]; ok {
		return p.X, p.Y
	}
	return nil, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func insertOffsets(tx *sql.Tx, runID string, offsets []geom.Vec) error {
	stmt, err := tx.Prepare(
		`INSERT INTO camera_offsets (run_id, frame, dx, dy) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare offsets: %w", err)
	}
	defer stmt.Close()

	for f, v := range offsets {
		if _, err := stmt.Exec(runID, f, v.DX, v.DY); err != nil {
			return fmt.Errorf("store: insert offset frame %d: %w", f, err)
		}
	}
	return nil
}

func insertPossession(tx *sql.Tx, runID string, records []possession.Record, control []possession.TeamFrame) error {
	team := make(map[int]*int, len(control))
	for _, tf := range control {
		if tf.Known {
			id := tf.TeamID
			team[tf.Frame] = &id
		}
	}

	stmt, err := tx.Prepare(
		`INSERT INTO possession (run_id, frame, track_id, team_id) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare possession: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		var trackID, teamID interface{}
		if rec.TrackID != nil {
			trackID = *rec.TrackID
		}
		if t := team[rec.Frame]; t != nil {
			teamID = *t
		}
		if _, err := stmt.Exec(runID, rec.Frame, trackID, teamID); err != nil {
			return fmt.Errorf("store: insert possession frame %d: %w", rec.Frame, err)
		}
	}
	return nil
}

func insertKinematics(tx *sql.Tx, runID string, samples []kinematics.Sample) error {
	stmt, err := tx.Prepare(
		`INSERT INTO kinematic_samples (run_id, track_id, frame, speed_kmh, distance_m, implausible)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare kinematics: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		var speed interface{}
		if s.HasSpeed {
			speed = s.SpeedKmh
		}
		if _, err := stmt.Exec(runID, s.TrackID, s.Frame, speed, s.DistanceM, boolInt(s.Implausible)); err != nil {
			return fmt.Errorf("store: insert sample track %d frame %d: %w", s.TrackID, s.Frame, err)
		}
	}
	return nil
}

// LoadSnapshot reconstructs the resumable state of a run from its
// persisted observations. Only raw positions, boxes and offsets are
// needed; stabilised and metric views are recomputed on resume.
func (s *Store) LoadSnapshot(runID string) (pipeline.Snapshot, error) {
	var snap pipeline.Snapshot

	var nextID, lastFrame int
	var quality string
	err := s.QueryRow(
		`SELECT next_track_id, last_frame, quality_json FROM runs WHERE id = ?`, runID,
	).Scan(&nextID, &lastFrame, &quality)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, ErrRunNotFound
	}
	if err != nil {
		return snap, fmt.Errorf("store: load run: %w", err)
	}

	snap.Tracks.NextID = nextID
	snap.Tracks.LastFrame = lastFrame
	// Diagnostics fields are embedded in the quality document.
	if err := json.Unmarshal([]byte(quality), &snap.Tracks.Diagnostics); err != nil {
		return snap, fmt.Errorf("store: decode quality: %w", err)
	}

	if snap.Tracks.Tracks, err = s.loadTracks(runID); err != nil {
		return snap, err
	}
	if snap.Offsets, err = s.loadOffsets(runID); err != nil {
		return snap, err
	}
	return snap, nil
}

func (s *Store) loadTracks(runID string) ([]track.TrackSnapshot, error) {
	rows, err := s.Query(
		`SELECT track_id, class, team_id, first_frame, last_frame
		 FROM tracks WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: load tracks: %w", err)
	}
	defer rows.Close()

	var tracks []track.TrackSnapshot
	index := make(map[int]int)
	for rows.Next() {
		var ts track.TrackSnapshot
		var class string
		var team sql.NullInt64
		if err := rows.Scan(&ts.ID, &class, &team, &ts.FirstFrame, &ts.LastFrame); err != nil {
			return nil, fmt.Errorf("store: scan track: %w", err)
		}
		ts.Class = detect.Class(class)
		if team.Valid {
			id := int(team.Int64)
			ts.TeamID = &id
		}
		index[ts.ID] = len(tracks)
		tracks = append(tracks, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	posRows, err := s.Query(
		`SELECT track_id, frame, raw_x, raw_y, box_x1, box_y1, box_x2, box_y2, interpolated
		 FROM track_positions WHERE run_id = ? ORDER BY track_id, frame`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: load positions: %w", err)
	}
	defer posRows.Close()

	for posRows.Next() {
		var trackID int
		var ps track.PositionSnapshot
		var interpolated int
		if err := posRows.Scan(&trackID, &ps.Frame,
			&ps.Point.X, &ps.Point.Y,
			&ps.Box.X1, &ps.Box.Y1, &ps.Box.X2, &ps.Box.Y2,
			&interpolated,
		); err != nil {
			return nil, fmt.Errorf("store: scan position: %w", err)
		}
		ps.Interpolated = interpolated != 0
		i, ok := index[trackID]
		if !ok {
			return nil, fmt.Errorf("store: position for unknown track %d", trackID)
		}
		tracks[i].Positions = append(tracks[i].Positions, ps)
	}
	return tracks, posRows.Err()
}

func (s *Store) loadOffsets(runID string) ([]geom.Vec, error) {
	rows, err := s.Query(
		`SELECT dx, dy FROM camera_offsets WHERE run_id = ? ORDER BY frame`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: load offsets: %w", err)
	}
	defer rows.Close()

	var offsets []geom.Vec
	for rows.Next() {
		var v geom.Vec
		if err := rows.Scan(&v.DX, &v.DY); err != nil {
			return nil, fmt.Errorf("store: scan offset: %w", err)
		}
		offsets = append(offsets, v)
	}
	return offsets, rows.Err()
}
