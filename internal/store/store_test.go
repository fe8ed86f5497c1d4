package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsight/pitchtrack/internal/config"
	"github.com/fieldsight/pitchtrack/internal/detect"
	"github.com/fieldsight/pitchtrack/internal/geom"
	"github.com/fieldsight/pitchtrack/internal/pipeline"
	"github.com/fieldsight/pitchtrack/internal/track"
)

type fixtureDetector struct {
	frames int
}

func (d *fixtureDetector) Detect(frame int) ([]detect.Detection, error) {
	x := 600 + 2*float64(frame)
	return []detect.Detection{
		{
			Class:      detect.ClassPlayer,
			Box:        geom.Box{X1: x - 10, Y1: 550, X2: x + 10, Y2: 650},
			Confidence: 0.9,
		},
		{
			Class:      detect.ClassBall,
			Box:        geom.Box{X1: x, Y1: 640, X2: x + 10, Y2: 656},
			Confidence: 0.8,
		},
	}, nil
}

func (d *fixtureDetector) MaxFrame() int { return d.frames - 1 }

func fixtureRun(t *testing.T) (*pipeline.Pipeline, *pipeline.Results) {
	t.Helper()
	p, err := pipeline.New(pipeline.Config{
		Tuning:   config.MustLoadDefaultConfig(),
		Detector: &fixtureDetector{frames: 12},
	})
	require.NoError(t, err)
	res, err := p.Run(context.Background())
	require.NoError(t, err)
	return p, res
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "pitchtrack.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveResultsAndQueries(t *testing.T) {
	s := openTestStore(t)
	_, res := fixtureRun(t)

	runID, err := s.CreateRun("match.mp4")
	require.NoError(t, err)
	require.NoError(t, s.SaveResults(runID, res))

	run, err := s.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, "match.mp4", run.Video)
	assert.Equal(t, 11, run.LastFrame)
	assert.NotNil(t, run.FinishedAt)

	tracks, err := s.Tracks(runID)
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, track.BallTrackID, tracks[0].TrackID)
	assert.Equal(t, "ball", tracks[0].Class)
	assert.Equal(t, "player", tracks[1].Class)

	positions, err := s.Positions(runID, tracks[1].TrackID, -1)
	require.NoError(t, err)
	require.Len(t, positions, 12)
	assert.NotNil(t, positions[0].MetricX, "player inside the quad projects")

	single, err := s.Positions(runID, -1, 7)
	require.NoError(t, err)
	assert.Len(t, single, 2)

	poss, err := s.PossessionRecords(runID)
	require.NoError(t, err)
	require.Len(t, poss, 12)
	require.NotNil(t, poss[0].TrackID)
	assert.Equal(t, tracks[1].TrackID, *poss[0].TrackID)

	samples, err := s.KinematicSamples(runID, -1)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.NotNil(t, samples[0].SpeedKmh)
	assert.False(t, samples[0].Implausible)
}

func TestSnapshotRoundTripThroughStore(t *testing.T) {
	s := openTestStore(t)
	p, res := fixtureRun(t)

	runID, err := s.CreateRun("match.mp4")
	require.NoError(t, err)
	require.NoError(t, s.SaveResults(runID, res))

	loaded, err := s.LoadSnapshot(runID)
	require.NoError(t, err)

	want := p.Snapshot()
	assert.Empty(t, cmp.Diff(want.Tracks, loaded.Tracks))
	assert.Empty(t, cmp.Diff(want.Offsets, loaded.Offsets))
}

func TestSaveResultsReplacesPriorSave(t *testing.T) {
	s := openTestStore(t)
	_, res := fixtureRun(t)

	runID, err := s.CreateRun("match.mp4")
	require.NoError(t, err)
	require.NoError(t, s.SaveResults(runID, res))
	require.NoError(t, s.SaveResults(runID, res))

	positions, err := s.Positions(runID, -1, -1)
	require.NoError(t, err)
	assert.Len(t, positions, 24) // 12 frames x 2 tracks, not doubled
}

func TestGetRunNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetRun("no-such-run")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = s.LoadSnapshot("no-such-run")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)

	a, err := s.CreateRun("first.mp4")
	require.NoError(t, err)
	b, err := s.CreateRun("second.mp4")
	require.NoError(t, err)

	runs, err := s.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	ids := []string{runs[0].ID, runs[1].ID}
	assert.Contains(t, ids, a)
	assert.Contains(t, ids, b)
}
