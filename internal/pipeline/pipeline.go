// Package pipeline orchestrates one end-to-end processing run.
//
// It wires the detection boundary, track manager, camera motion estimator,
// projector, possession resolver and kinematics estimator into a
// frame-ordered loop, then finalises the run in bulk: ball interpolation,
// camera correction, projection, possession and kinematics all happen
// after the last frame, once the offset series is complete. The pipeline
// owns no domain logic; it delegates to the stage packages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fieldsight/pitchtrack/internal/camera"
	"github.com/fieldsight/pitchtrack/internal/config"
	"github.com/fieldsight/pitchtrack/internal/detect"
	"github.com/fieldsight/pitchtrack/internal/geom"
	"github.com/fieldsight/pitchtrack/internal/kinematics"
	"github.com/fieldsight/pitchtrack/internal/pitch"
	"github.com/fieldsight/pitchtrack/internal/possession"
	"github.com/fieldsight/pitchtrack/internal/track"
)

// TeamAssigner annotates player tracks with a team, typically from jersey
// colour clustering. Optional collaborator; the pipeline stores whatever
// it returns and computes nothing itself.
type TeamAssigner interface {
	// AssignTeams maps track ID to team ID for the given tracks. Tracks
	// absent from the map stay unannotated.
	AssignTeams(tracks []*track.Track) map[int]int
}

// Config assembles a pipeline run. Detector is required; Flow may be nil
// when no camera motion source is available, in which case every frame
// gets a zero offset.
type Config struct {
	Tuning   *config.TuningConfig
	Detector detect.Detector
	Flow     camera.FlowSource
	Teams    TeamAssigner

	// Frames is the number of frames to process. When zero the detector
	// must implement MaxFrame() int (the batch adapters do).
	Frames int
}

// Quality aggregates the recoverable conditions of a run. High counters
// mean the numbers are soft, not that the run failed.
type Quality struct {
	track.Diagnostics
	DegenerateMotionFrames int `json:"degenerate_motion_frames"`
	DetectorErrors         int `json:"detector_errors"`
	FlowErrors             int `json:"flow_errors"`
	ImplausibleSamples     int `json:"implausible_samples"`
}

// Results is the complete output of a run.
type Results struct {
	Tracks      []*track.Track
	Possession  []possession.Record
	TeamControl []possession.TeamFrame
	TeamShare   map[int]float64
	Kinematics  []kinematics.Sample
	Offsets     []geom.Vec
	LastFrame   int
	Quality     Quality
}

// Snapshot is the resumable state of a run after some frame: the track
// arena plus the camera offset series. Derived views are recomputed on
// resume, not persisted.
type Snapshot struct {
	Tracks  track.Snapshot `json:"tracks"`
	Offsets []geom.Vec     `json:"offsets"`
}

// Pipeline runs the stages over a frame sequence. Single-threaded from
// the caller's perspective: Run owns all internal concurrency.
type Pipeline struct {
	cfg     Config
	tracker *track.Manager
	motion  *camera.Estimator
	proj    *pitch.Projector

	startFrame int
	lastFrame  int

	detectorErrors int
	flowErrors     int
	flowDone       bool
}

// New validates the configuration and assembles a pipeline. All
// configuration problems surface here, before any frame is touched;
// nothing that happens per frame is fatal.
func New(cfg Config) (*Pipeline, error) {
	p, err := build(cfg)
	if err != nil {
		return nil, err
	}
	p.tracker = track.NewManager(managerConfig(cfg.Tuning))
	p.motion = camera.NewEstimator(estimatorConfig(cfg.Tuning))
	return p, nil
}

// Resume assembles a pipeline that continues a prior run from the frame
// after the snapshot's last. The flow source, if any, must be positioned
// at its own first frame; Run skips forward to the resume point.
func Resume(cfg Config, snap Snapshot) (*Pipeline, error) {
	p, err := build(cfg)
	if err != nil {
		return nil, err
	}
	p.tracker = track.RestoreManager(managerConfig(cfg.Tuning), snap.Tracks)
	p.motion = camera.RestoreEstimator(estimatorConfig(cfg.Tuning), snap.Offsets)
	p.startFrame = snap.Tracks.LastFrame + 1
	if p.startFrame > p.lastFrame {
		return nil, fmt.Errorf("pipeline: snapshot already covers frame %d of %d", snap.Tracks.LastFrame, p.lastFrame)
	}
	return p, nil
}

func build(cfg Config) (*Pipeline, error) {
	if cfg.Tuning == nil {
		return nil, errors.New("pipeline: tuning config is required")
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: invalid tuning config: %w", err)
	}
	if cfg.Detector == nil {
		return nil, errors.New("pipeline: detector is required")
	}

	last := cfg.Frames - 1
	if cfg.Frames == 0 {
		mf, ok := cfg.Detector.(interface{ MaxFrame() int })
		if !ok {
			return nil, errors.New("pipeline: frame count not given and detector cannot report one")
		}
		last = mf.MaxFrame()
	}
	if last < 0 {
		return nil, errors.New("pipeline: no frames to process")
	}

	cal := pitch.CalibrationFromQuads(cfg.Tuning.GetPixelQuad(), cfg.Tuning.GetWorldQuad())
	proj, err := pitch.NewProjector(cal)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	return &Pipeline{cfg: cfg, proj: proj, lastFrame: last}, nil
}

func managerConfig(t *config.TuningConfig) track.ManagerConfig {
	return track.ManagerConfig{
		MaxAssociationDistancePx: t.GetMaxAssociationDistancePx(),
		TieEpsilonPx:             t.GetAssociationTieEpsilonPx(),
		MaxBallGapFrames:         t.GetMaxBallGapFrames(),
	}
}

func estimatorConfig(t *config.TuningConfig) camera.EstimatorConfig {
	return camera.EstimatorConfig{
		Mask: camera.EdgeMask{
			LeftPx:   t.GetMaskLeftPx(),
			RightPx:  t.GetMaskRightPx(),
			TopPx:    t.GetMaskTopPx(),
			BottomPx: t.GetMaskBottomPx(),
		},
		FrameWidth:        t.GetFrameWidthPx(),
		FrameHeight:       t.GetFrameHeightPx(),
		MinFeatures:       t.GetMinFlowFeatures(),
		MinDisplacementPx: t.GetMinCameraMovementPx(),
	}
}

// Run processes all remaining frames and finalises the run. The context
// is checked between frames: cancellation stops cleanly at a frame
// boundary and returns ctx.Err() with no partial results.
func (p *Pipeline) Run(ctx context.Context) (*Results, error) {
	// A resumed run must first discard the flow frames the prior run
	// already consumed; the offset series for them is restored state.
	if p.cfg.Flow != nil {
		for frame := 1; frame < p.startFrame; frame++ {
			if _, err := p.nextFlow(); err != nil {
				break
			}
		}
	}

	for frame := p.startFrame; frame <= p.lastFrame; frame++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		p.ProcessFrame(frame)
	}
	return p.finalize(), nil
}

// ProcessFrame runs one frame through the per-frame stages. Tracking and
// motion estimation consume independent inputs, so they run concurrently;
// both must complete before the frame is considered done.
func (p *Pipeline) ProcessFrame(frame int) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if frame == p.startFrame && p.startFrame == 0 {
			// The first frame has no predecessor to measure motion
			// against; its offset is the estimator's implicit zero.
			return
		}
		vectors, err := p.nextFlow()
		if err != nil {
			p.flowErrors++
			opsf("frame %d: flow source: %v", frame, err)
		}
		p.motion.Observe(vectors)
	}()

	dets, err := p.cfg.Detector.Detect(frame)
	if err != nil {
		p.detectorErrors++
		opsf("frame %d: detector: %v", frame, err)
		dets = nil
	}
	obs := p.tracker.Update(frame, dets)
	tracef("frame %d: %d detections, %d observations", frame, len(dets), len(obs))

	wg.Wait()
}

// nextFlow pulls the next frame's flow vectors. After the source is
// exhausted every remaining frame observes no features, which the
// estimator resolves to a zero displacement.
func (p *Pipeline) nextFlow() ([]camera.FlowVector, error) {
	if p.cfg.Flow == nil || p.flowDone {
		return nil, nil
	}
	vectors, err := p.cfg.Flow.Next()
	if errors.Is(err, io.EOF) {
		p.flowDone = true
		return nil, nil
	}
	return vectors, err
}

// finalize runs the bulk post-pass: interpolation, correction,
// projection, team annotation, possession and kinematics.
func (p *Pipeline) finalize() *Results {
	p.tracker.InterpolateBall()
	p.tracker.ApplyCorrection(p.motion.Offset)
	p.tracker.ApplyProjection(p.proj.Project)

	if p.cfg.Teams != nil {
		for id, team := range p.cfg.Teams.AssignTeams(p.tracker.People()) {
			p.tracker.SetTeam(id, team)
		}
	}

	res := &Results{
		Tracks:    p.tracker.Tracks(),
		Offsets:   p.motion.Offsets(),
		LastFrame: p.lastFrame,
	}
	p.resolvePossession(res)
	p.estimateKinematics(res)

	res.Quality = Quality{
		Diagnostics:            p.tracker.Diagnostics(),
		DegenerateMotionFrames: p.motion.DegenerateFrames(),
		DetectorErrors:         p.detectorErrors,
		FlowErrors:             p.flowErrors,
	}
	for _, s := range res.Kinematics {
		if s.Implausible {
			res.Quality.ImplausibleSamples++
		}
	}

	diagf("run complete: %d frames, %d tracks, quality %+v",
		p.lastFrame+1, len(res.Tracks), res.Quality)
	return res
}

func (p *Pipeline) resolvePossession(res *Results) {
	resolver := possession.NewResolver(p.cfg.Tuning.GetPossessionThresholdPx())
	control := possession.NewTeamControl()
	ball := p.tracker.Ball()
	people := p.tracker.People()

	for frame := 0; frame <= p.lastFrame; frame++ {
		var ballPos *geom.Point
		if ball != nil {
			if pos, ok := ball.Raw[frame]; ok {
				ballPos = &pos
			}
		}

		var candidates []possession.Candidate
		for _, t := range people {
			if t.Class == detect.ClassReferee {
				continue
			}
			if box, ok := t.Boxes[frame]; ok {
				candidates = append(candidates, possession.Candidate{TrackID: t.ID, Box: box})
			}
		}

		rec := resolver.Resolve(frame, ballPos, candidates)
		res.Possession = append(res.Possession, rec)

		team, hasTeam := 0, false
		if rec.TrackID != nil {
			if t := p.tracker.Track(*rec.TrackID); t != nil && t.TeamID != nil {
				team, hasTeam = *t.TeamID, true
			}
		}
		control.Observe(frame, team, hasTeam)
	}

	res.TeamControl = control.Series()
	res.TeamShare = control.Share()
}

func (p *Pipeline) estimateKinematics(res *Results) {
	est, err := kinematics.NewEstimator(kinematics.Config{
		WindowFrames:         p.cfg.Tuning.GetKinematicsWindowFrames(),
		FrameRate:            p.cfg.Tuning.GetFrameRate(),
		MaxPlausibleSpeedKmh: p.cfg.Tuning.GetMaxPlausibleSpeedKmh(),
	})
	if err != nil {
		// Guarded by Validate in build; kept as a loud failure anyway.
		opsf("kinematics config rejected: %v", err)
		return
	}

	for _, t := range p.tracker.People() {
		if t.Class != detect.ClassPlayer && t.Class != detect.ClassGoalkeeper {
			continue
		}
		res.Kinematics = append(res.Kinematics, est.Estimate(t.ID, t.Metric)...)
	}
}

// Snapshot captures the resumable state after the frames processed so
// far. Call between Run invocations or after a cancelled run.
func (p *Pipeline) Snapshot() Snapshot {
	return Snapshot{
		Tracks:  p.tracker.Snapshot(),
		Offsets: p.motion.Offsets(),
	}
}
