// Command pitchtrack processes broadcast football footage into tracks,
// possession and kinematics, and serves the results.
//
// Usage:
//
//	pitchtrack process -detections match.jsonl [-flow flow.jsonl] [-video match.mp4]
//	pitchtrack resume -run <id> -detections match.jsonl
//	pitchtrack serve -listen :8080
//
// An optional pitchtrack.yaml in the working directory supplies defaults
// for any flag not given on the command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/viper"

	"github.com/fieldsight/pitchtrack/internal/api"
	"github.com/fieldsight/pitchtrack/internal/camera"
	"github.com/fieldsight/pitchtrack/internal/config"
	"github.com/fieldsight/pitchtrack/internal/detect"
	"github.com/fieldsight/pitchtrack/internal/heatmap"
	"github.com/fieldsight/pitchtrack/internal/pipeline"
	"github.com/fieldsight/pitchtrack/internal/store"
	"github.com/fieldsight/pitchtrack/internal/track"
	"github.com/fieldsight/pitchtrack/internal/version"
)

var (
	listen     = flag.String("listen", ":8080", "HTTP listen address (serve mode)")
	dbFile     = flag.String("db", "pitchtrack.db", "Path to the SQLite database file")
	tuningFile = flag.String("tuning", "", "Tuning config JSON (default: bundled defaults)")
	detections = flag.String("detections", "", "JSONL detections file")
	flowFile   = flag.String("flow", "", "JSONL optical-flow file (optional)")
	videoFlow  = flag.String("video-flow", "", "Video file for optical flow (requires gocv build)")
	videoName  = flag.String("video", "", "Video label recorded with the run")
	frames     = flag.Int("frames", 0, "Frame count to process (default: from detections)")
	runFlag    = flag.String("run", "", "Run ID to resume (resume mode)")
	heatmapDir = flag.String("heatmap-dir", "", "Write occupancy heatmaps to this directory")
	verbose    = flag.Bool("verbose", false, "Enable diagnostic logging")
	trace      = flag.Bool("trace", false, "Enable per-frame trace logging")
	showVer    = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVer {
		fmt.Println(version.String())
		return
	}
	applyConfigFile()

	diag, tr := os.Stderr, os.Stderr
	if !*verbose {
		diag = nil
	}
	if !*trace {
		tr = nil
	}
	pipeline.SetLogWriters(os.Stderr, diag, tr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mode := flag.Arg(0)
	if mode == "" {
		mode = "process"
	}

	var err error
	switch mode {
	case "process":
		err = runProcess(ctx, "")
	case "resume":
		if *runFlag == "" {
			err = fmt.Errorf("resume requires -run")
		} else {
			err = runProcess(ctx, *runFlag)
		}
	case "serve":
		err = runServe(ctx)
	default:
		err = fmt.Errorf("unknown mode %q (want process, resume or serve)", mode)
	}
	if err != nil {
		log.Fatalf("%s: %v", mode, err)
	}
}

// applyConfigFile overlays pitchtrack.yaml values onto flags the user did
// not set explicitly.
func applyConfigFile() {
	viper.AddConfigPath(".")
	viper.SetConfigName("pitchtrack")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("could not read config file: %v", err)
		}
		return
	}

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	flag.VisitAll(func(f *flag.Flag) {
		if !set[f.Name] && viper.IsSet(f.Name) {
			if err := f.Value.Set(viper.GetString(f.Name)); err != nil {
				log.Fatalf("config value for %s: %v", f.Name, err)
			}
		}
	})
}

func loadTuning() (*config.TuningConfig, error) {
	if *tuningFile != "" {
		return config.LoadTuningConfig(*tuningFile)
	}
	return config.MustLoadDefaultConfig(), nil
}

func openFlow() (camera.FlowSource, error) {
	switch {
	case *flowFile != "":
		src, err := camera.OpenJSONLFlowSource(*flowFile)
		if err != nil {
			return nil, err
		}
		return src, nil
	case *videoFlow != "":
		src, err := camera.OpenVideoFlowSource(*videoFlow)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	return nil, nil
}

// runProcess handles both fresh runs and resumes; resumeID is empty for a
// fresh run.
func runProcess(ctx context.Context, resumeID string) error {
	if *detections == "" {
		return fmt.Errorf("process requires -detections")
	}

	tuning, err := loadTuning()
	if err != nil {
		return fmt.Errorf("load tuning: %w", err)
	}

	detector, err := detect.OpenJSONLDetector(*detections)
	if err != nil {
		return fmt.Errorf("open detections: %w", err)
	}

	flow, err := openFlow()
	if err != nil {
		return fmt.Errorf("open flow source: %w", err)
	}
	if flow != nil {
		defer flow.Close()
	}

	db, err := store.Open(*dbFile)
	if err != nil {
		return err
	}
	defer db.Close()

	cfg := pipeline.Config{
		Tuning:   tuning,
		Detector: detector,
		Flow:     flow,
		Frames:   *frames,
	}

	var p *pipeline.Pipeline
	runID := resumeID
	if resumeID == "" {
		if p, err = pipeline.New(cfg); err != nil {
			return err
		}
		if runID, err = db.CreateRun(*videoName); err != nil {
			return err
		}
	} else {
		snap, err := db.LoadSnapshot(resumeID)
		if err != nil {
			return err
		}
		if p, err = pipeline.Resume(cfg, snap); err != nil {
			return err
		}
	}

	log.Printf("run %s: processing %s", runID, *detections)
	res, err := p.Run(ctx)
	if err != nil {
		// An interrupted run still persists its progress for resume.
		if saveErr := db.SaveResults(runID, partialResults(p)); saveErr != nil {
			log.Printf("failed to save partial run: %v", saveErr)
		}
		return err
	}

	if err := db.SaveResults(runID, res); err != nil {
		return err
	}
	log.Printf("run %s: %d tracks, %d frames, quality %+v",
		runID, len(res.Tracks), res.LastFrame+1, res.Quality)

	if *heatmapDir != "" {
		if err := writeHeatmaps(*heatmapDir, res); err != nil {
			return err
		}
	}
	return nil
}

// partialResults wraps a cancelled pipeline's state so a resume can pick
// up where it stopped. Derived outputs are recomputed on the full run.
func partialResults(p *pipeline.Pipeline) *pipeline.Results {
	snap := p.Snapshot()
	res := &pipeline.Results{
		Offsets:   snap.Offsets,
		LastFrame: snap.Tracks.LastFrame,
	}
	res.Quality.Diagnostics = snap.Tracks.Diagnostics
	m := track.RestoreManager(track.ManagerConfig{}, snap.Tracks)
	res.Tracks = m.Tracks()
	return res
}

func writeHeatmaps(dir string, res *pipeline.Results) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create heatmap dir: %w", err)
	}

	teamGrids := map[int]*heatmap.Grid{}
	for _, t := range res.Tracks {
		if t.ID == track.BallTrackID || len(t.Metric) == 0 {
			continue
		}
		g := heatmap.NewDefaultGrid()
		g.AddTrajectory(t.Metric)
		if t.TeamID != nil {
			tg, ok := teamGrids[*t.TeamID]
			if !ok {
				tg = heatmap.NewDefaultGrid()
				teamGrids[*t.TeamID] = tg
			}
			tg.AddTrajectory(t.Metric)
		}

		name := fmt.Sprintf("track-%d", t.ID)
		if err := writeHeatmap(dir, name, g); err != nil {
			return err
		}
	}
	for teamID, g := range teamGrids {
		if err := writeHeatmap(dir, fmt.Sprintf("team-%d", teamID), g); err != nil {
			return err
		}
	}
	return nil
}

func writeHeatmap(dir, name string, g *heatmap.Grid) error {
	if err := heatmap.RenderPNG(g, name, filepath.Join(dir, name+".png")); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, name+".html"))
	if err != nil {
		return fmt.Errorf("create heatmap file: %w", err)
	}
	err = heatmap.RenderHTML(g, name, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return err
}

func runServe(ctx context.Context) error {
	db, err := store.Open(*dbFile)
	if err != nil {
		return err
	}
	defer db.Close()

	return api.NewServer(*listen, db).Start(ctx)
}
