package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	// All pointers nil: getters must supply defaults.
	if got := cfg.GetMaxAssociationDistancePx(); got != 100.0 {
		t.Errorf("GetMaxAssociationDistancePx() = %f, want 100.0", got)
	}
	if got := cfg.GetMaxBallGapFrames(); got != 10 {
		t.Errorf("GetMaxBallGapFrames() = %d, want 10", got)
	}
	if got := cfg.GetKinematicsWindowFrames(); got != 5 {
		t.Errorf("GetKinematicsWindowFrames() = %d, want 5", got)
	}
	if got := cfg.GetFrameRate(); got != 24.0 {
		t.Errorf("GetFrameRate() = %f, want 24.0", got)
	}
	if got := cfg.GetPossessionThresholdPx(); got != 70.0 {
		t.Errorf("GetPossessionThresholdPx() = %f, want 70.0", got)
	}
	if got := cfg.GetMinFlowFeatures(); got != 8 {
		t.Errorf("GetMinFlowFeatures() = %d, want 8", got)
	}
	if got := cfg.GetMaskLeftPx(); got != 20 {
		t.Errorf("GetMaskLeftPx() = %d, want 20", got)
	}
	pq := cfg.GetPixelQuad()
	if pq[0] != [2]float64{110, 1035} {
		t.Errorf("GetPixelQuad()[0] = %v, want [110 1035]", pq[0])
	}
	wq := cfg.GetWorldQuad()
	if wq[0] != [2]float64{0, 68} {
		t.Errorf("GetWorldQuad()[0] = %v, want [0 68]", wq[0])
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("partial config keeps defaults", func(t *testing.T) {
		path := filepath.Join(tmpDir, "partial.json")
		content := `{"frame_rate": 30.0, "max_ball_gap_frames": 6}`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}

		cfg, err := LoadTuningConfig(path)
		if err != nil {
			t.Fatalf("LoadTuningConfig failed: %v", err)
		}
		if cfg.GetFrameRate() != 30.0 {
			t.Errorf("GetFrameRate() = %f, want 30.0", cfg.GetFrameRate())
		}
		if cfg.GetMaxBallGapFrames() != 6 {
			t.Errorf("GetMaxBallGapFrames() = %d, want 6", cfg.GetMaxBallGapFrames())
		}
		// Untouched field falls back to default.
		if cfg.GetKinematicsWindowFrames() != 5 {
			t.Errorf("GetKinematicsWindowFrames() = %d, want 5", cfg.GetKinematicsWindowFrames())
		}
	})

	t.Run("rejects non-json extension", func(t *testing.T) {
		if _, err := LoadTuningConfig(filepath.Join(tmpDir, "tuning.yaml")); err == nil {
			t.Error("expected error for non-json extension")
		}
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		path := filepath.Join(tmpDir, "broken.json")
		if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadTuningConfig(path); err == nil {
			t.Error("expected error for malformed JSON")
		}
	})

	t.Run("rejects missing file", func(t *testing.T) {
		if _, err := LoadTuningConfig(filepath.Join(tmpDir, "missing.json")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*TuningConfig)
		wantErr bool
	}{
		{"empty config valid", func(c *TuningConfig) {}, false},
		{"pixel quad without world quad", func(c *TuningConfig) {
			c.PixelQuad = &[4][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
		}, true},
		{"duplicate pixel vertices", func(c *TuningConfig) {
			c.PixelQuad = &[4][2]float64{{0, 0}, {0, 0}, {1, 1}, {0, 1}}
			c.WorldQuad = &[4][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
		}, true},
		{"negative association gate", func(c *TuningConfig) {
			v := -5.0
			c.MaxAssociationDistancePx = &v
		}, true},
		{"window of one frame", func(c *TuningConfig) {
			v := 1
			c.KinematicsWindowFrames = &v
		}, true},
		{"zero frame rate", func(c *TuningConfig) {
			v := 0.0
			c.FrameRate = &v
		}, true},
		{"negative ball gap", func(c *TuningConfig) {
			v := -1
			c.MaxBallGapFrames = &v
		}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := EmptyTuningConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}
