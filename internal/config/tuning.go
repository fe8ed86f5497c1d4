package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds the tunable parameters of the tracking pipeline.
// All fields are optional pointers so partial JSON configs are safe:
// fields omitted from the file fall back to the Get* defaults.
type TuningConfig struct {
	// Field calibration: four pixel-space vertices of the visible pitch
	// segment and the matching real-world rectangle corners in metres.
	// Both quads are ordered consistently (same corner order).
	PixelQuad *[4][2]float64 `json:"pixel_quad,omitempty"`
	WorldQuad *[4][2]float64 `json:"world_quad,omitempty"`

	// Track association params
	MaxAssociationDistancePx *float64 `json:"max_association_distance_px,omitempty"`
	AssociationTieEpsilonPx  *float64 `json:"association_tie_epsilon_px,omitempty"`
	MaxBallGapFrames         *int     `json:"max_ball_gap_frames,omitempty"`

	// Camera motion params. The edge mask widths define the static border
	// bands (in pixels) where background features are sampled.
	MaskLeftPx          *int     `json:"mask_left_px,omitempty"`
	MaskRightPx         *int     `json:"mask_right_px,omitempty"`
	MaskTopPx           *int     `json:"mask_top_px,omitempty"`
	MaskBottomPx        *int     `json:"mask_bottom_px,omitempty"`
	MinFlowFeatures     *int     `json:"min_flow_features,omitempty"`
	MinCameraMovementPx *float64 `json:"min_camera_movement_px,omitempty"`
	FrameWidthPx        *int     `json:"frame_width_px,omitempty"`
	FrameHeightPx       *int     `json:"frame_height_px,omitempty"`

	// Possession params
	PossessionThresholdPx *float64 `json:"possession_threshold_px,omitempty"`

	// Kinematics params
	KinematicsWindowFrames *int     `json:"kinematics_window_frames,omitempty"`
	FrameRate              *float64 `json:"frame_rate,omitempty"`
	MaxPlausibleSpeedKmh   *float64 `json:"max_plausible_speed_kmh,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from a defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and stay under the max file size. Fields omitted
// from the JSON retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath, searching the current directory and common parent
// directories. Panics if the file cannot be loaded; intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are structurally valid.
// Calibration geometry that needs the homography solve (collinear points,
// non-invertible transforms) is validated when the projector is
// constructed; this catches what is detectable without solving.
func (c *TuningConfig) Validate() error {
	if (c.PixelQuad == nil) != (c.WorldQuad == nil) {
		return fmt.Errorf("pixel_quad and world_quad must be set together")
	}
	if c.PixelQuad != nil {
		for i, v := range *c.PixelQuad {
			for j := i + 1; j < 4; j++ {
				w := (*c.PixelQuad)[j]
				if v[0] == w[0] && v[1] == w[1] {
					return fmt.Errorf("pixel_quad has duplicate vertices %d and %d", i, j)
				}
			}
		}
	}

	if c.MaxAssociationDistancePx != nil && *c.MaxAssociationDistancePx <= 0 {
		return fmt.Errorf("max_association_distance_px must be positive, got %f", *c.MaxAssociationDistancePx)
	}
	if c.MaxBallGapFrames != nil && *c.MaxBallGapFrames < 0 {
		return fmt.Errorf("max_ball_gap_frames must be non-negative, got %d", *c.MaxBallGapFrames)
	}
	if c.MinFlowFeatures != nil && *c.MinFlowFeatures < 1 {
		return fmt.Errorf("min_flow_features must be at least 1, got %d", *c.MinFlowFeatures)
	}
	if c.PossessionThresholdPx != nil && *c.PossessionThresholdPx <= 0 {
		return fmt.Errorf("possession_threshold_px must be positive, got %f", *c.PossessionThresholdPx)
	}
	if c.KinematicsWindowFrames != nil && *c.KinematicsWindowFrames < 2 {
		return fmt.Errorf("kinematics_window_frames must be at least 2, got %d", *c.KinematicsWindowFrames)
	}
	if c.FrameRate != nil && *c.FrameRate <= 0 {
		return fmt.Errorf("frame_rate must be positive, got %f", *c.FrameRate)
	}

	return nil
}

// GetPixelQuad returns the pixel-space calibration quad or the default.
// The default matches a typical broadcast camera framing the near half
// of the pitch.
func (c *TuningConfig) GetPixelQuad() [4][2]float64 {
	if c.PixelQuad == nil {
		return [4][2]float64{{110, 1035}, {265, 275}, {910, 260}, {1700, 915}}
	}
	return *c.PixelQuad
}

// GetWorldQuad returns the real-world calibration rectangle in metres.
// The default covers the 68m pitch width and a 23.32m slice of its
// length, matching the span visible in the default framing.
func (c *TuningConfig) GetWorldQuad() [4][2]float64 {
	if c.WorldQuad == nil {
		return [4][2]float64{{0, 68}, {0, 0}, {23.32, 0}, {23.32, 68}}
	}
	return *c.WorldQuad
}

// GetMaxAssociationDistancePx returns the association gate or the default.
func (c *TuningConfig) GetMaxAssociationDistancePx() float64 {
	if c.MaxAssociationDistancePx == nil {
		return 100.0
	}
	return *c.MaxAssociationDistancePx
}

// GetAssociationTieEpsilonPx returns the distance within which two
// candidate detections count as equidistant (tie broken by confidence).
func (c *TuningConfig) GetAssociationTieEpsilonPx() float64 {
	if c.AssociationTieEpsilonPx == nil {
		return 0.5
	}
	return *c.AssociationTieEpsilonPx
}

// GetMaxBallGapFrames returns the longest ball detection gap that is
// filled by interpolation. Longer gaps stay true gaps.
func (c *TuningConfig) GetMaxBallGapFrames() int {
	if c.MaxBallGapFrames == nil {
		return 10
	}
	return *c.MaxBallGapFrames
}

// GetMaskLeftPx returns the left static-edge band width or the default.
func (c *TuningConfig) GetMaskLeftPx() int {
	if c.MaskLeftPx == nil {
		return 20
	}
	return *c.MaskLeftPx
}

// GetMaskRightPx returns the right static-edge band width or the default.
func (c *TuningConfig) GetMaskRightPx() int {
	if c.MaskRightPx == nil {
		return 150
	}
	return *c.MaskRightPx
}

// GetMaskTopPx returns the top static-edge band height or the default.
func (c *TuningConfig) GetMaskTopPx() int {
	if c.MaskTopPx == nil {
		return 0
	}
	return *c.MaskTopPx
}

// GetMaskBottomPx returns the bottom static-edge band height or the default.
func (c *TuningConfig) GetMaskBottomPx() int {
	if c.MaskBottomPx == nil {
		return 0
	}
	return *c.MaskBottomPx
}

// GetMinFlowFeatures returns the minimum number of masked flow vectors
// needed for a motion estimate; below this the estimator falls back to
// zero displacement for the frame.
func (c *TuningConfig) GetMinFlowFeatures() int {
	if c.MinFlowFeatures == nil {
		return 8
	}
	return *c.MinFlowFeatures
}

// GetMinCameraMovementPx returns the displacement deadband: aggregate
// camera motion below this magnitude is treated as a still camera.
func (c *TuningConfig) GetMinCameraMovementPx() float64 {
	if c.MinCameraMovementPx == nil {
		return 5.0
	}
	return *c.MinCameraMovementPx
}

// GetFrameWidthPx returns the expected frame width or the default.
func (c *TuningConfig) GetFrameWidthPx() int {
	if c.FrameWidthPx == nil {
		return 1920
	}
	return *c.FrameWidthPx
}

// GetFrameHeightPx returns the expected frame height or the default.
func (c *TuningConfig) GetFrameHeightPx() int {
	if c.FrameHeightPx == nil {
		return 1080
	}
	return *c.FrameHeightPx
}

// GetPossessionThresholdPx returns the ball possession distance threshold.
func (c *TuningConfig) GetPossessionThresholdPx() float64 {
	if c.PossessionThresholdPx == nil {
		return 70.0
	}
	return *c.PossessionThresholdPx
}

// GetKinematicsWindowFrames returns the speed window length in frames.
func (c *TuningConfig) GetKinematicsWindowFrames() int {
	if c.KinematicsWindowFrames == nil {
		return 5
	}
	return *c.KinematicsWindowFrames
}

// GetFrameRate returns the video frame rate in frames per second.
func (c *TuningConfig) GetFrameRate() float64 {
	if c.FrameRate == nil {
		return 24.0
	}
	return *c.FrameRate
}

// GetMaxPlausibleSpeedKmh returns the sanity ceiling for derived speeds.
// 44 km/h is comfortably above the fastest recorded sprint; anything
// faster indicates a projection or tracking error.
func (c *TuningConfig) GetMaxPlausibleSpeedKmh() float64 {
	if c.MaxPlausibleSpeedKmh == nil {
		return 44.0
	}
	return *c.MaxPlausibleSpeedKmh
}
