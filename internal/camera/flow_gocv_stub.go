//go:build !gocv
// +build !gocv

package camera

import "fmt"

// VideoFlowSource is a stub when the gocv video frontend is disabled.
// Build with -tags=gocv to extract optical flow from video files directly;
// without it, use a precomputed flow file (JSONLFlowSource).
type VideoFlowSource struct{}

// OpenVideoFlowSource is a stub implementation when gocv support is disabled.
func OpenVideoFlowSource(path string) (*VideoFlowSource, error) {
	return nil, fmt.Errorf("video flow support not enabled: rebuild with -tags=gocv to read %s", path)
}

// Next is unreachable in the stub; it satisfies FlowSource.
func (s *VideoFlowSource) Next() ([]FlowVector, error) {
	return nil, fmt.Errorf("video flow support not enabled: rebuild with -tags=gocv")
}

// Close satisfies FlowSource.
func (s *VideoFlowSource) Close() error { return nil }
