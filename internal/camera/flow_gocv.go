//go:build gocv
// +build gocv

package camera

import (
	"fmt"
	"io"

	"gocv.io/x/gocv"
)

// videoFlowParams are the sparse feature tracking parameters. They follow
// the usual Shi-Tomasi + pyramidal Lucas-Kanade setup for broadcast
// footage: enough corners to survive the edge-band mask, a quality level
// high enough to skip grass texture.
const (
	flowMaxCorners   = 100
	flowQualityLevel = 0.3
	flowMinDistance  = 3
)

// VideoFlowSource computes sparse optical flow between consecutive frames
// of a video file using gocv (Shi-Tomasi corners tracked with pyramidal
// Lucas-Kanade). Only available when building with the 'gocv' tag.
type VideoFlowSource struct {
	cap      *gocv.VideoCapture
	prevGray gocv.Mat
	done     bool
}

// OpenVideoFlowSource opens a video file for flow extraction.
func OpenVideoFlowSource(path string) (*VideoFlowSource, error) {
	cap, err := gocv.OpenVideoCapture(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}

	s := &VideoFlowSource{cap: cap, prevGray: gocv.NewMat()}
	frame := gocv.NewMat()
	defer frame.Close()

	if ok := cap.Read(&frame); !ok || frame.Empty() {
		cap.Close()
		s.prevGray.Close()
		return nil, fmt.Errorf("video %s has no frames", path)
	}
	gocv.CvtColor(frame, &s.prevGray, gocv.ColorBGRToGray)
	return s, nil
}

// Next implements FlowSource: it reads the next frame, tracks features
// from the previous frame into it, and returns the per-feature
// displacements. io.EOF signals the end of the video.
func (s *VideoFlowSource) Next() ([]FlowVector, error) {
	if s.done {
		return nil, io.EOF
	}

	frame := gocv.NewMat()
	defer frame.Close()
	if ok := s.cap.Read(&frame); !ok || frame.Empty() {
		s.done = true
		return nil, io.EOF
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)

	corners := gocv.NewMat()
	defer corners.Close()
	gocv.GoodFeaturesToTrack(s.prevGray, &corners, flowMaxCorners, flowQualityLevel, flowMinDistance)
	if corners.Empty() {
		// Nothing trackable (whip-pan, motion blur): the estimator
		// handles the empty set with its zero-displacement fallback.
		gray.CopyTo(&s.prevGray)
		return nil, nil
	}

	next := gocv.NewMat()
	status := gocv.NewMat()
	errMat := gocv.NewMat()
	defer next.Close()
	defer status.Close()
	defer errMat.Close()
	gocv.CalcOpticalFlowPyrLK(s.prevGray, gray, corners, next, &status, &errMat)

	var vectors []FlowVector
	for i := 0; i < corners.Rows(); i++ {
		if i >= status.Rows() || status.GetUCharAt(i, 0) == 0 {
			continue
		}
		p0 := corners.GetVecfAt(i, 0)
		p1 := next.GetVecfAt(i, 0)
		vectors = append(vectors, FlowVector{
			X0: float64(p0[0]),
			Y0: float64(p0[1]),
			DX: float64(p1[0] - p0[0]),
			DY: float64(p1[1] - p0[1]),
		})
	}

	gray.CopyTo(&s.prevGray)
	return vectors, nil
}

// Close releases the capture and intermediate mats.
func (s *VideoFlowSource) Close() error {
	s.prevGray.Close()
	return s.cap.Close()
}
