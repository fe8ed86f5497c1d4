package camera

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fieldsight/pitchtrack/internal/monitoring"
)

// FlowSource yields the flow vectors for consecutive frame pairs.
// Next returns the vectors between frame n-1 and frame n for successive
// calls starting at n=1, and io.EOF once the video is exhausted. A frame
// pair with no trackable features returns an empty slice, not an error.
type FlowSource interface {
	Next() ([]FlowVector, error)
	Close() error
}

// flowLine is the wire format of precomputed flow files: one JSON object
// per feature per frame pair.
type flowLine struct {
	Frame int     `json:"frame"` // index of the later frame in the pair
	X0    float64 `json:"x0"`
	Y0    float64 `json:"y0"`
	DX    float64 `json:"dx"`
	DY    float64 `json:"dy"`
}

// JSONLFlowSource reads precomputed optical-flow features from a JSONL
// stream, grouped by frame. It lets the pipeline run without the gocv
// video frontend, e.g. against features exported by an offline pass.
type JSONLFlowSource struct {
	byFrame   map[int][]FlowVector
	maxFrame  int
	nextFrame int

	MalformedLines int
}

// NewJSONLFlowSource parses the stream up front and serves frame pairs in
// order. Malformed lines are counted and skipped.
func NewJSONLFlowSource(r io.Reader) (*JSONLFlowSource, error) {
	s := &JSONLFlowSource{byFrame: make(map[int][]FlowVector), nextFrame: 1}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var fl flowLine
		if err := json.Unmarshal(line, &fl); err != nil {
			s.MalformedLines++
			monitoring.Logf("camera: skipping malformed flow line: %v", err)
			continue
		}
		if fl.Frame < 1 {
			s.MalformedLines++
			continue
		}
		s.byFrame[fl.Frame] = append(s.byFrame[fl.Frame], FlowVector{X0: fl.X0, Y0: fl.Y0, DX: fl.DX, DY: fl.DY})
		if fl.Frame > s.maxFrame {
			s.maxFrame = fl.Frame
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read flow stream: %w", err)
	}
	return s, nil
}

// OpenJSONLFlowSource opens and parses a precomputed flow file.
func OpenJSONLFlowSource(path string) (*JSONLFlowSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open flow file %s: %w", path, err)
	}
	defer f.Close()

	s, err := NewJSONLFlowSource(f)
	if err != nil {
		return nil, fmt.Errorf("parse flow file %s: %w", path, err)
	}
	return s, nil
}

// Next implements FlowSource.
func (s *JSONLFlowSource) Next() ([]FlowVector, error) {
	if s.nextFrame > s.maxFrame {
		return nil, io.EOF
	}
	vecs := s.byFrame[s.nextFrame]
	s.nextFrame++
	return vecs, nil
}

// Close implements FlowSource.
func (s *JSONLFlowSource) Close() error { return nil }
