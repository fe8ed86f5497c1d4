package detect

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fieldsight/pitchtrack/internal/monitoring"
)

// detectionLine is the wire format emitted by the external detector process:
// one JSON object per line, one line per detection.
type detectionLine struct {
	Frame      int     `json:"frame"`
	Class      Class   `json:"class"`
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Confidence float64 `json:"confidence"`
	TrackID    *int    `json:"track_id,omitempty"`
}

// JSONLDetector serves per-frame detections parsed from a JSONL stream
// written by the external model runner. Malformed lines and degenerate
// boxes are skipped and counted rather than failing the run.
type JSONLDetector struct {
	byFrame map[int][]Detection

	// Diagnostic counters, fixed after ReadFrom.
	MalformedLines int
	DroppedBoxes   int
	UnknownClasses int
}

// NewJSONLDetector parses the full stream up front and indexes detections
// by frame. Detection files for a 90 minute match are tens of megabytes,
// small enough to hold resident.
func NewJSONLDetector(r io.Reader) (*JSONLDetector, error) {
	d := &JSONLDetector{byFrame: make(map[int][]Detection)}
	if err := d.readFrom(r); err != nil {
		return nil, err
	}
	return d, nil
}

// OpenJSONLDetector opens and parses a detection file.
func OpenJSONLDetector(path string) (*JSONLDetector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open detections %s: %w", path, err)
	}
	defer f.Close()

	d, err := NewJSONLDetector(f)
	if err != nil {
		return nil, fmt.Errorf("parse detections %s: %w", path, err)
	}
	return d, nil
}

func (d *JSONLDetector) readFrom(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var dl detectionLine
		if err := json.Unmarshal(line, &dl); err != nil {
			d.MalformedLines++
			monitoring.Logf("detect: skipping malformed line: %v", err)
			continue
		}

		det, ok := dl.toDetection()
		switch {
		case ok:
			d.byFrame[dl.Frame] = append(d.byFrame[dl.Frame], det)
		case !dl.Class.Valid():
			d.UnknownClasses++
		default:
			d.DroppedBoxes++
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read detection stream: %w", err)
	}
	return nil
}

func (dl detectionLine) toDetection() (Detection, bool) {
	det := Detection{
		Class:      dl.Class,
		Confidence: dl.Confidence,
		TrackID:    dl.TrackID,
	}
	det.Box.X1, det.Box.Y1, det.Box.X2, det.Box.Y2 = dl.X1, dl.Y1, dl.X2, dl.Y2

	if !dl.Class.Valid() || !det.Box.Valid() {
		return Detection{}, false
	}
	return det, true
}

// Detect implements Detector. Frames with no recorded detections return an
// empty slice: an empty frame is data, not an error.
func (d *JSONLDetector) Detect(frameIndex int) ([]Detection, error) {
	return d.byFrame[frameIndex], nil
}

// MaxFrame returns the highest frame index present in the stream, or -1
// for an empty stream.
func (d *JSONLDetector) MaxFrame() int {
	max := -1
	for f := range d.byFrame {
		if f > max {
			max = f
		}
	}
	return max
}
