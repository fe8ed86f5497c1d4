// Package detect defines the boundary to the object detection model.
//
// The detector itself (a YOLO-style model fine-tuned on match footage) runs
// out of process; this package models its per-frame output and provides
// adapters that feed detections into the tracking pipeline. The core never
// invokes the model directly; it depends only on the Detector interface.
package detect

import "github.com/fieldsight/pitchtrack/internal/geom"

// Class identifies the kind of object a detection box contains.
type Class string

const (
	ClassPlayer     Class = "player"
	ClassGoalkeeper Class = "goalkeeper"
	ClassReferee    Class = "referee"
	ClassBall       Class = "ball"
)

// Valid reports whether c is one of the known detection classes.
func (c Class) Valid() bool {
	switch c {
	case ClassPlayer, ClassGoalkeeper, ClassReferee, ClassBall:
		return true
	}
	return false
}

// Detection is one detected object in one frame. Detections are ephemeral:
// produced fresh each frame and immutable once created.
type Detection struct {
	Class      Class    `json:"class"`
	Box        geom.Box `json:"box"`
	Confidence float64  `json:"confidence"`

	// TrackID is set when the upstream detector already carries an
	// identity (e.g. an embedded re-identification stage). Nil when the
	// track manager must establish correspondence itself.
	TrackID *int `json:"track_id,omitempty"`
}

// Detector produces the detections for a single frame. Implementations
// wrap whatever model backend is in use; the pipeline calls Detect once
// per frame, in frame order.
type Detector interface {
	// Detect returns the detections for the given frame index. A frame
	// with no detections returns an empty slice and nil error; an error
	// means the source itself failed for this frame (the pipeline records
	// a gap and continues).
	Detect(frameIndex int) ([]Detection, error)
}
