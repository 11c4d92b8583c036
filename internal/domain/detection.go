package domain

import (
	"time"

	"github.com/google/uuid"
)

// Detection is the audit record of one classification request. It never
// holds image bytes.
type Detection struct {
	ID           uuid.UUID     `json:"id"`
	CallID       string        `json:"call_id,omitempty"`
	Source       string        `json:"source"`
	FaceDetected bool          `json:"face_detected"`
	IsDeepfake   *bool         `json:"is_deepfake"`
	Confidence   *float64      `json:"confidence"`
	FacesCount   int           `json:"faces_count"`
	Locator      string        `json:"locator"`
	Classifier   string        `json:"classifier"`
	LatencyMs    int64         `json:"latency_ms"`
	ClientTime   string        `json:"client_timestamp,omitempty"`
	Faces        []FaceVerdict `json:"faces"`
	CreatedAt    time.Time     `json:"created_at"`
}

// FaceVerdict is the per-face part of a detection response.
type FaceVerdict struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Label      string  `json:"label"`
	IsDeepfake bool    `json:"is_deepfake"`
	Confidence float64 `json:"confidence"`
	Primary    bool    `json:"primary"`
}

// DetectionStats summarizes stored detections for one call.
type DetectionStats struct {
	CallID    string `json:"call_id"`
	Total     int    `json:"total"`
	Deepfakes int    `json:"deepfakes"`
	NoFace    int    `json:"no_face"`
}
