package models

// VideoCurveMetadata is a read-only snapshot of a segment's source media,
// computed once per full-pipeline pass and discarded afterwards.
type VideoCurveMetadata struct {
	Duration  float64 `json:"duration"`   // seconds
	Bitrate   int64   `json:"bitrate"`    // bits per second
	FrameRate float64 `json:"frame_rate"` // frames per second
}
