package models

// ProgressUpdate is one event on the finalize progress stream. Percent is
// monotonic within a stage and spans 0-100 across the whole call.
type ProgressUpdate struct {
	Stage         string  `json:"stage"`
	Message       string  `json:"message"`
	Percent       float64 `json:"percent"`
	SegmentIndex  int     `json:"segment_index,omitempty"`
	TotalSegments int     `json:"total_segments,omitempty"`
}

// ProgressFunc receives progress updates. Implementations must be fast; the
// pipeline invokes it inline from a single goroutine. A nil ProgressFunc is
// always allowed.
type ProgressFunc func(ProgressUpdate)

// Report invokes the callback if it is non-nil.
func (f ProgressFunc) Report(u ProgressUpdate) {
	if f != nil {
		f(u)
	}
}
