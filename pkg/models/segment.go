package models

import (
	"fmt"

	"github.com/google/uuid"
)

// Segment is one ordered timeline entry: a source clip plus the retiming
// configuration that should be applied to it. The Source bytes are owned by
// the segment until a pipeline pass consumes them.
type Segment struct {
	ID             string          `json:"id"`
	Source         []byte          `json:"-"`
	TargetDuration float64         `json:"target_duration"`
	Easing         EasingSelection `json:"easing"`
	LoopCount      int             `json:"loop_count"`
}

// EasingSelection names a preset curve or carries custom Bezier control
// points. When both are set the Bezier wins.
type EasingSelection struct {
	Preset string       `json:"preset,omitempty"`
	Bezier *BezierTuple `json:"bezier,omitempty"`
}

// BezierTuple holds the four control points of a cubic Bezier easing,
// conventionally with X1 and X2 inside [0,1].
type BezierTuple struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// NewSegment creates a segment with a fresh identity and a loop count of 1.
func NewSegment(source []byte, targetDuration float64) Segment {
	return Segment{
		ID:             uuid.New().String(),
		Source:         source,
		TargetDuration: targetDuration,
		LoopCount:      1,
	}
}

// Validate checks the segment invariants before it enters a pipeline pass.
func (s Segment) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("segment has no identity")
	}
	if len(s.Source) == 0 {
		return fmt.Errorf("segment %s has no source media", s.ID)
	}
	if s.TargetDuration <= 0 {
		return fmt.Errorf("segment %s target duration must be > 0, got %v", s.ID, s.TargetDuration)
	}
	if s.LoopCount < 1 {
		return fmt.Errorf("segment %s loop count must be >= 1, got %d", s.ID, s.LoopCount)
	}
	if b := s.Easing.Bezier; b != nil {
		if b.X1 < 0 || b.X1 > 1 || b.X2 < 0 || b.X2 > 1 {
			return fmt.Errorf("segment %s bezier x controls must be within [0,1]", s.ID)
		}
	}
	return nil
}

// String returns a stable serialized form of the easing selection, used for
// cache keying.
func (e EasingSelection) String() string {
	if e.Bezier != nil {
		return fmt.Sprintf("bezier(%g,%g,%g,%g)", e.Bezier.X1, e.Bezier.Y1, e.Bezier.X2, e.Bezier.Y2)
	}
	if e.Preset != "" {
		return e.Preset
	}
	return "auto"
}

// IsExplicit reports whether the caller picked a curve, as opposed to leaving
// the choice to the adaptive selector.
func (e EasingSelection) IsExplicit() bool {
	return e.Preset != "" || e.Bezier != nil
}
