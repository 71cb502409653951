// Package resampler maps output frames onto source frames according to an
// easing curve, and drives decode/encode around that mapping. Two strategies
// exist: direct timestamp mapping for engines with random-access decode, and
// monotonic index advance for engines that only expose a forward cursor.
package resampler

import (
	"errors"
	"fmt"
	"math"

	"github.com/shrimbly/easy-peasy-ease/internal/easing"
)

// ErrNoDecodableFrames means the source produced zero frames; the segment
// is aborted.
var ErrNoDecodableFrames = errors.New("no decodable frames in source")

// Entry is one output frame slot of a plan.
type Entry struct {
	// Output is the presentation timestamp of the output frame, seconds.
	Output float64

	// Source is the mapped source timestamp, seconds, clamped inside the
	// input duration.
	Source float64

	// Progress is the eased source progress in [0,1], kept so the
	// index-driven strategy can target frame counts instead of timestamps.
	Progress float64
}

// Plan is the precomputed output-to-source mapping for one segment.
type Plan struct {
	Entries   []Entry
	FrameRate float64
}

// Options bound a plan computation.
type Options struct {
	InputDuration  float64
	OutputDuration float64
	FrameRate      float64

	// Epsilon keeps mapped source timestamps strictly short of the input
	// duration, where decoders routinely have nothing left to serve.
	Epsilon float64
}

// Build computes the plan. Output timestamps are derived from the integer
// frame index, never by repeated addition, so spacing is exactly
// 1/FrameRate with zero drift accumulation. Source timestamps follow the
// easing curve and are monotonic only if the curve is.
func Build(ease easing.Func, opts Options) (*Plan, error) {
	if opts.OutputDuration <= 0 {
		return nil, fmt.Errorf("output duration must be > 0, got %v", opts.OutputDuration)
	}
	if opts.FrameRate <= 0 {
		return nil, fmt.Errorf("output frame rate must be > 0, got %v", opts.FrameRate)
	}
	if opts.InputDuration <= 0 {
		return nil, fmt.Errorf("input duration must be > 0, got %v", opts.InputDuration)
	}
	eps := opts.Epsilon
	if eps <= 0 {
		eps = 0.001
	}

	total := int(math.Round(opts.OutputDuration * opts.FrameRate))
	if total < 1 {
		total = 1
	}

	entries := make([]Entry, total)
	for i := 0; i < total; i++ {
		progress := 0.0
		if total > 1 {
			progress = float64(i) / float64(total-1)
		}
		eased := ease(progress)

		src := eased * opts.InputDuration
		if src < 0 {
			src = 0
		}
		if max := opts.InputDuration - eps; src > max {
			src = max
		}

		entries[i] = Entry{
			Output:   float64(i) / opts.FrameRate,
			Source:   src,
			Progress: eased,
		}
	}

	return &Plan{Entries: entries, FrameRate: opts.FrameRate}, nil
}

// Total returns the number of output frames.
func (p *Plan) Total() int { return len(p.Entries) }

// FrameDuration returns the output frame interval in seconds.
func (p *Plan) FrameDuration() float64 { return 1 / p.FrameRate }

// SourceTimestamps returns the mapped source timestamps in output order.
func (p *Plan) SourceTimestamps() []float64 {
	out := make([]float64, len(p.Entries))
	for i, e := range p.Entries {
		out[i] = e.Source
	}
	return out
}

// Stats summarize one resample run.
type Stats struct {
	Emitted int
	Skipped int
}
