package resampler

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/shrimbly/easy-peasy-ease/internal/logging"
	"github.com/shrimbly/easy-peasy-ease/internal/media"
	"github.com/shrimbly/easy-peasy-ease/internal/metrics"
)

// CountFrames performs the counting pass of the index-driven strategy: a
// full sequential drain to learn the exact decodable frame total, since
// container metadata duration and actual decodable count routinely diverge.
// The drain invalidates the handle's decode state; callers open a fresh
// handle for the emit pass.
func CountFrames(ctx context.Context, c media.Container, log *logging.Logger) (int, error) {
	stream, err := c.DecodeFramesSequential(ctx, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("sequential decode failed: %w", err)
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			log.LogCleanupError("counting stream", cerr)
		}
	}()

	count := 0
	for {
		frame, err := stream.Next(ctx)
		if errors.Is(err, media.ErrEndOfStream) {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("counting pass failed after %d frames: %w", count, err)
		}
		if frame != nil {
			frame.Release()
			count++
		}
	}
}

// ResampleSequential runs the index-driven monotonic-advance strategy
// against a forward-only cursor. For each output frame the eased progress
// picks a target source index; the cursor advances forward (never backward)
// until it reaches that index, and the last-fetched frame is held and
// re-emitted for repeated indices.
//
// Because the cursor cannot rewind, a non-monotonic easing curve degrades to
// holding the most recently advanced frame instead of producing out-of-order
// output. That is an accepted approximation of this strategy, not a bug.
//
// A final duplicate padding frame is always emitted one interval past the
// last real output frame before the track closes, because some encode
// backends truncate the last sample without it.
func ResampleSequential(
	ctx context.Context,
	c media.Container,
	frameCount int,
	plan *Plan,
	sink media.Sink,
	log *logging.Logger,
	progressEvery int,
	progress ProgressFunc,
) (Stats, error) {
	var stats Stats
	if frameCount <= 0 {
		return stats, ErrNoDecodableFrames
	}
	if progressEvery <= 0 {
		progressEvery = defaultProgressEvery
	}

	stream, err := c.DecodeFramesSequential(ctx, 0, 0)
	if err != nil {
		return stats, fmt.Errorf("sequential decode failed: %w", err)
	}

	var held media.Frame
	cursor := -1
	drained := false

	// The held frame and the stream are owned here; both are released on
	// every exit path.
	defer func() {
		if held != nil {
			held.Release()
		}
		if cerr := stream.Close(); cerr != nil {
			log.LogCleanupError("frame stream", cerr)
		}
	}()

	total := plan.Total()
	dur := plan.FrameDuration()
	for i, entry := range plan.Entries {
		target := int(math.Round(entry.Progress * float64(frameCount-1)))
		if target < 0 {
			target = 0
		}
		if target > frameCount-1 {
			target = frameCount - 1
		}

		// Advance forward only. Once the stream dries up, keep holding the
		// last real frame for the remaining slots.
		for cursor < target && !drained {
			frame, err := stream.Next(ctx)
			if errors.Is(err, media.ErrEndOfStream) {
				drained = true
				break
			}
			if err != nil {
				return stats, fmt.Errorf("decode failed advancing to source frame %d: %w", target, err)
			}
			if frame == nil {
				continue
			}
			if held != nil {
				held.Release()
			}
			held = frame
			cursor++
		}

		if held == nil {
			stats.Skipped++
			metrics.FramesSkippedTotal.Inc()
			log.Debugf("skipping output frame %d, no source frame reached", i)
			continue
		}

		if err := emitFrame(ctx, sink, held.Clone(), entry.Output, dur); err != nil {
			return stats, fmt.Errorf("encode failed at output frame %d: %w", i, err)
		}
		stats.Emitted++
		metrics.FramesEmittedTotal.Inc()

		if progress != nil && (stats.Emitted%progressEvery == 0 || stats.Emitted == total) {
			progress(stats.Emitted, total)
		}
	}

	if stats.Emitted == 0 {
		return stats, ErrNoDecodableFrames
	}

	// Trailing padding frame, one interval past the last real frame.
	last := plan.Entries[len(plan.Entries)-1]
	if err := emitFrame(ctx, sink, held.Clone(), last.Output+dur, dur); err != nil {
		return stats, fmt.Errorf("encode failed at padding frame: %w", err)
	}

	return stats, nil
}
