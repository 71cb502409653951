package resampler

import (
	"context"
	"errors"
	"fmt"

	"github.com/shrimbly/easy-peasy-ease/internal/logging"
	"github.com/shrimbly/easy-peasy-ease/internal/media"
	"github.com/shrimbly/easy-peasy-ease/internal/metrics"
)

// ProgressFunc receives (emitted, total) counts during a resample run.
type ProgressFunc func(emitted, total int)

// defaultProgressEvery is the reporting cadence used when the caller passes
// a non-positive interval.
const defaultProgressEvery = 10

// ResampleDirect runs the direct timestamp-mapping strategy against a
// random-access container: all mapped source timestamps are resolved in one
// batch, so the engine decodes each underlying source packet at most once
// and duplicate/hold frames cost nothing extra.
//
// Every decoded frame is released as soon as it has been handed to the
// encoder, on every exit path. A single undecodable slot is skipped and
// counted, never fatal; zero decodable frames aborts the segment.
func ResampleDirect(
	ctx context.Context,
	c media.Container,
	plan *Plan,
	sink media.Sink,
	log *logging.Logger,
	progressEvery int,
	progress ProgressFunc,
) (Stats, error) {
	var stats Stats
	if progressEvery <= 0 {
		progressEvery = defaultProgressEvery
	}

	stream, err := c.DecodeFramesAt(ctx, plan.SourceTimestamps())
	if err != nil {
		return stats, fmt.Errorf("random access decode failed: %w", err)
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			log.LogCleanupError("frame stream", cerr)
		}
	}()

	total := plan.Total()
	dur := plan.FrameDuration()
	for i, entry := range plan.Entries {
		frame, err := stream.Next(ctx)
		if errors.Is(err, media.ErrEndOfStream) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("decode stream failed at output frame %d: %w", i, err)
		}
		if frame == nil {
			// Undecodable slot: count it and move on.
			stats.Skipped++
			metrics.FramesSkippedTotal.Inc()
			log.Debugf("skipping undecodable output frame %d (source %.3fs)", i, entry.Source)
			continue
		}

		if err := emitFrame(ctx, sink, frame, entry.Output, dur); err != nil {
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
	return stats, nil
}

// emitFrame stamps and hands one frame to the encoder, releasing the decode
// buffer no matter how the hand-off goes.
func emitFrame(ctx context.Context, sink media.Sink, frame media.Frame, ts, dur float64) error {
	defer frame.Release()
	frame.SetTimestamp(ts)
	frame.SetDuration(dur)
	return sink.AddFrame(ctx, frame)
}
