// Package pipeline drives the decode, resample and encode sequence for one
// segment and hands back the finalized clip bytes.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/shrimbly/easy-peasy-ease/internal/analyzer"
	"github.com/shrimbly/easy-peasy-ease/internal/config"
	"github.com/shrimbly/easy-peasy-ease/internal/easing"
	"github.com/shrimbly/easy-peasy-ease/internal/logging"
	"github.com/shrimbly/easy-peasy-ease/internal/media"
	"github.com/shrimbly/easy-peasy-ease/internal/metrics"
	"github.com/shrimbly/easy-peasy-ease/internal/resampler"
	"github.com/shrimbly/easy-peasy-ease/internal/tiers"
	"github.com/shrimbly/easy-peasy-ease/pkg/models"
)

// Driver runs one segment through decode, resample and encode. It is not
// safe for concurrent use against the same engine; segments are processed
// one at a time in timeline order.
type Driver struct {
	engine     media.Engine
	analyzer   *analyzer.Analyzer
	negotiator *tiers.Negotiator
	cfg        config.PipelineConfig
	log        *logging.Logger
}

// NewDriver creates a Driver backed by the given engine.
func NewDriver(engine media.Engine, cfg config.PipelineConfig, log *logging.Logger) *Driver {
	return &Driver{
		engine:     engine,
		analyzer:   analyzer.New(log),
		negotiator: tiers.NewNegotiator(engine, log),
		cfg:        cfg,
		log:        log,
	}
}

// Result is the finished clip for one segment.
type Result struct {
	Clip     []byte
	Tier     models.EncodeTier
	Metadata models.VideoCurveMetadata
	Stats    resampler.Stats
	Elapsed  time.Duration
}

// Run produces the segment's encoded clip. A fresh read handle is opened
// per decode pass; a drained handle is never reused because its decode
// state is invalid after a full drain. Decode strategy follows the engine:
// random-access containers take the direct timestamp mapping, sequential
// engines take the counting pass plus monotonic index advance.
func (d *Driver) Run(ctx context.Context, seg models.Segment, progress resampler.ProgressFunc) (*Result, error) {
	if err := seg.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	log := d.log.WithSegmentID(seg.ID)

	c, err := d.engine.OpenContainer(ctx, seg.Source)
	if err != nil {
		return nil, fmt.Errorf("open segment source failed: %w", err)
	}
	closed := false
	defer func() {
		if !closed {
			if cerr := c.Close(); cerr != nil {
				log.LogCleanupError("segment container", cerr)
			}
		}
	}()

	meta := d.analyzer.Analyze(ctx, c, analyzer.Defaults{
		Duration:  d.cfg.DefaultDuration,
		Bitrate:   d.cfg.DefaultBitrate,
		FrameRate: d.cfg.DefaultFrameRate,
	})

	ease, err := d.resolveEasing(seg, meta, log)
	if err != nil {
		return nil, err
	}

	plan, err := resampler.Build(ease, resampler.Options{
		InputDuration:  meta.Duration,
		OutputDuration: seg.TargetDuration,
		FrameRate:      d.cfg.OutputFrameRate,
		Epsilon:        d.cfg.TimestampEpsilon,
	})
	if err != nil {
		return nil, fmt.Errorf("plan for segment %s failed: %w", seg.ID, err)
	}

	track, err := c.TrackMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("probe segment %s failed: %w", seg.ID, err)
	}
	tier, err := d.negotiator.Negotiate(ctx, seg.ID, track, meta.Bitrate)
	if err != nil {
		return nil, err
	}

	sink, err := d.engine.OpenEncoder(ctx, media.EncodeConfig{
		Width:     tier.Width,
		Height:    tier.Height,
		Bitrate:   tier.Bitrate,
		Codec:     tier.Codec,
		FrameRate: d.cfg.OutputFrameRate,
	})
	if err != nil {
		return nil, fmt.Errorf("open encoder for segment %s failed: %w", seg.ID, err)
	}
	sinkClosed := false
	defer func() {
		if !sinkClosed {
			if cerr := sink.Close(ctx); cerr != nil {
				log.LogCleanupError("segment sink", cerr)
			}
		}
	}()

	var stats resampler.Stats
	if c.SupportsRandomAccess() {
		log.WithField("strategy", "direct").Debug("source supports random access")
		stats, err = resampler.ResampleDirect(ctx, c, plan, sink, log, d.cfg.ProgressInterval, progress)
	} else {
		log.WithField("strategy", "sequential").Debug("source lacks random access")
		stats, err = d.runSequential(ctx, seg, c, &closed, plan, sink, log, progress)
	}
	if err != nil {
		metrics.SegmentsProcessedTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("resample of segment %s failed: %w", seg.ID, err)
	}
	log.LogResampleProgress(seg.ID, stats.Emitted, stats.Skipped, plan.Total())

	// Track close flushes the initial parameter sets; it must land before
	// the container is finalized.
	sinkClosed = true
	if err := sink.Close(ctx); err != nil {
		return nil, fmt.Errorf("close encoder for segment %s failed: %w", seg.ID, err)
	}
	clip, err := d.engine.FinalizeContainer(ctx, sink)
	if err != nil {
		return nil, fmt.Errorf("finalize segment %s failed: %w", seg.ID, err)
	}

	elapsed := time.Since(start)
	metrics.SegmentsProcessedTotal.WithLabelValues("success").Inc()
	metrics.SegmentDuration.Observe(elapsed.Seconds())
	return &Result{Clip: clip, Tier: tier, Metadata: meta, Stats: stats, Elapsed: elapsed}, nil
}

// resolveEasing honors an explicit selection and otherwise falls back to
// the adaptive recommendation for the probed metadata.
func (d *Driver) resolveEasing(seg models.Segment, meta models.VideoCurveMetadata, log *logging.Logger) (easing.Func, error) {
	sel := seg.Easing
	if !sel.IsExplicit() {
		preset := analyzer.AdaptiveEasing(meta)
		log.Debugf("no easing selected, adaptive recommendation is %s", preset)
		sel = models.EasingSelection{Preset: preset}
	}
	fn, err := easing.Resolve(sel)
	if err != nil {
		return nil, fmt.Errorf("easing for segment %s: %w", seg.ID, err)
	}
	return fn, nil
}

// runSequential performs the counting pass on the already-open handle, then
// opens a fresh handle for the emit pass. The counting drain invalidates
// the first handle's decode state, so it is closed and replaced rather than
// reused.
func (d *Driver) runSequential(
	ctx context.Context,
	seg models.Segment,
	c media.Container,
	closed *bool,
	plan *resampler.Plan,
	sink media.Sink,
	log *logging.Logger,
	progress resampler.ProgressFunc,
) (resampler.Stats, error) {
	frameCount, err := resampler.CountFrames(ctx, c, log)
	if err != nil {
		return resampler.Stats{}, fmt.Errorf("counting pass failed: %w", err)
	}

	*closed = true
	if err := c.Close(); err != nil {
		return resampler.Stats{}, fmt.Errorf("close counting handle failed: %w", err)
	}

	emit, err := d.engine.OpenContainer(ctx, seg.Source)
	if err != nil {
		return resampler.Stats{}, fmt.Errorf("reopen for emit pass failed: %w", err)
	}
	defer func() {
		if cerr := emit.Close(); cerr != nil {
			log.LogCleanupError("emit container", cerr)
		}
	}()

	return resampler.ResampleSequential(ctx, emit, frameCount, plan, sink, log, d.cfg.ProgressInterval, progress)
}
