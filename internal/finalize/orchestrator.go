// Package finalize routes a render request through the cheapest pipeline
// that can honor it: audio-only remux, cached-clip restitch, or the full
// per-segment rebuild.
package finalize

import (
	"context"
	"fmt"
	"time"

	"github.com/shrimbly/easy-peasy-ease/internal/audio"
	"github.com/shrimbly/easy-peasy-ease/internal/blobcache"
	"github.com/shrimbly/easy-peasy-ease/internal/config"
	"github.com/shrimbly/easy-peasy-ease/internal/logging"
	"github.com/shrimbly/easy-peasy-ease/internal/media"
	"github.com/shrimbly/easy-peasy-ease/internal/metrics"
	"github.com/shrimbly/easy-peasy-ease/internal/pipeline"
	"github.com/shrimbly/easy-peasy-ease/internal/stitcher"
	"github.com/shrimbly/easy-peasy-ease/pkg/models"
)

// Stage names surfaced on the progress stream.
const (
	StageIdle           = "idle"
	StageApplyingCurves = "applying-curves"
	StageMixingAudio    = "mixing-audio"
	StageStitching      = "stitching"
	StageRemuxing       = "remuxing"
	StageComplete       = "complete"
	StageError          = "error"
)

// Path names recorded per finalize call.
const (
	PathRemux  = "remux"
	PathMedium = "medium"
	PathFull   = "full"
)

// Orchestrator owns path routing and the per-segment blob cache. The cache
// is mutated only here; every other component reads it at most.
type Orchestrator struct {
	engine   media.Engine
	driver   *pipeline.Driver
	stitcher *stitcher.Stitcher
	preparer *audio.Preparer
	remuxer  *audio.Remuxer
	cache    *blobcache.Cache
	cfg      *config.Config
	log      *logging.Logger
}

// New creates an Orchestrator around the given engine and cache.
func New(engine media.Engine, cfg *config.Config, cache *blobcache.Cache, log *logging.Logger) *Orchestrator {
	return &Orchestrator{
		engine:   engine,
		driver:   pipeline.NewDriver(engine, cfg.Pipeline, log),
		stitcher: stitcher.NewStitcher(engine, log),
		preparer: audio.NewPreparer(engine, log),
		remuxer:  audio.NewRemuxer(engine, log),
		cache:    cache,
		cfg:      cfg,
		log:      log,
	}
}

// Result is the outcome of one finalize call.
type Result struct {
	Final *models.FinalVideo
	Path  string
}

// Cache exposes the orchestrator's blob cache for coverage checks.
func (o *Orchestrator) Cache() *blobcache.Cache { return o.cache }

// AnalyzeAndFinalize produces the final video for the current timeline.
//
// Routing, evaluated once per call:
//  1. Only the audio fades changed, a previous output exists and the cache
//     covers every segment: attempt the remux-only path. Any failure there
//     falls through to 2 and is never fatal.
//  2. The reason is an audio change and the cache covers every segment:
//     reuse the cached clips, re-run audio prepare and stitch only.
//  3. Otherwise: full rebuild of every segment, then audio and stitch. The
//     cache is replaced only after every segment succeeded, so a failed run
//     never leaves partial cache writes behind.
func (o *Orchestrator) AnalyzeAndFinalize(
	ctx context.Context,
	segments []models.Segment,
	fctx models.FinalizeContext,
	progress models.ProgressFunc,
) (*Result, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("no segments to finalize")
	}
	for _, seg := range segments {
		if err := seg.Validate(); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	metrics.FinalizeInProgress.Inc()
	defer metrics.FinalizeInProgress.Dec()

	res, err := o.route(ctx, segments, fctx, progress)
	if err != nil {
		progress.Report(models.ProgressUpdate{Stage: StageError, Message: err.Error(), Percent: 100})
		return nil, err
	}

	metrics.FinalizePathTotal.WithLabelValues(res.Path).Inc()
	metrics.FinalizeDuration.WithLabelValues(res.Path).Observe(time.Since(start).Seconds())
	o.log.LogFinalizeEvent(res.Path, string(fctx.Reason), len(segments), time.Since(start))
	progress.Report(models.ProgressUpdate{Stage: StageComplete, Message: "final video ready", Percent: 100})
	return res, nil
}

func (o *Orchestrator) route(
	ctx context.Context,
	segments []models.Segment,
	fctx models.FinalizeContext,
	progress models.ProgressFunc,
) (*Result, error) {
	covered := o.cache.Covers(segments)

	if fctx.Reason == models.ReasonAudioFade && fctx.Previous != nil && covered {
		res, err := o.runRemux(ctx, segments, fctx, progress)
		if err == nil {
			return res, nil
		}
		// Remux failures are never fatal; the medium path rebuilds the
		// container from the cached clips instead.
		o.log.WithError(err).Warn("Remux path failed, falling back")
		metrics.FinalizeFallbacksTotal.Inc()
	}

	audioChange := fctx.Reason == models.ReasonAudioFile || fctx.Reason == models.ReasonAudioFade
	if audioChange && covered {
		return o.runMedium(ctx, segments, fctx, progress)
	}

	return o.runFull(ctx, segments, fctx, progress)
}

// totalDuration is the length of the final timeline, loop repeats included.
func totalDuration(segments []models.Segment) float64 {
	total := 0.0
	for _, seg := range segments {
		total += seg.TargetDuration * float64(seg.LoopCount)
	}
	return total
}

// prepareAudio shapes the requested soundtrack to the timeline length.
// A nil request or an empty source means a silent, video-only result.
func (o *Orchestrator) prepareAudio(
	ctx context.Context,
	segments []models.Segment,
	req *models.AudioRequest,
	progress models.ProgressFunc,
	percent float64,
) (*media.AudioBuffer, error) {
	if req == nil || len(req.Source) == 0 {
		return nil, nil
	}
	progress.Report(models.ProgressUpdate{Stage: StageMixingAudio, Message: "preparing audio", Percent: percent})

	buf, err := o.preparer.Prepare(ctx, req.Source, audio.PrepareOptions{
		TargetDuration: totalDuration(segments),
		Offset:         req.Offset,
		FadeIn:         req.FadeIn,
		FadeOut:        req.FadeOut,
	})
	if err != nil {
		return nil, fmt.Errorf("audio prepare failed: %w", err)
	}
	return buf, nil
}

func (o *Orchestrator) runRemux(
	ctx context.Context,
	segments []models.Segment,
	fctx models.FinalizeContext,
	progress models.ProgressFunc,
) (*Result, error) {
	buf, err := o.prepareAudio(ctx, segments, fctx.Audio, progress, 20)
	if err != nil {
		return nil, err
	}
	if buf == nil {
		return nil, fmt.Errorf("remux path needs an audio source")
	}

	progress.Report(models.ProgressUpdate{Stage: StageRemuxing, Message: "replacing audio track", Percent: 60})
	out, err := o.remuxer.Remux(ctx, fctx.Previous.Data, buf)
	if err != nil {
		return nil, err
	}
	return &Result{Final: models.NewFinalVideo(out, fctx.Audio.Descriptor()), Path: PathRemux}, nil
}

func (o *Orchestrator) runMedium(
	ctx context.Context,
	segments []models.Segment,
	fctx models.FinalizeContext,
	progress models.ProgressFunc,
) (*Result, error) {
	clips := make([][]byte, 0, len(segments))
	for _, seg := range segments {
		clip, ok := o.cache.Get(seg)
		if !ok {
			// Coverage was checked before routing here; a vanished entry
			// means the cache was raced or evicted underneath us.
			return nil, fmt.Errorf("cached clip for segment %s disappeared", seg.ID)
		}
		for n := 0; n < seg.LoopCount; n++ {
			clips = append(clips, clip)
		}
	}

	buf, err := o.prepareAudio(ctx, segments, fctx.Audio, progress, 30)
	if err != nil {
		return nil, err
	}

	progress.Report(models.ProgressUpdate{Stage: StageStitching, Message: "stitching cached clips", Percent: 70})
	out, err := o.stitcher.Stitch(ctx, clips, buf)
	if err != nil {
		return nil, fmt.Errorf("stitch of cached clips failed: %w", err)
	}
	return &Result{Final: models.NewFinalVideo(out, fctx.Audio.Descriptor()), Path: PathMedium}, nil
}

func (o *Orchestrator) runFull(
	ctx context.Context,
	segments []models.Segment,
	fctx models.FinalizeContext,
	progress models.ProgressFunc,
) (*Result, error) {
	// Per-segment results are staged here and committed to the cache only
	// after every segment succeeds. A failure on segment N leaves no cache
	// writes at all, not even for the segments before it.
	staged := make([][]byte, 0, len(segments))

	total := len(segments)
	for i, seg := range segments {
		segProgress := func(emitted, emitTotal int) {
			frac := float64(emitted) / float64(emitTotal)
			progress.Report(models.ProgressUpdate{
				Stage:         StageApplyingCurves,
				Message:       fmt.Sprintf("retiming segment %d of %d", i+1, total),
				Percent:       (float64(i) + frac) / float64(total) * 70,
				SegmentIndex:  i + 1,
				TotalSegments: total,
			})
		}

		res, err := o.driver.Run(ctx, seg, segProgress)
		if err != nil {
			return nil, fmt.Errorf("segment %d of %d (%s) failed: %w", i+1, total, seg.ID, err)
		}
		staged = append(staged, res.Clip)
	}

	o.cache.Purge()
	for i, seg := range segments {
		o.cache.Put(seg, staged[i])
	}

	clips := make([][]byte, 0, len(segments))
	for i, seg := range segments {
		for n := 0; n < seg.LoopCount; n++ {
			clips = append(clips, staged[i])
		}
	}

	buf, err := o.prepareAudio(ctx, segments, fctx.Audio, progress, 75)
	if err != nil {
		return nil, err
	}

	progress.Report(models.ProgressUpdate{Stage: StageStitching, Message: "stitching segments", Percent: 85})
	out, err := o.stitcher.Stitch(ctx, clips, buf)
	if err != nil {
		return nil, fmt.Errorf("stitch failed: %w", err)
	}
	return &Result{Final: models.NewFinalVideo(out, fctx.Audio.Descriptor()), Path: PathFull}, nil
}
