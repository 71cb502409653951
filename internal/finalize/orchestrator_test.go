package finalize

import (
	"context"
	"testing"

	"github.com/shrimbly/easy-peasy-ease/internal/blobcache"
	"github.com/shrimbly/easy-peasy-ease/internal/config"
	"github.com/shrimbly/easy-peasy-ease/internal/easing"
	"github.com/shrimbly/easy-peasy-ease/internal/logging"
	"github.com/shrimbly/easy-peasy-ease/internal/media/mediatest"
	"github.com/shrimbly/easy-peasy-ease/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrchestrator(t *testing.T, eng *mediatest.Engine) *Orchestrator {
	t.Helper()
	cache, err := blobcache.New(64)
	require.NoError(t, err)
	return New(eng, config.Default(), cache, logging.Nop())
}

func timeline(n int) []models.Segment {
	segments := make([]models.Segment, n)
	for i := range segments {
		segments[i] = models.Segment{
			ID:             string(rune('a' + i)),
			Source:         mediatest.NewClip(mediatest.ClipSpec{Duration: 5, FrameRate: 30}),
			TargetDuration: 1.5,
			Easing:         models.EasingSelection{Preset: easing.Linear},
			LoopCount:      1,
		}
	}
	return segments
}

func audioRequest(fadeIn, fadeOut float64) *models.AudioRequest {
	return &models.AudioRequest{
		Source:  mediatest.NewAudioClip(2.0, 1000, 1),
		FadeIn:  fadeIn,
		FadeOut: fadeOut,
	}
}

func TestAnalyzeAndFinalize(t *testing.T) {
	ctx := context.Background()

	t.Run("FullPathConcatenatesAllSegments", func(t *testing.T) {
		eng := mediatest.NewEngine()
		o := newOrchestrator(t, eng)

		segments := timeline(3)
		res, err := o.AnalyzeAndFinalize(ctx, segments, models.FinalizeContext{
			Reason: models.ReasonSegmentChange,
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, PathFull, res.Path)

		info, err := mediatest.Inspect(res.Final.Data)
		require.NoError(t, err)
		// Three 1.5s segments at 60 fps.
		assert.Len(t, info.Samples, 270)
		assert.InDelta(t, 4.5, info.Duration, 1.0/60)

		assert.True(t, o.Cache().Covers(segments))
		assert.Equal(t, 0, eng.LiveFrames())
		assert.Equal(t, 0, eng.OpenHandles())
	})

	t.Run("MediumPathOnAudioChangeWithFullCoverage", func(t *testing.T) {
		eng := mediatest.NewEngine()
		o := newOrchestrator(t, eng)
		segments := timeline(2)

		_, err := o.AnalyzeAndFinalize(ctx, segments, models.FinalizeContext{
			Reason: models.ReasonSegmentChange,
		}, nil)
		require.NoError(t, err)

		// Identical configuration hashes on the second run, so the cached
		// clips are reused and only audio prepare and stitch re-run.
		res, err := o.AnalyzeAndFinalize(ctx, segments, models.FinalizeContext{
			Reason: models.ReasonAudioFile,
			Audio:  audioRequest(0, 0),
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, PathMedium, res.Path)

		info, err := mediatest.Inspect(res.Final.Data)
		require.NoError(t, err)
		assert.True(t, info.HasAudio)
		assert.InDelta(t, 3.0, info.AudioDuration, 1e-6)
	})

	t.Run("SegmentConfigChangeForcesFullRebuild", func(t *testing.T) {
		eng := mediatest.NewEngine()
		o := newOrchestrator(t, eng)
		segments := timeline(2)

		_, err := o.AnalyzeAndFinalize(ctx, segments, models.FinalizeContext{
			Reason: models.ReasonSegmentChange,
		}, nil)
		require.NoError(t, err)

		// A duration change invalidates coverage even for an audio reason.
		segments[1].TargetDuration = 2.0
		res, err := o.AnalyzeAndFinalize(ctx, segments, models.FinalizeContext{
			Reason: models.ReasonAudioFile,
			Audio:  audioRequest(0, 0),
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, PathFull, res.Path)

		info, err := mediatest.Inspect(res.Final.Data)
		require.NoError(t, err)
		assert.InDelta(t, 3.5, info.Duration, 1.0/60)
	})

	t.Run("RemuxPathOnFadeOnlyChange", func(t *testing.T) {
		eng := mediatest.NewEngine()
		o := newOrchestrator(t, eng)
		segments := timeline(2)

		first, err := o.AnalyzeAndFinalize(ctx, segments, models.FinalizeContext{
			Reason: models.ReasonAudioFile,
			Audio:  audioRequest(0, 0),
		}, nil)
		require.NoError(t, err)

		res, err := o.AnalyzeAndFinalize(ctx, segments, models.FinalizeContext{
			Reason:   models.ReasonAudioFade,
			Previous: first.Final,
			Audio:    audioRequest(0.5, 0.5),
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, PathRemux, res.Path)

		// The video stream is copied packet for packet from the previous
		// output; only the audio track differs.
		before, err := mediatest.Inspect(first.Final.Data)
		require.NoError(t, err)
		after, err := mediatest.Inspect(res.Final.Data)
		require.NoError(t, err)
		require.Len(t, after.Samples, len(before.Samples))
		for i := range before.Samples {
			assert.Equal(t, before.Samples[i].Payload, after.Samples[i].Payload)
		}
		assert.True(t, after.HasAudio)
		require.NotNil(t, res.Final.Audio)
		assert.Equal(t, 0.5, res.Final.Audio.FadeIn)
	})

	t.Run("RemuxFailureFallsThroughToMedium", func(t *testing.T) {
		eng := mediatest.NewEngine()
		o := newOrchestrator(t, eng)
		segments := timeline(2)

		_, err := o.AnalyzeAndFinalize(ctx, segments, models.FinalizeContext{
			Reason: models.ReasonAudioFile,
			Audio:  audioRequest(0, 0),
		}, nil)
		require.NoError(t, err)

		// A previous output that cannot be opened makes the remux path fail;
		// the call must still succeed via the medium path.
		broken := models.NewFinalVideo([]byte("not a container"), nil)
		res, err := o.AnalyzeAndFinalize(ctx, segments, models.FinalizeContext{
			Reason:   models.ReasonAudioFade,
			Previous: broken,
			Audio:    audioRequest(0.2, 0.2),
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, PathMedium, res.Path)

		info, err := mediatest.Inspect(res.Final.Data)
		require.NoError(t, err)
		assert.True(t, info.HasAudio)
	})

	t.Run("FailedSegmentLeavesNoCacheWrites", func(t *testing.T) {
		eng := mediatest.NewEngine()
		o := newOrchestrator(t, eng)

		segments := timeline(3)
		segments[1].Source = mediatest.NewClip(mediatest.ClipSpec{
			Duration: 5, FrameRate: 30, ZeroFrames: true,
		})

		_, err := o.AnalyzeAndFinalize(ctx, segments, models.FinalizeContext{
			Reason: models.ReasonSegmentChange,
		}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "segment 2 of 3")

		// Neither the successful first segment nor anything else was written.
		assert.Equal(t, 0, o.Cache().Len())
		assert.Equal(t, 0, eng.OpenHandles())
	})

	t.Run("LoopCountRepeatsSegment", func(t *testing.T) {
		eng := mediatest.NewEngine()
		o := newOrchestrator(t, eng)

		segments := timeline(1)
		segments[0].LoopCount = 3
		res, err := o.AnalyzeAndFinalize(ctx, segments, models.FinalizeContext{
			Reason: models.ReasonSegmentChange,
		}, nil)
		require.NoError(t, err)

		info, err := mediatest.Inspect(res.Final.Data)
		require.NoError(t, err)
		assert.Len(t, info.Samples, 270)
		assert.InDelta(t, 4.5, info.Duration, 1.0/60)
	})

	t.Run("ProgressStreamEndsComplete", func(t *testing.T) {
		eng := mediatest.NewEngine()
		o := newOrchestrator(t, eng)

		var updates []models.ProgressUpdate
		_, err := o.AnalyzeAndFinalize(ctx, timeline(2), models.FinalizeContext{
			Reason: models.ReasonSegmentChange,
			Audio:  audioRequest(0, 0),
		}, func(u models.ProgressUpdate) {
			updates = append(updates, u)
		})
		require.NoError(t, err)
		require.NotEmpty(t, updates)

		stages := map[string]bool{}
		prev := -1.0
		for _, u := range updates {
			stages[u.Stage] = true
			require.GreaterOrEqual(t, u.Percent, prev, "progress went backwards at stage %s", u.Stage)
			prev = u.Percent
		}
		assert.True(t, stages[StageApplyingCurves])
		assert.True(t, stages[StageMixingAudio])
		assert.True(t, stages[StageStitching])

		last := updates[len(updates)-1]
		assert.Equal(t, StageComplete, last.Stage)
		assert.Equal(t, 100.0, last.Percent)
	})

	t.Run("EmptyTimelineRejected", func(t *testing.T) {
		eng := mediatest.NewEngine()
		o := newOrchestrator(t, eng)
		_, err := o.AnalyzeAndFinalize(ctx, nil, models.FinalizeContext{Reason: models.ReasonSegmentChange}, nil)
		assert.Error(t, err)
	})
}
