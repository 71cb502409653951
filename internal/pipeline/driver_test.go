package pipeline

import (
	"context"
	"testing"

	"github.com/shrimbly/easy-peasy-ease/internal/config"
	"github.com/shrimbly/easy-peasy-ease/internal/easing"
	"github.com/shrimbly/easy-peasy-ease/internal/logging"
	"github.com/shrimbly/easy-peasy-ease/internal/media"
	"github.com/shrimbly/easy-peasy-ease/internal/media/mediatest"
	"github.com/shrimbly/easy-peasy-ease/internal/resampler"
	"github.com/shrimbly/easy-peasy-ease/internal/tiers"
	"github.com/shrimbly/easy-peasy-ease/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSegment(clip []byte, target float64) models.Segment {
	return models.Segment{
		ID:             "seg-1",
		Source:         clip,
		TargetDuration: target,
		Easing:         models.EasingSelection{Preset: easing.Linear},
		LoopCount:      1,
	}
}

func TestDriverRun(t *testing.T) {
	ctx := context.Background()
	log := logging.Nop()
	cfg := config.Default().Pipeline

	t.Run("RandomAccessStrategy", func(t *testing.T) {
		eng := mediatest.NewEngine()
		d := NewDriver(eng, cfg, log)

		seg := newSegment(mediatest.NewClip(mediatest.ClipSpec{Duration: 5, FrameRate: 30}), 1.5)
		res, err := d.Run(ctx, seg, nil)
		require.NoError(t, err)

		info, err := mediatest.Inspect(res.Clip)
		require.NoError(t, err)
		assert.Len(t, info.Samples, 90)
		assert.Equal(t, 90, res.Stats.Emitted)
		assert.Equal(t, "original", res.Tier.Name)
		assert.InDelta(t, 5.0, res.Metadata.Duration, 1e-9)

		assert.Equal(t, 0, eng.LiveFrames())
		assert.Equal(t, 0, eng.OpenHandles())
	})

	t.Run("SequentialStrategyEmitsPadding", func(t *testing.T) {
		eng := mediatest.NewEngine()
		eng.RandomAccess = false
		d := NewDriver(eng, cfg, log)

		seg := newSegment(mediatest.NewClip(mediatest.ClipSpec{Duration: 5, FrameRate: 30}), 1.5)
		res, err := d.Run(ctx, seg, nil)
		require.NoError(t, err)

		info, err := mediatest.Inspect(res.Clip)
		require.NoError(t, err)
		// 90 mapped frames plus the trailing padding frame.
		assert.Len(t, info.Samples, 91)
		assert.Equal(t, 90, res.Stats.Emitted)

		assert.Equal(t, 0, eng.LiveFrames())
		assert.Equal(t, 0, eng.OpenHandles())
	})

	t.Run("NegotiatedTierFlowsToEncoder", func(t *testing.T) {
		eng := mediatest.NewEngine()
		eng.SupportFunc = func(cfg media.EncodeConfig) bool {
			return cfg.Codec == "avc1.4d401f"
		}
		d := NewDriver(eng, cfg, log)

		seg := newSegment(mediatest.NewClip(mediatest.ClipSpec{
			Duration: 5, FrameRate: 30, Width: 3840, Height: 2160,
		}), 1.5)
		res, err := d.Run(ctx, seg, nil)
		require.NoError(t, err)
		assert.Equal(t, "720p", res.Tier.Name)
		assert.Equal(t, 1280, res.Tier.Width)
		assert.Equal(t, 720, res.Tier.Height)
	})

	t.Run("NoSupportedTierFatal", func(t *testing.T) {
		eng := mediatest.NewEngine()
		eng.SupportFunc = func(media.EncodeConfig) bool { return false }
		d := NewDriver(eng, cfg, log)

		seg := newSegment(mediatest.NewClip(mediatest.ClipSpec{Duration: 5, FrameRate: 30}), 1.5)
		_, err := d.Run(ctx, seg, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, tiers.ErrNoSupportedTier)
		assert.Equal(t, 0, eng.OpenHandles())
	})

	t.Run("ZeroDecodableFramesFatal", func(t *testing.T) {
		eng := mediatest.NewEngine()
		d := NewDriver(eng, cfg, log)

		seg := newSegment(mediatest.NewClip(mediatest.ClipSpec{Duration: 5, FrameRate: 30, ZeroFrames: true}), 1.5)
		_, err := d.Run(ctx, seg, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, resampler.ErrNoDecodableFrames)
		assert.Equal(t, 0, eng.OpenHandles())
	})

	t.Run("AdaptiveEasingWhenSelectionEmpty", func(t *testing.T) {
		eng := mediatest.NewEngine()
		d := NewDriver(eng, cfg, log)

		seg := newSegment(mediatest.NewClip(mediatest.ClipSpec{Duration: 5, FrameRate: 30}), 1.5)
		seg.Easing = models.EasingSelection{}
		res, err := d.Run(ctx, seg, nil)
		require.NoError(t, err)
		assert.Equal(t, 90, res.Stats.Emitted)
	})

	t.Run("InvalidSegmentRejected", func(t *testing.T) {
		eng := mediatest.NewEngine()
		d := NewDriver(eng, cfg, log)

		_, err := d.Run(ctx, models.Segment{ID: "seg-1"}, nil)
		assert.Error(t, err)
	})

	t.Run("ProgressReported", func(t *testing.T) {
		eng := mediatest.NewEngine()
		d := NewDriver(eng, cfg, log)

		var calls int
		seg := newSegment(mediatest.NewClip(mediatest.ClipSpec{Duration: 5, FrameRate: 30}), 1.5)
		_, err := d.Run(ctx, seg, func(emitted, total int) {
			calls++
			assert.Equal(t, 90, total)
		})
		require.NoError(t, err)
		assert.Greater(t, calls, 0)
	})

	t.Run("ZeroProgressIntervalConfig", func(t *testing.T) {
		eng := mediatest.NewEngine()
		zeroCfg := cfg
		zeroCfg.ProgressInterval = 0
		d := NewDriver(eng, zeroCfg, log)

		var calls int
		seg := newSegment(mediatest.NewClip(mediatest.ClipSpec{Duration: 5, FrameRate: 30}), 1.5)
		res, err := d.Run(ctx, seg, func(emitted, total int) {
			calls++
		})
		require.NoError(t, err)
		assert.Equal(t, 90, res.Stats.Emitted)
		assert.Greater(t, calls, 0)
	})
}
