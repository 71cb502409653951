package tiers

import (
	"context"
	"testing"

	"github.com/shrimbly/easy-peasy-ease/internal/logging"
	"github.com/shrimbly/easy-peasy-ease/internal/media"
	"github.com/shrimbly/easy-peasy-ease/internal/media/mediatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func meta(w, h, rotation int) media.TrackMetadata {
	return media.TrackMetadata{
		Width:     w,
		Height:    h,
		Rotation:  rotation,
		Codec:     "avc1.64002a",
		FrameRate: 30,
	}
}

func TestNegotiate(t *testing.T) {
	ctx := context.Background()
	log := logging.Nop()

	t.Run("OriginalTierWinsWhenSupported", func(t *testing.T) {
		eng := mediatest.NewEngine()
		n := NewNegotiator(eng, log)

		tier, err := n.Negotiate(ctx, "seg-1", meta(1920, 1080, 0), 8000000)
		require.NoError(t, err)
		assert.Equal(t, "original", tier.Name)
		assert.Equal(t, 1920, tier.Width)
		assert.Equal(t, 1080, tier.Height)
		assert.Equal(t, int64(8000000), tier.Bitrate)
		assert.Equal(t, "avc1.64002a", tier.Codec)
	})

	t.Run("FirstSupportedTierWins", func(t *testing.T) {
		eng := mediatest.NewEngine()
		// Only the Main-profile 720p tier is supported.
		eng.SupportFunc = func(cfg media.EncodeConfig) bool {
			return cfg.Codec == "avc1.4d401f"
		}
		n := NewNegotiator(eng, log)

		tier, err := n.Negotiate(ctx, "seg-1", meta(3840, 2160, 0), 25000000)
		require.NoError(t, err)
		assert.Equal(t, "720p", tier.Name)
		assert.Equal(t, 1280, tier.Width)
		assert.Equal(t, 720, tier.Height)
		assert.Zero(t, tier.Width&1)
		assert.Zero(t, tier.Height&1)
	})

	t.Run("DownscalePreservesAspectAndEvenness", func(t *testing.T) {
		eng := mediatest.NewEngine()
		eng.SupportFunc = func(cfg media.EncodeConfig) bool {
			return cfg.Codec == "avc1.4d401f"
		}
		n := NewNegotiator(eng, log)

		// Ultrawide source; the width ratio 1280/3440 is the smaller axis
		// ratio, so it governs the scale.
		tier, err := n.Negotiate(ctx, "seg-1", meta(3440, 1440, 0), 0)
		require.NoError(t, err)
		assert.Equal(t, "720p", tier.Name)
		assert.Equal(t, 1280, tier.Width)
		assert.Equal(t, 536, tier.Height)
		assert.Zero(t, tier.Width&1)
		assert.Zero(t, tier.Height&1)
	})

	t.Run("RotationSwapsSourceDimensions", func(t *testing.T) {
		eng := mediatest.NewEngine()
		var probed []media.EncodeConfig
		eng.SupportFunc = func(cfg media.EncodeConfig) bool {
			probed = append(probed, cfg)
			return true
		}
		n := NewNegotiator(eng, log)

		// Portrait phone clip stored landscape with a 90 degree rotation tag.
		tier, err := n.Negotiate(ctx, "seg-1", meta(1920, 1080, 90), 6000000)
		require.NoError(t, err)
		assert.Equal(t, "original", tier.Name)
		assert.Equal(t, 1080, tier.Width)
		assert.Equal(t, 1920, tier.Height)
		require.Len(t, probed, 1)
	})

	t.Run("SmallSourceNotUpscaled", func(t *testing.T) {
		eng := mediatest.NewEngine()
		eng.SupportFunc = func(cfg media.EncodeConfig) bool {
			return cfg.Codec == "avc1.640033" // only the 2160p profile
		}
		n := NewNegotiator(eng, log)

		tier, err := n.Negotiate(ctx, "seg-1", meta(1280, 720, 0), 3000000)
		require.NoError(t, err)
		assert.Equal(t, "2160p", tier.Name)
		assert.Equal(t, 1280, tier.Width)
		assert.Equal(t, 720, tier.Height)
	})

	t.Run("BitrateCappedAtMeasuredWithFloor", func(t *testing.T) {
		eng := mediatest.NewEngine()
		eng.SupportFunc = func(cfg media.EncodeConfig) bool {
			return cfg.Codec == "avc1.64002a"
		}
		n := NewNegotiator(eng, log)

		// HEVC source, so the synthesized original tier is rejected and the
		// 1080p AVC tier wins. Measured source is below the 1080p target but
		// above its floor.
		src := meta(1920, 1080, 0)
		src.Codec = "hvc1.1.6.L120.90"
		tier, err := n.Negotiate(ctx, "seg-1", src, 5000000)
		require.NoError(t, err)
		assert.Equal(t, "1080p", tier.Name)
		assert.Equal(t, int64(5000000), tier.Bitrate)

		// Measured source below the floor clamps up to the floor.
		tier, err = n.Negotiate(ctx, "seg-1", src, 1000000)
		require.NoError(t, err)
		assert.Equal(t, tier.MinBitrate, tier.Bitrate)
	})

	t.Run("AllTiersRejectedIsFatal", func(t *testing.T) {
		eng := mediatest.NewEngine()
		eng.SupportFunc = func(media.EncodeConfig) bool { return false }
		n := NewNegotiator(eng, log)

		_, err := n.Negotiate(ctx, "seg-1", meta(1920, 1080, 0), 6000000)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNoSupportedTier)
		// The error names the attempted constraint for remediation.
		assert.Contains(t, err.Error(), "1920x1080")
	})

	t.Run("InvalidDimensionsRejected", func(t *testing.T) {
		eng := mediatest.NewEngine()
		n := NewNegotiator(eng, log)
		_, err := n.Negotiate(ctx, "seg-1", meta(0, 0, 0), 6000000)
		assert.Error(t, err)
	})
}
