// Package tiers selects one encode tier per segment by probing a fixed
// quality ladder against device capability.
package tiers

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/shrimbly/easy-peasy-ease/internal/logging"
	"github.com/shrimbly/easy-peasy-ease/internal/media"
	"github.com/shrimbly/easy-peasy-ease/internal/metrics"
	"github.com/shrimbly/easy-peasy-ease/pkg/models"
)

// ErrNoSupportedTier means the device rejected every tier in the ladder.
// This is fatal; the pipeline never falls back to an unprobed configuration.
var ErrNoSupportedTier = errors.New("no encode tier supported by device")

// Negotiator probes encode tiers against a media engine.
type Negotiator struct {
	engine media.Engine
	log    *logging.Logger
}

// NewNegotiator creates a Negotiator backed by the given engine.
func NewNegotiator(engine media.Engine, log *logging.Logger) *Negotiator {
	return &Negotiator{engine: engine, log: log}
}

// Negotiate walks the tier ladder from the synthesized original-resolution
// tier down to the most conservative fixed tier and returns the first one
// the device reports supported. Tiers are taken whole; dimensions and
// bitrates are never interpolated between ladder entries.
//
// Source dimensions are taken display-oriented: a 90 or 270 degree rotation
// swaps width and height before any scaling. Downscaled dimensions preserve
// aspect ratio via the smaller of the two axis ratios and are forced even,
// as 4:2:0 chroma subsampling requires.
func (n *Negotiator) Negotiate(ctx context.Context, segmentID string, meta media.TrackMetadata, measuredBitrate int64) (models.EncodeTier, error) {
	srcW, srcH := meta.Width, meta.Height
	if meta.Rotation == 90 || meta.Rotation == 270 {
		srcW, srcH = srcH, srcW
	}
	if srcW <= 0 || srcH <= 0 {
		return models.EncodeTier{}, fmt.Errorf("source dimensions %dx%d are not encodable", srcW, srcH)
	}

	candidates := n.ladder(srcW, srcH, meta.Codec, measuredBitrate)
	for _, tier := range candidates {
		cfg := media.EncodeConfig{
			Width:     tier.Width,
			Height:    tier.Height,
			Bitrate:   tier.Bitrate,
			Codec:     tier.Codec,
			FrameRate: meta.FrameRate,
		}
		ok, err := n.engine.ProbeEncodeSupport(ctx, cfg)
		if err != nil {
			return models.EncodeTier{}, fmt.Errorf("capability probe for tier %s failed: %w", tier.Name, err)
		}
		if !ok {
			n.log.Debugf("tier %s rejected by device (%dx%d %s @ %d bps)",
				tier.Name, tier.Width, tier.Height, tier.Codec, tier.Bitrate)
			continue
		}

		metrics.TierSelectedTotal.WithLabelValues(tier.Name).Inc()
		n.log.LogTierSelection(segmentID, tier.Name, tier.Width, tier.Height, tier.Bitrate)
		return tier, nil
	}

	return models.EncodeTier{}, fmt.Errorf(
		"%w: probed %d tiers from %s to %s for %dx%d source",
		ErrNoSupportedTier, len(candidates),
		candidates[0].Name, candidates[len(candidates)-1].Name, srcW, srcH)
}

// ladder builds the concrete candidate list for one source: the synthesized
// original tier first, then every fixed tier fitted to the source.
func (n *Negotiator) ladder(srcW, srcH int, srcCodec string, measuredBitrate int64) []models.EncodeTier {
	original := models.EncodeTier{
		Name:       "original",
		Width:      srcW &^ 1,
		Height:     srcH &^ 1,
		Bitrate:    measuredBitrate,
		MinBitrate: measuredBitrate,
		Codec:      srcCodec,
	}
	if original.Bitrate <= 0 {
		original.Bitrate = models.Tier1080p.Bitrate
		original.MinBitrate = models.Tier1080p.MinBitrate
	}
	if original.Codec == "" {
		original.Codec = models.Tier1080p.Codec
	}

	out := []models.EncodeTier{original}
	for _, tier := range models.TierLadder() {
		out = append(out, fitTier(tier, srcW, srcH, measuredBitrate))
	}
	return out
}

// fitTier scales a fixed tier down to the source when the source is smaller
// than the tier, and caps the tier bitrate at the measured source bitrate
// without dropping below the tier floor. Sources are never upscaled.
func fitTier(tier models.EncodeTier, srcW, srcH int, measuredBitrate int64) models.EncodeTier {
	w, h := srcW, srcH
	if srcW > tier.Width || srcH > tier.Height {
		scale := minRatio(
			float64(tier.Width)/float64(srcW),
			float64(tier.Height)/float64(srcH),
		)
		w = int(math.Round(float64(srcW) * scale))
		h = int(math.Round(float64(srcH) * scale))
	}

	// Both dimensions even. Required by 4:2:0 chroma subsampling.
	tier.Width = w &^ 1
	tier.Height = h &^ 1

	if measuredBitrate > 0 && measuredBitrate < tier.Bitrate {
		tier.Bitrate = measuredBitrate
		if tier.Bitrate < tier.MinBitrate {
			tier.Bitrate = tier.MinBitrate
		}
	}
	return tier
}

func minRatio(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
