// Package analyzer derives a best-effort metadata snapshot of a source clip
// and recommends an easing curve for it when the caller did not pick one.
package analyzer

import (
	"context"

	"github.com/shrimbly/easy-peasy-ease/internal/easing"
	"github.com/shrimbly/easy-peasy-ease/internal/logging"
	"github.com/shrimbly/easy-peasy-ease/internal/media"
	"github.com/shrimbly/easy-peasy-ease/pkg/models"
)

// Defaults are the caller-supplied fallbacks used when a probe comes up empty.
type Defaults struct {
	Duration  float64
	Bitrate   int64
	FrameRate float64
}

// Analyzer probes source clips through the engine boundary.
type Analyzer struct {
	log *logging.Logger
}

// New creates an analyzer.
func New(log *logging.Logger) *Analyzer {
	return &Analyzer{log: log}
}

// Analyze returns the metadata snapshot for an open container. Every field
// has an independent fallback chain and a failed probe never fails the
// others: a metadata read error simply means every field falls back.
//
// Duration: track-level, then container-level, then the default.
// Bitrate: measured average, but never decreased by the default; whichever
// is larger wins, so the encoder is never under-provisioned.
// Frame rate: measured average, then the default.
func (a *Analyzer) Analyze(ctx context.Context, c media.Container, def Defaults) models.VideoCurveMetadata {
	out := models.VideoCurveMetadata{
		Duration:  def.Duration,
		Bitrate:   def.Bitrate,
		FrameRate: def.FrameRate,
	}

	meta, err := c.TrackMetadata(ctx)
	if err != nil {
		a.log.WithError(err).Warn("Metadata probe failed, using defaults for all fields")
		return out
	}

	switch {
	case meta.Duration > 0:
		out.Duration = meta.Duration
	case meta.ContainerDuration > 0:
		out.Duration = meta.ContainerDuration
	}

	if meta.Bitrate > out.Bitrate {
		out.Bitrate = meta.Bitrate
	}

	if meta.FrameRate > 0 {
		out.FrameRate = meta.FrameRate
	}

	return out
}

// AdaptiveEasing recommends an easing preset from the metadata snapshot.
// Pure function; only consulted when the segment's easing selection is empty.
//
// Very short or high-frame-rate sources read well with an aggressive ramp;
// low-bitrate sources get the gentler sine curve so held frames are less
// visible.
func AdaptiveEasing(meta models.VideoCurveMetadata) string {
	if meta.Duration > 0 && meta.Duration < 3 {
		return easing.ExpoInCubicOut
	}
	if meta.FrameRate >= 50 {
		return easing.ExpoInCubicOut
	}
	if meta.Bitrate > 0 && meta.Bitrate < 1500000 {
		return easing.SineInOut
	}
	return easing.SineInOut
}
