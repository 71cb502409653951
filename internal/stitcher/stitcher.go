// Package stitcher concatenates independently encoded clips into one
// container, optionally muxing a prepared audio track over the result.
package stitcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/shrimbly/easy-peasy-ease/internal/logging"
	"github.com/shrimbly/easy-peasy-ease/internal/media"
)

// ErrCodecMismatch means the input clips do not share a codec profile.
// Checked before any muxing work begins; mixed-codec concatenation would
// produce a container most players refuse.
var ErrCodecMismatch = errors.New("clips use different codec profiles")

// ErrNoClips means the stitcher was called with an empty clip list.
var ErrNoClips = errors.New("no clips to stitch")

// Stitcher concatenates encoded clips through a media engine.
type Stitcher struct {
	engine media.Engine
	log    *logging.Logger
}

// NewStitcher creates a Stitcher backed by the given engine.
func NewStitcher(engine media.Engine, log *logging.Logger) *Stitcher {
	return &Stitcher{engine: engine, log: log}
}

// clipInfo is the per-clip probe result collected before muxing starts.
type clipInfo struct {
	meta     media.TrackMetadata
	duration float64
}

// Stitch concatenates the clips in order and muxes the audio buffer, when
// given, as a single track spanning the whole result. Video-only output is
// valid when audio is nil.
//
// Clips may change dimensions between segments; the output track is opened
// with variable sample dimensions. A codec profile mismatch is fatal and is
// detected before any packet is written.
func (s *Stitcher) Stitch(ctx context.Context, clips [][]byte, audio *media.AudioBuffer) ([]byte, error) {
	if len(clips) == 0 {
		return nil, ErrNoClips
	}

	infos, err := s.probeAll(ctx, clips)
	if err != nil {
		return nil, err
	}

	out, err := s.copyPackets(ctx, clips, infos, audio)
	if errors.Is(err, media.ErrRandomAccessUnsupported) {
		return s.concatFallback(ctx, clips, audio)
	}
	return out, err
}

// probeAll reads every clip's metadata up front so precondition failures
// surface before a single packet is copied.
func (s *Stitcher) probeAll(ctx context.Context, clips [][]byte) ([]clipInfo, error) {
	infos := make([]clipInfo, len(clips))
	for i, clip := range clips {
		meta, err := s.probe(ctx, clip)
		if err != nil {
			return nil, fmt.Errorf("probe of clip %d failed: %w", i+1, err)
		}
		infos[i] = clipInfo{meta: meta, duration: meta.Duration}
		if infos[i].duration == 0 {
			infos[i].duration = meta.ContainerDuration
		}

		if i > 0 && meta.Codec != infos[0].meta.Codec {
			return nil, fmt.Errorf("%w: clip 1 is %s, clip %d is %s",
				ErrCodecMismatch, infos[0].meta.Codec, i+1, meta.Codec)
		}
	}
	return infos, nil
}

func (s *Stitcher) probe(ctx context.Context, clip []byte) (media.TrackMetadata, error) {
	c, err := s.engine.OpenContainer(ctx, clip)
	if err != nil {
		return media.TrackMetadata{}, err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil {
			s.log.LogCleanupError("probe container", cerr)
		}
	}()
	return c.TrackMetadata(ctx)
}

// copyPackets demuxes every clip in order into one pass-through sink,
// offsetting each clip's packet timestamps by the accumulated duration of
// the clips before it.
func (s *Stitcher) copyPackets(ctx context.Context, clips [][]byte, infos []clipInfo, audio *media.AudioBuffer) ([]byte, error) {
	cfg := media.EncodeConfig{
		Width:              infos[0].meta.Width,
		Height:             infos[0].meta.Height,
		Bitrate:            infos[0].meta.Bitrate,
		Codec:              infos[0].meta.Codec,
		FrameRate:          infos[0].meta.FrameRate,
		PassThrough:        true,
		VariableDimensions: true,
	}
	if audio != nil {
		cfg.AudioSampleRate = audio.SampleRate
		cfg.AudioChannels = audio.Channels
	}

	sink, err := s.engine.OpenEncoder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open stitch sink failed: %w", err)
	}
	sinkClosed := false
	defer func() {
		if !sinkClosed {
			if cerr := sink.Close(ctx); cerr != nil {
				s.log.LogCleanupError("stitch sink", cerr)
			}
		}
	}()

	offset := 0.0
	for i, clip := range clips {
		if err := s.copyClip(ctx, clip, offset, sink); err != nil {
			return nil, fmt.Errorf("stitching clip %d failed: %w", i+1, err)
		}
		offset += infos[i].duration
	}

	if audio != nil {
		if err := sink.WriteAudio(ctx, audio); err != nil {
			return nil, fmt.Errorf("audio mux failed: %w", err)
		}
	}

	sinkClosed = true
	if err := sink.Close(ctx); err != nil {
		return nil, fmt.Errorf("stitch sink close failed: %w", err)
	}
	out, err := s.engine.FinalizeContainer(ctx, sink)
	if err != nil {
		return nil, fmt.Errorf("stitch finalize failed: %w", err)
	}

	s.log.Debugf("stitched %d clips into %.3fs container", len(clips), offset)
	return out, nil
}

func (s *Stitcher) copyClip(ctx context.Context, clip []byte, offset float64, sink media.Sink) error {
	c, err := s.engine.OpenContainer(ctx, clip)
	if err != nil {
		return fmt.Errorf("open failed: %w", err)
	}
	defer func() {
		if cerr := c.Close(); cerr != nil {
			s.log.LogCleanupError("stitch container", cerr)
		}
	}()

	packets, err := c.DemuxPackets(ctx)
	if err != nil {
		// Includes ErrRandomAccessUnsupported; Stitch routes that to the
		// container-level fallback.
		return err
	}
	defer func() {
		if cerr := packets.Close(); cerr != nil {
			s.log.LogCleanupError("packet stream", cerr)
		}
	}()

	for {
		pkt, err := packets.Next(ctx)
		if errors.Is(err, media.ErrEndOfStream) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("demux failed: %w", err)
		}
		pkt.SetTimestamp(pkt.Timestamp() + offset)
		if err := sink.AddFrame(ctx, pkt); err != nil {
			return fmt.Errorf("packet write failed: %w", err)
		}
	}
}

// concatFallback serves engines without packet demux through their
// container-level concatenation, then muxes audio over the joined result.
func (s *Stitcher) concatFallback(ctx context.Context, clips [][]byte, audio *media.AudioBuffer) ([]byte, error) {
	concat, ok := s.engine.(media.Concatenator)
	if !ok {
		return nil, fmt.Errorf("engine supports neither packet demux nor container concatenation")
	}
	s.log.Debugf("engine has no packet demux, using container-level concatenation")

	out, err := concat.ConcatContainers(ctx, clips)
	if err != nil {
		return nil, fmt.Errorf("container concatenation failed: %w", err)
	}
	if audio == nil {
		return out, nil
	}

	rep, ok := s.engine.(media.AudioReplacer)
	if !ok {
		return nil, fmt.Errorf("engine cannot mux audio without packet demux")
	}
	out, err = rep.ReplaceAudio(ctx, out, audio)
	if err != nil {
		return nil, fmt.Errorf("audio mux failed: %w", err)
	}
	return out, nil
}
