package audio

import (
	"context"
	"errors"
	"fmt"

	"github.com/shrimbly/easy-peasy-ease/internal/logging"
	"github.com/shrimbly/easy-peasy-ease/internal/media"
)

// Remuxer replaces the audio track of a finished container while copying
// every video packet byte-for-byte. No video frame is re-encoded; this is
// the fast path when only the audio settings changed.
type Remuxer struct {
	engine media.Engine
	log    *logging.Logger
}

// NewRemuxer creates a Remuxer backed by the given engine.
func NewRemuxer(engine media.Engine, log *logging.Logger) *Remuxer {
	return &Remuxer{engine: engine, log: log}
}

// Remux copies the video stream of a previously finalized container into a
// new one with the given audio. Engines without packet access are served
// through their container-level audio replacement when they offer one.
func (r *Remuxer) Remux(ctx context.Context, video []byte, audio *media.AudioBuffer) ([]byte, error) {
	c, err := r.engine.OpenContainer(ctx, video)
	if err != nil {
		return nil, fmt.Errorf("open previous output failed: %w", err)
	}
	defer func() {
		if cerr := c.Close(); cerr != nil {
			r.log.LogCleanupError("remux container", cerr)
		}
	}()

	packets, err := c.DemuxPackets(ctx)
	if errors.Is(err, media.ErrRandomAccessUnsupported) {
		if rep, ok := r.engine.(media.AudioReplacer); ok {
			r.log.Debugf("engine has no packet demux, using container-level audio replacement")
			return rep.ReplaceAudio(ctx, video, audio)
		}
		return nil, fmt.Errorf("engine supports neither packet demux nor audio replacement: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("demux previous output failed: %w", err)
	}
	defer func() {
		if cerr := packets.Close(); cerr != nil {
			r.log.LogCleanupError("packet stream", cerr)
		}
	}()

	meta, err := c.TrackMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("probe previous output failed: %w", err)
	}

	cfg := media.EncodeConfig{
		Width:       meta.Width,
		Height:      meta.Height,
		Bitrate:     meta.Bitrate,
		Codec:       meta.Codec,
		FrameRate:   meta.FrameRate,
		PassThrough: true,
	}
	if audio != nil {
		cfg.AudioSampleRate = audio.SampleRate
		cfg.AudioChannels = audio.Channels
	}

	sink, err := r.engine.OpenEncoder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open remux sink failed: %w", err)
	}
	sinkClosed := false
	defer func() {
		if !sinkClosed {
			if cerr := sink.Close(ctx); cerr != nil {
				r.log.LogCleanupError("remux sink", cerr)
			}
		}
	}()

	copied := 0
	for {
		pkt, err := packets.Next(ctx)
		if errors.Is(err, media.ErrEndOfStream) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("packet copy failed after %d packets: %w", copied, err)
		}
		if err := sink.AddFrame(ctx, pkt); err != nil {
			return nil, fmt.Errorf("packet write failed after %d packets: %w", copied, err)
		}
		copied++
	}
	if copied == 0 {
		return nil, fmt.Errorf("previous output contained no video packets")
	}

	if audio != nil {
		if err := sink.WriteAudio(ctx, audio); err != nil {
			return nil, fmt.Errorf("audio write failed: %w", err)
		}
	}

	sinkClosed = true
	if err := sink.Close(ctx); err != nil {
		return nil, fmt.Errorf("remux sink close failed: %w", err)
	}
	out, err := r.engine.FinalizeContainer(ctx, sink)
	if err != nil {
		return nil, fmt.Errorf("remux finalize failed: %w", err)
	}

	r.log.Debugf("remuxed %d video packets with replaced audio", copied)
	return out, nil
}
