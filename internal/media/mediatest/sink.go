package mediatest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shrimbly/easy-peasy-ease/internal/media"
)

// sink records everything the pipeline hands it and marshals the result as
// an encoded clip document on finalize.
type sink struct {
	eng     *Engine
	cfg     media.EncodeConfig
	samples []sampleDoc
	audio   *audioDoc
	closed  bool
}

func (s *sink) AddFrame(ctx context.Context, f media.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return media.ErrSinkClosed
	}

	switch fr := f.(type) {
	case *media.RawFrame:
		if s.cfg.PassThrough {
			return fmt.Errorf("pass-through sink cannot accept raw frames")
		}
		if fr.Released() {
			return fmt.Errorf("frame was released before it was encoded")
		}
		s.samples = append(s.samples, sampleDoc{
			TS:       fr.Timestamp(),
			Dur:      fr.Duration(),
			Width:    s.cfg.Width,
			Height:   s.cfg.Height,
			Keyframe: len(s.samples) == 0,
			Payload:  string(fr.Data),
		})
	case *media.EncodedPacket:
		if !s.cfg.PassThrough {
			return fmt.Errorf("encoding sink cannot accept encoded packets")
		}
		if s.eng.FailPassThrough {
			return fmt.Errorf("injected pass-through failure")
		}
		s.samples = append(s.samples, sampleDoc{
			TS:       fr.Timestamp(),
			Dur:      fr.Duration(),
			Width:    fr.Width,
			Height:   fr.Height,
			Keyframe: fr.Keyframe,
			Payload:  string(fr.Data),
		})
	default:
		return fmt.Errorf("unknown frame variant %T", f)
	}
	return nil
}

func (s *sink) WriteAudio(ctx context.Context, buf *media.AudioBuffer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return media.ErrSinkClosed
	}
	s.audio = audioDocFromBuffer(buf)
	return nil
}

// Close flushes the track. The parameter-set flush is modeled by marking the
// first sample as a keyframe, which AddFrame already did.
func (s *sink) Close(ctx context.Context) error {
	if s.closed {
		return media.ErrSinkClosed
	}
	s.closed = true
	return nil
}

func (s *sink) marshal() ([]byte, error) {
	doc := clipDoc{
		Magic:     docMagic,
		Codec:     s.cfg.Codec,
		FrameRate: s.cfg.FrameRate,
		Bitrate:   s.cfg.Bitrate,
		Width:     s.cfg.Width,
		Height:    s.cfg.Height,
		Samples:   s.samples,
		Audio:     s.audio,
	}
	if len(s.samples) > 0 {
		first := s.samples[0]
		last := s.samples[len(s.samples)-1]
		doc.TrackDuration = last.TS + last.Dur - first.TS
		doc.ContainerDuration = doc.TrackDuration
		if doc.Width == 0 {
			doc.Width = first.Width
			doc.Height = first.Height
		}
	}
	return json.Marshal(doc)
}
