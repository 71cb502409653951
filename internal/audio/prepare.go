// Package audio prepares soundtrack buffers for the stitcher and remuxes
// audio into finished video containers without touching the video stream.
package audio

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/shrimbly/easy-peasy-ease/internal/logging"
	"github.com/shrimbly/easy-peasy-ease/internal/media"
)

// ErrNoAudioSource means prepare was called without source bytes.
var ErrNoAudioSource = errors.New("no audio source provided")

// Preparer decodes an audio source and shapes it to a target duration.
type Preparer struct {
	engine media.Engine
	log    *logging.Logger
}

// NewPreparer creates a Preparer backed by the given engine.
func NewPreparer(engine media.Engine, log *logging.Logger) *Preparer {
	return &Preparer{engine: engine, log: log}
}

// PrepareOptions shape the output buffer.
type PrepareOptions struct {
	// TargetDuration is the exact length of the output in seconds.
	TargetDuration float64

	// Offset shifts the source: positive inserts that much silence at the
	// head, negative skips that much audio from the head.
	Offset float64

	// FadeIn and FadeOut are linear gain ramp lengths in seconds. When their
	// sum exceeds the target duration both are scaled down proportionally.
	FadeIn  float64
	FadeOut float64
}

// Prepare decodes the source fully, applies the head offset, loops the
// result to fill the target duration or trims it to fit, and applies the
// fade ramps. The returned buffer is exactly TargetDuration long.
func (p *Preparer) Prepare(ctx context.Context, source []byte, opts PrepareOptions) (*media.AudioBuffer, error) {
	if len(source) == 0 {
		return nil, ErrNoAudioSource
	}
	if opts.TargetDuration <= 0 {
		return nil, fmt.Errorf("audio target duration must be > 0, got %v", opts.TargetDuration)
	}

	c, err := p.engine.OpenContainer(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("open audio source failed: %w", err)
	}
	defer func() {
		if cerr := c.Close(); cerr != nil {
			p.log.LogCleanupError("audio container", cerr)
		}
	}()

	buf, err := c.DecodeAudio(ctx)
	if err != nil {
		return nil, fmt.Errorf("decode audio failed: %w", err)
	}
	if buf.FrameCount() == 0 {
		return nil, fmt.Errorf("audio source decoded to zero samples")
	}

	out := applyOffset(buf, opts.Offset)
	out = fitToDuration(out, opts.TargetDuration)
	applyFades(out, opts.FadeIn, opts.FadeOut)

	p.log.Debugf("prepared audio: %.3fs at %d Hz, %d channels (offset %.2fs, fades %.2fs/%.2fs)",
		out.Duration(), out.SampleRate, out.Channels, opts.Offset, opts.FadeIn, opts.FadeOut)
	return out, nil
}

// applyOffset shifts the buffer head. Positive offsets prepend silence,
// negative offsets drop samples. Shifting everything away leaves an empty
// buffer, which fitToDuration then fills with silence.
func applyOffset(buf *media.AudioBuffer, offset float64) *media.AudioBuffer {
	if offset == 0 {
		return buf
	}
	frames := int(math.Round(math.Abs(offset) * float64(buf.SampleRate)))
	n := frames * buf.Channels

	if offset > 0 {
		samples := make([]float32, n+len(buf.Samples))
		copy(samples[n:], buf.Samples)
		return &media.AudioBuffer{Samples: samples, SampleRate: buf.SampleRate, Channels: buf.Channels}
	}

	if n >= len(buf.Samples) {
		return &media.AudioBuffer{Samples: nil, SampleRate: buf.SampleRate, Channels: buf.Channels}
	}
	return &media.AudioBuffer{Samples: buf.Samples[n:], SampleRate: buf.SampleRate, Channels: buf.Channels}
}

// fitToDuration loops the buffer from its start until the target is covered,
// then trims to the exact frame count. An empty input yields silence.
func fitToDuration(buf *media.AudioBuffer, target float64) *media.AudioBuffer {
	want := int(math.Round(target*float64(buf.SampleRate))) * buf.Channels
	samples := make([]float32, want)

	if len(buf.Samples) > 0 {
		for off := 0; off < want; off += len(buf.Samples) {
			copy(samples[off:], buf.Samples)
		}
	}
	return &media.AudioBuffer{Samples: samples, SampleRate: buf.SampleRate, Channels: buf.Channels}
}

// applyFades applies linear gain ramps in place. When the combined ramp
// length exceeds the buffer the two are scaled down proportionally so they
// exactly meet in the middle.
func applyFades(buf *media.AudioBuffer, fadeIn, fadeOut float64) {
	if fadeIn <= 0 && fadeOut <= 0 {
		return
	}
	if fadeIn < 0 {
		fadeIn = 0
	}
	if fadeOut < 0 {
		fadeOut = 0
	}

	total := buf.Duration()
	if sum := fadeIn + fadeOut; sum > total && sum > 0 {
		scale := total / sum
		fadeIn *= scale
		fadeOut *= scale
	}

	frames := buf.FrameCount()
	inFrames := int(math.Round(fadeIn * float64(buf.SampleRate)))
	outFrames := int(math.Round(fadeOut * float64(buf.SampleRate)))

	for f := 0; f < inFrames && f < frames; f++ {
		gain := float32(f) / float32(inFrames)
		for ch := 0; ch < buf.Channels; ch++ {
			buf.Samples[f*buf.Channels+ch] *= gain
		}
	}
	for f := 0; f < outFrames && f < frames; f++ {
		gain := float32(f) / float32(outFrames)
		idx := frames - 1 - f
		for ch := 0; ch < buf.Channels; ch++ {
			buf.Samples[idx*buf.Channels+ch] *= gain
		}
	}
}
