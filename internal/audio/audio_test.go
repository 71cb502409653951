package audio

import (
	"context"
	"fmt"
	"testing"

	"github.com/shrimbly/easy-peasy-ease/internal/logging"
	"github.com/shrimbly/easy-peasy-ease/internal/media"
	"github.com/shrimbly/easy-peasy-ease/internal/media/mediatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepare(t *testing.T) {
	ctx := context.Background()
	log := logging.Nop()

	t.Run("LoopsShortSourceToFill", func(t *testing.T) {
		eng := mediatest.NewEngine()
		p := NewPreparer(eng, log)

		src := mediatest.NewAudioClip(1.0, 1000, 2)
		buf, err := p.Prepare(ctx, src, PrepareOptions{TargetDuration: 3.5})
		require.NoError(t, err)

		assert.InDelta(t, 3.5, buf.Duration(), 1e-9)
		assert.Equal(t, 3500, buf.FrameCount())
		// The source decodes to constant 0.5 samples; looping preserves that.
		for i, s := range buf.Samples {
			require.Equal(t, float32(0.5), s, "sample %d", i)
		}
	})

	t.Run("TrimsLongSourceToFit", func(t *testing.T) {
		eng := mediatest.NewEngine()
		p := NewPreparer(eng, log)

		src := mediatest.NewAudioClip(5.0, 1000, 1)
		buf, err := p.Prepare(ctx, src, PrepareOptions{TargetDuration: 2.0})
		require.NoError(t, err)
		assert.Equal(t, 2000, buf.FrameCount())
	})

	t.Run("PositiveOffsetInsertsSilence", func(t *testing.T) {
		eng := mediatest.NewEngine()
		p := NewPreparer(eng, log)

		src := mediatest.NewAudioClip(2.0, 1000, 1)
		buf, err := p.Prepare(ctx, src, PrepareOptions{TargetDuration: 2.0, Offset: 0.5})
		require.NoError(t, err)

		require.Equal(t, 2000, buf.FrameCount())
		for i := 0; i < 500; i++ {
			require.Equal(t, float32(0), buf.Samples[i], "head sample %d should be silent", i)
		}
		assert.Equal(t, float32(0.5), buf.Samples[500])
	})

	t.Run("NegativeOffsetBeyondSourceYieldsSilence", func(t *testing.T) {
		eng := mediatest.NewEngine()
		p := NewPreparer(eng, log)

		src := mediatest.NewAudioClip(1.0, 1000, 1)
		buf, err := p.Prepare(ctx, src, PrepareOptions{TargetDuration: 1.0, Offset: -3.0})
		require.NoError(t, err)

		require.Equal(t, 1000, buf.FrameCount())
		for i, s := range buf.Samples {
			require.Equal(t, float32(0), s, "sample %d", i)
		}
	})

	t.Run("LinearFadeRamps", func(t *testing.T) {
		eng := mediatest.NewEngine()
		p := NewPreparer(eng, log)

		src := mediatest.NewAudioClip(2.0, 1000, 1)
		buf, err := p.Prepare(ctx, src, PrepareOptions{TargetDuration: 2.0, FadeIn: 0.5, FadeOut: 0.5})
		require.NoError(t, err)

		assert.Equal(t, float32(0), buf.Samples[0])
		assert.Equal(t, float32(0), buf.Samples[len(buf.Samples)-1])
		// Mid-buffer samples are outside both ramps.
		assert.Equal(t, float32(0.5), buf.Samples[1000])
		// Half way into the fade-in the gain is about 0.5.
		assert.InDelta(t, 0.25, float64(buf.Samples[250]), 0.01)
	})

	t.Run("OverlongFadesScaledToMeet", func(t *testing.T) {
		eng := mediatest.NewEngine()
		p := NewPreparer(eng, log)

		src := mediatest.NewAudioClip(2.0, 1000, 1)
		// 3s + 3s of fades over a 2s buffer: scaled to 1s each.
		buf, err := p.Prepare(ctx, src, PrepareOptions{TargetDuration: 2.0, FadeIn: 3.0, FadeOut: 3.0})
		require.NoError(t, err)

		assert.Equal(t, float32(0), buf.Samples[0])
		assert.Equal(t, float32(0), buf.Samples[len(buf.Samples)-1])
		// The ramps meet in the middle at nearly full gain.
		assert.InDelta(t, 0.5, float64(buf.Samples[999]), 0.01)
		assert.InDelta(t, 0.5, float64(buf.Samples[1000]), 0.01)
	})

	t.Run("MissingSourceRejected", func(t *testing.T) {
		eng := mediatest.NewEngine()
		p := NewPreparer(eng, log)
		_, err := p.Prepare(ctx, nil, PrepareOptions{TargetDuration: 1})
		assert.ErrorIs(t, err, ErrNoAudioSource)
	})

	t.Run("VideoOnlySourceRejected", func(t *testing.T) {
		eng := mediatest.NewEngine()
		p := NewPreparer(eng, log)
		src := mediatest.NewClip(mediatest.ClipSpec{Duration: 2, FrameRate: 30})
		_, err := p.Prepare(ctx, src, PrepareOptions{TargetDuration: 1})
		assert.ErrorIs(t, err, media.ErrNoAudioTrack)
	})

	t.Run("HandleClosedOnEveryPath", func(t *testing.T) {
		eng := mediatest.NewEngine()
		p := NewPreparer(eng, log)

		_, err := p.Prepare(ctx, mediatest.NewAudioClip(1.0, 1000, 1), PrepareOptions{TargetDuration: 1})
		require.NoError(t, err)
		_, err = p.Prepare(ctx, mediatest.NewClip(mediatest.ClipSpec{Duration: 1}), PrepareOptions{TargetDuration: 1})
		require.Error(t, err)

		assert.Equal(t, 0, eng.OpenHandles())
	})
}

// finishedVideo builds a finalized container the way the pipeline would,
// with recognizable per-packet payloads.
func finishedVideo(t *testing.T, eng *mediatest.Engine, frames int) []byte {
	t.Helper()
	ctx := context.Background()
	sink, err := eng.OpenEncoder(ctx, media.EncodeConfig{
		Width: 1280, Height: 720, Codec: "avc1.4d401f", FrameRate: 30, PassThrough: true,
	})
	require.NoError(t, err)
	for i := 0; i < frames; i++ {
		pkt := media.NewEncodedPacket(
			[]byte(fmt.Sprintf("pkt-%03d", i)), i == 0, 1280, 720, float64(i)/30, 1.0/30)
		require.NoError(t, sink.AddFrame(ctx, pkt))
	}
	require.NoError(t, sink.Close(ctx))
	data, err := eng.FinalizeContainer(ctx, sink)
	require.NoError(t, err)
	return data
}

func TestRemux(t *testing.T) {
	ctx := context.Background()
	log := logging.Nop()

	newBuffer := func(dur float64) *media.AudioBuffer {
		n := int(dur * 1000)
		samples := make([]float32, n)
		for i := range samples {
			samples[i] = 0.25
		}
		return &media.AudioBuffer{Samples: samples, SampleRate: 1000, Channels: 1}
	}

	t.Run("CopiesEveryVideoPacketAndReplacesAudio", func(t *testing.T) {
		eng := mediatest.NewEngine()
		r := NewRemuxer(eng, log)

		video := finishedVideo(t, eng, 60)
		out, err := r.Remux(ctx, video, newBuffer(2.0))
		require.NoError(t, err)

		before, err := mediatest.Inspect(video)
		require.NoError(t, err)
		after, err := mediatest.Inspect(out)
		require.NoError(t, err)

		require.Len(t, after.Samples, len(before.Samples))
		for i := range before.Samples {
			assert.Equal(t, before.Samples[i].Payload, after.Samples[i].Payload, "packet %d", i)
			assert.Equal(t, before.Samples[i].TS, after.Samples[i].TS, "packet %d", i)
		}
		assert.True(t, after.HasAudio)
		assert.InDelta(t, 2.0, after.AudioDuration, 1e-9)
	})

	t.Run("FallsBackToContainerLevelReplacement", func(t *testing.T) {
		eng := mediatest.NewEngine()
		video := finishedVideo(t, eng, 30)

		eng.DisablePacketDemux = true
		r := NewRemuxer(eng, log)

		out, err := r.Remux(ctx, video, newBuffer(1.0))
		require.NoError(t, err)

		after, err := mediatest.Inspect(out)
		require.NoError(t, err)
		assert.True(t, after.HasAudio)
		assert.Len(t, after.Samples, 30)
	})

	t.Run("PassThroughFailureSurfaces", func(t *testing.T) {
		eng := mediatest.NewEngine()
		video := finishedVideo(t, eng, 30)

		eng.FailPassThrough = true
		r := NewRemuxer(eng, log)

		_, err := r.Remux(ctx, video, newBuffer(1.0))
		assert.Error(t, err)
		assert.Equal(t, 0, eng.OpenHandles())
	})

	t.Run("EmptyVideoRejected", func(t *testing.T) {
		eng := mediatest.NewEngine()
		r := NewRemuxer(eng, log)
		_, err := r.Remux(ctx, mediatest.NewClip(mediatest.ClipSpec{Duration: 1, ZeroFrames: true}), newBuffer(1.0))
		assert.Error(t, err)
	})
}
