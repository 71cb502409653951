package stitcher

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

// encodedClip builds a finalized clip with the given geometry and codec.
func encodedClip(t *testing.T, eng *mediatest.Engine, frames, w, h int, codec string) []byte {
	t.Helper()
	ctx := context.Background()
	sink, err := eng.OpenEncoder(ctx, media.EncodeConfig{
		Width: w, Height: h, Codec: codec, FrameRate: 30, PassThrough: true,
	})
	require.NoError(t, err)
	for i := 0; i < frames; i++ {
		pkt := media.NewEncodedPacket(
			[]byte(fmt.Sprintf("%s-%dx%d-%03d", codec, w, h, i)), i == 0, w, h, float64(i)/30, 1.0/30)
		require.NoError(t, sink.AddFrame(ctx, pkt))
	}
	require.NoError(t, sink.Close(ctx))
	data, err := eng.FinalizeContainer(ctx, sink)
	require.NoError(t, err)
	return data
}

func TestStitch(t *testing.T) {
	ctx := context.Background()
	log := logging.Nop()

	t.Run("ConcatenatesInOrderWithOffsets", func(t *testing.T) {
		eng := mediatest.NewEngine()
		s := NewStitcher(eng, log)

		// Three 1.5s clips.
		clips := [][]byte{
			encodedClip(t, eng, 45, 1280, 720, "avc1.4d401f"),
			encodedClip(t, eng, 45, 1280, 720, "avc1.4d401f"),
			encodedClip(t, eng, 45, 1280, 720, "avc1.4d401f"),
		}
		out, err := s.Stitch(ctx, clips, nil)
		require.NoError(t, err)

		info, err := mediatest.Inspect(out)
		require.NoError(t, err)
		require.Len(t, info.Samples, 135)

		// Timestamps are strictly increasing across clip boundaries.
		for i := 1; i < len(info.Samples); i++ {
			assert.Greater(t, info.Samples[i].TS, info.Samples[i-1].TS, "sample %d", i)
		}
		// The second clip starts one clip-duration in.
		assert.InDelta(t, 1.5, info.Samples[45].TS, 1e-6)
		assert.InDelta(t, 3.0, info.Samples[90].TS, 1e-6)
		// Total duration is the sum of the parts.
		assert.InDelta(t, 4.5, info.Duration, 1.0/30)
	})

	t.Run("DimensionChangeTolerated", func(t *testing.T) {
		eng := mediatest.NewEngine()
		s := NewStitcher(eng, log)

		clips := [][]byte{
			encodedClip(t, eng, 30, 1920, 1080, "avc1.4d401f"),
			encodedClip(t, eng, 30, 1280, 720, "avc1.4d401f"),
		}
		out, err := s.Stitch(ctx, clips, nil)
		require.NoError(t, err)

		info, err := mediatest.Inspect(out)
		require.NoError(t, err)
		require.Len(t, info.Samples, 60)
		assert.Equal(t, 1920, info.Samples[0].Width)
		assert.Equal(t, 1280, info.Samples[30].Width)
	})

	t.Run("CodecMismatchFatalBeforeAnyWork", func(t *testing.T) {
		eng := mediatest.NewEngine()
		s := NewStitcher(eng, log)

		clips := [][]byte{
			encodedClip(t, eng, 30, 1280, 720, "avc1.4d401f"),
			encodedClip(t, eng, 30, 1280, 720, "hvc1.1.6.L120.90"),
		}
		_, err := s.Stitch(ctx, clips, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCodecMismatch)
		assert.Contains(t, err.Error(), "hvc1.1.6.L120.90")
		assert.Equal(t, 0, eng.OpenHandles())
	})

	t.Run("MuxesAudioAcrossWholeResult", func(t *testing.T) {
		eng := mediatest.NewEngine()
		s := NewStitcher(eng, log)

		clips := [][]byte{
			encodedClip(t, eng, 45, 1280, 720, "avc1.4d401f"),
			encodedClip(t, eng, 45, 1280, 720, "avc1.4d401f"),
		}
		samples := make([]float32, 3000)
		buf := &media.AudioBuffer{Samples: samples, SampleRate: 1000, Channels: 1}

		out, err := s.Stitch(ctx, clips, buf)
		require.NoError(t, err)

		info, err := mediatest.Inspect(out)
		require.NoError(t, err)
		assert.True(t, info.HasAudio)
		assert.InDelta(t, 3.0, info.AudioDuration, 1e-9)
	})

	t.Run("EmptyClipListRejected", func(t *testing.T) {
		eng := mediatest.NewEngine()
		s := NewStitcher(eng, log)
		_, err := s.Stitch(ctx, nil, nil)
		assert.ErrorIs(t, err, ErrNoClips)
	})

	t.Run("FallsBackToContainerConcatenation", func(t *testing.T) {
		eng := mediatest.NewEngine()

		clips := [][]byte{
			encodedClip(t, eng, 30, 1280, 720, "avc1.4d401f"),
			encodedClip(t, eng, 30, 1280, 720, "avc1.4d401f"),
		}
		eng.DisablePacketDemux = true
		s := NewStitcher(eng, log)

		samples := make([]float32, 2000)
		buf := &media.AudioBuffer{Samples: samples, SampleRate: 1000, Channels: 1}
		out, err := s.Stitch(ctx, clips, buf)
		require.NoError(t, err)

		info, err := mediatest.Inspect(out)
		require.NoError(t, err)
		assert.Len(t, info.Samples, 60)
		assert.True(t, info.HasAudio)
	})

	t.Run("HandlesClosedOnFailure", func(t *testing.T) {
		eng := mediatest.NewEngine()
		clips := [][]byte{
			encodedClip(t, eng, 30, 1280, 720, "avc1.4d401f"),
			encodedClip(t, eng, 30, 1280, 720, "avc1.4d401f"),
		}
		eng.FailPassThrough = true
		s := NewStitcher(eng, log)

		_, err := s.Stitch(ctx, clips, nil)
		require.Error(t, err)
		assert.Equal(t, 0, eng.OpenHandles())
	})
}
