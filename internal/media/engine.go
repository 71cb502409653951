// Package media defines the boundary to the decode/encode engine. The engine
// is consumed as a capability set: open a container, decode frames at
// arbitrary or sequential timestamps, probe encode support, and accept
// frames or packets into an output container. Implementations live behind
// these interfaces so the retiming core never touches a concrete decoder.
package media

import (
	"context"
	"errors"
)

// Sentinel errors of the engine boundary.
var (
	// ErrNoVideoTrack means the container has no decodable video track.
	ErrNoVideoTrack = errors.New("no video track found")

	// ErrNoAudioTrack means the container has no decodable audio track.
	ErrNoAudioTrack = errors.New("no audio track found")

	// ErrUnsupportedContainer means the bytes are not a container the engine understands.
	ErrUnsupportedContainer = errors.New("unsupported container format")

	// ErrHandleClosed is returned by every operation on a closed container
	// handle. Handles fail fast after Close rather than returning empty data.
	ErrHandleClosed = errors.New("container handle is closed")

	// ErrSinkClosed is returned when frames are added to a closed encoder sink.
	ErrSinkClosed = errors.New("encoder sink is closed")

	// ErrRandomAccessUnsupported is returned by DecodeFramesAt when the
	// container only exposes a forward sequential cursor.
	ErrRandomAccessUnsupported = errors.New("random access decode not supported")

	// ErrEndOfStream signals normal exhaustion of a frame or packet stream.
	ErrEndOfStream = errors.New("end of stream")
)

// Engine is the device decode/encode capability set. Engines are injected,
// never global: one Engine instance may serve many finalize calls, but a
// single container handle must not be driven by two pipelines at once.
type Engine interface {
	// OpenContainer parses the given bytes and returns a read handle.
	// A handle is good for one drain: callers open a fresh handle per pass.
	OpenContainer(ctx context.Context, data []byte) (Container, error)

	// ProbeEncodeSupport reports whether the device can encode the exact
	// width/height/bitrate/codec tuple.
	ProbeEncodeSupport(ctx context.Context, cfg EncodeConfig) (bool, error)

	// OpenEncoder opens an output sink for the given configuration.
	OpenEncoder(ctx context.Context, cfg EncodeConfig) (Sink, error)

	// FinalizeContainer closes out the sink's container and returns its
	// bytes. The sink must have been closed first.
	FinalizeContainer(ctx context.Context, sink Sink) ([]byte, error)
}

// Container is an open read handle on a source clip.
type Container interface {
	// TrackMetadata returns best-effort track information. Every field is
	// independently optional; a zero value means the probe came up empty.
	TrackMetadata(ctx context.Context) (TrackMetadata, error)

	// SupportsRandomAccess reports whether DecodeFramesAt works on this
	// handle. When false, only the sequential cursor is available.
	SupportsRandomAccess() bool

	// DecodeFramesAt returns one frame per requested timestamp, in request
	// order. An undecodable slot yields a nil frame, not an error. The
	// engine guarantees each underlying source packet is decoded at most
	// once even when several timestamps land on the same frame. The stream
	// is finite and not restartable.
	DecodeFramesAt(ctx context.Context, timestamps []float64) (FrameStream, error)

	// DecodeFramesSequential returns a forward-only cursor over the decodable
	// frames in [start, end). The stream is finite and not restartable.
	DecodeFramesSequential(ctx context.Context, start, end float64) (FrameStream, error)

	// DemuxPackets yields the encoded video packets without decoding them.
	// Engines without packet access return ErrRandomAccessUnsupported;
	// callers fall back to the engine's container-level capabilities.
	DemuxPackets(ctx context.Context) (PacketStream, error)

	// DecodeAudio decodes the audio track fully into one sample buffer.
	DecodeAudio(ctx context.Context) (*AudioBuffer, error)

	// Close releases the handle. Every subsequent operation returns
	// ErrHandleClosed.
	Close() error
}

// TrackMetadata is the best-effort probe result for a container.
type TrackMetadata struct {
	Duration          float64 // track-level duration in seconds, 0 if unknown
	ContainerDuration float64 // container-level duration, the fallback when the track has none
	Bitrate           int64   // measured average bits per second, 0 if unknown
	FrameRate         float64 // measured average frames per second, 0 if unknown
	Width             int
	Height            int
	Rotation          int // 0, 90, 180 or 270
	Codec             string
	HasAudio          bool
}

// FrameStream is a finite, non-restartable sequence of decoded frames.
// Next returns ErrEndOfStream when the sequence is exhausted. For streams
// produced by DecodeFramesAt, a (nil, nil) result marks an undecodable slot.
type FrameStream interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// PacketStream is a finite, non-restartable sequence of encoded packets.
// Next returns ErrEndOfStream when the sequence is exhausted.
type PacketStream interface {
	Next(ctx context.Context) (*EncodedPacket, error)
	Close() error
}

// EncodeConfig describes one output track configuration.
type EncodeConfig struct {
	Width     int
	Height    int
	Bitrate   int64
	Codec     string
	FrameRate float64

	// VariableDimensions configures the output track to accept samples whose
	// dimensions differ from the track defaults, needed when stitching
	// segments that negotiated different tiers.
	VariableDimensions bool

	// PassThrough makes the sink accept already-encoded packets and copy
	// them without re-encoding.
	PassThrough bool

	AudioSampleRate int
	AudioChannels   int
}

// Sink is an open encoder track. AddFrame accepts raw frames, or encoded
// packets when the sink was opened in pass-through mode. Close flushes any
// buffered track configuration (initial parameter sets) needed for correct
// random access; it must be called before FinalizeContainer.
type Sink interface {
	AddFrame(ctx context.Context, f Frame) error
	WriteAudio(ctx context.Context, buf *AudioBuffer) error
	Close(ctx context.Context) error
}

// Concatenator is an optional Engine capability: container-level
// concatenation with stream copy. Engines without packet demux implement
// this so the stitcher can still avoid a re-encode.
type Concatenator interface {
	ConcatContainers(ctx context.Context, clips [][]byte) ([]byte, error)
}

// AudioReplacer is an optional Engine capability: copy the video stream of a
// finished container byte-for-byte while replacing its audio track.
type AudioReplacer interface {
	ReplaceAudio(ctx context.Context, video []byte, audio *AudioBuffer) ([]byte, error)
}
