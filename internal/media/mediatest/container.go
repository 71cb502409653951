package mediatest

import (
	"context"
	"fmt"
	"sync"

	"github.com/shrimbly/easy-peasy-ease/internal/media"
)

// container is one open read handle. A handle serves at most one decode
// stream: a prior full drain invalidates the internal decode state, so a
// fresh handle must be opened per pass.
type container struct {
	eng *Engine
	doc *clipDoc

	mu         sync.Mutex
	closed     bool
	decodeUsed bool
}

func (c *container) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return media.ErrHandleClosed
	}
	return nil
}

func (c *container) claimDecode() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return media.ErrHandleClosed
	}
	if c.decodeUsed {
		return fmt.Errorf("decode state invalidated by a prior drain, open a fresh handle")
	}
	c.decodeUsed = true
	return nil
}

func (c *container) TrackMetadata(ctx context.Context) (media.TrackMetadata, error) {
	if err := c.checkOpen(); err != nil {
		return media.TrackMetadata{}, err
	}
	meta := media.TrackMetadata{
		Duration:          c.doc.TrackDuration,
		ContainerDuration: c.doc.ContainerDuration,
		Bitrate:           c.doc.Bitrate,
		FrameRate:         c.doc.FrameRate,
		HasAudio:          c.doc.Audio != nil,
	}
	if !c.doc.NoVideo {
		meta.Width = c.doc.Width
		meta.Height = c.doc.Height
		meta.Rotation = c.doc.Rotation
		meta.Codec = c.doc.Codec
	}
	return meta, nil
}

func (c *container) SupportsRandomAccess() bool {
	return c.eng.RandomAccess
}

// effectiveFPS returns the rate used to map timestamps to frame indices,
// even when the probeable frame rate was omitted.
func (c *container) effectiveFPS() float64 {
	if c.doc.FrameRate > 0 {
		return c.doc.FrameRate
	}
	if d := c.doc.clipDuration(); d > 0 && c.doc.decodableFrames() > 0 {
		return float64(c.doc.decodableFrames()) / d
	}
	return 30
}

func (c *container) DecodeFramesAt(ctx context.Context, timestamps []float64) (media.FrameStream, error) {
	if c.doc.NoVideo {
		return nil, media.ErrNoVideoTrack
	}
	if !c.eng.RandomAccess {
		return nil, media.ErrRandomAccessUnsupported
	}
	if err := c.claimDecode(); err != nil {
		return nil, err
	}

	total := c.doc.decodableFrames()
	fps := c.effectiveFPS()
	indices := make([]int, len(timestamps))
	for i, ts := range timestamps {
		idx := int(ts * fps)
		if idx < 0 {
			idx = 0
		}
		if idx >= total {
			idx = total - 1
		}
		indices[i] = idx
	}
	return &randomStream{c: c, indices: indices, decoded: make(map[int][]byte)}, nil
}

// randomStream serves requested timestamps in order, decoding each distinct
// source frame at most once.
type randomStream struct {
	c       *container
	indices []int
	pos     int
	decoded map[int][]byte
	closed  bool
}

func (s *randomStream) Next(ctx context.Context) (media.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed {
		return nil, media.ErrEndOfStream
	}
	if err := s.c.checkOpen(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.indices) {
		return nil, media.ErrEndOfStream
	}
	idx := s.indices[s.pos]
	s.pos++

	if idx < 0 || s.c.eng.shouldFailDecode(idx) {
		// Undecodable slot: one nil output per requested timestamp.
		return nil, nil
	}
	data, ok := s.decoded[idx]
	if !ok {
		data = frameData(idx)
		s.decoded[idx] = data
		s.c.eng.trackDecode(idx)
	}
	return s.c.newFrame(data, idx), nil
}

func (s *randomStream) Close() error {
	s.closed = true
	return nil
}

func (c *container) DecodeFramesSequential(ctx context.Context, start, end float64) (media.FrameStream, error) {
	if c.doc.NoVideo {
		return nil, media.ErrNoVideoTrack
	}
	if err := c.claimDecode(); err != nil {
		return nil, err
	}
	total := c.doc.decodableFrames()
	fps := c.effectiveFPS()
	startIdx := int(start * fps)
	if startIdx < 0 {
		startIdx = 0
	}
	endIdx := total
	if end > 0 {
		if n := int(end * fps); n < endIdx {
			endIdx = n
		}
	}
	return &sequentialStream{c: c, cursor: startIdx, end: endIdx}, nil
}

// sequentialStream is a forward-only cursor. Undecodable frames are skipped
// silently; they simply never appear on the cursor.
type sequentialStream struct {
	c      *container
	cursor int
	end    int
	closed bool
}

func (s *sequentialStream) Next(ctx context.Context) (media.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed {
		return nil, media.ErrEndOfStream
	}
	if err := s.c.checkOpen(); err != nil {
		return nil, err
	}
	for s.cursor < s.end {
		idx := s.cursor
		s.cursor++
		if s.c.eng.shouldFailDecode(idx) {
			continue
		}
		s.c.eng.trackDecode(idx)
		return s.c.newFrame(frameData(idx), idx), nil
	}
	return nil, media.ErrEndOfStream
}

func (s *sequentialStream) Close() error {
	s.closed = true
	return nil
}

func (c *container) DemuxPackets(ctx context.Context) (media.PacketStream, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if c.eng.DisablePacketDemux {
		return nil, media.ErrRandomAccessUnsupported
	}
	if len(c.doc.Samples) == 0 {
		return nil, fmt.Errorf("container carries no encoded samples")
	}
	return &packetStream{c: c}, nil
}

type packetStream struct {
	c      *container
	pos    int
	closed bool
}

func (s *packetStream) Next(ctx context.Context) (*media.EncodedPacket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed {
		return nil, media.ErrEndOfStream
	}
	if err := s.c.checkOpen(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.c.doc.Samples) {
		return nil, media.ErrEndOfStream
	}
	sm := s.c.doc.Samples[s.pos]
	s.pos++
	return media.NewEncodedPacket([]byte(sm.Payload), sm.Keyframe, sm.Width, sm.Height, sm.TS, sm.Dur), nil
}

func (s *packetStream) Close() error {
	s.closed = true
	return nil
}

func (c *container) DecodeAudio(ctx context.Context) (*media.AudioBuffer, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if c.doc.Audio == nil {
		return nil, media.ErrNoAudioTrack
	}
	samples := make([]float32, len(c.doc.Audio.Samples))
	copy(samples, c.doc.Audio.Samples)
	return &media.AudioBuffer{
		Samples:    samples,
		SampleRate: c.doc.Audio.SampleRate,
		Channels:   c.doc.Audio.Channels,
	}, nil
}

func (c *container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return media.ErrHandleClosed
	}
	c.closed = true
	c.eng.handleClosed()
	return nil
}

// newFrame wraps synthetic pixel data in a tracked RawFrame. For encoded
// docs driven through the decode path, sample timing wins over index timing.
func (c *container) newFrame(data []byte, idx int) media.Frame {
	fps := c.effectiveFPS()
	ts := float64(idx) / fps
	dur := 1 / fps
	w, h := c.doc.Width, c.doc.Height
	if idx < len(c.doc.Samples) {
		sm := c.doc.Samples[idx]
		ts, dur = sm.TS, sm.Dur
		w, h = sm.Width, sm.Height
	}
	c.eng.frameBorn()
	return media.NewRawFrame(data, w, h, ts, dur, c.eng.frameReleased)
}

func frameData(idx int) []byte {
	return []byte(fmt.Sprintf("frame-%06d", idx))
}
