package media

import "sync/atomic"

// Frame is the closed variant of values an encoder sink accepts: a decoded
// RawFrame or an already-encoded EncodedPacket. Both carry a presentation
// timestamp and duration in seconds, can be cloned, and must be released
// exactly once when their owner is done with them. Decode-side buffers are
// scarce, often off-heap resources: release is a scoped obligation on every
// exit path, not optional cleanup.
type Frame interface {
	Timestamp() float64
	Duration() float64
	SetTimestamp(ts float64)
	SetDuration(d float64)

	// Clone returns an independently releasable copy. Cloning is how a held
	// frame is emitted more than once without double-release hazards.
	Clone() Frame

	// Release frees the decode-side buffer backing the frame. Safe to call
	// at most once per frame; engines may reuse the buffer immediately after.
	Release()

	frame() // closed variant marker
}

// RawFrame is one decoded video frame.
type RawFrame struct {
	Data   []byte
	Width  int
	Height int

	ts        float64
	dur       float64
	released  atomic.Bool
	onRelease func()
}

// NewRawFrame builds a decoded frame. onRelease, if non-nil, runs once when
// the frame is released; engines use it to return the backing buffer.
func NewRawFrame(data []byte, width, height int, ts, dur float64, onRelease func()) *RawFrame {
	return &RawFrame{
		Data:      data,
		Width:     width,
		Height:    height,
		ts:        ts,
		dur:       dur,
		onRelease: onRelease,
	}
}

func (f *RawFrame) Timestamp() float64      { return f.ts }
func (f *RawFrame) Duration() float64       { return f.dur }
func (f *RawFrame) SetTimestamp(ts float64) { f.ts = ts }
func (f *RawFrame) SetDuration(d float64)   { f.dur = d }

// Clone copies the pixel data so the clone's lifetime is independent of the
// original's decode buffer.
func (f *RawFrame) Clone() Frame {
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	return &RawFrame{
		Data:   data,
		Width:  f.Width,
		Height: f.Height,
		ts:     f.ts,
		dur:    f.dur,
	}
}

// Release frees the decode buffer. Subsequent Release calls are no-ops.
func (f *RawFrame) Release() {
	if f.released.CompareAndSwap(false, true) && f.onRelease != nil {
		f.onRelease()
	}
}

// Released reports whether the frame has been released.
func (f *RawFrame) Released() bool { return f.released.Load() }

func (f *RawFrame) frame() {}

// EncodedPacket is one encoded video sample, copied between containers
// without re-encoding.
type EncodedPacket struct {
	Data     []byte
	Keyframe bool
	Width    int
	Height   int

	ts  float64
	dur float64
}

// NewEncodedPacket builds an encoded packet.
func NewEncodedPacket(data []byte, keyframe bool, width, height int, ts, dur float64) *EncodedPacket {
	return &EncodedPacket{
		Data:     data,
		Keyframe: keyframe,
		Width:    width,
		Height:   height,
		ts:       ts,
		dur:      dur,
	}
}

func (p *EncodedPacket) Timestamp() float64      { return p.ts }
func (p *EncodedPacket) Duration() float64       { return p.dur }
func (p *EncodedPacket) SetTimestamp(ts float64) { p.ts = ts }
func (p *EncodedPacket) SetDuration(d float64)   { p.dur = d }

// Clone copies the packet payload.
func (p *EncodedPacket) Clone() Frame {
	data := make([]byte, len(p.Data))
	copy(data, p.Data)
	return &EncodedPacket{
		Data:     data,
		Keyframe: p.Keyframe,
		Width:    p.Width,
		Height:   p.Height,
		ts:       p.ts,
		dur:      p.dur,
	}
}

// Release is a no-op: packet payloads are plain heap bytes, not decode buffers.
func (p *EncodedPacket) Release() {}

func (p *EncodedPacket) frame() {}
