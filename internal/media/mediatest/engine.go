// Package mediatest provides a deterministic in-memory engine implementing
// the media boundary. Containers are JSON documents describing synthetic
// clips; decoding synthesizes frames, encoding records the samples it was
// handed. The engine keeps open-handle and live-frame accounting and offers
// fault injection so pipeline behavior can be tested without a device
// decoder.
package mediatest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shrimbly/easy-peasy-ease/internal/media"
)

// Engine is the fake decode/encode engine. The zero value is not usable;
// call NewEngine. Fault-injection fields may be set before use.
type Engine struct {
	// RandomAccess controls whether containers report random-access decode
	// support. Defaults to true.
	RandomAccess bool

	// SupportFunc decides ProbeEncodeSupport. Nil means everything is
	// supported.
	SupportFunc func(cfg media.EncodeConfig) bool

	// FailPassThrough makes pass-through sinks fail on the first AddFrame,
	// simulating a remux failure.
	FailPassThrough bool

	// DisablePacketDemux makes DemuxPackets report no packet access, forcing
	// callers onto the container-level capabilities.
	DisablePacketDemux bool

	mu           sync.Mutex
	failDecode   map[int]bool
	openHandles  int
	liveFrames   int
	decodeCounts map[int]int
}

// NewEngine creates a fake engine with random access enabled and no faults.
func NewEngine() *Engine {
	return &Engine{
		RandomAccess: true,
		failDecode:   make(map[int]bool),
		decodeCounts: make(map[int]int),
	}
}

// FailDecodeAt marks source frame indices as undecodable in every clip.
func (e *Engine) FailDecodeAt(indices ...int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, i := range indices {
		e.failDecode[i] = true
	}
}

// OpenHandles returns the number of currently open container handles.
func (e *Engine) OpenHandles() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.openHandles
}

// LiveFrames returns the number of decoded frames not yet released.
func (e *Engine) LiveFrames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.liveFrames
}

// DecodeCount returns how many times the given source frame index was decoded.
func (e *Engine) DecodeCount(index int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.decodeCounts[index]
}

// OpenContainer implements media.Engine.
func (e *Engine) OpenContainer(ctx context.Context, data []byte) (media.Container, error) {
	doc, err := parseDoc(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", media.ErrUnsupportedContainer, err)
	}
	e.mu.Lock()
	e.openHandles++
	e.mu.Unlock()
	return &container{eng: e, doc: doc}, nil
}

// ProbeEncodeSupport implements media.Engine.
func (e *Engine) ProbeEncodeSupport(ctx context.Context, cfg media.EncodeConfig) (bool, error) {
	if e.SupportFunc == nil {
		return true, nil
	}
	return e.SupportFunc(cfg), nil
}

// OpenEncoder implements media.Engine.
func (e *Engine) OpenEncoder(ctx context.Context, cfg media.EncodeConfig) (media.Sink, error) {
	if !cfg.PassThrough && (cfg.Width <= 0 || cfg.Height <= 0) {
		return nil, fmt.Errorf("encoder config has no dimensions")
	}
	return &sink{eng: e, cfg: cfg}, nil
}

// FinalizeContainer implements media.Engine.
func (e *Engine) FinalizeContainer(ctx context.Context, s media.Sink) ([]byte, error) {
	sk, ok := s.(*sink)
	if !ok {
		return nil, fmt.Errorf("sink was not opened by this engine")
	}
	if !sk.closed {
		return nil, fmt.Errorf("sink must be closed before the container is finalized")
	}
	return sk.marshal()
}

// ConcatContainers implements media.Concatenator for engines configured
// without packet demux.
func (e *Engine) ConcatContainers(ctx context.Context, clips [][]byte) ([]byte, error) {
	out := clipDoc{Magic: docMagic}
	var offset float64
	for i, data := range clips {
		doc, err := parseDoc(data)
		if err != nil {
			return nil, fmt.Errorf("clip %d: %w", i, media.ErrUnsupportedContainer)
		}
		if i == 0 {
			out.Codec = doc.Codec
			out.Width = doc.Width
			out.Height = doc.Height
			out.FrameRate = doc.FrameRate
			out.Bitrate = doc.Bitrate
		} else if doc.Codec != out.Codec {
			return nil, fmt.Errorf("clip %d codec %q does not match %q", i, doc.Codec, out.Codec)
		}
		for _, s := range doc.Samples {
			s.TS += offset
			out.Samples = append(out.Samples, s)
		}
		offset += doc.clipDuration()
	}
	out.TrackDuration = offset
	out.ContainerDuration = offset
	return json.Marshal(out)
}

// ReplaceAudio implements media.AudioReplacer.
func (e *Engine) ReplaceAudio(ctx context.Context, video []byte, audio *media.AudioBuffer) ([]byte, error) {
	doc, err := parseDoc(video)
	if err != nil {
		return nil, media.ErrUnsupportedContainer
	}
	if e.FailPassThrough {
		return nil, fmt.Errorf("injected pass-through failure")
	}
	doc.Audio = audioDocFromBuffer(audio)
	return json.Marshal(*doc)
}

func (e *Engine) trackDecode(index int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.decodeCounts[index]++
}

func (e *Engine) frameBorn() {
	e.mu.Lock()
	e.liveFrames++
	e.mu.Unlock()
}

func (e *Engine) frameReleased() {
	e.mu.Lock()
	e.liveFrames--
	e.mu.Unlock()
}

func (e *Engine) handleClosed() {
	e.mu.Lock()
	e.openHandles--
	e.mu.Unlock()
}

func (e *Engine) shouldFailDecode(index int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failDecode[index]
}
