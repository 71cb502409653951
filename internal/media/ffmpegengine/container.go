package ffmpegengine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"

	"github.com/shrimbly/easy-peasy-ease/internal/media"
)

// defaultAudioRate and defaultAudioChannels normalize every decoded audio
// track unless the engine was configured otherwise.
const (
	defaultAudioRate     = 44100
	defaultAudioChannels = 2
)

type container struct {
	eng  *Engine
	path string
	meta media.TrackMetadata

	mu            sync.Mutex
	closed        bool
	decodeClaimed bool
}

func (c *container) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return media.ErrHandleClosed
	}
	return nil
}

// claimDecode enforces one decode drain per handle; a drained child process
// cannot be rewound, so a second drain needs a fresh handle.
func (c *container) claimDecode() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return media.ErrHandleClosed
	}
	if c.decodeClaimed {
		return fmt.Errorf("decode state invalidated by a prior drain, open a fresh handle")
	}
	c.decodeClaimed = true
	return nil
}

func (c *container) TrackMetadata(ctx context.Context) (media.TrackMetadata, error) {
	if err := c.checkOpen(); err != nil {
		return media.TrackMetadata{}, err
	}
	return c.meta, nil
}

// SupportsRandomAccess is true: timestamp lookups are served by a single
// sequential pass that captures each needed frame exactly once.
func (c *container) SupportsRandomAccess() bool { return true }

// frameDims are the decoded pipe dimensions. ffmpeg applies the display
// rotation itself, so a 90/270 source arrives side-swapped.
func (c *container) frameDims() (int, int) {
	w, h := c.meta.Width, c.meta.Height
	if c.meta.Rotation == 90 || c.meta.Rotation == 270 {
		w, h = h, w
	}
	return w, h
}

func (c *container) effectiveFPS() float64 {
	if c.meta.FrameRate > 0 {
		return c.meta.FrameRate
	}
	return 30
}

// startDecode launches the rawvideo decode process.
func (c *container) startDecode(ctx context.Context, start, end float64) (*exec.Cmd, io.ReadCloser, error) {
	args := []string{"-hide_banner", "-nostats", "-v", "error"}
	if start > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.6f", start))
	}
	args = append(args, "-i", c.path)
	if end > 0 {
		args = append(args, "-to", fmt.Sprintf("%.6f", end))
	}
	args = append(args,
		"-an",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, c.eng.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("start decode: %w", err)
	}
	return cmd, stdout, nil
}

// DecodeFramesAt resolves all requested timestamps in one sequential pass.
// Each needed source frame is read exactly once and duplicated requests are
// served from the captured copy, so holds and repeats cost no decode work.
func (c *container) DecodeFramesAt(ctx context.Context, timestamps []float64) (media.FrameStream, error) {
	if err := c.claimDecode(); err != nil {
		return nil, err
	}
	if c.meta.Width == 0 {
		return nil, media.ErrNoVideoTrack
	}

	fps := c.effectiveFPS()
	indices := make([]int, len(timestamps))
	needed := make(map[int][]byte, len(timestamps))
	for i, ts := range timestamps {
		idx := int(ts * fps)
		if idx < 0 {
			idx = 0
		}
		indices[i] = idx
		needed[idx] = nil
	}

	unique := make([]int, 0, len(needed))
	for idx := range needed {
		unique = append(unique, idx)
	}
	sort.Ints(unique)
	maxIdx := unique[len(unique)-1]

	cmd, stdout, err := c.startDecode(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	defer stdout.Close()

	w, h := c.frameDims()
	frameSize := w * h * bytesPerPixel
	buf := make([]byte, frameSize)
	for idx := 0; idx <= maxIdx; idx++ {
		if _, err := io.ReadFull(stdout, buf); err != nil {
			// Source ran out before the furthest mapped frame; the missing
			// tail indices stay nil and surface as undecodable slots.
			break
		}
		if _, ok := needed[idx]; ok {
			captured := make([]byte, frameSize)
			copy(captured, buf)
			needed[idx] = captured
		}
	}
	// Drain and reap regardless of how far the capture got.
	io.Copy(io.Discard, stdout)
	if err := cmd.Wait(); err != nil {
		c.eng.log.Debugf("decode process exited with error after capture: %v", err)
	}

	return &capturedStream{
		c:       c,
		indices: indices,
		frames:  needed,
		width:   w,
		height:  h,
		fps:     fps,
	}, nil
}

// capturedStream serves the captured frames in request order.
type capturedStream struct {
	c       *container
	indices []int
	frames  map[int][]byte
	width   int
	height  int
	fps     float64
	pos     int
	closed  bool
}

func (s *capturedStream) Next(ctx context.Context) (media.Frame, error) {
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

	data := s.frames[idx]
	if data == nil {
		return nil, nil
	}
	ts := float64(idx) / s.fps
	return media.NewRawFrame(data, s.width, s.height, ts, 1/s.fps, nil), nil
}

func (s *capturedStream) Close() error {
	s.closed = true
	s.frames = nil
	return nil
}

// DecodeFramesSequential streams frames straight off the child's stdout.
func (c *container) DecodeFramesSequential(ctx context.Context, start, end float64) (media.FrameStream, error) {
	if err := c.claimDecode(); err != nil {
		return nil, err
	}
	if c.meta.Width == 0 {
		return nil, media.ErrNoVideoTrack
	}

	cmd, stdout, err := c.startDecode(ctx, start, end)
	if err != nil {
		return nil, err
	}

	w, h := c.frameDims()
	fps := c.effectiveFPS()
	return &pipeStream{
		c:      c,
		cmd:    cmd,
		stdout: stdout,
		width:  w,
		height: h,
		fps:    fps,
		next:   int(start * fps),
	}, nil
}

// pipeStream is the forward-only cursor over a live decode process.
type pipeStream struct {
	c      *container
	cmd    *exec.Cmd
	stdout io.ReadCloser
	width  int
	height int
	fps    float64
	next   int
	done   bool
}

func (s *pipeStream) Next(ctx context.Context) (media.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.done {
		return nil, media.ErrEndOfStream
	}
	if err := s.c.checkOpen(); err != nil {
		return nil, err
	}

	data := make([]byte, s.width*s.height*bytesPerPixel)
	if _, err := io.ReadFull(s.stdout, data); err != nil {
		s.finish()
		return nil, media.ErrEndOfStream
	}

	idx := s.next
	s.next++
	return media.NewRawFrame(data, s.width, s.height, float64(idx)/s.fps, 1/s.fps, nil), nil
}

func (s *pipeStream) finish() {
	if s.done {
		return
	}
	s.done = true
	s.stdout.Close()
	if err := s.cmd.Wait(); err != nil {
		s.c.eng.log.Debugf("decode process exit: %v", err)
	}
}

func (s *pipeStream) Close() error {
	if !s.done {
		s.done = true
		s.stdout.Close()
		if s.cmd.Process != nil {
			s.cmd.Process.Kill()
		}
		s.cmd.Wait()
	}
	return nil
}

// DemuxPackets is not available through the exec boundary; callers route
// around it via the engine's container-level capabilities.
func (c *container) DemuxPackets(ctx context.Context) (media.PacketStream, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return nil, media.ErrRandomAccessUnsupported
}

// DecodeAudio decodes the audio track fully, normalized to interleaved
// 44.1 kHz stereo float samples.
func (c *container) DecodeAudio(ctx context.Context) (*media.AudioBuffer, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if !c.meta.HasAudio {
		return nil, media.ErrNoAudioTrack
	}

	cmd := exec.CommandContext(ctx, c.eng.ffmpegPath,
		"-hide_banner", "-nostats", "-v", "error",
		"-i", c.path,
		"-vn",
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ar", fmt.Sprint(c.eng.audioRate),
		"-ac", fmt.Sprint(c.eng.audioChannels),
		"pipe:1",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("audio decode failed: %w, stderr: %s", err, tail(stderr.String()))
	}

	return &media.AudioBuffer{
		Samples:    bytesToSamples(stdout.Bytes()),
		SampleRate: c.eng.audioRate,
		Channels:   c.eng.audioChannels,
	}, nil
}

func (c *container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return os.Remove(c.path)
}

var _ media.Container = (*container)(nil)
