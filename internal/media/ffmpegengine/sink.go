package ffmpegengine

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/shrimbly/easy-peasy-ease/internal/media"
)

// OpenEncoder opens a rawvideo-fed encode process writing an mp4. The child
// is started lazily on the first frame, because the pipe's input geometry is
// the decoded source geometry, not the output tier's; the output is scaled.
//
// Pass-through sinks are not available through the exec boundary; packet
// copy paths route through ConcatContainers and ReplaceAudio instead.
func (e *Engine) OpenEncoder(ctx context.Context, cfg media.EncodeConfig) (media.Sink, error) {
	if cfg.PassThrough {
		return nil, fmt.Errorf("pass-through encoding is not supported by the exec engine: %w",
			media.ErrRandomAccessUnsupported)
	}
	enc := encoderFor(cfg.Codec)
	if enc == "" {
		return nil, fmt.Errorf("no encoder for codec %q", cfg.Codec)
	}
	if cfg.FrameRate <= 0 {
		return nil, fmt.Errorf("encoder frame rate must be > 0, got %v", cfg.FrameRate)
	}

	outPath := filepath.Join(e.workDir, fmt.Sprintf("enc-%s.mp4", uuid.New().String()))
	return &sink{eng: e, cfg: cfg, encoder: enc, outPath: outPath}, nil
}

type sink struct {
	eng     *Engine
	cfg     media.EncodeConfig
	encoder string
	outPath string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer

	inWidth  int
	inHeight int
	audio    *media.AudioBuffer
	frames   int
	closed   bool
}

// start launches the encode child sized to the incoming frame geometry.
func (s *sink) start(ctx context.Context, w, h int) error {
	args := []string{
		"-hide_banner", "-nostats", "-v", "error", "-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", w, h),
		"-r", fmt.Sprintf("%.6f", s.cfg.FrameRate),
		"-i", "pipe:0",
		"-vf", fmt.Sprintf("scale=%d:%d", s.cfg.Width, s.cfg.Height),
		"-c:v", s.encoder,
		"-b:v", fmt.Sprint(s.cfg.Bitrate),
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		s.outPath,
	}

	cmd := exec.CommandContext(ctx, s.eng.ffmpegPath, args...)
	cmd.Stderr = &s.stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start encoder: %w", err)
	}
	s.cmd = cmd
	s.stdin = stdin
	s.inWidth, s.inHeight = w, h
	return nil
}

func (s *sink) AddFrame(ctx context.Context, f media.Frame) error {
	if s.closed {
		return media.ErrSinkClosed
	}
	raw, ok := f.(*media.RawFrame)
	if !ok {
		return fmt.Errorf("exec sink accepts raw frames only")
	}
	if raw.Released() {
		return fmt.Errorf("frame added after release")
	}

	if s.cmd == nil {
		if err := s.start(ctx, raw.Width, raw.Height); err != nil {
			return err
		}
	}
	if raw.Width != s.inWidth || raw.Height != s.inHeight {
		return fmt.Errorf("frame geometry %dx%d does not match pipe %dx%d",
			raw.Width, raw.Height, s.inWidth, s.inHeight)
	}

	if _, err := s.stdin.Write(raw.Data); err != nil {
		return fmt.Errorf("encoder pipe write: %w, stderr: %s", err, tail(s.stderr.String()))
	}
	s.frames++
	return nil
}

func (s *sink) WriteAudio(ctx context.Context, buf *media.AudioBuffer) error {
	if s.closed {
		return media.ErrSinkClosed
	}
	s.audio = buf
	return nil
}

// Close ends the rawvideo stream and waits for the container trailer to be
// written. Must precede FinalizeContainer.
func (s *sink) Close(ctx context.Context) error {
	if s.closed {
		return fmt.Errorf("sink closed twice: %w", media.ErrSinkClosed)
	}
	s.closed = true
	if s.cmd == nil {
		return nil
	}
	if err := s.stdin.Close(); err != nil {
		return fmt.Errorf("close encoder pipe: %w", err)
	}
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("encoder exited: %w, stderr: %s", err, tail(s.stderr.String()))
	}
	return nil
}

// FinalizeContainer reads back the finished clip, muxing the buffered audio
// over it when one was written.
func (e *Engine) FinalizeContainer(ctx context.Context, sk media.Sink) ([]byte, error) {
	s, ok := sk.(*sink)
	if !ok {
		return nil, fmt.Errorf("sink was not produced by this engine")
	}
	if !s.closed {
		return nil, fmt.Errorf("sink must be closed before finalize")
	}
	if s.frames == 0 {
		return nil, fmt.Errorf("no frames were encoded")
	}
	defer os.Remove(s.outPath)

	data, err := os.ReadFile(s.outPath)
	if err != nil {
		return nil, fmt.Errorf("read encoded output: %w", err)
	}
	if s.audio != nil {
		return e.ReplaceAudio(ctx, data, s.audio)
	}
	return data, nil
}

// samplesToBytes serializes interleaved float32 samples as little-endian
// f32le, the layout ffmpeg's pcm_f32le demuxer expects.
func samplesToBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

func bytesToSamples(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
