// Package ffmpegengine implements the media engine boundary on top of the
// ffmpeg and ffprobe binaries. Containers are staged as temporary files;
// frames cross the process boundary as raw rgb24 planes over pipes.
package ffmpegengine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/shrimbly/easy-peasy-ease/internal/logging"
	"github.com/shrimbly/easy-peasy-ease/internal/media"
)

// bytesPerPixel is the rgb24 pixel stride used on every decode/encode pipe.
const bytesPerPixel = 3

var (
	_ media.Engine        = (*Engine)(nil)
	_ media.Concatenator  = (*Engine)(nil)
	_ media.AudioReplacer = (*Engine)(nil)
)

// Engine runs ffmpeg and ffprobe as child processes.
type Engine struct {
	ffmpegPath  string
	ffprobePath string
	workDir     string
	log         *logging.Logger

	audioRate     int
	audioChannels int

	encodersOnce sync.Once
	encoders     map[string]bool
	encodersErr  error
}

// New creates an engine around the given binary paths. An empty path means
// the binary is resolved from PATH.
func New(ffmpegPath, ffprobePath string, log *logging.Logger) (*Engine, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	workDir, err := os.MkdirTemp("", "easecut-*")
	if err != nil {
		return nil, fmt.Errorf("engine work dir: %w", err)
	}
	return &Engine{
		ffmpegPath:    ffmpegPath,
		ffprobePath:   ffprobePath,
		workDir:       workDir,
		log:           log,
		audioRate:     defaultAudioRate,
		audioChannels: defaultAudioChannels,
	}, nil
}

// SetAudioFormat overrides the sample rate and channel count every decoded
// audio track is normalized to.
func (e *Engine) SetAudioFormat(rate, channels int) {
	if rate > 0 {
		e.audioRate = rate
	}
	if channels > 0 {
		e.audioChannels = channels
	}
}

// Close removes the engine's staging directory. Open handles keep their
// staged files alive until they close.
func (e *Engine) Close() error {
	return os.RemoveAll(e.workDir)
}

// stage writes container bytes to a temporary file and returns its path.
func (e *Engine) stage(pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp(e.workDir, pattern)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// OpenContainer stages the bytes and probes them. The handle owns the
// staged file and removes it on Close.
func (e *Engine) OpenContainer(ctx context.Context, data []byte) (media.Container, error) {
	if len(data) == 0 {
		return nil, media.ErrUnsupportedContainer
	}
	path, err := e.stage("src-*.bin", data)
	if err != nil {
		return nil, fmt.Errorf("stage container: %w", err)
	}

	meta, err := e.probe(ctx, path)
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	return &container{eng: e, path: path, meta: meta}, nil
}

// ProbeEncodeSupport reports whether an encoder for the codec profile is
// built into the local ffmpeg. The encoder list is probed once and cached.
func (e *Engine) ProbeEncodeSupport(ctx context.Context, cfg media.EncodeConfig) (bool, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width&1 == 1 || cfg.Height&1 == 1 {
		return false, nil
	}

	e.encodersOnce.Do(func() {
		e.encoders, e.encodersErr = e.listEncoders(ctx)
	})
	if e.encodersErr != nil {
		return false, e.encodersErr
	}

	enc := encoderFor(cfg.Codec)
	if enc == "" {
		return false, nil
	}
	return e.encoders[enc], nil
}

// listEncoders parses `ffmpeg -encoders` into a name set.
func (e *Engine) listEncoders(ctx context.Context) (map[string]bool, error) {
	cmd := exec.CommandContext(ctx, e.ffmpegPath, "-hide_banner", "-encoders")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg -encoders failed: %w, stderr: %s", err, stderr.String())
	}

	out := make(map[string]bool)
	for _, line := range strings.Split(stdout.String(), "\n") {
		fields := strings.Fields(line)
		// Encoder lines look like " V....D libx264  H.264 ...".
		if len(fields) >= 2 && strings.HasPrefix(fields[0], "V") {
			out[fields[1]] = true
		}
	}
	return out, nil
}

// encoderFor maps an RFC 6381 codec profile string to an ffmpeg encoder name.
func encoderFor(codec string) string {
	switch {
	case strings.HasPrefix(codec, "avc1"), strings.HasPrefix(codec, "avc3"), codec == "h264":
		return "libx264"
	case strings.HasPrefix(codec, "hvc1"), strings.HasPrefix(codec, "hev1"), codec == "hevc":
		return "libx265"
	case strings.HasPrefix(codec, "vp09"), codec == "vp9":
		return "libvpx-vp9"
	case strings.HasPrefix(codec, "av01"), codec == "av1":
		return "libaom-av1"
	default:
		return ""
	}
}

// runFFmpeg executes one ffmpeg invocation, surfacing stderr on failure.
func (e *Engine) runFFmpeg(ctx context.Context, args ...string) error {
	full := append([]string{"-hide_banner", "-y"}, args...)
	cmd := exec.CommandContext(ctx, e.ffmpegPath, full...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, tail(stderr.String()))
	}
	return nil
}

// tail keeps error output readable; ffmpeg banners run long.
func tail(s string) string {
	s = strings.TrimSpace(s)
	lines := strings.Split(s, "\n")
	if len(lines) <= 6 {
		return s
	}
	return strings.Join(lines[len(lines)-6:], "\n")
}

// ConcatContainers joins finished clips with the concat demuxer and stream
// copy; nothing is re-encoded. All clips must share codec parameters.
func (e *Engine) ConcatContainers(ctx context.Context, clips [][]byte) ([]byte, error) {
	if len(clips) == 0 {
		return nil, fmt.Errorf("nothing to concatenate")
	}

	paths := make([]string, 0, len(clips))
	defer func() {
		for _, p := range paths {
			os.Remove(p)
		}
	}()
	var list strings.Builder
	for _, clip := range clips {
		p, err := e.stage("concat-*.mp4", clip)
		if err != nil {
			return nil, fmt.Errorf("stage clip: %w", err)
		}
		paths = append(paths, p)
		fmt.Fprintf(&list, "file '%s'\n", p)
	}

	listPath, err := e.stage("concat-*.txt", []byte(list.String()))
	if err != nil {
		return nil, fmt.Errorf("stage concat list: %w", err)
	}
	defer os.Remove(listPath)

	outPath := filepath.Join(e.workDir, fmt.Sprintf("concat-out-%d.mp4", len(paths)))
	defer os.Remove(outPath)
	if err := e.runFFmpeg(ctx,
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-movflags", "+faststart",
		outPath,
	); err != nil {
		return nil, err
	}
	return os.ReadFile(outPath)
}

// ReplaceAudio copies the video stream of a finished container while
// swapping in the given audio track.
func (e *Engine) ReplaceAudio(ctx context.Context, video []byte, buf *media.AudioBuffer) ([]byte, error) {
	videoPath, err := e.stage("remux-*.mp4", video)
	if err != nil {
		return nil, fmt.Errorf("stage video: %w", err)
	}
	defer os.Remove(videoPath)

	audioPath, err := e.stage("remux-*.f32le", samplesToBytes(buf.Samples))
	if err != nil {
		return nil, fmt.Errorf("stage audio: %w", err)
	}
	defer os.Remove(audioPath)

	outPath := videoPath + ".out.mp4"
	defer os.Remove(outPath)
	if err := e.runFFmpeg(ctx,
		"-i", videoPath,
		"-f", "f32le",
		"-ar", fmt.Sprint(buf.SampleRate),
		"-ac", fmt.Sprint(buf.Channels),
		"-i", audioPath,
		"-map", "0:v:0", "-map", "1:a:0",
		"-c:v", "copy", "-c:a", "aac",
		"-shortest",
		"-movflags", "+faststart",
		outPath,
	); err != nil {
		return nil, err
	}
	return os.ReadFile(outPath)
}
