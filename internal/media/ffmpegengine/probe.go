package ffmpegengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/shrimbly/easy-peasy-ease/internal/media"
)

// probeDoc mirrors the ffprobe -print_format json layout.
type probeDoc struct {
	Format  formatInfo   `json:"format"`
	Streams []streamInfo `json:"streams"`
}

type formatInfo struct {
	Duration string `json:"duration"`
	BitRate  string `json:"bit_rate"`
}

type streamInfo struct {
	CodecType    string            `json:"codec_type"`
	CodecName    string            `json:"codec_name"`
	CodecTag     string            `json:"codec_tag_string"`
	Profile      string            `json:"profile"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	Duration     string            `json:"duration"`
	BitRate      string            `json:"bit_rate"`
	AvgFrameRate string            `json:"avg_frame_rate"`
	Tags         map[string]string `json:"tags"`
	SideData     []sideData        `json:"side_data_list"`
}

type sideData struct {
	SideDataType string  `json:"side_data_type"`
	Rotation     float64 `json:"rotation"`
}

// probe runs ffprobe and folds the result into track metadata. Individual
// field probes are best-effort: a missing or unparseable field stays zero
// and the caller's fallback chain covers it.
func (e *Engine) probe(ctx context.Context, path string) (media.TrackMetadata, error) {
	cmd := exec.CommandContext(ctx, e.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return media.TrackMetadata{}, fmt.Errorf("%w: ffprobe failed: %s",
			media.ErrUnsupportedContainer, strings.TrimSpace(stderr.String()))
	}

	var doc probeDoc
	if err := json.Unmarshal(stdout.Bytes(), &doc); err != nil {
		return media.TrackMetadata{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var meta media.TrackMetadata
	if d, err := strconv.ParseFloat(doc.Format.Duration, 64); err == nil {
		meta.ContainerDuration = d
	}

	for _, s := range doc.Streams {
		switch s.CodecType {
		case "video":
			meta.Width = s.Width
			meta.Height = s.Height
			meta.Codec = codecString(s)
			meta.Rotation = rotationOf(s)
			if d, err := strconv.ParseFloat(s.Duration, 64); err == nil {
				meta.Duration = d
			}
			if br, err := strconv.ParseInt(s.BitRate, 10, 64); err == nil {
				meta.Bitrate = br
			}
			if fps := parseRational(s.AvgFrameRate); fps > 0 {
				meta.FrameRate = fps
			}
		case "audio":
			meta.HasAudio = true
		}
	}

	if meta.Bitrate == 0 {
		if br, err := strconv.ParseInt(doc.Format.BitRate, 10, 64); err == nil {
			meta.Bitrate = br
		}
	}
	if meta.Width == 0 && meta.Height == 0 && !meta.HasAudio {
		return media.TrackMetadata{}, media.ErrNoVideoTrack
	}
	return meta, nil
}

// codecString prefers the container's codec tag (already an RFC 6381 prefix
// for mp4) and falls back to the codec name.
func codecString(s streamInfo) string {
	if s.CodecTag != "" && s.CodecTag != "[0][0][0][0]" {
		return s.CodecTag
	}
	return s.CodecName
}

// rotationOf reads the display rotation from side data, falling back to the
// legacy rotate tag. Values are normalized into {0, 90, 180, 270}.
func rotationOf(s streamInfo) int {
	deg := 0.0
	found := false
	for _, sd := range s.SideData {
		if strings.Contains(sd.SideDataType, "Display Matrix") || sd.Rotation != 0 {
			deg = sd.Rotation
			found = true
			break
		}
	}
	if !found {
		if tag, ok := s.Tags["rotate"]; ok {
			if v, err := strconv.ParseFloat(tag, 64); err == nil {
				deg = v
			}
		}
	}

	r := int(math.Round(deg)) % 360
	if r < 0 {
		r += 360
	}
	switch r {
	case 90, 180, 270:
		return r
	default:
		return 0
	}
}

// parseRational parses ffprobe's "num/den" frame rates. "0/0" means unknown.
func parseRational(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
