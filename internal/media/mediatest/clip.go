package mediatest

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/shrimbly/easy-peasy-ease/internal/media"
)

const docMagic = "mediatest-clip"

// clipDoc is the synthetic container payload. Raw source clips carry a
// FrameCount and synthesize frames on decode; encoded outputs carry the
// recorded Samples.
type clipDoc struct {
	Magic             string      `json:"magic"`
	Width             int         `json:"width"`
	Height            int         `json:"height"`
	Rotation          int         `json:"rotation"`
	TrackDuration     float64     `json:"track_duration"`
	ContainerDuration float64     `json:"container_duration"`
	Bitrate           int64       `json:"bitrate"`
	FrameRate         float64     `json:"frame_rate"`
	Codec             string      `json:"codec"`
	FrameCount        int         `json:"frame_count"`
	NoVideo           bool        `json:"no_video,omitempty"`
	Samples           []sampleDoc `json:"samples,omitempty"`
	Audio             *audioDoc   `json:"audio,omitempty"`
}

type sampleDoc struct {
	TS       float64 `json:"ts"`
	Dur      float64 `json:"dur"`
	Width    int     `json:"w"`
	Height   int     `json:"h"`
	Keyframe bool    `json:"key"`
	Payload  string  `json:"payload"`
}

type audioDoc struct {
	SampleRate int       `json:"sample_rate"`
	Channels   int       `json:"channels"`
	Samples    []float32 `json:"samples"`
}

func (d *clipDoc) clipDuration() float64 {
	if d.TrackDuration > 0 {
		return d.TrackDuration
	}
	if len(d.Samples) > 0 {
		last := d.Samples[len(d.Samples)-1]
		return last.TS + last.Dur
	}
	return d.ContainerDuration
}

func (d *clipDoc) decodableFrames() int {
	if len(d.Samples) > 0 {
		return len(d.Samples)
	}
	return d.FrameCount
}

func parseDoc(data []byte) (*clipDoc, error) {
	var doc clipDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Magic != docMagic {
		return nil, fmt.Errorf("not a mediatest clip")
	}
	return &doc, nil
}

func audioDocFromBuffer(buf *media.AudioBuffer) *audioDoc {
	if buf == nil {
		return nil
	}
	samples := make([]float32, len(buf.Samples))
	copy(samples, buf.Samples)
	return &audioDoc{SampleRate: buf.SampleRate, Channels: buf.Channels, Samples: samples}
}

// AudioSpec describes a synthetic audio track.
type AudioSpec struct {
	Duration   float64
	SampleRate int
	Channels   int
}

// ClipSpec describes a synthetic source clip.
type ClipSpec struct {
	Duration  float64
	FrameRate float64
	Width     int
	Height    int
	Bitrate   int64
	Rotation  int
	Codec     string

	// FrameCount overrides the derived decodable frame total. Leave zero to
	// derive it from Duration and FrameRate.
	FrameCount int

	// ZeroFrames makes the clip report metadata normally but decode nothing.
	ZeroFrames bool

	// Omit* drop individual metadata fields to exercise probe fallbacks.
	OmitTrackDuration     bool
	OmitContainerDuration bool
	OmitBitrate           bool
	OmitFrameRate         bool

	NoVideo bool
	Audio   *AudioSpec
}

// NewClip builds the container bytes for a synthetic clip.
func NewClip(spec ClipSpec) []byte {
	if spec.FrameRate == 0 {
		spec.FrameRate = 30
	}
	if spec.Width == 0 {
		spec.Width = 1920
	}
	if spec.Height == 0 {
		spec.Height = 1080
	}
	if spec.Codec == "" {
		spec.Codec = "avc1.64002a"
	}
	frames := spec.FrameCount
	if frames == 0 && !spec.ZeroFrames {
		frames = int(math.Round(spec.Duration * spec.FrameRate))
	}
	if spec.ZeroFrames {
		frames = 0
	}

	doc := clipDoc{
		Magic:             docMagic,
		Width:             spec.Width,
		Height:            spec.Height,
		Rotation:          spec.Rotation,
		TrackDuration:     spec.Duration,
		ContainerDuration: spec.Duration,
		Bitrate:           spec.Bitrate,
		FrameRate:         spec.FrameRate,
		Codec:             spec.Codec,
		FrameCount:        frames,
		NoVideo:           spec.NoVideo,
	}
	if spec.OmitTrackDuration {
		doc.TrackDuration = 0
	}
	if spec.OmitContainerDuration {
		doc.ContainerDuration = 0
	}
	if spec.OmitBitrate {
		doc.Bitrate = 0
	}
	if spec.OmitFrameRate {
		doc.FrameRate = 0
	}
	if spec.Audio != nil {
		n := int(spec.Audio.Duration * float64(spec.Audio.SampleRate*spec.Audio.Channels))
		samples := make([]float32, n)
		for i := range samples {
			samples[i] = 0.5
		}
		doc.Audio = &audioDoc{
			SampleRate: spec.Audio.SampleRate,
			Channels:   spec.Audio.Channels,
			Samples:    samples,
		}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return data
}

// NewAudioClip builds an audio-only container.
func NewAudioClip(duration float64, sampleRate, channels int) []byte {
	return NewClip(ClipSpec{
		Duration: duration,
		NoVideo:  true,
		Audio:    &AudioSpec{Duration: duration, SampleRate: sampleRate, Channels: channels},
	})
}

// Sample is one recorded output sample, exposed for test assertions.
type Sample struct {
	TS       float64
	Dur      float64
	Width    int
	Height   int
	Keyframe bool
	Payload  string
}

// ClipInfo is the parsed view of a container, exposed for test assertions.
type ClipInfo struct {
	Codec         string
	Width         int
	Height        int
	FrameRate     float64
	Bitrate       int64
	Duration      float64
	Samples       []Sample
	HasAudio      bool
	AudioDuration float64
	AudioSamples  []float32
}

// Inspect parses container bytes produced by this package.
func Inspect(data []byte) (*ClipInfo, error) {
	doc, err := parseDoc(data)
	if err != nil {
		return nil, err
	}
	info := &ClipInfo{
		Codec:     doc.Codec,
		Width:     doc.Width,
		Height:    doc.Height,
		FrameRate: doc.FrameRate,
		Bitrate:   doc.Bitrate,
		Duration:  doc.clipDuration(),
		HasAudio:  doc.Audio != nil,
	}
	for _, s := range doc.Samples {
		info.Samples = append(info.Samples, Sample{
			TS:       s.TS,
			Dur:      s.Dur,
			Width:    s.Width,
			Height:   s.Height,
			Keyframe: s.Keyframe,
			Payload:  s.Payload,
		})
	}
	if doc.Audio != nil {
		buf := media.AudioBuffer{
			Samples:    doc.Audio.Samples,
			SampleRate: doc.Audio.SampleRate,
			Channels:   doc.Audio.Channels,
		}
		info.AudioDuration = buf.Duration()
		info.AudioSamples = doc.Audio.Samples
	}
	return info, nil
}
