package models

import "time"

// FinalVideo is the artifact of a successful finalize call. It is superseded
// by the next call, never mutated.
type FinalVideo struct {
	Data      []byte           `json:"-"`
	Size      int64            `json:"size"`
	CreatedAt time.Time        `json:"created_at"`
	Audio     *AudioDescriptor `json:"audio,omitempty"`
}

// AudioDescriptor records which audio settings produced the mixed track.
type AudioDescriptor struct {
	SourceSize int64   `json:"source_size"`
	Offset     float64 `json:"offset"`
	FadeIn     float64 `json:"fade_in"`
	FadeOut    float64 `json:"fade_out"`
}

// NewFinalVideo wraps produced container bytes with their creation metadata.
func NewFinalVideo(data []byte, audio *AudioDescriptor) *FinalVideo {
	return &FinalVideo{
		Data:      data,
		Size:      int64(len(data)),
		CreatedAt: time.Now(),
		Audio:     audio,
	}
}
