package models

// FinalizeReason says what changed since the last successful render. It is
// the primary input to the orchestrator's path routing.
type FinalizeReason string

// Finalize reasons.
const (
	ReasonSegmentChange FinalizeReason = "segment-change"
	ReasonAudioFile     FinalizeReason = "audio-file"
	ReasonAudioFade     FinalizeReason = "audio-fade"
)

// AudioRequest carries the background audio source and its mix settings.
type AudioRequest struct {
	Source  []byte  `json:"-"`
	Offset  float64 `json:"offset"`   // seconds; positive inserts head silence, negative skips source audio
	FadeIn  float64 `json:"fade_in"`  // seconds
	FadeOut float64 `json:"fade_out"` // seconds
}

// Descriptor returns the audio descriptor recorded on the final artifact.
func (a *AudioRequest) Descriptor() *AudioDescriptor {
	if a == nil {
		return nil
	}
	return &AudioDescriptor{
		SourceSize: int64(len(a.Source)),
		Offset:     a.Offset,
		FadeIn:     a.FadeIn,
		FadeOut:    a.FadeOut,
	}
}

// FinalizeContext is the transient input to one finalize call. It is not
// persisted anywhere.
type FinalizeContext struct {
	Reason   FinalizeReason `json:"reason"`
	Previous *FinalVideo    `json:"-"`
	Audio    *AudioRequest  `json:"audio,omitempty"`
}
