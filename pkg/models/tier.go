package models

// EncodeTier is one candidate output configuration. Tiers are tried in
// ladder order, most preferred first; the negotiator picks exactly one
// per segment per pass.
type EncodeTier struct {
	Name       string `json:"name"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Bitrate    int64  `json:"bitrate"`     // bits per second
	MinBitrate int64  `json:"min_bitrate"` // floor when capping to the measured source rate
	Codec      string `json:"codec"`       // codec profile string probed against the device
}

// Standard tiers, mirroring common delivery ladders. The "original" tier is
// synthesized by the negotiator from the source dimensions and sits above
// all of these.
var (
	// Tier2160p is 4K/UHD with a High profile requiring the most decoder capability.
	Tier2160p = EncodeTier{
		Name:       "2160p",
		Width:      3840,
		Height:     2160,
		Bitrate:    20000000,
		MinBitrate: 12000000,
		Codec:      "avc1.640033",
	}

	// Tier1440p is QHD.
	Tier1440p = EncodeTier{
		Name:       "1440p",
		Width:      2560,
		Height:     1440,
		Bitrate:    12000000,
		MinBitrate: 8000000,
		Codec:      "avc1.640032",
	}

	// Tier1080p is Full HD.
	Tier1080p = EncodeTier{
		Name:       "1080p",
		Width:      1920,
		Height:     1080,
		Bitrate:    6500000,
		MinBitrate: 4000000,
		Codec:      "avc1.64002a",
	}

	// Tier720p is HD with a Main profile.
	Tier720p = EncodeTier{
		Name:       "720p",
		Width:      1280,
		Height:     720,
		Bitrate:    3500000,
		MinBitrate: 2000000,
		Codec:      "avc1.4d401f",
	}

	// Tier480p is the most conservative tier: bounded resolution, Baseline profile.
	Tier480p = EncodeTier{
		Name:       "480p",
		Width:      854,
		Height:     480,
		Bitrate:    1500000,
		MinBitrate: 800000,
		Codec:      "avc1.42001f",
	}
)

// TierLadder returns the fixed descending ladder probed after the synthesized
// original-resolution tier.
func TierLadder() []EncodeTier {
	return []EncodeTier{Tier2160p, Tier1440p, Tier1080p, Tier720p, Tier480p}
}
