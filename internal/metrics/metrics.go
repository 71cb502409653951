package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Resampler Metrics
	FramesEmittedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "easecut_frames_emitted_total",
			Help: "Total number of output frames handed to the encoder",
		},
	)

	FramesSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "easecut_frames_skipped_total",
			Help: "Total number of output slots skipped due to undecodable source frames",
		},
	)

	// Segment Metrics
	SegmentsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "easecut_segments_processed_total",
			Help: "Total number of segments run through the full pipeline",
		},
		[]string{"status"},
	)

	SegmentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "easecut_segment_duration_seconds",
			Help:    "Per-segment full pipeline duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	// Tier Metrics
	TierSelectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "easecut_tier_selected_total",
			Help: "Total number of times each encode tier was selected",
		},
		[]string{"tier"},
	)

	// Cache Metrics
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "easecut_cache_hits_total",
			Help: "Total number of per-segment blob cache hits",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "easecut_cache_misses_total",
			Help: "Total number of per-segment blob cache misses",
		},
	)

	// Finalize Metrics
	FinalizePathTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "easecut_finalize_path_total",
			Help: "Total number of finalize calls per selected path",
		},
		[]string{"path"},
	)

	FinalizeFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "easecut_finalize_fallbacks_total",
			Help: "Total number of remux-path failures that fell through to a fuller path",
		},
	)

	FinalizeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "easecut_finalize_duration_seconds",
			Help:    "Finalize call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"path"},
	)

	FinalizeInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "easecut_finalize_in_progress",
			Help: "Whether a finalize call is currently running",
		},
	)
)
