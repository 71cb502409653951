// Package blobcache holds the most recent encoded clip per segment,
// content-addressed by the configuration that produced it.
package blobcache

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/shrimbly/easy-peasy-ease/internal/metrics"
	"github.com/shrimbly/easy-peasy-ease/pkg/models"
)

// Entry is one cached clip with the hash of the configuration that built it.
type Entry struct {
	Hash uint64
	Clip []byte
}

// Cache maps a segment identity to its most recently produced clip. A hit
// requires the stored hash to match the segment's current configuration;
// a stale entry behaves like a miss.
type Cache struct {
	entries *lru.Cache[string, Entry]
}

// New creates a cache bounded to the given number of segments. Eviction
// drops the least recently touched segment whole.
func New(size int) (*Cache, error) {
	entries, err := lru.New[string, Entry](size)
	if err != nil {
		return nil, fmt.Errorf("blob cache init failed: %w", err)
	}
	return &Cache{entries: entries}, nil
}

// Key computes the content hash for one segment's configuration: identity,
// target duration, easing selection and the source byte size as a proxy for
// source-content identity. Equal configurations always hash equal, so a
// rebuild with identical inputs is a guaranteed hit.
func Key(seg models.Segment) uint64 {
	d := xxhash.New()
	fmt.Fprintf(d, "%s|%.9f|%s|%d", seg.ID, seg.TargetDuration, seg.Easing.String(), len(seg.Source))
	return d.Sum64()
}

// Get returns the cached clip for the segment if present and produced by
// the segment's current configuration.
func (c *Cache) Get(seg models.Segment) ([]byte, bool) {
	e, ok := c.entries.Get(seg.ID)
	if !ok || e.Hash != Key(seg) {
		metrics.CacheMissesTotal.Inc()
		return nil, false
	}
	metrics.CacheHitsTotal.Inc()
	return e.Clip, true
}

// Put stores the clip for the segment under its current configuration hash.
func (c *Cache) Put(seg models.Segment, clip []byte) {
	c.entries.Add(seg.ID, Entry{Hash: Key(seg), Clip: clip})
}

// Covers reports whether every given segment has a fresh cached clip. The
// medium finalize path requires full coverage; partial coverage is treated
// the same as none.
func (c *Cache) Covers(segments []models.Segment) bool {
	if len(segments) == 0 {
		return false
	}
	if c.entries.Len() < len(segments) {
		return false
	}
	for _, seg := range segments {
		e, ok := c.entries.Peek(seg.ID)
		if !ok || e.Hash != Key(seg) {
			return false
		}
	}
	return true
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.entries.Purge()
}

// Len returns the number of cached segments.
func (c *Cache) Len() int {
	return c.entries.Len()
}
