// Package cache stores finished plans per video so repeated requests skip
// transcript fetching and boundary planning.
package cache

import (
	"context"
	"time"

	"github.com/MimeLyc/video-sections/internal/section"
)

// Entry is one cached plan. Sections carry their content so quiz material
// can be generated later without the transcript.
type Entry struct {
	Sections       []section.Section `json:"sections"`
	TranscriptText string            `json:"transcript_text"`
	Method         string            `json:"method,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Cache is keyed by video ID. Concurrent writers for the same key are
// allowed; the last Put wins.
type Cache interface {
	Get(ctx context.Context, videoID string) (Entry, bool, error)
	Put(ctx context.Context, videoID string, entry Entry) error
	Evict(ctx context.Context, videoID string) error
}

// Sweeper is implemented by backends that expire entries themselves.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

func expired(createdAt time.Time, ttl time.Duration, now time.Time) bool {
	return ttl > 0 && !createdAt.IsZero() && !now.Before(createdAt.Add(ttl))
}

func cloneEntry(e Entry) Entry {
	out := e
	out.Sections = make([]section.Section, len(e.Sections))
	copy(out.Sections, e.Sections)
	return out
}
