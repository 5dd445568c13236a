package ingest

import (
	"context"
	"time"
)

// Platform identifies which network an item came from.
type Platform string

const (
	PlatformYouTube Platform = "youtube"
	PlatformReddit  Platform = "reddit"
	PlatformX       Platform = "x"
)

// Metrics is a point-in-time engagement counter map, e.g.
// {"views": 1200, "likes": 80, "comments": 14}. Keys are
// platform-specific; missing counters read as zero.
type Metrics map[string]int64

// Get returns the counter for key, or 0 when absent.
func (m Metrics) Get(key string) int64 {
	if m == nil {
		return 0
	}
	return m[key]
}

// Item is the standardized content record every connector produces.
// Unique per (platform, external id).
type Item struct {
	ID           string    `json:"id" db:"id"`
	Platform     Platform  `json:"platform" db:"platform"`
	ExternalID   string    `json:"external_id" db:"external_id"`
	URL          string    `json:"url" db:"url"`
	Title        string    `json:"title" db:"title"`
	Content      string    `json:"content" db:"content"`
	Author       string    `json:"author" db:"author"`
	ChannelTitle string    `json:"channel_title" db:"channel_title"`
	PublishedAt  time.Time `json:"published_at" db:"published_at"`
	FetchedAt    time.Time `json:"fetched_at" db:"fetched_at"`
	Metrics      Metrics   `json:"metrics" db:"-"`
	RawPayload   string    `json:"raw_payload,omitempty" db:"raw_payload"`
	MetricsJSON  string    `json:"-" db:"metrics"`
}

// Source is the interface platform connectors implement. Connectors
// live outside this module; the pipeline only reads their persisted
// output.
type Source interface {
	Name() Platform
	Collect(ctx context.Context) ([]Item, error)
}

// AllPlatforms returns every known platform.
func AllPlatforms() []Platform {
	return []Platform{PlatformYouTube, PlatformReddit, PlatformX}
}
