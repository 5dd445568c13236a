package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pulseboardhq/pulseboard/internal/store"
)

// feedCardEvents caps how many recent events each window's feed shows.
const feedCardEvents = 50

// cardMeta is the presentation metadata embedded in a feed card.
type cardMeta struct {
	Author    string `json:"author,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Platform  string `json:"platform"`
	Published string `json:"published"`
}

// BuildFeedCards precomputes "what's happening" cards for every window
// from the most recently active events. An event whose primary item
// cannot be loaded is logged and skipped rather than failing the pass.
func (e *Engine) BuildFeedCards(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()

	events, err := e.store.ListEventsByLastSeen(ctx, feedCardEvents)
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}

	written := 0
	for _, w := range e.cfg.Windows {
		for _, ev := range events {
			if ev.LastSeenAt.Before(now.Add(-w.Duration)) {
				continue
			}

			item, err := e.store.GetItem(ctx, ev.PrimaryItemID)
			if err != nil {
				e.log.WithError(err).WithField("event", ev.ID).
					Warn("feed card: primary item missing, skipping")
				continue
			}

			meta, _ := json.Marshal(cardMeta{
				Author:    item.Author,
				Channel:   item.ChannelTitle,
				Platform:  string(item.Platform),
				Published: item.PublishedAt.UTC().Format(time.RFC3339),
			})

			card := &store.FeedCard{
				ID:            uuid.NewString(),
				Window:        w.Name,
				EventID:       ev.ID,
				PrimaryItemID: item.ID,
				Source:        string(item.Platform),
				Title:         ev.EventTitle,
				Meta:          string(meta),
				Why:           whyLine(ev.RelatedCount),
				URL:           item.URL,
				RelatedCount:  ev.RelatedCount,
				ComputedAt:    now,
			}
			if err := e.store.UpsertFeedCard(ctx, card); err != nil {
				return written, fmt.Errorf("upsert feed card: %w", err)
			}
			written++
		}
	}

	e.log.WithFields(logrus.Fields{
		"cards":  written,
		"events": len(events),
	}).Info("feed cards rebuilt")
	return written, nil
}

// whyLine turns the cluster size into a one-line editorial hint.
func whyLine(relatedCount int) string {
	switch {
	case relatedCount >= 5:
		return "Clip spike driving momentum."
	case relatedCount >= 3:
		return "Multiple channels picked this up."
	default:
		return "New clip gaining traction."
	}
}
