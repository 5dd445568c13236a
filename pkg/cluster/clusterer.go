package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pulseboardhq/pulseboard/internal/store"
	"github.com/pulseboardhq/pulseboard/pkg/ingest"
)

// Config holds the clustering tunables. Thresholds are editorial
// knobs, not hard-coded business logic.
type Config struct {
	// JaccardThreshold is the minimum title similarity to attach an
	// item to an existing event instead of creating a new one.
	JaccardThreshold float64
	// Lookback bounds which events are attach candidates, relative to
	// their first_seen_at.
	Lookback time.Duration
	// TimeBucket is the event key bucket width.
	TimeBucket time.Duration
	// CandidateLimit caps how many candidate events one item is
	// compared against.
	CandidateLimit int
	// ItemLookback bounds which items a dedupe pass processes,
	// relative to their publish time.
	ItemLookback time.Duration
	// ItemLimit caps how many items one dedupe pass pulls from the
	// store.
	ItemLimit int
	// Stopwords is the normalizer's filler-word set.
	Stopwords map[string]bool
}

// DefaultConfig returns the clustering defaults.
func DefaultConfig() Config {
	return Config{
		JaccardThreshold: 0.55,
		Lookback:         12 * time.Hour,
		TimeBucket:       6 * time.Hour,
		CandidateLimit:   100,
		ItemLookback:     48 * time.Hour,
		ItemLimit:        5000,
		Stopwords:        StopwordSet(nil),
	}
}

// Clusterer groups near-duplicate items into events.
type Clusterer struct {
	store store.Store
	cfg   Config
	log   *logrus.Logger
}

// New creates a clusterer.
func New(s store.Store, cfg Config, log *logrus.Logger) *Clusterer {
	if cfg.JaccardThreshold == 0 {
		cfg = DefaultConfig()
	}
	if cfg.ItemLimit <= 0 {
		cfg.ItemLimit = DefaultConfig().ItemLimit
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Clusterer{store: s, cfg: cfg, log: log}
}

// Stats summarizes one dedupe pass.
type Stats struct {
	Processed int
	Created   int
	Attached  int
	Skipped   int
}

// DedupePass clusters every recent unclustered item. A malformed item
// is logged and skipped; it never aborts the batch. Re-running the
// pass over an unchanged item set is a no-op: linked items are skipped
// and duplicate links are ignored by the store.
func (c *Clusterer) DedupePass(ctx context.Context, now time.Time) (Stats, error) {
	var stats Stats

	items, err := c.store.ListItems(ctx, store.ItemListOpts{
		Since: now.Add(-c.cfg.ItemLookback),
		Limit: c.cfg.ItemLimit,
	})
	if err != nil {
		return stats, fmt.Errorf("list recent items: %w", err)
	}
	if len(items) == 0 {
		c.log.Info("dedupe: no items in window, nothing to cluster")
		return stats, nil
	}

	for i := range items {
		outcome, err := c.clusterItem(ctx, now, &items[i])
		if err != nil {
			c.log.WithError(err).WithField("item", items[i].ID).Warn("dedupe: skipping item")
			stats.Skipped++
			continue
		}
		stats.Processed++
		switch outcome {
		case outcomeCreated:
			stats.Created++
		case outcomeAttached:
			stats.Attached++
		case outcomeAlreadyLinked:
			stats.Skipped++
		}
	}

	c.log.WithFields(logrus.Fields{
		"processed": stats.Processed,
		"created":   stats.Created,
		"attached":  stats.Attached,
		"skipped":   stats.Skipped,
	}).Info("dedupe: pass complete")
	return stats, nil
}

type outcome int

const (
	outcomeAlreadyLinked outcome = iota
	outcomeCreated
	outcomeAttached
)

func (c *Clusterer) clusterItem(ctx context.Context, now time.Time, item *ingest.Item) (outcome, error) {
	// Every item belongs to at most one event.
	linked, err := c.store.ItemEventID(ctx, item.ID)
	if err != nil {
		return 0, err
	}
	if linked != "" {
		return outcomeAlreadyLinked, nil
	}

	tokens := NormalizeTitle(item.Title, item.ChannelTitle, c.cfg.Stopwords)
	if len(tokens) == 0 {
		// No clustering signal in the title: fall back to exact
		// (platform, external id) identity.
		return c.attachOrCreate(ctx, IdentityKey(item.Platform, item.ExternalID), item)
	}

	best, err := c.bestCandidate(ctx, now, tokens)
	if err != nil {
		return 0, err
	}
	if best != nil {
		if err := c.attach(ctx, best, item); err != nil {
			return 0, err
		}
		return outcomeAttached, nil
	}

	return c.attachOrCreate(ctx, EventKey(tokens, item.PublishedAt, c.cfg.TimeBucket), item)
}

// bestCandidate scans open events inside the lookback window and
// returns the best Jaccard match at or above the threshold, or nil.
// Candidates arrive newest-first and only a strictly greater similarity
// displaces the current best, so exact ties resolve to the most
// recently created event.
func (c *Clusterer) bestCandidate(ctx context.Context, now time.Time, tokens []string) (*store.Event, error) {
	candidates, err := c.store.ListCandidateEvents(ctx, now.Add(-c.cfg.Lookback), c.cfg.CandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("list candidate events: %w", err)
	}

	var best *store.Event
	bestSim := 0.0
	for i := range candidates {
		ev := &candidates[i]
		if ev.PrimaryItemID == "" {
			continue
		}
		primary, err := c.store.GetItem(ctx, ev.PrimaryItemID)
		if err != nil {
			c.log.WithError(err).WithField("event", ev.ID).Warn("dedupe: candidate primary item unreadable")
			continue
		}
		primaryTokens := NormalizeTitle(primary.Title, primary.ChannelTitle, c.cfg.Stopwords)

		sim := Jaccard(tokens, primaryTokens)
		if sim >= c.cfg.JaccardThreshold && sim > bestSim {
			best = ev
			bestSim = sim
		}
	}
	return best, nil
}

func (c *Clusterer) attach(ctx context.Context, ev *store.Event, item *ingest.Item) error {
	if err := c.store.AttachItem(ctx, ev.ID, item.ID, time.Now().UTC()); err != nil {
		return err
	}
	return c.store.RefreshEventAfterAttach(ctx, ev.ID, item.PublishedAt, item.Platform)
}

// attachOrCreate creates a new event under key, or attaches to the
// existing owner when a concurrent pass (or a key collision) got there
// first.
func (c *Clusterer) attachOrCreate(ctx context.Context, key string, item *ingest.Item) (outcome, error) {
	ev := &store.Event{
		ID:            uuid.NewString(),
		EventKey:      key,
		EventTitle:    item.Title,
		FirstSeenAt:   item.PublishedAt,
		LastSeenAt:    item.PublishedAt,
		PrimaryItemID: item.ID,
		Mix:           store.PlatformMix{item.Platform: true},
		ItemCount:     1,
		RelatedCount:  1,
	}

	created, err := c.store.CreateEvent(ctx, ev)
	if err != nil {
		return 0, err
	}
	if !created {
		existing, err := c.store.GetEventByKey(ctx, key)
		if err != nil {
			return 0, err
		}
		if existing == nil {
			return 0, fmt.Errorf("event key %s raced and vanished", key)
		}
		if err := c.attach(ctx, existing, item); err != nil {
			return 0, err
		}
		return outcomeAttached, nil
	}

	if err := c.store.AttachItem(ctx, ev.ID, item.ID, time.Now().UTC()); err != nil {
		return 0, err
	}
	return outcomeCreated, nil
}

// ReselectPrimaries re-picks each event's representative item by view
// velocity so a cluster is always fronted by its currently hottest
// member, not merely its first-seen one. Safe to run concurrently with
// clustering: plain last-writer-wins overwrite, no cross-event
// transaction.
func (c *Clusterer) ReselectPrimaries(ctx context.Context) (int, error) {
	events, err := c.store.ListEventsByLastSeen(ctx, 500)
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}

	updated := 0
	for i := range events {
		ev := &events[i]
		itemIDs, err := c.store.EventItemIDs(ctx, ev.ID)
		if err != nil {
			c.log.WithError(err).WithField("event", ev.ID).Warn("reselect: skipping event")
			continue
		}
		if len(itemIDs) == 0 {
			continue
		}

		bestID := ""
		bestVelocity := 0.0
		for _, itemID := range itemIDs {
			v, err := c.viewVelocity(ctx, itemID)
			if err != nil {
				c.log.WithError(err).WithField("item", itemID).Warn("reselect: skipping item")
				continue
			}
			if v > bestVelocity {
				bestVelocity = v
				bestID = itemID
			}
		}

		if bestID == "" || bestID == ev.PrimaryItemID {
			continue
		}
		item, err := c.store.GetItem(ctx, bestID)
		if err != nil {
			c.log.WithError(err).WithField("item", bestID).Warn("reselect: new primary unreadable")
			continue
		}
		if err := c.store.UpdatePrimaryItem(ctx, ev.ID, bestID, item.Title); err != nil {
			c.log.WithError(err).WithField("event", ev.ID).Warn("reselect: update failed")
			continue
		}
		updated++
	}
	return updated, nil
}

// viewVelocity is Δviews/Δminutes over the item's two most recent
// metric snapshots, falling back to the raw view count when fewer than
// two snapshots exist.
func (c *Clusterer) viewVelocity(ctx context.Context, itemID string) (float64, error) {
	snaps, err := c.store.LatestSnapshots(ctx, itemID, 2)
	if err != nil {
		return 0, err
	}
	switch len(snaps) {
	case 0:
		item, err := c.store.GetItem(ctx, itemID)
		if err != nil {
			return 0, err
		}
		return float64(item.Metrics.Get("views")), nil
	case 1:
		return float64(snaps[0].Metrics.Get("views")), nil
	default:
		minutes := snaps[0].CapturedAt.Sub(snaps[1].CapturedAt).Minutes()
		if minutes <= 0 {
			return 0, nil
		}
		delta := float64(snaps[0].Metrics.Get("views") - snaps[1].Metrics.Get("views"))
		return delta / minutes, nil
	}
}
