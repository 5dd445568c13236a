// Package pipeline runs the scoring passes: it aggregates per-entity
// engagement from stored items, computes scores and momentum, assigns
// ranks, and writes immutable snapshot rows.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pulseboardhq/pulseboard/internal/store"
	"github.com/pulseboardhq/pulseboard/pkg/alias"
	"github.com/pulseboardhq/pulseboard/pkg/ingest"
	"github.com/pulseboardhq/pulseboard/pkg/scoring"
)

// Config holds the scoring knobs.
type Config struct {
	Windows        []scoring.Window
	MicroSlice     time.Duration
	Formula        scoring.FormulaWeights
	Importance     map[ingest.Platform]float64
	ChannelWeights map[string]float64
	Drivers        scoring.Thresholds
}

// DefaultConfig returns the standard pipeline configuration.
func DefaultConfig() Config {
	return Config{
		Windows:    scoring.DefaultWindows(),
		MicroSlice: scoring.DefaultMicroMomentumSlice,
		Formula:    scoring.DefaultFormulaWeights(),
		Importance: scoring.DefaultImportance(),
		Drivers:    scoring.DefaultThresholds(),
	}
}

// Engine computes and persists ranked score snapshots.
type Engine struct {
	store store.Store
	cfg   Config
	rules []scoring.Rule
	log   *logrus.Logger
}

// New builds an engine. A zero-window config falls back to defaults.
func New(s store.Store, cfg Config, log *logrus.Logger) *Engine {
	if len(cfg.Windows) == 0 {
		cfg = DefaultConfig()
	}
	if cfg.MicroSlice <= 0 {
		cfg.MicroSlice = scoring.DefaultMicroMomentumSlice
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		store: s,
		cfg:   cfg,
		rules: scoring.Rules(cfg.Drivers),
		log:   log,
	}
}

// ScoreAll runs one scoring pass per configured window. A failed
// window does not block the others; the joined error is returned so
// the caller can still see what broke.
func (e *Engine) ScoreAll(ctx context.Context, now time.Time) error {
	var errs []error
	for _, w := range e.cfg.Windows {
		if _, err := e.ScorePass(ctx, w, now); err != nil {
			e.log.WithError(err).WithField("window", w.Name).Error("score pass failed")
			errs = append(errs, fmt.Errorf("window %s: %w", w.Name, err))
		}
	}
	return errors.Join(errs...)
}

// scored is one entity's computed result before rank assignment.
type scored struct {
	entity        store.Entity
	score         float64
	breakdown     map[ingest.Platform]float64
	momentum      float64
	microMomentum float64
	mentions      int
}

// ScorePass computes one window's snapshot and persists it under a
// single computed_at timestamp. It returns the number of rows written.
// Entities with zero mentions in the window are skipped entirely.
func (e *Engine) ScorePass(ctx context.Context, w scoring.Window, now time.Time) (int, error) {
	now = now.UTC()

	entities, err := e.store.ListEntities(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("list entities: %w", err)
	}
	if len(entities) == 0 {
		e.log.WithField("window", w.Name).Info("no enabled entities, skipping score pass")
		return 0, nil
	}

	aliases, err := e.store.ListAliases(ctx)
	if err != nil {
		return 0, fmt.Errorf("list aliases: %w", err)
	}
	idx := alias.NewIndex(aliases, e.log)

	// Fetch enough history to cover the window and both momentum
	// slice pairs, whichever reaches further back.
	lookback := w.Duration
	if d := 2 * w.MomentumSlice; d > lookback {
		lookback = d
	}
	items, err := e.store.ListItems(ctx, store.ItemListOpts{
		Since: now.Add(-lookback),
		Until: now,
		Limit: 5000,
	})
	if err != nil {
		return 0, fmt.Errorf("list items: %w", err)
	}
	if len(items) == 0 {
		e.log.WithField("window", w.Name).Info("no items in window, skipping score pass")
		return 0, nil
	}

	velocities := newVelocityCache(e.store)

	shortest := scoring.Shortest(w, e.cfg.Windows)
	longest := scoring.Longest(w, e.cfg.Windows)

	var results []scored
	for _, ent := range entities {
		sc, err := e.scoreEntity(ctx, ent, items, idx, velocities, w, now)
		if err != nil {
			e.log.WithError(err).WithField("entity", ent.CanonicalName).
				Warn("scoring entity failed, skipping")
			continue
		}
		if sc == nil {
			continue
		}
		results = append(results, *sc)
	}

	// Higher score first; the stable sort gives ties a deterministic
	// order (entity listing order) so reruns produce identical ranks.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	prevRanks, err := e.store.LatestRanks(ctx, w.Name)
	if err != nil {
		return 0, fmt.Errorf("latest ranks: %w", err)
	}

	// One timestamp for the whole batch. Readers select by the max
	// computed_at, so the new snapshot becomes visible as a unit.
	computedAt := now

	rows := make([]store.Score, 0, len(results))
	for i, r := range results {
		rank := i + 1

		deltaRank := 0
		prev, hadPrev := prevRanks[r.entity.ID]
		if hadPrev {
			deltaRank = prev - rank
		}

		micro := r.microMomentum
		driver := scoring.Classify(e.rules, scoring.Signals{
			Sources:        r.breakdown,
			Momentum:       r.momentum,
			MicroMomentum:  r.microMomentum,
			MentionCount:   r.mentions,
			PreviousRank:   prev,
			CurrentRank:    rank,
			ShortestWindow: shortest,
			LongestWindow:  longest,
		})

		rows = append(rows, store.Score{
			ID:            uuid.NewString(),
			Window:        w.Name,
			EntityID:      r.entity.ID,
			Rank:          rank,
			DeltaRank:     deltaRank,
			Score:         r.score,
			Momentum:      r.momentum,
			MicroMomentum: &micro,
			Sources:       r.breakdown,
			Driver:        (*string)(driver),
			MentionCount:  r.mentions,
			ComputedAt:    computedAt,
		})
	}

	if err := e.store.InsertScores(ctx, rows); err != nil {
		return 0, fmt.Errorf("insert scores: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"window":      w.Name,
		"entities":    len(rows),
		"items":       len(items),
		"computed_at": computedAt.Format(time.RFC3339),
	}).Info("score pass complete")

	return len(rows), nil
}

// scoreEntity computes one entity's score, momentum, and micro
// momentum for a window. Returns nil when the entity has no mentions.
func (e *Engine) scoreEntity(ctx context.Context, ent store.Entity, items []ingest.Item,
	idx *alias.Index, vc *velocityCache, w scoring.Window, now time.Time) (*scored, error) {

	full, mentions, err := e.aggregate(ctx, ent, items, idx, vc, now.Add(-w.Duration), now)
	if err != nil {
		return nil, err
	}
	if mentions == 0 {
		return nil, nil
	}

	score, breakdown := e.combine(full)

	// Momentum compares the two most recent slice-sized halves of the
	// window; micro momentum does the same for a fixed short slice.
	momentum, err := e.sliceMomentum(ctx, ent, items, idx, vc, now, w.MomentumSlice)
	if err != nil {
		return nil, err
	}
	micro, err := e.sliceMomentum(ctx, ent, items, idx, vc, now, e.cfg.MicroSlice)
	if err != nil {
		return nil, err
	}

	return &scored{
		entity:        ent,
		score:         score,
		breakdown:     breakdown,
		momentum:      momentum,
		microMomentum: micro,
		mentions:      mentions,
	}, nil
}

func (e *Engine) sliceMomentum(ctx context.Context, ent store.Entity, items []ingest.Item,
	idx *alias.Index, vc *velocityCache, now time.Time, slice time.Duration) (float64, error) {

	cur, curMentions, err := e.aggregate(ctx, ent, items, idx, vc, now.Add(-slice), now)
	if err != nil {
		return 0, err
	}
	prior, priorMentions, err := e.aggregate(ctx, ent, items, idx, vc, now.Add(-2*slice), now.Add(-slice))
	if err != nil {
		return 0, err
	}

	curScore := 0.0
	if curMentions > 0 {
		curScore, _ = e.combine(cur)
	}
	priorScore := 0.0
	if priorMentions > 0 {
		priorScore, _ = e.combine(prior)
	}
	return scoring.Momentum(curScore, priorScore), nil
}

func (e *Engine) combine(metrics map[ingest.Platform]scoring.PlatformMetrics) (float64, map[ingest.Platform]float64) {
	scores := make(map[ingest.Platform]float64, len(metrics))
	for p, m := range metrics {
		scores[p] = scoring.PlatformScore(p, m, e.cfg.Formula)
	}
	return scoring.Combine(scores, e.cfg.Importance)
}

// aggregate folds every item published in [from, to) that mentions the
// entity into per-platform metrics. Alias confidence scales the item's
// velocity contribution; the mention count stays a plain tally.
func (e *Engine) aggregate(ctx context.Context, ent store.Entity, items []ingest.Item,
	idx *alias.Index, vc *velocityCache, from, to time.Time) (map[ingest.Platform]scoring.PlatformMetrics, int, error) {

	type authority struct {
		sum   float64
		count int
	}

	agg := make(map[ingest.Platform]scoring.PlatformMetrics)
	auth := make(map[ingest.Platform]authority)
	mentions := 0

	for i := range items {
		item := &items[i]
		if item.PublishedAt.Before(from) || !item.PublishedAt.Before(to) {
			continue
		}

		matched := idx.Mentions(item.Title, item.ChannelTitle, item.Platform)
		weight, ok := matched[ent.ID]
		if !ok {
			continue
		}
		mentions++

		v, err := vc.velocities(ctx, item)
		if err != nil {
			return nil, 0, err
		}

		pm := agg[item.Platform]
		pm.Mentions++
		switch item.Platform {
		case ingest.PlatformYouTube:
			pm.ViewVelocity += v["views"] * weight
			pm.LikeVelocity += v["likes"] * weight
			pm.CommentVelocity += v["comments"] * weight
			a := auth[item.Platform]
			a.sum += e.channelWeight(item.ChannelTitle)
			a.count++
			auth[item.Platform] = a
		case ingest.PlatformReddit:
			pm.UpvoteVelocity += v["upvotes"] * weight
			pm.CommentVelocity += v["comments"] * weight
		case ingest.PlatformX:
			pm.RepostVelocity += v["reposts"] * weight
			pm.LikeVelocity += v["likes"] * weight
			pm.ReplyVelocity += v["replies"] * weight
			a := auth[item.Platform]
			a.sum += e.channelWeight(item.Author)
			a.count++
			auth[item.Platform] = a
		}
		agg[item.Platform] = pm
	}

	for p, a := range auth {
		if a.count == 0 {
			continue
		}
		pm := agg[p]
		pm.AuthorityWeight = a.sum / float64(a.count)
		agg[p] = pm
	}

	return agg, mentions, nil
}

// channelWeight returns the configured authority weight for a channel
// or account name, defaulting to 1.0.
func (e *Engine) channelWeight(name string) float64 {
	if w, ok := e.cfg.ChannelWeights[name]; ok && w > 0 {
		return w
	}
	return 1.0
}

// velocityCache computes per-counter velocities once per item per
// pass. Velocity is the delta between the two latest snapshots divided
// by the minutes between them; with fewer than two snapshots the raw
// counters stand in.
type velocityCache struct {
	store store.Store
	cache map[string]map[string]float64
}

func newVelocityCache(s store.Store) *velocityCache {
	return &velocityCache{store: s, cache: make(map[string]map[string]float64)}
}

func (vc *velocityCache) velocities(ctx context.Context, item *ingest.Item) (map[string]float64, error) {
	if v, ok := vc.cache[item.ID]; ok {
		return v, nil
	}

	snaps, err := vc.store.LatestSnapshots(ctx, item.ID, 2)
	if err != nil {
		return nil, fmt.Errorf("snapshots for item %s: %w", item.ID, err)
	}

	v := make(map[string]float64)
	if len(snaps) >= 2 {
		newest, prev := snaps[0], snaps[1]
		minutes := newest.CapturedAt.Sub(prev.CapturedAt).Minutes()
		if minutes > 0 {
			for key, val := range newest.Metrics {
				v[key] = float64(val-prev.Metrics.Get(key)) / minutes
			}
		}
	}
	if len(v) == 0 {
		for key, val := range item.Metrics {
			v[key] = float64(val)
		}
	}

	vc.cache[item.ID] = v
	return v, nil
}
