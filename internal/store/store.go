package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/pulseboardhq/pulseboard/pkg/ingest"
)

// PlatformMix flags which platforms contributed items to an event.
type PlatformMix map[ingest.Platform]bool

// Event is a deduplicated cluster of items believed to represent one
// real-world occurrence. Events are never deleted; old ones simply age
// out of the candidate window.
type Event struct {
	ID            string      `db:"id"`
	EventKey      string      `db:"event_key"`
	EventTitle    string      `db:"event_title"`
	FirstSeenAt   time.Time   `db:"first_seen_at"`
	LastSeenAt    time.Time   `db:"last_seen_at"`
	PrimaryItemID string      `db:"primary_item_id"`
	Mix           PlatformMix `db:"-"`
	ItemCount     int         `db:"item_count"`
	RelatedCount  int         `db:"related_count"`
	MixJSON       string      `db:"platform_mix"`
}

// MetricSnapshot is one append-only counter capture for an item.
type MetricSnapshot struct {
	ID          int64          `db:"id"`
	ItemID      string         `db:"item_id"`
	CapturedAt  time.Time      `db:"captured_at"`
	Metrics     ingest.Metrics `db:"-"`
	MetricsJSON string         `db:"metrics"`
}

// Entity is a curated named subject tracked via aliases.
type Entity struct {
	ID            string `db:"id"`
	Type          string `db:"type"`
	CanonicalName string `db:"canonical_name"`
	Description   string `db:"description"`
	Enabled       bool   `db:"enabled"`
}

// Alias is one matchable name for an entity.
type Alias struct {
	ID               string  `db:"id"`
	EntityID         string  `db:"entity_id"`
	AliasText        string  `db:"alias_text"`
	MatchType        string  `db:"match_type"`
	PlatformScope    string  `db:"platform_scope"`
	ConfidenceWeight float64 `db:"confidence_weight"`
}

// Score is one immutable ranked snapshot row. (window, entity_id,
// computed_at) is unique; re-running a pass with the same timestamp
// overwrites instead of duplicating.
type Score struct {
	ID            string                      `db:"id"`
	Window        string                      `db:"window"`
	EntityID      string                      `db:"entity_id"`
	Rank          int                         `db:"rank"`
	DeltaRank     int                         `db:"delta_rank"`
	Score         float64                     `db:"score"`
	Momentum      float64                     `db:"momentum"`
	MicroMomentum *float64                    `db:"micro_momentum"`
	Sources       map[ingest.Platform]float64 `db:"-"`
	Driver        *string                     `db:"driver"`
	MentionCount  int                         `db:"mention_count"`
	ComputedAt    time.Time                   `db:"computed_at"`
	SourcesJSON   string                      `db:"sources"`
}

// ScoreboardRow is a Score joined with its entity for readers.
type ScoreboardRow struct {
	Score
	EntityName string `db:"canonical_name"`
	EntityType string `db:"type"`
}

// FeedCard is a precomputed "what's trending" card for one (window, event).
type FeedCard struct {
	ID            string    `db:"id"`
	Window        string    `db:"window"`
	EventID       string    `db:"event_id"`
	PrimaryItemID string    `db:"primary_item_id"`
	Source        string    `db:"source"`
	Title         string    `db:"title"`
	Meta          string    `db:"meta"`
	Why           string    `db:"why"`
	URL           string    `db:"url"`
	RelatedCount  int       `db:"related_count"`
	ComputedAt    time.Time `db:"computed_at"`
}

// ItemListOpts controls item listing.
type ItemListOpts struct {
	Platform ingest.Platform
	Since    time.Time
	Until    time.Time
	Limit    int
}

// Store is the persistence interface the pipeline runs against.
type Store interface {
	UpsertItem(ctx context.Context, item *ingest.Item) error
	UpsertItems(ctx context.Context, items []ingest.Item) error
	GetItem(ctx context.Context, id string) (*ingest.Item, error)
	ListItems(ctx context.Context, opts ItemListOpts) ([]ingest.Item, error)

	AddMetricSnapshot(ctx context.Context, itemID string, metrics ingest.Metrics, capturedAt time.Time) error
	LatestSnapshots(ctx context.Context, itemID string, limit int) ([]MetricSnapshot, error)

	CreateEvent(ctx context.Context, ev *Event) (bool, error)
	GetEventByKey(ctx context.Context, key string) (*Event, error)
	ListCandidateEvents(ctx context.Context, since time.Time, limit int) ([]Event, error)
	ListEventsByLastSeen(ctx context.Context, limit int) ([]Event, error)
	CountEvents(ctx context.Context) (int, error)
	AttachItem(ctx context.Context, eventID, itemID string, at time.Time) error
	ItemEventID(ctx context.Context, itemID string) (string, error)
	EventItemIDs(ctx context.Context, eventID string) ([]string, error)
	RefreshEventAfterAttach(ctx context.Context, eventID string, lastSeen time.Time, platform ingest.Platform) error
	UpdatePrimaryItem(ctx context.Context, eventID, itemID, title string) error

	UpsertEntity(ctx context.Context, e *Entity) error
	UpsertAlias(ctx context.Context, a *Alias) error
	ListEntities(ctx context.Context, enabledOnly bool) ([]Entity, error)
	ListAliases(ctx context.Context) ([]Alias, error)

	InsertScores(ctx context.Context, rows []Score) error
	LatestRanks(ctx context.Context, window string) (map[string]int, error)
	Scoreboard(ctx context.Context, window string, limit int) ([]ScoreboardRow, error)

	UpsertFeedCard(ctx context.Context, card *FeedCard) error
	ListFeedCards(ctx context.Context, window string, limit int) ([]FeedCard, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertItem(ctx context.Context, item *ingest.Item) error {
	metricsJSON, _ := json.Marshal(item.Metrics)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, platform, external_id, url, title, content, author, channel_title, published_at, fetched_at, metrics, raw_payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(platform, external_id) DO UPDATE SET
			metrics = excluded.metrics,
			fetched_at = excluded.fetched_at,
			raw_payload = excluded.raw_payload
	`, item.ID, item.Platform, item.ExternalID, item.URL, item.Title,
		item.Content, item.Author, item.ChannelTitle, item.PublishedAt,
		item.FetchedAt, string(metricsJSON), item.RawPayload)
	if err != nil {
		return fmt.Errorf("upsert item %s: %w", item.ID, err)
	}
	return nil
}

func (s *SQLiteStore) UpsertItems(ctx context.Context, items []ingest.Item) error {
	for i := range items {
		if err := s.UpsertItem(ctx, &items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) GetItem(ctx context.Context, id string) (*ingest.Item, error) {
	var item ingest.Item
	err := s.db.GetContext(ctx, &item, "SELECT * FROM items WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	json.Unmarshal([]byte(item.MetricsJSON), &item.Metrics)
	return &item, nil
}

func (s *SQLiteStore) ListItems(ctx context.Context, opts ItemListOpts) ([]ingest.Item, error) {
	query := "SELECT * FROM items WHERE 1=1"
	var args []any

	if opts.Platform != "" {
		query += " AND platform = ?"
		args = append(args, opts.Platform)
	}
	if !opts.Since.IsZero() {
		query += " AND published_at >= ?"
		args = append(args, opts.Since)
	}
	if !opts.Until.IsZero() {
		query += " AND published_at < ?"
		args = append(args, opts.Until)
	}

	query += " ORDER BY published_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += " LIMIT ?"
	args = append(args, limit)

	var items []ingest.Item
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	for i := range items {
		json.Unmarshal([]byte(items[i].MetricsJSON), &items[i].Metrics)
	}
	return items, nil
}

func (s *SQLiteStore) AddMetricSnapshot(ctx context.Context, itemID string, metrics ingest.Metrics, capturedAt time.Time) error {
	metricsJSON, _ := json.Marshal(metrics)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO item_metric_snapshots (item_id, captured_at, metrics)
		VALUES (?, ?, ?)
	`, itemID, capturedAt, string(metricsJSON))
	if err != nil {
		return fmt.Errorf("add metric snapshot %s: %w", itemID, err)
	}
	return nil
}

// LatestSnapshots returns up to limit snapshots for an item, newest first.
func (s *SQLiteStore) LatestSnapshots(ctx context.Context, itemID string, limit int) ([]MetricSnapshot, error) {
	var snaps []MetricSnapshot
	err := s.db.SelectContext(ctx, &snaps,
		"SELECT * FROM item_metric_snapshots WHERE item_id = ? ORDER BY captured_at DESC LIMIT ?",
		itemID, limit)
	if err != nil {
		return nil, fmt.Errorf("latest snapshots %s: %w", itemID, err)
	}
	for i := range snaps {
		json.Unmarshal([]byte(snaps[i].MetricsJSON), &snaps[i].Metrics)
	}
	return snaps, nil
}

// CreateEvent inserts a new event. It returns false when another event
// already owns the same event key, so a racing pass can fall back to
// attaching instead.
func (s *SQLiteStore) CreateEvent(ctx context.Context, ev *Event) (bool, error) {
	mixJSON, _ := json.Marshal(ev.Mix)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, event_key, event_title, first_seen_at, last_seen_at, primary_item_id, platform_mix, item_count, related_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_key) DO NOTHING
	`, ev.ID, ev.EventKey, ev.EventTitle, ev.FirstSeenAt, ev.LastSeenAt,
		ev.PrimaryItemID, string(mixJSON), ev.ItemCount, ev.RelatedCount)
	if err != nil {
		return false, fmt.Errorf("create event %s: %w", ev.EventKey, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create event %s: %w", ev.EventKey, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetEventByKey(ctx context.Context, key string) (*Event, error) {
	var ev Event
	err := s.db.GetContext(ctx, &ev, "SELECT * FROM events WHERE event_key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event by key %s: %w", key, err)
	}
	json.Unmarshal([]byte(ev.MixJSON), &ev.Mix)
	return &ev, nil
}

// ListCandidateEvents returns events first seen after since, newest
// first, capped at limit. The ordering is load-bearing: the similarity
// matcher resolves exact ties to the first candidate it sees, which
// this makes the most recently created event.
func (s *SQLiteStore) ListCandidateEvents(ctx context.Context, since time.Time, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var evs []Event
	err := s.db.SelectContext(ctx, &evs,
		"SELECT * FROM events WHERE first_seen_at >= ? ORDER BY first_seen_at DESC LIMIT ?",
		since, limit)
	if err != nil {
		return nil, fmt.Errorf("list candidate events: %w", err)
	}
	for i := range evs {
		json.Unmarshal([]byte(evs[i].MixJSON), &evs[i].Mix)
	}
	return evs, nil
}

func (s *SQLiteStore) ListEventsByLastSeen(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	var evs []Event
	err := s.db.SelectContext(ctx, &evs,
		"SELECT * FROM events ORDER BY last_seen_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	for i := range evs {
		json.Unmarshal([]byte(evs[i].MixJSON), &evs[i].Mix)
	}
	return evs, nil
}

func (s *SQLiteStore) CountEvents(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM events"); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// AttachItem links an item to an event. Duplicate links are a silent
// no-op, as is an attempt to link an item already owned by another
// event (the unique index on item_id keeps the first assignment).
func (s *SQLiteStore) AttachItem(ctx context.Context, eventID, itemID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO event_items (event_id, item_id, created_at)
		VALUES (?, ?, ?)
	`, eventID, itemID, at)
	if err != nil {
		return fmt.Errorf("attach item %s to event %s: %w", itemID, eventID, err)
	}
	return nil
}

// ItemEventID returns the event an item is linked to, or "" when unlinked.
func (s *SQLiteStore) ItemEventID(ctx context.Context, itemID string) (string, error) {
	var eventID string
	err := s.db.GetContext(ctx, &eventID,
		"SELECT event_id FROM event_items WHERE item_id = ?", itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("item event id %s: %w", itemID, err)
	}
	return eventID, nil
}

func (s *SQLiteStore) EventItemIDs(ctx context.Context, eventID string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		"SELECT item_id FROM event_items WHERE event_id = ? ORDER BY created_at", eventID)
	if err != nil {
		return nil, fmt.Errorf("event item ids %s: %w", eventID, err)
	}
	return ids, nil
}

// RefreshEventAfterAttach recomputes the event's counts from the true
// number of linked items (tolerating partial retries), advances
// last_seen_at, and unions the platform into the mix.
func (s *SQLiteStore) RefreshEventAfterAttach(ctx context.Context, eventID string, lastSeen time.Time, platform ingest.Platform) error {
	var ev Event
	if err := s.db.GetContext(ctx, &ev, "SELECT * FROM events WHERE id = ?", eventID); err != nil {
		return fmt.Errorf("refresh event %s: %w", eventID, err)
	}
	mix := PlatformMix{}
	json.Unmarshal([]byte(ev.MixJSON), &mix)
	mix[platform] = true
	mixJSON, _ := json.Marshal(mix)

	_, err := s.db.ExecContext(ctx, `
		UPDATE events SET
			related_count = (SELECT COUNT(*) FROM event_items WHERE event_id = ?),
			item_count = (SELECT COUNT(*) FROM event_items WHERE event_id = ?),
			last_seen_at = MAX(last_seen_at, ?),
			platform_mix = ?
		WHERE id = ?
	`, eventID, eventID, lastSeen, string(mixJSON), eventID)
	if err != nil {
		return fmt.Errorf("refresh event %s: %w", eventID, err)
	}
	return nil
}

// UpdatePrimaryItem is a last-writer-wins overwrite; primary
// reselection is an eventually consistent maintenance pass.
func (s *SQLiteStore) UpdatePrimaryItem(ctx context.Context, eventID, itemID, title string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE events SET primary_item_id = ?, event_title = ? WHERE id = ?",
		itemID, title, eventID)
	if err != nil {
		return fmt.Errorf("update primary item %s: %w", eventID, err)
	}
	return nil
}

func (s *SQLiteStore) UpsertEntity(ctx context.Context, e *Entity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (id, type, canonical_name, description, enabled)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(type, canonical_name) DO UPDATE SET
			description = excluded.description,
			enabled = excluded.enabled
	`, e.ID, e.Type, e.CanonicalName, e.Description, e.Enabled)
	if err != nil {
		return fmt.Errorf("upsert entity %s: %w", e.CanonicalName, err)
	}
	return nil
}

func (s *SQLiteStore) UpsertAlias(ctx context.Context, a *Alias) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entity_aliases (id, entity_id, alias_text, match_type, platform_scope, confidence_weight)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id, alias_text, platform_scope) DO UPDATE SET
			match_type = excluded.match_type,
			confidence_weight = excluded.confidence_weight
	`, a.ID, a.EntityID, a.AliasText, a.MatchType, a.PlatformScope, a.ConfidenceWeight)
	if err != nil {
		return fmt.Errorf("upsert alias %s: %w", a.AliasText, err)
	}
	return nil
}

func (s *SQLiteStore) ListEntities(ctx context.Context, enabledOnly bool) ([]Entity, error) {
	query := "SELECT * FROM entities"
	if enabledOnly {
		query += " WHERE enabled = 1"
	}
	query += " ORDER BY canonical_name"

	var entities []Entity
	if err := s.db.SelectContext(ctx, &entities, query); err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	return entities, nil
}

func (s *SQLiteStore) ListAliases(ctx context.Context) ([]Alias, error) {
	var aliases []Alias
	if err := s.db.SelectContext(ctx, &aliases, "SELECT * FROM entity_aliases"); err != nil {
		return nil, fmt.Errorf("list aliases: %w", err)
	}
	return aliases, nil
}

// InsertScores writes one ranking batch inside a single transaction:
// either every row lands or none do, so a failed pass can never leave
// a partial batch as the window's newest snapshot. Rows are idempotent
// upserts keyed on (window, entity_id, computed_at) so a retried pass
// with the same timestamp overwrites rather than duplicates.
func (s *SQLiteStore) InsertScores(ctx context.Context, rows []Score) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin score batch: %w", err)
	}
	defer tx.Rollback()

	for i := range rows {
		r := &rows[i]
		sourcesJSON, _ := json.Marshal(r.Sources)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO scores (id, "window", entity_id, rank, delta_rank, score, momentum, micro_momentum, sources, driver, mention_count, computed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT("window", entity_id, computed_at) DO UPDATE SET
				rank = excluded.rank,
				delta_rank = excluded.delta_rank,
				score = excluded.score,
				momentum = excluded.momentum,
				micro_momentum = excluded.micro_momentum,
				sources = excluded.sources,
				driver = excluded.driver,
				mention_count = excluded.mention_count
		`, r.ID, r.Window, r.EntityID, r.Rank, r.DeltaRank, r.Score,
			r.Momentum, r.MicroMomentum, string(sourcesJSON), r.Driver,
			r.MentionCount, r.ComputedAt)
		if err != nil {
			return fmt.Errorf("insert score %s/%s: %w", r.Window, r.EntityID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit score batch: %w", err)
	}
	return nil
}

// LatestRanks returns entity id -> rank from the most recent snapshot
// for a window. Empty map when the window has never been scored.
func (s *SQLiteStore) LatestRanks(ctx context.Context, window string) (map[string]int, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT entity_id, rank FROM scores
		WHERE "window" = ?
		  AND computed_at = (SELECT MAX(computed_at) FROM scores WHERE "window" = ?)
	`, window, window)
	if err != nil {
		return nil, fmt.Errorf("latest ranks %s: %w", window, err)
	}
	defer rows.Close()

	ranks := make(map[string]int)
	for rows.Next() {
		var entityID string
		var rank int
		if err := rows.Scan(&entityID, &rank); err != nil {
			return nil, err
		}
		ranks[entityID] = rank
	}
	return ranks, rows.Err()
}

// Scoreboard returns the current snapshot for a window: only rows from
// the single latest computed_at, so a reader never sees two passes mixed.
func (s *SQLiteStore) Scoreboard(ctx context.Context, window string, limit int) ([]ScoreboardRow, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []ScoreboardRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT s.*, e.canonical_name, e.type FROM scores s
		JOIN entities e ON e.id = s.entity_id
		WHERE s."window" = ?
		  AND s.computed_at = (SELECT MAX(computed_at) FROM scores WHERE "window" = ?)
		ORDER BY s.rank
		LIMIT ?
	`, window, window, limit)
	if err != nil {
		return nil, fmt.Errorf("scoreboard %s: %w", window, err)
	}
	for i := range rows {
		json.Unmarshal([]byte(rows[i].SourcesJSON), &rows[i].Sources)
	}
	return rows, nil
}

func (s *SQLiteStore) UpsertFeedCard(ctx context.Context, card *FeedCard) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feed_cards (id, "window", event_id, primary_item_id, source, title, meta, why, url, related_count, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT("window", event_id) DO UPDATE SET
			primary_item_id = excluded.primary_item_id,
			source = excluded.source,
			title = excluded.title,
			meta = excluded.meta,
			why = excluded.why,
			url = excluded.url,
			related_count = excluded.related_count,
			computed_at = excluded.computed_at
	`, card.ID, card.Window, card.EventID, card.PrimaryItemID, card.Source,
		card.Title, card.Meta, card.Why, card.URL, card.RelatedCount, card.ComputedAt)
	if err != nil {
		return fmt.Errorf("upsert feed card %s/%s: %w", card.Window, card.EventID, err)
	}
	return nil
}

func (s *SQLiteStore) ListFeedCards(ctx context.Context, window string, limit int) ([]FeedCard, error) {
	if limit <= 0 {
		limit = 50
	}
	var cards []FeedCard
	err := s.db.SelectContext(ctx, &cards, `
		SELECT * FROM feed_cards WHERE "window" = ?
		ORDER BY computed_at DESC, related_count DESC
		LIMIT ?
	`, window, limit)
	if err != nil {
		return nil, fmt.Errorf("list feed cards %s: %w", window, err)
	}
	return cards, nil
}
