package store

const schema = `
CREATE TABLE IF NOT EXISTS items (
    id            TEXT PRIMARY KEY,
    platform      TEXT NOT NULL,
    external_id   TEXT NOT NULL,
    url           TEXT NOT NULL DEFAULT '',
    title         TEXT NOT NULL DEFAULT '',
    content       TEXT NOT NULL DEFAULT '',
    author        TEXT NOT NULL DEFAULT '',
    channel_title TEXT NOT NULL DEFAULT '',
    published_at  DATETIME NOT NULL,
    fetched_at    DATETIME NOT NULL,
    metrics       TEXT NOT NULL DEFAULT '{}',
    raw_payload   TEXT NOT NULL DEFAULT '',
    UNIQUE(platform, external_id)
);

CREATE INDEX IF NOT EXISTS idx_items_platform ON items(platform);
CREATE INDEX IF NOT EXISTS idx_items_published_at ON items(published_at);
CREATE INDEX IF NOT EXISTS idx_items_fetched_at ON items(fetched_at);

CREATE TABLE IF NOT EXISTS item_metric_snapshots (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    item_id     TEXT NOT NULL REFERENCES items(id),
    captured_at DATETIME NOT NULL,
    metrics     TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_snapshots_item_captured ON item_metric_snapshots(item_id, captured_at);

CREATE TABLE IF NOT EXISTS events (
    id              TEXT PRIMARY KEY,
    event_key       TEXT NOT NULL UNIQUE,
    event_title     TEXT NOT NULL,
    first_seen_at   DATETIME NOT NULL,
    last_seen_at    DATETIME NOT NULL,
    primary_item_id TEXT REFERENCES items(id),
    platform_mix    TEXT NOT NULL DEFAULT '{}',
    item_count      INTEGER NOT NULL DEFAULT 1,
    related_count   INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_events_first_seen ON events(first_seen_at);
CREATE INDEX IF NOT EXISTS idx_events_last_seen ON events(last_seen_at);

CREATE TABLE IF NOT EXISTS event_items (
    event_id   TEXT NOT NULL REFERENCES events(id),
    item_id    TEXT NOT NULL REFERENCES items(id),
    created_at DATETIME NOT NULL,
    UNIQUE(event_id, item_id)
);

CREATE INDEX IF NOT EXISTS idx_event_items_event ON event_items(event_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_event_items_item ON event_items(item_id);

CREATE TABLE IF NOT EXISTS entities (
    id             TEXT PRIMARY KEY,
    type           TEXT NOT NULL,
    canonical_name TEXT NOT NULL,
    description    TEXT NOT NULL DEFAULT '',
    enabled        BOOLEAN NOT NULL DEFAULT 1,
    UNIQUE(type, canonical_name)
);

CREATE TABLE IF NOT EXISTS entity_aliases (
    id                TEXT PRIMARY KEY,
    entity_id         TEXT NOT NULL REFERENCES entities(id),
    alias_text        TEXT NOT NULL,
    match_type        TEXT NOT NULL DEFAULT 'contains',
    platform_scope    TEXT NOT NULL DEFAULT 'any',
    confidence_weight REAL NOT NULL DEFAULT 1.0,
    UNIQUE(entity_id, alias_text, platform_scope)
);

CREATE INDEX IF NOT EXISTS idx_aliases_entity ON entity_aliases(entity_id);

CREATE TABLE IF NOT EXISTS scores (
    id             TEXT PRIMARY KEY,
    "window"       TEXT NOT NULL,
    entity_id      TEXT NOT NULL REFERENCES entities(id),
    rank           INTEGER NOT NULL,
    delta_rank     INTEGER NOT NULL DEFAULT 0,
    score          REAL NOT NULL,
    momentum       REAL NOT NULL,
    micro_momentum REAL,
    sources        TEXT NOT NULL DEFAULT '{}',
    driver         TEXT,
    mention_count  INTEGER NOT NULL DEFAULT 0,
    computed_at    DATETIME NOT NULL,
    UNIQUE("window", entity_id, computed_at)
);

CREATE INDEX IF NOT EXISTS idx_scores_window_rank ON scores("window", rank);
CREATE INDEX IF NOT EXISTS idx_scores_computed_at ON scores(computed_at);

CREATE TABLE IF NOT EXISTS feed_cards (
    id              TEXT PRIMARY KEY,
    "window"        TEXT NOT NULL,
    event_id        TEXT NOT NULL REFERENCES events(id),
    primary_item_id TEXT NOT NULL REFERENCES items(id),
    source          TEXT NOT NULL,
    title           TEXT NOT NULL,
    meta            TEXT NOT NULL DEFAULT '{}',
    why             TEXT NOT NULL DEFAULT '',
    url             TEXT NOT NULL DEFAULT '',
    related_count   INTEGER NOT NULL DEFAULT 1,
    computed_at     DATETIME NOT NULL,
    UNIQUE("window", event_id)
);

CREATE INDEX IF NOT EXISTS idx_feed_cards_window_computed ON feed_cards("window", computed_at);
`
