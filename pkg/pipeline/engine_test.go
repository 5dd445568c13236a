package pipeline

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboardhq/pulseboard/internal/store"
	"github.com/pulseboardhq/pulseboard/pkg/ingest"
	"github.com/pulseboardhq/pulseboard/pkg/scoring"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func seedEntity(t *testing.T, s store.Store, name, aliasText string) string {
	t.Helper()
	ctx := context.Background()
	e := &store.Entity{ID: uuid.NewString(), Type: "streamer", CanonicalName: name, Enabled: true}
	require.NoError(t, s.UpsertEntity(ctx, e))
	require.NoError(t, s.UpsertAlias(ctx, &store.Alias{
		ID: uuid.NewString(), EntityID: e.ID, AliasText: aliasText,
		MatchType: "contains", PlatformScope: "any", ConfidenceWeight: 1,
	}))
	return e.ID
}

// seedItem writes a youtube item plus two view snapshots an hour apart,
// so its view velocity is viewsDelta/60 per minute.
func seedItem(t *testing.T, s store.Store, title string, publishedAt, now time.Time, viewsDelta int64) string {
	t.Helper()
	ctx := context.Background()
	item := ingest.Item{
		ID: uuid.NewString(), Platform: ingest.PlatformYouTube,
		ExternalID: uuid.NewString(), Title: title,
		PublishedAt: publishedAt, FetchedAt: now,
		Metrics: ingest.Metrics{"views": 1000 + viewsDelta},
	}
	require.NoError(t, s.UpsertItem(ctx, &item))
	require.NoError(t, s.AddMetricSnapshot(ctx, item.ID, ingest.Metrics{"views": 1000}, now.Add(-time.Hour)))
	require.NoError(t, s.AddMetricSnapshot(ctx, item.ID, ingest.Metrics{"views": 1000 + viewsDelta}, now))
	return item.ID
}

func TestScorePassRanksAndTies(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	engine := New(s, DefaultConfig(), quietLogger())

	now := time.Now().UTC()
	window := scoring.DefaultWindows()[0]

	big := seedEntity(t, s, "aaa", "bigmoment")
	tieX := seedEntity(t, s, "mmm", "sharedmoment")
	tieY := seedEntity(t, s, "nnn", "sharedmoment")
	small := seedEntity(t, s, "zzz", "smallmoment")
	seedEntity(t, s, "ooo", "nevermentioned")

	published := now.Add(-4 * time.Hour)
	seedItem(t, s, "bigmoment clip goes wild", published, now, 6000)
	seedItem(t, s, "the sharedmoment fallout", published, now, 3000)
	seedItem(t, s, "smallmoment update", published, now, 600)

	n, err := engine.ScorePass(ctx, window, now)
	require.NoError(t, err)
	assert.Equal(t, 4, n, "unmentioned entities are skipped, not scored zero")

	rows, err := s.Scoreboard(ctx, window.Name, 10)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	// Tied entities get distinct consecutive ranks in listing order.
	assert.Equal(t, []string{big, tieX, tieY, small}, []string{
		rows[0].EntityID, rows[1].EntityID, rows[2].EntityID, rows[3].EntityID,
	})
	for i, r := range rows {
		assert.Equal(t, i+1, r.Rank)
	}
	assert.InDelta(t, rows[1].Score.Score, rows[2].Score.Score, 1e-9, "shared mention means identical scores")

	// 6000 views over 60 minutes is 100/min, weighted 0.4 for views,
	// then halved by the reddit share of the importance denominator.
	assert.InDelta(t, 20, rows[0].Score.Score, 1e-9)
	assert.Equal(t, 1, rows[0].MentionCount)

	// Whole batch shares one computed_at.
	for _, r := range rows[1:] {
		assert.True(t, r.ComputedAt.Equal(rows[0].ComputedAt))
	}

	// Single-platform activity means the whole breakdown is youtube.
	assert.InDelta(t, 1.0, rows[0].Sources[ingest.PlatformYouTube], 1e-9)

	// First pass for the window: nobody has a previous rank.
	for _, r := range rows {
		assert.Equal(t, 0, r.DeltaRank)
	}
}

func TestScorePassDeltaRank(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	engine := New(s, DefaultConfig(), quietLogger())

	now := time.Now().UTC()
	window := scoring.DefaultWindows()[0]

	leader := seedEntity(t, s, "aaa", "leadermoment")
	chaser := seedEntity(t, s, "bbb", "chasermoment")

	published := now.Add(-4 * time.Hour)
	seedItem(t, s, "leadermoment clip", published, now, 6000)
	chaserItem := seedItem(t, s, "chasermoment clip", published, now, 600)

	_, err := engine.ScorePass(ctx, window, now)
	require.NoError(t, err)

	// The chaser's counters explode before the next pass.
	later := now.Add(10 * time.Minute)
	require.NoError(t, s.AddMetricSnapshot(ctx, chaserItem, ingest.Metrics{"views": 200000}, later))

	_, err = engine.ScorePass(ctx, window, later)
	require.NoError(t, err)

	rows, err := s.Scoreboard(ctx, window.Name, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, chaser, rows[0].EntityID)
	assert.Equal(t, 1, rows[0].DeltaRank, "climbed from 2 to 1")
	assert.Equal(t, leader, rows[1].EntityID)
	assert.Equal(t, -1, rows[1].DeltaRank, "slipped from 1 to 2")
}

func TestScorePassEmptyInputs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	engine := New(s, DefaultConfig(), quietLogger())
	window := scoring.DefaultWindows()[0]

	n, err := engine.ScorePass(ctx, window, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, n, "no entities is a quiet no-op")

	seedEntity(t, s, "aaa", "whatever")
	n, err = engine.ScorePass(ctx, window, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, n, "no items is a quiet no-op")
}

func TestScorePassMomentumZeroBaseline(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	engine := New(s, DefaultConfig(), quietLogger())

	now := time.Now().UTC()
	window := scoring.DefaultWindows()[0] // 6h window, 3h momentum slice

	fresh := seedEntity(t, s, "aaa", "freshmoment")
	// Published inside the current momentum slice; the prior slice has
	// nothing, so momentum hits the zero-baseline rule.
	seedItem(t, s, "freshmoment clip", now.Add(-30*time.Minute), now, 3000)

	_, err := engine.ScorePass(ctx, window, now)
	require.NoError(t, err)

	rows, err := s.Scoreboard(ctx, window.Name, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, fresh, rows[0].EntityID)
	assert.InDelta(t, 100, rows[0].Momentum, 1e-9, "activity over an empty prior slice reads as +100%")
	require.NotNil(t, rows[0].MicroMomentum)
	assert.InDelta(t, 100, *rows[0].MicroMomentum, 1e-9)
}
