package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboardhq/pulseboard/internal/store"
	"github.com/pulseboardhq/pulseboard/pkg/ingest"
)

func seedEvent(t *testing.T, s store.Store, title string, lastSeen time.Time, relatedCount int) (string, string) {
	t.Helper()
	ctx := context.Background()

	item := ingest.Item{
		ID: uuid.NewString(), Platform: ingest.PlatformYouTube,
		ExternalID: uuid.NewString(), URL: "https://example.com/v/" + uuid.NewString(),
		Title: title, Author: "uploader", ChannelTitle: "Some Channel",
		PublishedAt: lastSeen, FetchedAt: lastSeen,
	}
	require.NoError(t, s.UpsertItem(ctx, &item))

	ev := &store.Event{
		ID: uuid.NewString(), EventKey: uuid.NewString(), EventTitle: title,
		FirstSeenAt: lastSeen, LastSeenAt: lastSeen, PrimaryItemID: item.ID,
		Mix: store.PlatformMix{item.Platform: true}, ItemCount: relatedCount, RelatedCount: relatedCount,
	}
	created, err := s.CreateEvent(ctx, ev)
	require.NoError(t, err)
	require.True(t, created)
	return ev.ID, item.ID
}

func TestBuildFeedCards(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	engine := New(s, DefaultConfig(), quietLogger())
	now := time.Now().UTC()

	// Recent and busy, recent and quiet, stale.
	busyID, busyItem := seedEvent(t, s, "apartment drama explodes", now.Add(-time.Hour), 6)
	quietID, _ := seedEvent(t, s, "minor kerfuffle", now.Add(-2*time.Hour), 1)
	seedEvent(t, s, "ancient history", now.Add(-30*24*time.Hour), 9)

	n, err := engine.BuildFeedCards(ctx, now)
	require.NoError(t, err)
	// Two live events appear in all three windows; the stale one in none.
	assert.Equal(t, 6, n)

	cards, err := s.ListFeedCards(ctx, "now", 10)
	require.NoError(t, err)
	require.Len(t, cards, 2)

	byEvent := make(map[string]store.FeedCard, len(cards))
	for _, c := range cards {
		byEvent[c.EventID] = c
	}

	busy := byEvent[busyID]
	assert.Equal(t, "apartment drama explodes", busy.Title)
	assert.Equal(t, busyItem, busy.PrimaryItemID)
	assert.Equal(t, "youtube", busy.Source)
	assert.Equal(t, "Clip spike driving momentum.", busy.Why)
	assert.Equal(t, 6, busy.RelatedCount)

	var meta cardMeta
	require.NoError(t, json.Unmarshal([]byte(busy.Meta), &meta))
	assert.Equal(t, "Some Channel", meta.Channel)
	assert.Equal(t, "uploader", meta.Author)
	assert.Equal(t, "youtube", meta.Platform)

	assert.Equal(t, "New clip gaining traction.", byEvent[quietID].Why)

	// Rebuilding replaces cards in place instead of stacking new rows.
	n, err = engine.BuildFeedCards(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	cards, err = s.ListFeedCards(ctx, "now", 10)
	require.NoError(t, err)
	assert.Len(t, cards, 2)
}

func TestWhyLine(t *testing.T) {
	assert.Equal(t, "Clip spike driving momentum.", whyLine(5))
	assert.Equal(t, "Multiple channels picked this up.", whyLine(3))
	assert.Equal(t, "Multiple channels picked this up.", whyLine(4))
	assert.Equal(t, "New clip gaining traction.", whyLine(2))
	assert.Equal(t, "New clip gaining traction.", whyLine(1))
}
