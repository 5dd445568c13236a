package alias

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/pulseboardhq/pulseboard/internal/store"
	"github.com/pulseboardhq/pulseboard/pkg/ingest"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestIndexMatchTypes(t *testing.T) {
	idx := NewIndex([]store.Alias{
		{EntityID: "e1", AliasText: "Max Power", MatchType: MatchExact, PlatformScope: ScopeAny, ConfidenceWeight: 1},
		{EntityID: "e2", AliasText: "apartmentgate", MatchType: MatchContains, PlatformScope: ScopeAny, ConfidenceWeight: 1},
		{EntityID: "e3", AliasText: `\bmax\s+p(ower)?\b`, MatchType: MatchRegex, PlatformScope: ScopeAny, ConfidenceWeight: 0.8},
	}, quietLogger())

	tests := []struct {
		name  string
		title string
		want  []string
	}{
		{
			name:  "exact is word bounded",
			title: "MAX POWER responds live",
			want:  []string{"e1", "e3"},
		},
		{
			name:  "exact does not fire inside another word",
			title: "climax powerwash compilation",
			want:  nil,
		},
		{
			name:  "contains fires inside words",
			title: "the whole apartmentgate2 saga",
			want:  []string{"e2"},
		},
		{
			name:  "regex matches variants",
			title: "max p strikes again",
			want:  []string{"e3"},
		},
		{
			name:  "no matches",
			title: "unrelated video",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := idx.Mentions(tt.title, "", ingest.PlatformYouTube)
			var ids []string
			for id := range got {
				ids = append(ids, id)
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}
}

func TestIndexPlatformScope(t *testing.T) {
	idx := NewIndex([]store.Alias{
		{EntityID: "e1", AliasText: "gamer", MatchType: MatchContains, PlatformScope: "youtube", ConfidenceWeight: 1},
		{EntityID: "e2", AliasText: "gamer", MatchType: MatchContains, PlatformScope: ScopeAny, ConfidenceWeight: 1},
	}, quietLogger())

	onYouTube := idx.Mentions("gamer moment", "", ingest.PlatformYouTube)
	assert.Contains(t, onYouTube, "e1")
	assert.Contains(t, onYouTube, "e2")

	onReddit := idx.Mentions("gamer moment", "", ingest.PlatformReddit)
	assert.NotContains(t, onReddit, "e1", "scoped alias stays on its platform")
	assert.Contains(t, onReddit, "e2")
}

func TestIndexChannelNameMatches(t *testing.T) {
	idx := NewIndex([]store.Alias{
		{EntityID: "e1", AliasText: "after hours", MatchType: MatchContains, PlatformScope: ScopeAny, ConfidenceWeight: 1},
	}, quietLogger())

	got := idx.Mentions("episode 12", "After Hours Pod", ingest.PlatformYouTube)
	assert.Contains(t, got, "e1", "channel name is part of the haystack")
}

func TestIndexWeights(t *testing.T) {
	idx := NewIndex([]store.Alias{
		{EntityID: "e1", AliasText: "alpha", MatchType: MatchContains, PlatformScope: ScopeAny, ConfidenceWeight: 0.4},
		{EntityID: "e1", AliasText: "alphagate", MatchType: MatchContains, PlatformScope: ScopeAny, ConfidenceWeight: 0.9},
		{EntityID: "e2", AliasText: "beta", MatchType: MatchContains, PlatformScope: ScopeAny},
	}, quietLogger())

	got := idx.Mentions("alphagate beta reaction", "", ingest.PlatformX)
	assert.InDelta(t, 0.9, got["e1"], 1e-9, "highest matching weight wins")
	assert.InDelta(t, 1.0, got["e2"], 1e-9, "zero weight defaults to 1")
}

func TestIndexSkipsBadRows(t *testing.T) {
	idx := NewIndex([]store.Alias{
		{EntityID: "e1", AliasText: "([unclosed", MatchType: MatchRegex, PlatformScope: ScopeAny},
		{EntityID: "e2", AliasText: "   ", MatchType: MatchContains, PlatformScope: ScopeAny},
		{EntityID: "e3", AliasText: "fine", MatchType: "telepathy", PlatformScope: ScopeAny},
		{EntityID: "e4", AliasText: "scoped", MatchType: MatchContains, PlatformScope: "myspace"},
		{EntityID: "e5", AliasText: "kept", MatchType: MatchContains, PlatformScope: ScopeAny},
	}, quietLogger())

	assert.Equal(t, 1, idx.Size(), "bad patterns, blank text, unknown types and scopes all drop")
	assert.Contains(t, idx.Mentions("kept", "", ingest.PlatformX), "e5")
}
