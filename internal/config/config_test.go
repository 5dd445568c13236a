package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboardhq/pulseboard/pkg/ingest"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "./pulseboard.db", cfg.Database.Path)
	assert.InDelta(t, 0.55, cfg.Clustering.JaccardThreshold, 1e-9)
	assert.Equal(t, 12*time.Hour, cfg.Clustering.ParseLookback())
	assert.Equal(t, 6*time.Hour, cfg.Clustering.ParseTimeBucket())
	assert.Equal(t, 48*time.Hour, cfg.Clustering.ParseItemLookback())
	assert.Equal(t, 100, cfg.Clustering.CandidateLimit)
	assert.Equal(t, 5000, cfg.Clustering.ItemLimit)

	windows := cfg.Scoring.ParseWindows()
	require.Len(t, windows, 3)
	assert.Equal(t, "now", windows[0].Name)
	assert.Equal(t, 6*time.Hour, windows[0].Duration)
	assert.Equal(t, 3*time.Hour, windows[0].MomentumSlice)
	assert.Equal(t, 7*24*time.Hour, windows[2].Duration)

	assert.Equal(t, time.Hour, cfg.Scoring.ParseMicroMomentumSlice())

	importance := cfg.Scoring.ParseImportance()
	assert.InDelta(t, 1.0, importance[ingest.PlatformYouTube], 1e-9)
	assert.Zero(t, importance[ingest.PlatformX])
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: /tmp/other.db
clustering:
  jaccard_threshold: 0.7
  lookback: 24h
  item_limit: 250
  extra_stopwords: [vod, shorts]
scoring:
  windows:
    - name: hot
      duration: 2h
      momentum_slice: 30m
  importance:
    youtube: 0.5
    x: 1.0
drivers:
  spike_momentum: 75
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/other.db", cfg.Database.Path)
	assert.InDelta(t, 0.7, cfg.Clustering.JaccardThreshold, 1e-9)
	assert.Equal(t, 24*time.Hour, cfg.Clustering.ParseLookback())
	assert.Equal(t, 250, cfg.Clustering.ItemLimit)
	assert.Equal(t, []string{"vod", "shorts"}, cfg.Clustering.ExtraStopwords)
	assert.Equal(t, 6*time.Hour, cfg.Clustering.ParseTimeBucket(), "unset keys keep defaults")

	windows := cfg.Scoring.ParseWindows()
	require.Len(t, windows, 1)
	assert.Equal(t, "hot", windows[0].Name)
	assert.Equal(t, 2*time.Hour, windows[0].Duration)
	assert.Equal(t, 30*time.Minute, windows[0].MomentumSlice)

	importance := cfg.Scoring.ParseImportance()
	assert.InDelta(t, 0.5, importance[ingest.PlatformYouTube], 1e-9)
	assert.InDelta(t, 1.0, importance[ingest.PlatformX], 1e-9)

	assert.InDelta(t, 75, cfg.Drivers.SpikeMomentum, 1e-9)
	assert.InDelta(t, 0.6, cfg.Drivers.SpikeShare, 1e-9, "unset threshold keeps its default")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PULSEBOARD_DB_PATH", "/tmp/env.db")
	t.Setenv("PULSEBOARD_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestParseWindowsFallsBack(t *testing.T) {
	s := ScoringConfig{Windows: []WindowConfig{{Name: "broken", Duration: "soon"}}}
	windows := s.ParseWindows()
	require.Len(t, windows, 3, "unparseable windows fall back to defaults")
	assert.Equal(t, "now", windows[0].Name)

	halved := ScoringConfig{Windows: []WindowConfig{{Name: "day", Duration: "24h"}}}
	got := halved.ParseWindows()
	require.Len(t, got, 1)
	assert.Equal(t, 12*time.Hour, got[0].MomentumSlice, "missing slice defaults to half the window")
}
