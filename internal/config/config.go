package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pulseboardhq/pulseboard/pkg/ingest"
	"github.com/pulseboardhq/pulseboard/pkg/scoring"
)

// Config is the root configuration.
type Config struct {
	Database   DatabaseConfig     `yaml:"database"`
	Logging    LoggingConfig      `yaml:"logging"`
	Schedule   ScheduleConfig     `yaml:"schedule"`
	Clustering ClusteringConfig   `yaml:"clustering"`
	Scoring    ScoringConfig      `yaml:"scoring"`
	Drivers    scoring.Thresholds `yaml:"drivers"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ScheduleConfig holds the cron expressions for the daemon's passes.
type ScheduleConfig struct {
	Dedupe    string `yaml:"dedupe"`
	Reselect  string `yaml:"reselect"`
	Score     string `yaml:"score"`
	FeedCards string `yaml:"feed_cards"`
}

// ClusteringConfig configures event deduplication.
type ClusteringConfig struct {
	JaccardThreshold float64  `yaml:"jaccard_threshold"`
	Lookback         string   `yaml:"lookback"`
	TimeBucket       string   `yaml:"time_bucket"`
	CandidateLimit   int      `yaml:"candidate_limit"`
	ItemLookback     string   `yaml:"item_lookback"`
	ItemLimit        int      `yaml:"item_limit"`
	ExtraStopwords   []string `yaml:"extra_stopwords"`
}

// ParseLookback returns the candidate lookback as a duration.
func (c ClusteringConfig) ParseLookback() time.Duration {
	return parseDuration(c.Lookback, 12*time.Hour)
}

// ParseTimeBucket returns the event key bucket width as a duration.
func (c ClusteringConfig) ParseTimeBucket() time.Duration {
	return parseDuration(c.TimeBucket, 6*time.Hour)
}

// ParseItemLookback returns how far back a dedupe pass scans items.
func (c ClusteringConfig) ParseItemLookback() time.Duration {
	return parseDuration(c.ItemLookback, 48*time.Hour)
}

// ScoringConfig configures the scoring engine.
type ScoringConfig struct {
	Windows            []WindowConfig         `yaml:"windows"`
	MicroMomentumSlice string                 `yaml:"micro_momentum_slice"`
	Formula            scoring.FormulaWeights `yaml:"formula"`
	Importance         map[string]float64     `yaml:"importance"`
	ChannelWeights     map[string]float64     `yaml:"channel_weights"`
}

// WindowConfig is one scoring window.
type WindowConfig struct {
	Name          string `yaml:"name"`
	Duration      string `yaml:"duration"`
	MomentumSlice string `yaml:"momentum_slice"`
}

// ParseWindows converts the configured windows, falling back to the
// defaults when none are set or a duration fails to parse.
func (s ScoringConfig) ParseWindows() []scoring.Window {
	if len(s.Windows) == 0 {
		return scoring.DefaultWindows()
	}
	windows := make([]scoring.Window, 0, len(s.Windows))
	for _, w := range s.Windows {
		d, err := time.ParseDuration(w.Duration)
		if err != nil || d <= 0 {
			continue
		}
		slice := parseDuration(w.MomentumSlice, d/2)
		windows = append(windows, scoring.Window{Name: w.Name, Duration: d, MomentumSlice: slice})
	}
	if len(windows) == 0 {
		return scoring.DefaultWindows()
	}
	return windows
}

// ParseMicroMomentumSlice returns the micro momentum slice width.
func (s ScoringConfig) ParseMicroMomentumSlice() time.Duration {
	return parseDuration(s.MicroMomentumSlice, scoring.DefaultMicroMomentumSlice)
}

// ParseImportance returns the per-platform combination weights.
func (s ScoringConfig) ParseImportance() map[ingest.Platform]float64 {
	if len(s.Importance) == 0 {
		return scoring.DefaultImportance()
	}
	out := make(map[ingest.Platform]float64, len(s.Importance))
	for p, w := range s.Importance {
		out[ingest.Platform(p)] = w
	}
	return out
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./pulseboard.db"},
		Logging:  LoggingConfig{Level: "info"},
		Schedule: ScheduleConfig{
			Dedupe:    "*/15 * * * *",
			Reselect:  "5,35 * * * *",
			Score:     "*/10 * * * *",
			FeedCards: "8,38 * * * *",
		},
		Clustering: ClusteringConfig{
			JaccardThreshold: 0.55,
			Lookback:         "12h",
			TimeBucket:       "6h",
			CandidateLimit:   100,
			ItemLookback:     "48h",
			ItemLimit:        5000,
		},
		Scoring: ScoringConfig{
			Windows: []WindowConfig{
				{Name: "now", Duration: "6h", MomentumSlice: "3h"},
				{Name: "24h", Duration: "24h", MomentumSlice: "12h"},
				{Name: "7d", Duration: "168h", MomentumSlice: "24h"},
			},
			MicroMomentumSlice: "60m",
			Formula:            scoring.DefaultFormulaWeights(),
			Importance:         map[string]float64{"youtube": 1.0, "reddit": 1.0, "x": 0.0},
		},
		Drivers: scoring.DefaultThresholds(),
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PULSEBOARD_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("PULSEBOARD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
