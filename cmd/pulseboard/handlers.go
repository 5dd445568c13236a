package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/pulseboardhq/pulseboard/internal/config"
	"github.com/pulseboardhq/pulseboard/internal/scheduler"
	"github.com/pulseboardhq/pulseboard/internal/store"
	"github.com/pulseboardhq/pulseboard/pkg/cluster"
	"github.com/pulseboardhq/pulseboard/pkg/pipeline"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func newLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

// setup opens the store and builds the shared dependencies every
// command needs. Callers must Close the returned store.
func setup() (*config.Config, *logrus.Logger, *store.SQLiteStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	log := newLogger(cfg)

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}
	return cfg, log, db, nil
}

func buildClusterer(cfg *config.Config, db store.Store, log *logrus.Logger) *cluster.Clusterer {
	return cluster.New(db, cluster.Config{
		JaccardThreshold: cfg.Clustering.JaccardThreshold,
		Lookback:         cfg.Clustering.ParseLookback(),
		TimeBucket:       cfg.Clustering.ParseTimeBucket(),
		CandidateLimit:   cfg.Clustering.CandidateLimit,
		ItemLookback:     cfg.Clustering.ParseItemLookback(),
		ItemLimit:        cfg.Clustering.ItemLimit,
		Stopwords:        cluster.StopwordSet(cfg.Clustering.ExtraStopwords),
	}, log)
}

func buildEngine(cfg *config.Config, db store.Store, log *logrus.Logger) *pipeline.Engine {
	return pipeline.New(db, pipeline.Config{
		Windows:        cfg.Scoring.ParseWindows(),
		MicroSlice:     cfg.Scoring.ParseMicroMomentumSlice(),
		Formula:        cfg.Scoring.Formula,
		Importance:     cfg.Scoring.ParseImportance(),
		ChannelWeights: cfg.Scoring.ChannelWeights,
		Drivers:        cfg.Drivers,
	}, log)
}

func runDedupe() error {
	cfg, log, db, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := buildClusterer(cfg, db, log).DedupePass(context.Background(), time.Now())
	if err != nil {
		return fmt.Errorf("dedupe pass: %w", err)
	}

	fmt.Printf("processed %d items: %d events created, %d attached, %d skipped\n",
		stats.Processed, stats.Created, stats.Attached, stats.Skipped)
	return nil
}

func runReselect() error {
	cfg, log, db, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	updated, err := buildClusterer(cfg, db, log).ReselectPrimaries(context.Background())
	if err != nil {
		return fmt.Errorf("reselect primaries: %w", err)
	}

	fmt.Printf("updated primary item on %d events\n", updated)
	return nil
}

func runScore(window string) error {
	cfg, log, db, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	engine := buildEngine(cfg, db, log)
	ctx := context.Background()
	now := time.Now()

	if window == "" {
		return engine.ScoreAll(ctx, now)
	}

	for _, w := range cfg.Scoring.ParseWindows() {
		if w.Name != window {
			continue
		}
		n, err := engine.ScorePass(ctx, w, now)
		if err != nil {
			return fmt.Errorf("score %s: %w", window, err)
		}
		fmt.Printf("scored %d entities in window %s\n", n, window)
		return nil
	}
	return fmt.Errorf("unknown window %q", window)
}

func runFeedCards() error {
	cfg, log, db, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := buildEngine(cfg, db, log).BuildFeedCards(context.Background(), time.Now())
	if err != nil {
		return fmt.Errorf("build feed cards: %w", err)
	}

	fmt.Printf("wrote %d feed cards\n", n)
	return nil
}

func runScoreboard(window string, jsonOutput bool, limit int) error {
	_, _, db, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.Scoreboard(context.Background(), window, limit)
	if err != nil {
		return fmt.Errorf("scoreboard: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Printf("no scores for window %q (try: pulseboard score)\n", window)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tΔ\tSCORE\tMOMENTUM\tMENTIONS\tDRIVER\tENTITY")
	for _, r := range rows {
		driver := "-"
		if r.Driver != nil {
			driver = *r.Driver
		}
		fmt.Fprintf(w, "%d\t%+d\t%.1f\t%+.0f%%\t%d\t%s\t%s\n",
			r.Rank, r.DeltaRank, r.Score.Score, r.Momentum, r.MentionCount,
			driver, r.EntityName)
	}
	return w.Flush()
}

// seedFile is the YAML shape accepted by the seed command.
type seedFile struct {
	Entities []struct {
		Type        string `yaml:"type"`
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
		Enabled     *bool  `yaml:"enabled"`
		Aliases     []struct {
			Text             string  `yaml:"text"`
			MatchType        string  `yaml:"match_type"`
			PlatformScope    string  `yaml:"platform_scope"`
			ConfidenceWeight float64 `yaml:"confidence_weight"`
		} `yaml:"aliases"`
	} `yaml:"entities"`
}

func runSeed(path string) error {
	_, _, db, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse seed file %s: %w", path, err)
	}

	ctx := context.Background()
	entities, aliases := 0, 0

	for _, e := range seed.Entities {
		enabled := true
		if e.Enabled != nil {
			enabled = *e.Enabled
		}
		if err := db.UpsertEntity(ctx, &store.Entity{
			ID:            uuid.NewString(),
			Type:          e.Type,
			CanonicalName: e.Name,
			Description:   e.Description,
			Enabled:       enabled,
		}); err != nil {
			return err
		}
		entities++
	}

	// Re-read to resolve the persisted IDs; an earlier seed run may
	// own the (type, name) row.
	existing, err := db.ListEntities(ctx, false)
	if err != nil {
		return err
	}
	byKey := make(map[string]string, len(existing))
	for _, e := range existing {
		byKey[e.Type+"|"+e.CanonicalName] = e.ID
	}

	for _, e := range seed.Entities {
		entityID, ok := byKey[e.Type+"|"+e.Name]
		if !ok {
			continue
		}
		for _, a := range e.Aliases {
			scope := a.PlatformScope
			if scope == "" {
				scope = "any"
			}
			matchType := a.MatchType
			if matchType == "" {
				matchType = "contains"
			}
			weight := a.ConfidenceWeight
			if weight == 0 {
				weight = 1.0
			}
			if err := db.UpsertAlias(ctx, &store.Alias{
				ID:               uuid.NewString(),
				EntityID:         entityID,
				AliasText:        a.Text,
				MatchType:        matchType,
				PlatformScope:    scope,
				ConfidenceWeight: weight,
			}); err != nil {
				return err
			}
			aliases++
		}
	}

	fmt.Printf("seeded %d entities, %d aliases\n", entities, aliases)
	return nil
}

func runDaemon() error {
	cfg, log, db, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := scheduler.New(
		buildClusterer(cfg, db, log),
		buildEngine(cfg, db, log),
		cfg.Schedule,
		log,
	)

	if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	return nil
}
