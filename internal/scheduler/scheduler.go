// Package scheduler wires the pipeline passes to cron schedules for
// the long-running daemon. The core packages never import it.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/pulseboardhq/pulseboard/internal/config"
	"github.com/pulseboardhq/pulseboard/pkg/cluster"
	"github.com/pulseboardhq/pulseboard/pkg/pipeline"
)

// Scheduler runs the dedupe, reselect, score, and feed card passes on
// their configured cron schedules.
type Scheduler struct {
	clusterer *cluster.Clusterer
	engine    *pipeline.Engine
	schedule  config.ScheduleConfig
	log       *logrus.Logger
}

// New creates a scheduler.
func New(c *cluster.Clusterer, e *pipeline.Engine, schedule config.ScheduleConfig, log *logrus.Logger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{clusterer: c, engine: e, schedule: schedule, log: log}
}

// Run registers the cron entries, fires every pass once immediately,
// and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New()

	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"dedupe", s.schedule.Dedupe, s.dedupe},
		{"reselect", s.schedule.Reselect, s.reselect},
		{"score", s.schedule.Score, s.score},
		{"feed_cards", s.schedule.FeedCards, s.feedCards},
	}

	for _, j := range jobs {
		j := j
		if j.spec == "" {
			continue
		}
		_, err := c.AddFunc(j.spec, func() {
			if err := j.run(ctx); err != nil {
				s.log.WithError(err).WithField("job", j.name).Error("scheduled pass failed")
			}
		})
		if err != nil {
			return fmt.Errorf("schedule %s (%q): %w", j.name, j.spec, err)
		}
		s.log.WithFields(logrus.Fields{"job": j.name, "cron": j.spec}).Info("pass scheduled")
	}

	// One warm-up cycle so a fresh deployment has data before the
	// first cron tick.
	for _, j := range jobs {
		if err := j.run(ctx); err != nil {
			s.log.WithError(err).WithField("job", j.name).Error("initial pass failed")
		}
	}

	c.Start()
	<-ctx.Done()

	stopCtx := c.Stop()
	<-stopCtx.Done()
	s.log.Info("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) dedupe(ctx context.Context) error {
	stats, err := s.clusterer.DedupePass(ctx, time.Now())
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"processed": stats.Processed,
		"created":   stats.Created,
		"attached":  stats.Attached,
		"skipped":   stats.Skipped,
	}).Info("dedupe pass complete")
	return nil
}

func (s *Scheduler) reselect(ctx context.Context) error {
	updated, err := s.clusterer.ReselectPrimaries(ctx)
	if err != nil {
		return err
	}
	s.log.WithField("updated", updated).Info("primary reselection complete")
	return nil
}

func (s *Scheduler) score(ctx context.Context) error {
	return s.engine.ScoreAll(ctx, time.Now())
}

func (s *Scheduler) feedCards(ctx context.Context) error {
	_, err := s.engine.BuildFeedCards(ctx, time.Now())
	return err
}
