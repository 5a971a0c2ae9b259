// Package main provides the Messenger bot server entry point.
package main

import (
	"context"
	"time"

	"github.com/artofyoga/messenger-bot-go/internal/config"
	"github.com/artofyoga/messenger-bot-go/internal/logger"
	"github.com/artofyoga/messenger-bot-go/internal/metrics"
	"github.com/artofyoga/messenger-bot-go/internal/session"
	"github.com/artofyoga/messenger-bot-go/internal/storage"
	"golang.org/x/sync/errgroup"
)

type jobDeps struct {
	config   *config.Config
	sessions *session.Store
	db       *storage.DB
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

// startJobs launches the periodic maintenance goroutines. The returned
// channel closes once all jobs have observed ctx cancellation.
func startJobs(ctx context.Context, deps jobDeps) <-chan struct{} {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sweepSessions(ctx, deps)
		return nil
	})
	g.Go(func() error {
		cleanupDedup(ctx, deps)
		return nil
	})
	g.Go(func() error {
		refreshGauges(ctx, deps)
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = g.Wait()
	}()
	return done
}

// sweepSessions periodically evicts sessions idle past their TTL.
func sweepSessions(ctx context.Context, deps jobDeps) {
	log := deps.logger.WithModule("jobs")
	ticker := time.NewTicker(deps.config.SessionSweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := deps.sessions.Sweep(time.Now())
			if evicted > 0 {
				log.WithField("evicted", evicted).
					WithField("live", deps.sessions.Len()).
					Info("Session sweep complete")
			}
		}
	}
}

// cleanupDedup periodically removes processed-event records older than
// the retention window.
func cleanupDedup(ctx context.Context, deps jobDeps) {
	log := deps.logger.WithModule("jobs")
	ticker := time.NewTicker(deps.config.DedupCleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := deps.db.Cleanup(ctx, deps.config.DedupRetention)
			if err != nil {
				log.WithError(err).Error("Failed to clean up processed events")
				continue
			}
			if removed > 0 {
				log.WithField("removed", removed).Debug("Dedup cleanup complete")
			}
		}
	}
}

// refreshGauges periodically resyncs gauge metrics with actual state,
// in case an update was missed.
func refreshGauges(ctx context.Context, deps jobDeps) {
	ticker := time.NewTicker(deps.config.MetricsRefreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deps.metrics.SessionsLive.Set(float64(deps.sessions.Len()))
		}
	}
}
