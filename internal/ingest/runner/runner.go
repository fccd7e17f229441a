// Package runner orchestrates ingestion runs and owns per-run provenance.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/civicpulse/poll-indexer/internal/domain/model"
	"github.com/civicpulse/poll-indexer/internal/ingest/source"
	"github.com/civicpulse/poll-indexer/internal/metrics"
	"github.com/civicpulse/poll-indexer/internal/store"
	"golang.org/x/sync/errgroup"
)

type Runner struct {
	polls  store.PollRepository
	runs   store.RunRepository
	logger *slog.Logger
}

func New(polls store.PollRepository, runs store.RunRepository, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		polls:  polls,
		runs:   runs,
		logger: logger.With("component", "runner"),
	}
}

// RunAll ingests every source. Sources run independently: a fatal error in
// one never stops the others, and the returned error reflects overall
// success only after all sources have been attempted.
func (r *Runner) RunAll(ctx context.Context, adapters []source.Adapter) error {
	// A plain Group, deliberately not errgroup.WithContext: a failing
	// source must not cancel its siblings.
	var g errgroup.Group
	for _, adapter := range adapters {
		g.Go(func() error {
			return r.runSource(ctx, adapter)
		})
	}
	return g.Wait()
}

// runSource executes one source's ingestion under a tracked run. The run is
// created before any network I/O and transitions exactly once to success or
// error, carrying whatever stats accumulated by then.
func (r *Runner) runSource(ctx context.Context, adapter source.Adapter) error {
	src := adapter.Source()
	logger := r.logger.With("source", src)

	run, err := r.runs.Create(ctx, src)
	if err != nil {
		return fmt.Errorf("%s: create run: %w", src, err)
	}
	logger.Info("ingestion started", "run_id", run.ID)

	start := time.Now()
	stats, ingestErr := adapter.Ingest(ctx, r.polls)
	metrics.RunDuration.WithLabelValues(src.String()).Observe(time.Since(start).Seconds())

	if ingestErr != nil {
		msg := ingestErr.Error()
		if err := r.runs.Finish(ctx, run.ID, model.RunStatusError, stats, &msg); err != nil {
			logger.Error("failed to record run error", "run_id", run.ID, "error", err)
		}
		metrics.RunsCompleted.WithLabelValues(src.String(), string(model.RunStatusError)).Inc()
		logger.Error("ingestion failed",
			"run_id", run.ID,
			"fetched", stats.Fetched,
			"upserted", stats.Upserted,
			"errors", stats.Errors,
			"error", ingestErr,
		)
		return fmt.Errorf("%s: %w", src, ingestErr)
	}

	if err := r.runs.Finish(ctx, run.ID, model.RunStatusSuccess, stats, nil); err != nil {
		metrics.RunsCompleted.WithLabelValues(src.String(), string(model.RunStatusError)).Inc()
		return fmt.Errorf("%s: record run success: %w", src, err)
	}
	metrics.RunsCompleted.WithLabelValues(src.String(), string(model.RunStatusSuccess)).Inc()
	logger.Info("ingestion finished",
		"run_id", run.ID,
		"fetched", stats.Fetched,
		"upserted", stats.Upserted,
		"errors", stats.Errors,
		"elapsed", time.Since(start).String(),
	)
	return nil
}
