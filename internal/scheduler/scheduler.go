// Package scheduler repeats SyncAll on a fixed interval for daemon mode.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"connector-sync/internal/service/orchestrator"
	"connector-sync/pkg/log"
)

type Runner interface {
	SyncAll(ctx context.Context) (*orchestrator.SyncAllResult, error)
}

type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   zerolog.Logger
}

func New(runner Runner, interval time.Duration) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   log.Logger.With().Str("component", "scheduler").Dur("interval", interval).Logger(),
	}
}

// Run starts a pass immediately and then once per interval until ctx is cancelled.
// A tick that arrives while a pass is still running is dropped.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("scheduler interval must be positive")
	}

	s.logger.Info().Msg("Scheduler started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.runOnce(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	result, err := s.runner.SyncAll(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Scheduled sync pass failed")
		return
	}

	s.logger.Info().
		Int("total", result.TotalConnections).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Dur("duration", result.Duration).
		Msg("Scheduled sync pass completed")
}
