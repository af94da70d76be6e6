package api

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Scheduler triggers a run every interval until its context ends.
type Scheduler struct {
	coord    *Coordinator
	interval time.Duration
	logger   zerolog.Logger
}

// NewScheduler creates a Scheduler. A non-positive interval disables it.
func NewScheduler(coord *Coordinator, interval time.Duration, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		coord:    coord,
		interval: interval,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// Run blocks until ctx is done. The first run fires one interval after start.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info().Msg("Scheduler disabled")
		return nil
	}

	s.logger.Info().Dur("interval", s.interval).Msg("Scheduler started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Scheduler stopped")
			return nil
		case <-ticker.C:
			if _, err := s.coord.Trigger(ctx, "scheduler"); errors.Is(err, ErrRunInProgress) {
				s.logger.Warn().Msg("Skipping scheduled run, previous run still active")
			}
		}
	}
}
