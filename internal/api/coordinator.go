package api

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/maildigest/pkg/models"
)

// ErrRunInProgress is returned when a run is triggered while another is active.
var ErrRunInProgress = errors.New("a pipeline run is already in progress")

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context) models.RunResult
}

// Coordinator lets at most one run execute at a time and remembers the
// result of the latest finished run.
type Coordinator struct {
	runner  Runner
	running atomic.Bool
	logger  zerolog.Logger

	mu   sync.RWMutex
	last *models.RunResult
}

// NewCoordinator creates a Coordinator around runner.
func NewCoordinator(runner Runner, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		runner: runner,
		logger: logger.With().Str("component", "coordinator").Logger(),
	}
}

// Trigger runs the pipeline synchronously. It fails fast with
// ErrRunInProgress instead of queueing behind an active run.
func (c *Coordinator) Trigger(ctx context.Context, source string) (models.RunResult, error) {
	if !c.running.CompareAndSwap(false, true) {
		c.logger.Warn().Str("source", source).Msg("Run requested while another run is active, rejecting")
		return models.RunResult{}, ErrRunInProgress
	}
	defer c.running.Store(false)

	c.logger.Info().Str("source", source).Msg("Starting pipeline run")
	result := c.runner.Run(ctx)

	c.mu.Lock()
	c.last = &result
	c.mu.Unlock()

	c.logger.Info().
		Str("source", source).
		Str("run_id", result.RunID).
		Str("status", result.Status).
		Msg("Pipeline run finished")
	return result, nil
}

// Last returns the latest finished run, if any.
func (c *Coordinator) Last() (models.RunResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return models.RunResult{}, false
	}
	return *c.last, true
}

// Running reports whether a run is active.
func (c *Coordinator) Running() bool {
	return c.running.Load()
}
