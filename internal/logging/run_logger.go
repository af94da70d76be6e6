package logging

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RunLogger tracks logging for a single pipeline run. Every entry carries the
// run id and, once a transition happened, the current state. A nil
// *RunLogger discards everything.
type RunLogger struct {
	base      zerolog.Logger
	runID     string
	startTime time.Time

	mu     sync.Mutex
	state  string
	logger zerolog.Logger
}

// NewRunLogger derives a run-scoped logger from base.
func NewRunLogger(base zerolog.Logger, runID string) *RunLogger {
	base = base.With().Str("run_id", runID).Logger()
	return &RunLogger{
		base:      base,
		runID:     runID,
		startTime: time.Now(),
		logger:    base,
	}
}

// RunID returns the run identifier.
func (r *RunLogger) RunID() string {
	if r == nil {
		return ""
	}
	return r.runID
}

// Logger returns the current state-scoped logger.
func (r *RunLogger) Logger() zerolog.Logger {
	if r == nil {
		return zerolog.Nop()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logger
}

// Transition records a state change and scopes subsequent entries to to.
func (r *RunLogger) Transition(from, to string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.state = to
	r.logger = r.base.With().Str("state", to).Logger()
	logger := r.logger
	r.mu.Unlock()

	logger.Info().Str("from", from).Str("to", to).Msgf("State transition: %s -> %s", from, to)
}

// StageCompleted logs a finished state with its duration.
func (r *RunLogger) StageCompleted(state string, d time.Duration) {
	if r == nil {
		return
	}
	l := r.Logger()
	l.Info().
		Int64("duration_ms", d.Milliseconds()).
		Msgf("State %s completed in %dms", state, d.Milliseconds())
}

// StageFailed logs a failed state.
func (r *RunLogger) StageFailed(state, errorType string, err error, d time.Duration) {
	if r == nil {
		return
	}
	l := r.Logger()
	l.Error().
		Err(err).
		Str("error_type", errorType).
		Int64("duration_ms", d.Milliseconds()).
		Msgf("State %s failed", state)
}

// Critical logs at the highest severity without exiting the process.
func (r *RunLogger) Critical() *zerolog.Event {
	if r == nil {
		nop := zerolog.Nop()
		return nop.WithLevel(zerolog.FatalLevel)
	}
	l := r.Logger()
	return l.WithLevel(zerolog.FatalLevel)
}

// Finish logs the end of the run.
func (r *RunLogger) Finish(status string) {
	if r == nil {
		return
	}
	r.base.Info().
		Str("status", status).
		Dur("elapsed", time.Since(r.startTime)).
		Msg("Pipeline run finished")
}
