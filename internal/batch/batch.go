package batch

import (
	"context"
	"fmt"

	"github.com/maildigest/internal/retry"
	"github.com/rs/zerolog"
)

// Limiter gates outbound calls. Wait blocks until a call may proceed.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Func transforms one batch of inputs into outputs.
type Func[T, R any] func(ctx context.Context, items []T) ([]R, error)

// Result is the outcome of one batch. Err is set when every attempt failed,
// in which case Output is nil and Items is what the caller must compensate for.
type Result[T, R any] struct {
	Index    int // 0-based batch number
	Items    []T
	Output   []R
	Attempts int
	Err      error
}

// Processor runs batches one at a time with retry and optional rate limiting.
type Processor[T, R any] struct {
	name    string
	config  Config
	limiter Limiter
	logger  zerolog.Logger
}

// NewProcessor creates a processor. limiter may be nil.
func NewProcessor[T, R any](name string, config Config, limiter Limiter, logger zerolog.Logger) *Processor[T, R] {
	return &Processor[T, R]{
		name:    name,
		config:  config.normalized(),
		limiter: limiter,
		logger:  logger.With().Str("batch_op", name).Logger(),
	}
}

// Process splits items into batches and runs fn over each in order. A batch
// that still fails after its retries is reported in its Result and does not
// stop the remaining batches. Cancelling ctx fails the current and remaining
// batches.
func (p *Processor[T, R]) Process(ctx context.Context, items []T, fn Func[T, R]) []Result[T, R] {
	batches := Split(items, p.config.BatchSize)
	results := make([]Result[T, R], 0, len(batches))

	for i, b := range batches {
		p.logger.Info().
			Int("batch", i+1).
			Int("total_batches", len(batches)).
			Int("size", len(b)).
			Msgf("Processing %s batch %d/%d", p.name, i+1, len(batches))

		res := Result[T, R]{Index: i, Items: b}
		cfg := retry.LinearConfig(p.config.MaxRetries, p.config.RetryDelay)
		cfg.Throttled = p.config.Throttled

		outcome := retry.RetryWithBackoff(ctx, cfg, func(int) error {
			if p.limiter != nil {
				if err := p.limiter.Wait(ctx); err != nil {
					return fmt.Errorf("rate limiter: %w", err)
				}
			}
			out, err := fn(ctx, b)
			if err != nil {
				return err
			}
			res.Output = out
			return nil
		}, p.logger)

		res.Attempts = outcome.Attempts
		if !outcome.Success {
			res.Output = nil
			res.Err = outcome.LastError
			p.logger.Error().
				Err(res.Err).
				Int("batch", i+1).
				Int("attempts", res.Attempts).
				Msgf("%s batch failed", p.name)
		}
		results = append(results, res)
	}

	return results
}

// Split partitions items into consecutive chunks of at most size elements.
func Split[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	batches := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}
