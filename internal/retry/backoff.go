package retry

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Strategy selects how the delay grows between attempts.
type Strategy int

const (
	// Linear waits BaseDelay*(attempt+1).
	Linear Strategy = iota
	// Exponential waits BaseDelay*Multiplier^attempt, capped at MaxDelay.
	Exponential
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxRetries int           `json:"max_retries"` // retries after the first attempt
	BaseDelay  time.Duration `json:"base_delay"`
	MaxDelay   time.Duration `json:"max_delay"` // 0 means uncapped
	Multiplier float64       `json:"multiplier"`
	Strategy   Strategy      `json:"strategy"`
	Jitter     bool          `json:"jitter"`
	LogRetries bool          `json:"log_retries"`

	// Throttled, when set, marks failures that wait on the throttle policy
	// (see ThrottleConfig) instead of Strategy.
	Throttled func(error) bool `json:"-"`
}

// RetryResult contains information about the retry operation
type RetryResult struct {
	Attempts      int           `json:"attempts"`
	TotalDuration time.Duration `json:"total_duration"`
	LastError     error         `json:"-"`
	Success       bool          `json:"success"`
	RetryReasons  []string      `json:"retry_reasons"`
}

// LinearConfig is the batch-call policy: a fixed retry budget with linearly
// increasing delay and no jitter.
func LinearConfig(maxRetries int, delay time.Duration) RetryConfig {
	return RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  delay,
		Strategy:   Linear,
		LogRetries: true,
	}
}

// ThrottleConfig is the policy for throttled calls: exponential growth from
// base with jitter, capped at a minute.
func ThrottleConfig(maxRetries int, base time.Duration) RetryConfig {
	return RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  base,
		MaxDelay:   60 * time.Second,
		Multiplier: 2.5,
		Strategy:   Exponential,
		Jitter:     true,
		LogRetries: true,
	}
}

// RetryWithBackoff runs operation until it succeeds, the retry budget is
// spent, or ctx is done. The attempt number passed to operation starts at 0.
func RetryWithBackoff(ctx context.Context, config RetryConfig, operation func(attempt int) error, logger zerolog.Logger) RetryResult {
	startTime := time.Now()

	result := RetryResult{
		RetryReasons: make([]string, 0),
	}

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result.Attempts = attempt + 1

		err := operation(attempt)
		if err == nil {
			result.Success = true
			result.TotalDuration = time.Since(startTime)
			if config.LogRetries && attempt > 0 {
				logger.Debug().
					Int("attempts", result.Attempts).
					Dur("total_duration", result.TotalDuration).
					Msg("Operation succeeded after retry")
			}
			return result
		}

		result.LastError = err
		result.RetryReasons = append(result.RetryReasons, err.Error())

		if attempt >= config.MaxRetries {
			result.TotalDuration = time.Since(startTime)
			if config.LogRetries {
				logger.Warn().
					Err(err).
					Int("attempts", result.Attempts).
					Dur("total_duration", result.TotalDuration).
					Msg("Operation failed, retry budget exhausted")
			}
			return result
		}

		if ctx.Err() != nil {
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(startTime)
			return result
		}

		throttled := config.Throttled != nil && config.Throttled(err)
		delay := calculateDelay(config, attempt)
		if throttled {
			delay = calculateDelay(ThrottleConfig(config.MaxRetries, config.BaseDelay), attempt)
		}
		if config.LogRetries {
			logger.Warn().
				Err(err).
				Bool("throttled", throttled).
				Int("attempt", attempt+1).
				Int("max_attempts", config.MaxRetries+1).
				Dur("delay", delay).
				Msg("Operation failed, retrying")
		}

		select {
		case <-ctx.Done():
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(startTime)
			return result
		case <-time.After(delay):
		}
	}

	result.TotalDuration = time.Since(startTime)
	return result
}

func calculateDelay(config RetryConfig, attempt int) time.Duration {
	var delay float64
	switch config.Strategy {
	case Exponential:
		delay = float64(config.BaseDelay) * math.Pow(config.Multiplier, float64(attempt))
	default:
		delay = float64(config.BaseDelay) * float64(attempt+1)
	}

	if config.MaxDelay > 0 && delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	if config.Jitter {
		// up to 10% either way
		jitterRange := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(config.BaseDelay)
		}
	}

	return time.Duration(delay)
}

// IsRateLimitError reports whether err looks like an upstream throttling response.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	return containsAny(err.Error(), "429", "too many requests", "rate limit", "rate_limit")
}

func containsAny(s string, subs ...string) bool {
	s = strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(s, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
