package batch

import (
	"time"
)

// Config holds configuration for batch processing
type Config struct {
	BatchSize  int           // Maximum number of items per external call
	MaxRetries int           // Retries for a failed batch after the first attempt
	RetryDelay time.Duration // Base delay; attempt n waits RetryDelay*(n+1)

	// Throttled marks errors caused by upstream throttling. Those back off
	// exponentially from RetryDelay instead of linearly. Optional.
	Throttled func(error) bool
}

// DefaultConfig returns the default configuration for batch processing
func DefaultConfig() Config {
	return Config{
		BatchSize:  10,
		MaxRetries: 2,
		RetryDelay: 2 * time.Second,
	}
}

func (c Config) normalized() Config {
	if c.BatchSize < 1 {
		c.BatchSize = 1
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	return c
}
