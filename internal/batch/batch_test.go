package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLimiter struct {
	calls int
	err   error
}

func (l *countingLimiter) Wait(context.Context) error {
	l.calls++
	return l.err
}

func testConfig(size, retries int) Config {
	return Config{BatchSize: size, MaxRetries: retries, RetryDelay: time.Millisecond}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name  string
		items []int
		size  int
		want  [][]int
	}{
		{"empty", nil, 3, [][]int{}},
		{"exact", []int{1, 2, 3, 4}, 2, [][]int{{1, 2}, {3, 4}}},
		{"remainder", []int{1, 2, 3, 4, 5}, 2, [][]int{{1, 2}, {3, 4}, {5}}},
		{"zero size treated as one", []int{1, 2}, 0, [][]int{{1}, {2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Split(tt.items, tt.size))
		})
	}
}

func TestProcessAllBatchesSucceed(t *testing.T) {
	limiter := &countingLimiter{}
	p := NewProcessor[int, int]("double", testConfig(2, 2), limiter, zerolog.Nop())

	results := p.Process(context.Background(), []int{1, 2, 3, 4, 5}, func(_ context.Context, items []int) ([]int, error) {
		out := make([]int, len(items))
		for i, v := range items {
			out[i] = v * 2
		}
		return out, nil
	})

	require.Len(t, results, 3)
	assert.Equal(t, []int{2, 4}, results[0].Output)
	assert.Equal(t, []int{10}, results[2].Output)
	for _, r := range results {
		assert.NoError(t, r.Err)
		assert.Equal(t, 1, r.Attempts)
	}
	assert.Equal(t, 3, limiter.calls, "one token per external call")
}

func TestProcessRetriesThenSucceeds(t *testing.T) {
	limiter := &countingLimiter{}
	p := NewProcessor[string, string]("flaky", testConfig(10, 2), limiter, zerolog.Nop())

	calls := 0
	results := p.Process(context.Background(), []string{"a"}, func(_ context.Context, items []string) ([]string, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("503 service unavailable")
		}
		return items, nil
	})

	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, 3, results[0].Attempts)
	assert.Equal(t, 3, limiter.calls, "limiter consulted before every attempt")
}

func TestProcessIsolatesFailedBatch(t *testing.T) {
	p := NewProcessor[int, int]("isolate", testConfig(2, 1), nil, zerolog.Nop())

	boom := errors.New("transport closed")
	results := p.Process(context.Background(), []int{1, 2, 3, 4}, func(_ context.Context, items []int) ([]int, error) {
		if items[0] == 1 {
			return nil, boom
		}
		return items, nil
	})

	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, boom)
	assert.Nil(t, results[0].Output)
	assert.Equal(t, []int{1, 2}, results[0].Items)
	assert.Equal(t, 2, results[0].Attempts)

	assert.NoError(t, results[1].Err)
	assert.Equal(t, []int{3, 4}, results[1].Output)
}

func TestProcessLimiterError(t *testing.T) {
	limiter := &countingLimiter{err: context.Canceled}
	p := NewProcessor[int, int]("limited", testConfig(5, 0), limiter, zerolog.Nop())

	called := false
	results := p.Process(context.Background(), []int{1}, func(_ context.Context, items []int) ([]int, error) {
		called = true
		return items, nil
	})

	require.Len(t, results, 1)
	assert.False(t, called)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
}

func TestProcessClassifiesThrottledFailures(t *testing.T) {
	throttled := errors.New("slow down")
	var seen []error
	cfg := testConfig(5, 1)
	cfg.Throttled = func(err error) bool {
		seen = append(seen, err)
		return errors.Is(err, throttled)
	}
	p := NewProcessor[int, int]("throttle", cfg, nil, zerolog.Nop())

	calls := 0
	results := p.Process(context.Background(), []int{1, 2}, func(_ context.Context, items []int) ([]int, error) {
		calls++
		if calls == 1 {
			return nil, throttled
		}
		return items, nil
	})

	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, 2, results[0].Attempts)
	assert.Equal(t, []error{throttled}, seen)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.RetryDelay)
}
