package rpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tokenwatch/transferscan/internal/common"
	"github.com/tokenwatch/transferscan/pkg/config"
)

func testRetryConfig() *config.RetryConfig {
	return &config.RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    common.NewDuration(time.Millisecond),
		MaxBackoff:        common.NewDuration(5 * time.Millisecond),
		BackoffMultiplier: 2.0,
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := &config.RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    common.NewDuration(time.Second),
		MaxBackoff:        common.NewDuration(60 * time.Second),
		BackoffMultiplier: 2.0,
	}

	require.Zero(t, calculateBackoff(1, cfg))

	// Attempt n waits roughly initial * multiplier^(n-2), +/-25% jitter.
	b2 := calculateBackoff(2, cfg)
	require.InDelta(t, float64(time.Second), float64(b2), float64(time.Second)*0.26)

	b4 := calculateBackoff(4, cfg)
	require.InDelta(t, float64(4*time.Second), float64(b4), float64(4*time.Second)*0.26)

	// The cap holds even for large attempt numbers.
	b20 := calculateBackoff(20, cfg)
	require.LessOrEqual(t, b20, time.Duration(float64(60*time.Second)*1.26))
}

func TestRetryWithBackoff_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), testRetryConfig(), "test", func() error {
		calls++
		if calls < 3 {
			return errors.New("503 Service Unavailable")
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetryWithBackoff_NonRetryableFailsFast(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), testRetryConfig(), "test", func() error {
		calls++
		return errors.New("401 Unauthorized")
	})

	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestRetryWithBackoff_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), testRetryConfig(), "test", func() error {
		calls++
		return errors.New("request timeout")
	})

	require.Error(t, err)
	require.Equal(t, 3, calls)
	require.Contains(t, err.Error(), "all 3 attempts")
}

func TestRetryWithBackoff_NilConfigRunsOnce(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), nil, "test", func() error {
		calls++
		return errors.New("request timeout")
	})

	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestRetryWithBackoff_RespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retryWithBackoff(ctx, testRetryConfig(), "test", func() error {
		calls++
		return errors.New("request timeout")
	})

	require.Error(t, err)
	require.Zero(t, calls)
}
