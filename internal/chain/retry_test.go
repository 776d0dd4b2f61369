package chain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(errors.New("dial tcp: connection refused")))
	assert.True(t, IsRetryable(errors.New("nonce too low")))
	assert.False(t, IsRetryable(errors.New("execution reverted: not token owner")))
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastRetryConfig(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("network error")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastRetryConfig(), func() error {
		attempts++
		return errors.New("execution reverted")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastRetryConfig(), func() error {
		attempts++
		return errors.New("timeout")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, 4, attempts)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RetryWithBackoff(ctx, fastRetryConfig(), func() error {
		return errors.New("timeout")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

func TestSimulatedClientHashesAreUnique(t *testing.T) {
	c := NewSimulatedClient()
	ctx := context.Background()

	tokenID := uuid.New()
	h1, err := c.MintToken(ctx, tokenID, "0xabc")
	require.NoError(t, err)
	h2, err := c.MintToken(ctx, tokenID, "0xabc")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
	assert.Len(t, h1, 66)
}
