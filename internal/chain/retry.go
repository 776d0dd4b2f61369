package chain

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// RetryConfig holds retry configuration for chain submissions.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultRetryConfig returns the retry policy used for settlement
// transactions.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
	}
}

// retryablePatterns are transient chain/RPC failures worth retrying. Anything
// else (reverts, invalid params) fails immediately.
var retryablePatterns = []string{
	"connection refused",
	"timeout",
	"temporary failure",
	"nonce too low",
	"replacement transaction underpriced",
	"network error",
	"EOF",
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// RetryWithBackoff retries fn with exponential backoff until it succeeds, a
// non-retryable error occurs, retries are exhausted, or ctx is cancelled.
func RetryWithBackoff(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return fmt.Errorf("non-retryable error: %w", err)
		}
		if attempt == cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		case <-time.After(backoff(attempt, cfg)):
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func backoff(attempt int, cfg RetryConfig) time.Duration {
	d := time.Duration(float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffFactor, float64(attempt)))
	if d > cfg.MaxBackoff {
		return cfg.MaxBackoff
	}
	return d
}
