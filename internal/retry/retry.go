package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/loykin/sqlupgrade/internal/common"
)

// Config holds configuration for store operation retries.
type Config struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialDelay    time.Duration // Initial delay before first retry
	MaxDelay        time.Duration // Maximum delay between retries
	BackoffFactor   float64       // Multiplier for exponential backoff
	RetryableErrors []string      // Error substrings that trigger retries
}

// DefaultRetryConfig returns the retry policy used for version checkpoints.
func DefaultRetryConfig() *Config {
	return &Config{
		MaxRetries:    3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		RetryableErrors: []string{
			"connection refused",
			"connection reset",
			"timeout",
			"temporary failure",
			"deadlock",
			"lock wait timeout",
			"database is locked",
			"connection lost",
			"broken pipe",
			"could not serialize access",
		},
	}
}

// NoRetry returns a config that runs the operation exactly once.
func NoRetry() *Config {
	return &Config{MaxRetries: 0}
}

func (rc *Config) isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, retryableErr := range rc.RetryableErrors {
		if strings.Contains(errStr, retryableErr) {
			return true
		}
	}
	return false
}

// calculateDelay returns the exponential backoff delay for a retry attempt.
func (rc *Config) calculateDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return rc.InitialDelay
	}
	factor := rc.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay := time.Duration(float64(rc.InitialDelay) * math.Pow(factor, float64(attempt-1)))
	if rc.MaxDelay > 0 && delay > rc.MaxDelay {
		delay = rc.MaxDelay
	}
	return delay
}

// Operation is a unit of work that can be retried.
type Operation func() error

// WithRetry runs operation until it succeeds, fails with a non-retryable
// error, exhausts MaxRetries, or ctx is done.
func WithRetry(ctx context.Context, config *Config, operation Operation) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	logger := common.GetLogger().WithComponent("store-retry")

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			if attempt > 0 {
				logger.Info("store operation succeeded after retry", "attempt", attempt+1)
			}
			return nil
		}
		lastErr = err

		if attempt == config.MaxRetries {
			break
		}
		if !config.isRetryableError(err) {
			logger.Debug("store operation failed with non-retryable error", "error", err, "attempt", attempt+1)
			return err
		}

		delay := config.calculateDelay(attempt)
		logger.Warn("store operation failed, retrying",
			"error", err,
			"attempt", attempt+1,
			"max_attempts", config.MaxRetries+1,
			"retry_delay", delay)

		select {
		case <-ctx.Done():
			return fmt.Errorf("operation cancelled during retry: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	if config.MaxRetries == 0 {
		return lastErr
	}
	logger.Error("store operation failed after all retry attempts", "error", lastErr, "attempts", config.MaxRetries+1)
	return fmt.Errorf("operation failed after %d attempts: %w", config.MaxRetries+1, lastErr)
}
