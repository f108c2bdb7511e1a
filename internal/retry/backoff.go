package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/reviewsync/internal/gitlab"
	"github.com/reviewsync/internal/logging"
)

// RetryConfig configures retry behavior with exponential backoff
type RetryConfig struct {
	MaxRetries    int           `json:"max_retries"`    // Maximum number of retry attempts (default: 3)
	BaseDelay     time.Duration `json:"base_delay"`     // Base delay between retries (default: 1s)
	MaxDelay      time.Duration `json:"max_delay"`      // Maximum delay between retries (default: 30s)
	Multiplier    float64       `json:"multiplier"`     // Exponential backoff multiplier (default: 2.0)
	Jitter        bool          `json:"jitter"`         // Add random jitter to prevent thundering herd (default: true)
	LogRetries    bool          `json:"log_retries"`    // Whether to log retry attempts (default: true)
	RetryableOnly bool          `json:"retryable_only"` // Stop immediately on errors IsRetryableError rejects
}

// RetryResult contains information about the retry operation
type RetryResult struct {
	Attempts      int           `json:"attempts"`       // Total number of attempts made
	TotalDuration time.Duration `json:"total_duration"` // Total time spent on all attempts
	LastError     error         `json:"-"`              // Last error encountered
	Success       bool          `json:"success"`        // Whether the operation eventually succeeded
}

// DefaultRetryConfig returns a retry configuration with sensible defaults
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
		LogRetries: true,
	}
}

// APIRetryConfig returns a retry configuration tuned for GitLab API calls.
// Only transport-level and throttling failures are retried: a 4xx rejection
// of a comment position must surface immediately so the dispatch layer can
// degrade to the fallback note instead of re-sending an unresolvable
// position.
func APIRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		BaseDelay:     1 * time.Second,
		MaxDelay:      15 * time.Second,
		Multiplier:    2.0,
		Jitter:        true,
		LogRetries:    true,
		RetryableOnly: true,
	}
}

// RetryWithBackoff executes an operation with exponential backoff retry logic
func RetryWithBackoff(ctx context.Context, config RetryConfig, operation func() error, logger *logging.SyncLogger) RetryResult {
	startTime := time.Now()

	result := RetryResult{}

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result.Attempts = attempt + 1

		if config.LogRetries && logger != nil && attempt > 0 {
			logger.Debug("Retrying operation (attempt %d/%d)", attempt+1, config.MaxRetries+1)
		}

		err := operation()
		if err == nil {
			result.Success = true
			result.TotalDuration = time.Since(startTime)
			if config.LogRetries && logger != nil && attempt > 0 {
				logger.Debug("Operation succeeded after %d retries (total duration: %v)", attempt, result.TotalDuration)
			}
			return result
		}

		result.LastError = err

		// A non-retryable error cannot improve with repetition
		if config.RetryableOnly && !IsRetryableError(err) {
			result.TotalDuration = time.Since(startTime)
			if config.LogRetries && logger != nil {
				logger.Debug("Operation failed with non-retryable error: %v", err)
			}
			return result
		}

		if attempt >= config.MaxRetries {
			result.TotalDuration = time.Since(startTime)
			if config.LogRetries && logger != nil {
				logger.Debug("Operation failed after %d attempts (total duration: %v): %v",
					result.Attempts, result.TotalDuration, err)
			}
			return result
		}

		if ctx.Err() != nil {
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(startTime)
			return result
		}

		delay := calculateDelay(config, attempt)
		if config.LogRetries && logger != nil {
			logger.Debug("Operation failed (attempt %d/%d): %v, waiting %v before retry",
				attempt+1, config.MaxRetries+1, err, delay)
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

// calculateDelay calculates the delay for the next retry attempt using exponential backoff
func calculateDelay(config RetryConfig, attempt int) time.Duration {
	delay := float64(config.BaseDelay) * math.Pow(config.Multiplier, float64(attempt))

	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	// Add up to 10% random jitter to prevent thundering herd
	if config.Jitter {
		jitterRange := delay * 0.1
		jitter := (rand.Float64() - 0.5) * 2 * jitterRange
		delay += jitter

		if delay < 0 {
			delay = float64(config.BaseDelay)
		}
	}

	return time.Duration(delay)
}

// IsRetryableError determines if an error is worth retrying. Server-side
// position rejections (4xx other than 429) are not: they drive the fallback
// path instead.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *gitlab.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	errStr := strings.ToLower(err.Error())

	// Network-related errors that are typically retryable
	retryableErrors := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"service unavailable",
		"too many requests",
		"rate limit",
		"no such host",
		"network unreachable",
		"broken pipe",
		"context deadline exceeded",
	}

	for _, retryable := range retryableErrors {
		if strings.Contains(errStr, retryable) {
			return true
		}
	}

	return false
}
