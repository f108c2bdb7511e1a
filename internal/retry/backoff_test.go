package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/reviewsync/internal/gitlab"
)

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 3 {
		t.Errorf("Expected MaxRetries=3, got %d", config.MaxRetries)
	}

	if config.BaseDelay != time.Second {
		t.Errorf("Expected BaseDelay=1s, got %v", config.BaseDelay)
	}

	if config.MaxDelay != 30*time.Second {
		t.Errorf("Expected MaxDelay=30s, got %v", config.MaxDelay)
	}

	if !config.Jitter {
		t.Error("Expected Jitter=true")
	}
}

func TestAPIRetryConfig(t *testing.T) {
	config := APIRetryConfig()

	if !config.RetryableOnly {
		t.Error("Expected RetryableOnly=true for API config")
	}

	if config.MaxDelay != 15*time.Second {
		t.Errorf("Expected MaxDelay=15s, got %v", config.MaxDelay)
	}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	config := RetryConfig{
		MaxRetries: 2,
		BaseDelay:  10 * time.Millisecond,
		MaxDelay:   100 * time.Millisecond,
		Multiplier: 2.0,
	}

	result := RetryWithBackoff(context.Background(), config, func() error {
		return nil
	}, nil)

	if !result.Success {
		t.Error("Expected success=true")
	}

	if result.Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", result.Attempts)
	}
}

func TestRetryWithBackoff_EventualSuccess(t *testing.T) {
	config := RetryConfig{
		MaxRetries: 3,
		BaseDelay:  5 * time.Millisecond,
		MaxDelay:   50 * time.Millisecond,
		Multiplier: 2.0,
	}

	calls := 0
	result := RetryWithBackoff(context.Background(), config, func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}, nil)

	if !result.Success {
		t.Error("Expected eventual success")
	}

	if result.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", result.Attempts)
	}
}

func TestRetryWithBackoff_Exhausted(t *testing.T) {
	config := RetryConfig{
		MaxRetries: 2,
		BaseDelay:  5 * time.Millisecond,
		MaxDelay:   50 * time.Millisecond,
		Multiplier: 2.0,
	}

	permanent := errors.New("boom")
	result := RetryWithBackoff(context.Background(), config, func() error {
		return permanent
	}, nil)

	if result.Success {
		t.Error("Expected failure after exhausting retries")
	}

	if result.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", result.Attempts)
	}

	if !errors.Is(result.LastError, permanent) {
		t.Errorf("Expected last error to be the operation error, got %v", result.LastError)
	}
}

func TestRetryWithBackoff_NonRetryableStopsImmediately(t *testing.T) {
	config := APIRetryConfig()
	config.BaseDelay = 5 * time.Millisecond

	calls := 0
	rejection := &gitlab.APIError{StatusCode: 400, Body: "line_code not found"}
	result := RetryWithBackoff(context.Background(), config, func() error {
		calls++
		return rejection
	}, nil)

	if result.Success {
		t.Error("Expected failure")
	}

	if calls != 1 {
		t.Errorf("Expected exactly 1 attempt for a 400 rejection, got %d", calls)
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"timeout", errors.New("request timeout"), true},
		{"api 500", &gitlab.APIError{StatusCode: 500}, true},
		{"api 429", &gitlab.APIError{StatusCode: 429}, true},
		{"api 400 rejection", &gitlab.APIError{StatusCode: 400}, false},
		{"api 404", &gitlab.APIError{StatusCode: 404}, false},
		{"plain error", errors.New("something else"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.want {
				t.Errorf("IsRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
