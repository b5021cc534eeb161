package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func fastConfig(retries int) *Config {
	c := DefaultRetryConfig()
	c.MaxRetries = retries
	c.InitialDelay = time.Millisecond
	c.MaxDelay = 2 * time.Millisecond
	return c
}

func TestDefaultRetryConfig(t *testing.T) {
	c := DefaultRetryConfig()
	if c.MaxRetries != 3 || c.InitialDelay != 100*time.Millisecond || c.MaxDelay != 5*time.Second || c.BackoffFactor != 2.0 {
		t.Fatalf("unexpected defaults: %+v", c)
	}
}

func TestConfig_isRetryableError(t *testing.T) {
	c := DefaultRetryConfig()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"pg serialization", errors.New("ERROR: could not serialize access due to concurrent update"), true},
		{"syntax", errors.New(`syntax error at or near "SELEC"`), false},
		{"canceled", context.Canceled, false},
		{"wrapped deadline", errors.Join(errors.New("timeout"), context.DeadlineExceeded), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.isRetryableError(tt.err); got != tt.want {
				t.Fatalf("isRetryableError(%v)=%v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestConfig_calculateDelay(t *testing.T) {
	c := &Config{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{10, time.Second},
	}
	for _, tt := range tests {
		if got := c.calculateDelay(tt.attempt); got != tt.want {
			t.Fatalf("calculateDelay(%d)=%v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestWithRetry_SucceedsAfterTransientErrors(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestWithRetry_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	boom := errors.New("constraint violation")
	err := WithRetry(context.Background(), fastConfig(3), func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestWithRetry_Exhausted(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastConfig(2), func() error {
		calls++
		return errors.New("connection reset by peer")
	})
	if err == nil || !strings.Contains(err.Error(), "after 3 attempts") {
		t.Fatalf("expected exhaustion error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestWithRetry_NoRetry(t *testing.T) {
	calls := 0
	boom := errors.New("database is locked")
	err := WithRetry(context.Background(), NoRetry(), func() error {
		calls++
		return boom
	})
	if err != boom || calls != 1 {
		t.Fatalf("NoRetry: err=%v calls=%d", err, calls)
	}
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := fastConfig(5)
	c.InitialDelay = time.Hour
	c.MaxDelay = time.Hour
	err := WithRetry(ctx, c, func() error { return errors.New("timeout") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
