package retry

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

// Config defines retry behavior with exponential backoff.
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0-1.0, +/- share of each delay

	// ShouldRetry decides whether a failed attempt is retried. Nil retries every error.
	ShouldRetry func(err error) bool
	// OnRetry is called before each retry with the attempt that just failed (1-based).
	OnRetry func(attempt int, err error)
}

// DefaultConfig returns 3 retries with 100ms initial delay, capped at 5s,
// doubling each time, with 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// Once returns a config that retries a single time without waiting, used for
// backend calls where the deadline already bounds latency.
func Once() *Config {
	return &Config{MaxRetries: 1, Multiplier: 1}
}

// applyJitter returns delay +/- (delay * jitterFactor * random(-1 to +1)).
func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 || delay <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// Do executes fn with exponential backoff. fn receives the 1-based attempt number.
// Returns nil on success, the first non-retryable error, or the last error once
// retries are exhausted. A done context stops further attempts and returns ctx.Err().
func Do(ctx context.Context, cfg *Config, fn func(attempt int) error) error {
	_, err := DoWithResult(ctx, cfg, func(attempt int) (struct{}, error) {
		return struct{}{}, fn(attempt)
	})
	return err
}

// DoWithResult is Do for functions that return a value. The last result is
// returned alongside the error when every attempt fails.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func(attempt int) (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var result T
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxRetries+1; attempt++ {
		r, err := fn(attempt)
		if err == nil {
			return r, nil
		}
		result, lastErr = r, err

		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if attempt > cfg.MaxRetries || (cfg.ShouldRetry != nil && !cfg.ShouldRetry(err)) {
			break
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		if err := sleep(ctx, applyJitter(delay, cfg.JitterFactor)); err != nil {
			return result, err
		}
		delay = nextDelay(delay, cfg)
	}

	return result, lastErr
}

func nextDelay(delay time.Duration, cfg *Config) time.Duration {
	if cfg.Multiplier > 0 {
		delay = time.Duration(float64(delay) * cfg.Multiplier)
	}
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryableError is an interface for errors that explicitly declare their retryability.
// Backend errors implement this interface.
type RetryableError interface {
	error
	IsRetryable() bool
}

// IsRetryable determines if an error is transient and worth retrying.
// Errors implementing RetryableError anywhere in their chain decide for
// themselves; otherwise known transient error strings are matched.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"timeout",
		"timed out",
		"temporary failure",
		"network is unreachable",
		"429",
		"500",
		"502",
		"503",
		"504",
		"529",
		"rate limit",
		"overloaded",
		"service unavailable",
		"too many requests",
		"cuda error",
		"gpu error",
		"out of memory",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
