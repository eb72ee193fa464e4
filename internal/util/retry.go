package util

import (
	"context"
	"math/rand"
	"strings"
	"time"
)

// RetryConfig tunes Retry's exponential backoff.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// IsRetryable decides whether an error is worth another attempt.
	// Nil means IsTransient.
	IsRetryable func(error) bool
}

// DefaultRetryConfig suits short store and model-server calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.Multiplier <= 0 {
		c.Multiplier = d.Multiplier
	}
	if c.IsRetryable == nil {
		c.IsRetryable = IsTransient
	}
	return c
}

// transientPatterns are the failure modes a busy workspace produces:
// SQLite write contention and a model server that is starting up or
// saturated.
var transientPatterns = []string{
	"database is locked",
	"database table is locked",
	"connection refused",
	"connection reset",
	"timeout",
	"temporary failure",
	"broken pipe",
	"eof",
}

// IsTransient reports whether an error matches a known transient pattern.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// Retry runs fn with exponential backoff until it succeeds, returns a
// non-retryable error, or exhausts the attempts. Delays carry up to 25%
// jitter so contending writers do not re-collide.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	cfg = cfg.normalized()

	var zero T
	delay := cfg.InitialDelay
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if !cfg.IsRetryable(err) || attempt >= cfg.MaxAttempts {
			return zero, err
		}

		jittered := delay + time.Duration(rand.Int63n(int64(delay)/4+1))
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(jittered):
		}
		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}
