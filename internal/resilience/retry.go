package resilience

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/eyeguard/internal/trace"
)

// Readiness polling of the detection service at startup. Per-frame detection
// calls are never retried.
const (
	ReadyAttempts       = 6
	ReadyBaseDelay      = 200 * time.Millisecond
	ReadyMaxDelay       = 2 * time.Second
	ReadyAttemptTimeout = 2 * time.Second
	ReadyJitter         = 0.2 // +/-10%
)

// RetryConfig bounds polling for a service to come up.
type RetryConfig struct {
	Attempts  int // total tries, including the first
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// AttemptTimeout bounds each try. Zero leaves only the caller's deadline.
	AttemptTimeout time.Duration
	Jitter         float64
	// Retryable reports whether another try could help. Nil retries gRPC
	// codes that signal a service still starting.
	Retryable func(error) bool
}

// ReadyRetryConfig returns settings for waiting on the detection service.
func ReadyRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:       ReadyAttempts,
		BaseDelay:      ReadyBaseDelay,
		MaxDelay:       ReadyMaxDelay,
		AttemptTimeout: ReadyAttemptTimeout,
		Jitter:         ReadyJitter,
	}
}

// Retry calls fn until it succeeds, fails with a non-retryable error, the
// attempts run out or ctx ends. Delays grow exponentially up to MaxDelay.
func Retry(ctx context.Context, cfg RetryConfig, fn func(context.Context) error) error {
	cfg = cfg.withDefaults()
	log := trace.Logger(ctx)

	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return fmt.Errorf("%w (last error: %v)", err, last)
			}
			return err
		}

		last = tryOnce(ctx, cfg.AttemptTimeout, fn)
		if last == nil {
			return nil
		}
		if !cfg.Retryable(last) {
			return last
		}
		if attempt >= cfg.Attempts {
			return fmt.Errorf("gave up after %d attempts: %w", attempt, last)
		}

		delay := backoff(cfg, attempt)
		log.Debug("not ready, retrying", "attempt", attempt, "of", cfg.Attempts, "delay", delay, "error", last)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
	}
}

func tryOnce(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(cctx)
}

// backoff returns the delay after the given 1-based attempt.
func backoff(cfg RetryConfig, attempt int) time.Duration {
	delay := cfg.BaseDelay << min(attempt-1, 10)
	if delay <= 0 || delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter > 0 {
		delay += time.Duration(float64(delay) * cfg.Jitter * (rand.Float64() - 0.5))
	}
	return delay
}

// retryableGRPC treats codes a starting or overloaded service returns as
// transient. Errors without a gRPC status are retried.
func retryableGRPC(err error) bool {
	s, ok := status.FromError(err)
	if !ok {
		return true
	}
	switch s.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.Attempts <= 0 {
		c.Attempts = ReadyAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = ReadyBaseDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = max(c.BaseDelay, ReadyMaxDelay)
	}
	if c.Retryable == nil {
		c.Retryable = retryableGRPC
	}
	return c
}
