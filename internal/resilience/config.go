package resilience

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Breaker settings for per-frame detection calls. Frames arrive several times
// a second, so a dead detection service trips quickly and is tried again
// soon after.
const (
	DetectorThreshold      = 5
	DetectorResetTimeout   = 3 * time.Second
	DetectorTrialSuccesses = 2
)

// Config holds circuit breaker settings.
type Config struct {
	Name           string        // appears in logs and snapshots
	Threshold      int           // consecutive failures before opening
	ResetTimeout   time.Duration // time spent failing fast before a trial call
	TrialSuccesses int           // consecutive trial successes needed to close
	// Counts reports whether a failed call counts against the breaker. The
	// default ignores cancellation, which only means the caller went away.
	Counts func(error) bool
}

// DetectorConfig returns settings for per-frame face detection calls.
func DetectorConfig() Config {
	return Config{
		Name:           "detector",
		Threshold:      DetectorThreshold,
		ResetTimeout:   DetectorResetTimeout,
		TrialSuccesses: DetectorTrialSuccesses,
	}
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "breaker"
	}
	if c.Threshold <= 0 {
		c.Threshold = DetectorThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DetectorResetTimeout
	}
	if c.TrialSuccesses <= 0 {
		c.TrialSuccesses = DetectorTrialSuccesses
	}
	if c.Counts == nil {
		c.Counts = countsAgainst
	}
	return c
}

func countsAgainst(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return status.Code(err) != codes.Canceled
}
