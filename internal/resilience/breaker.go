// Package resilience guards calls to the face detection service.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/GriffinCanCode/eyeguard/internal/trace"
)

// State represents circuit breaker state
type State uint32

const (
	Closed   State = iota // calls flow
	Open                  // calls fail fast
	HalfOpen              // one trial call at a time
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned without calling through while the breaker is open, or
// while a trial call is already in flight.
var ErrOpen = errors.New("circuit breaker open")

// Transition describes one state change.
type Transition struct {
	Name     string
	From, To State
	Failures int
}

// Snapshot is a point-in-time view for status reporting.
type Snapshot struct {
	Name     string     `json:"name"`
	State    string     `json:"state"`
	Failures int        `json:"failures"`
	Opens    uint64     `json:"opens"`
	Rejected uint64     `json:"rejected"`
	OpenedAt *time.Time `json:"opened_at,omitempty"`
}

// Breaker fails calls fast after repeated failures and lets a single trial
// call through once ResetTimeout has passed.
type Breaker struct {
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	probing   bool
	openedAt  time.Time
	opens     uint64
	rejected  uint64
	hooks     []func(Transition)
}

// New creates a closed breaker.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg.withDefaults(), now: time.Now}
}

// OnTransition registers fn to run after every state change. Hooks run on
// the calling goroutine, outside the breaker lock.
func (b *Breaker) OnTransition(fn func(Transition)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks = append(b.hooks, fn)
}

// Name returns the configured breaker name.
func (b *Breaker) Name() string { return b.cfg.Name }

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns the current counters.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Snapshot{
		Name:     b.cfg.Name,
		State:    b.state.String(),
		Failures: b.failures,
		Opens:    b.opens,
		Rejected: b.rejected,
	}
	if b.state != Closed {
		t := b.openedAt
		s.OpenedAt = &t
	}
	return s
}

// Call runs fn under b. Failures for which Config.Counts is false leave the
// breaker as it was.
func Call[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	trial, err := b.admit(ctx)
	if err != nil {
		return zero, err
	}
	v, err := fn(ctx)
	b.record(ctx, trial, err)
	if err != nil {
		return zero, err
	}
	return v, nil
}

// admit decides whether a call may proceed and whether it is the trial call.
func (b *Breaker) admit(ctx context.Context) (bool, error) {
	b.mu.Lock()
	var changes []Transition
	defer func() {
		b.mu.Unlock()
		b.emit(ctx, changes)
	}()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			b.rejected++
			return false, ErrOpen
		}
		changes = append(changes, b.moveLocked(HalfOpen))
		b.probing = true
		return true, nil
	case HalfOpen:
		if b.probing {
			b.rejected++
			return false, ErrOpen
		}
		b.probing = true
		return true, nil
	default:
		return false, nil
	}
}

func (b *Breaker) record(ctx context.Context, trial bool, err error) {
	b.mu.Lock()
	var changes []Transition
	defer func() {
		b.mu.Unlock()
		b.emit(ctx, changes)
	}()

	if trial {
		b.probing = false
	}
	if err != nil && !b.cfg.Counts(err) {
		return
	}

	switch {
	case err == nil && b.state == HalfOpen:
		b.successes++
		if b.successes >= b.cfg.TrialSuccesses {
			changes = append(changes, b.moveLocked(Closed))
		}
	case err == nil:
		b.failures = 0
	case b.state == HalfOpen:
		b.failures++
		changes = append(changes, b.moveLocked(Open))
	default:
		b.failures++
		if b.state == Closed && b.failures >= b.cfg.Threshold {
			changes = append(changes, b.moveLocked(Open))
		}
	}
}

// moveLocked requires b.mu.
func (b *Breaker) moveLocked(to State) Transition {
	tr := Transition{Name: b.cfg.Name, From: b.state, To: to, Failures: b.failures}
	b.state = to
	b.successes = 0
	switch to {
	case Open:
		b.openedAt = b.now()
		b.opens++
	case Closed:
		b.failures = 0
	}
	return tr
}

func (b *Breaker) emit(ctx context.Context, changes []Transition) {
	if len(changes) == 0 {
		return
	}
	b.mu.Lock()
	hooks := append(([]func(Transition))(nil), b.hooks...)
	b.mu.Unlock()

	log := trace.Logger(ctx)
	for _, tr := range changes {
		switch tr.To {
		case Open:
			log.Warn("circuit breaker opened", "breaker", tr.Name, "failures", tr.Failures)
		case HalfOpen:
			log.Info("circuit breaker trying a call", "breaker", tr.Name)
		case Closed:
			log.Info("circuit breaker closed", "breaker", tr.Name)
		}
		for _, fn := range hooks {
			fn(tr)
		}
	}
}
