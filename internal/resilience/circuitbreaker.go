// Package resilience keeps a dead speech engine from costing a network
// timeout on every dictation. [Guard] puts an stt.Provider behind a
// [CircuitBreaker] so the daemon carries on with the healthy engine while the
// other one recovers.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the backend while the breaker
// is open, or while half-open with every probe slot taken.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker mode.
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota
	// StateOpen fails fast until the reset timeout has passed.
	StateOpen
	// StateHalfOpen admits a limited number of probes. Enough successes
	// close the breaker; one failure opens it again.
	StateHalfOpen
)

var stateNames = [...]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero fields take the
// documented defaults.
type CircuitBreakerConfig struct {
	// Name labels log lines and state change callbacks ("engine_a/groq").
	Name string

	// MaxFailures consecutive failures open a closed breaker. Default: 3.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 60s.
	ResetTimeout time.Duration

	// HalfOpenMax successful probes close the breaker again. Default: 1.
	HalfOpenMax int

	// Now is the clock. Default: time.Now.
	Now func() time.Time

	// Logger receives state changes. Default: slog.Default().
	Logger *slog.Logger

	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker is a closed/open/half-open breaker. It is safe for
// concurrent use.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	inFlight  int
	successes int
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = time.Minute
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CircuitBreaker{cfg: cfg}
}

// Name returns the configured label.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Execute runs fn when the breaker admits the call and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	return cb.run(fn, nil)
}

// ExecuteContext is Execute for context-aware calls. A failure caused only by
// ctx ending is not held against the backend.
func (cb *CircuitBreaker) ExecuteContext(ctx context.Context, fn func(context.Context) error) error {
	return cb.run(func() error { return fn(ctx) }, func(err error) bool {
		return ctx.Err() != nil && errors.Is(err, ctx.Err())
	})
}

func (cb *CircuitBreaker) run(fn func() error, ignored func(error) bool) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()

	cb.mu.Lock()
	var change func()
	switch {
	case err == nil:
		change = cb.succeeded(probe)
	case ignored != nil && ignored(err):
		if probe {
			cb.inFlight--
		}
	default:
		change = cb.failed(probe)
	}
	cb.mu.Unlock()

	if change != nil {
		change()
	}
	return err
}

// admit reports whether a call may proceed and whether it is a probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	var change func()
	if cb.state == StateOpen && cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		change = cb.transition(StateHalfOpen, "reset timeout elapsed")
	}
	switch cb.state {
	case StateOpen:
		err = ErrCircuitOpen
	case StateHalfOpen:
		if cb.inFlight >= cb.cfg.HalfOpenMax {
			err = ErrCircuitOpen
		} else {
			cb.inFlight++
			probe = true
		}
	}
	cb.mu.Unlock()

	if change != nil {
		change()
	}
	return probe, err
}

// failed and succeeded must be called with cb.mu held. They return the
// deferred notification for a transition, if any.
func (cb *CircuitBreaker) failed(probe bool) func() {
	if probe {
		return cb.transition(StateOpen, "probe failed")
	}
	cb.failures++
	if cb.failures >= cb.cfg.MaxFailures {
		return cb.transition(StateOpen, "consecutive failures")
	}
	return nil
}

func (cb *CircuitBreaker) succeeded(probe bool) func() {
	if !probe {
		cb.failures = 0
		return nil
	}
	cb.successes++
	if cb.successes >= cb.cfg.HalfOpenMax {
		return cb.transition(StateClosed, "probes succeeded")
	}
	return nil
}

// transition moves to state, resets the counters and returns a function that
// logs and reports the change. cb.mu must be held; the returned function must
// be called after it is released.
func (cb *CircuitBreaker) transition(to State, reason string) func() {
	from := cb.state
	failures := cb.failures
	cb.state = to
	cb.failures = 0
	cb.inFlight = 0
	cb.successes = 0
	if to == StateOpen {
		cb.openedAt = cb.cfg.Now()
	}

	return func() {
		level := slog.LevelInfo
		if to == StateOpen {
			level = slog.LevelWarn
		}
		cb.cfg.Logger.Log(context.Background(), level, "circuit breaker "+to.String(),
			"name", cb.cfg.Name,
			"from", from.String(),
			"reason", reason,
			"consecutive_failures", failures,
		)
		if cb.cfg.OnStateChange != nil {
			cb.cfg.OnStateChange(cb.cfg.Name, from, to)
		}
	}
}

// State reports the current mode. An open breaker past its reset timeout
// reads as half-open before the next call moves it there.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	if cb.state == StateClosed {
		cb.failures = 0
		cb.mu.Unlock()
		return
	}
	change := cb.transition(StateClosed, "manual reset")
	cb.mu.Unlock()
	change()
}
