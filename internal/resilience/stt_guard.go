package resilience

import (
	"context"
	"fmt"

	"github.com/MrWong99/voicecli/pkg/provider/stt"
)

// GuardedEngine is an stt.Provider behind a [CircuitBreaker].
type GuardedEngine struct {
	inner   stt.Provider
	breaker *CircuitBreaker
}

var _ stt.Provider = (*GuardedEngine)(nil)

// Guard wraps p. cfg.Name should identify the engine slot ("engine_a").
func Guard(p stt.Provider, cfg CircuitBreakerConfig) *GuardedEngine {
	return &GuardedEngine{inner: p, breaker: NewCircuitBreaker(cfg)}
}

// Transcribe forwards to the wrapped engine unless the breaker is open, in
// which case it fails fast with an error wrapping [ErrCircuitOpen].
func (g *GuardedEngine) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	var text string
	err := g.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		var err error
		text, err = g.inner.Transcribe(ctx, req)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", g.breaker.Name(), err)
	}
	return text, nil
}

// State reports the breaker state for status output.
func (g *GuardedEngine) State() State { return g.breaker.State() }

// Reset closes the breaker, e.g. after the engine was reconfigured.
func (g *GuardedEngine) Reset() { g.breaker.Reset() }
