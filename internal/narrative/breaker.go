package narrative

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/flood-atlas-service/internal/domain"
	"github.com/sony/gobreaker"
)

// consecutiveFailuresToTrip opens the circuit after this many failures in a row.
const consecutiveFailuresToTrip = 3

// BreakerCompleter stops calling a failing backend for a cool-down period.
// Requests rejected by an open circuit fail immediately; nothing is retried.
type BreakerCompleter struct {
	inner   Completer
	circuit *gobreaker.CircuitBreaker
}

// NewBreakerCompleter wraps inner with a circuit breaker named after the backend.
func NewBreakerCompleter(name string, inner Completer, coolDown time.Duration) *BreakerCompleter {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     coolDown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailuresToTrip
		},
		IsSuccessful: func(err error) bool {
			// A caller-side cancellation says nothing about backend health.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &BreakerCompleter{inner: inner, circuit: cb}
}

// Complete forwards to the wrapped backend unless the circuit is open.
func (b *BreakerCompleter) Complete(ctx context.Context, req Request) (string, error) {
	result, err := b.circuit.Execute(func() (interface{}, error) {
		return b.inner.Complete(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: circuit %s: %v", domain.ErrServiceUnavailable, b.circuit.Name(), err)
		}
		return "", err
	}
	return result.(string), nil
}

// State reports the circuit state for diagnostics.
func (b *BreakerCompleter) State() gobreaker.State {
	return b.circuit.State()
}
