// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

package sync

import (
	"errors"
	"fmt"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/devakesu/bunkr/internal/config"
	"github.com/devakesu/bunkr/internal/logging"
	"github.com/devakesu/bunkr/internal/metrics"
)

// OpenError is returned when a call is rejected because the circuit is open.
// RetryAfter is the remaining cooldown, for surfacing to callers and HTTP
// Retry-After headers.
type OpenError struct {
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("portal circuit open, retry in %s", e.RetryAfter.Round(time.Second))
}

// ClientError is a definitive 4xx rejection from the portal. It counts as a
// breaker success: the portal is up and answering, the request itself was
// bad (typically an expired credential), so tripping the circuit would
// punish every other user for one stale token.
type ClientError struct {
	StatusCode int
	Body       string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("portal rejected request: status %d: %s", e.StatusCode, e.Body)
}

// Breaker wraps gobreaker around all portal traffic. A single instance is
// shared by every user pipeline in a batch so that provider-wide outages are
// detected across users, not per user.
//
// State mapping onto gobreaker:
//   - FailureThreshold consecutive failures open the circuit (ReadyToTrip).
//   - After Cooldown the breaker goes half-open and admits up to
//     HalfOpenProbes concurrent probe calls; that same number of consecutive
//     successes closes it again (gobreaker's MaxRequests drives both).
//   - 4xx ClientErrors count as successes and never trip the breaker.
type Breaker struct {
	name string
	cfg  config.BreakerConfig

	mu       sync.Mutex
	cb       *gobreaker.CircuitBreaker[any]
	openedAt time.Time
}

// NewBreaker creates a circuit breaker for the named dependency.
func NewBreaker(name string, cfg config.BreakerConfig) *Breaker {
	b := &Breaker{name: name, cfg: cfg}
	b.cb = b.newInner()

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	return b
}

func (b *Breaker) newInner() *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        b.name,
		MaxRequests: uint32(b.cfg.HalfOpenProbes), //nolint:gosec // validated >= 1
		Timeout:     b.cfg.Cooldown,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(b.cfg.FailureThreshold) //nolint:gosec // validated >= 1
		},

		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var ce *ClientError
			return errors.As(err, &ce)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logging.Info().
				Str("breaker", name).
				Str("from", fromStr).
				Str("to", toStr).
				Msg("Circuit breaker state transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()

			b.mu.Lock()
			if to == gobreaker.StateOpen {
				b.openedAt = time.Now()
			} else {
				b.openedAt = time.Time{}
			}
			b.mu.Unlock()
		},
	})
}

func (b *Breaker) inner() *gobreaker.CircuitBreaker[any] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cb
}

// Execute runs fn through the breaker. Rejections while open are reported as
// *OpenError with the remaining cooldown.
func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	result, err := b.inner().Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
			return nil, &OpenError{RetryAfter: b.remainingCooldown()}
		}
		var ce *ClientError
		if errors.As(err, &ce) {
			// Counted as a breaker success, but still an error for the
			// caller.
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
			return nil, err
		}
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	return result, nil
}

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.inner().State()
}

// Reset discards all breaker state and returns to closed. gobreaker has no
// explicit reset, so the inner breaker is rebuilt.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cb = b.newInner()
	b.openedAt = time.Time{}
	metrics.CircuitBreakerState.WithLabelValues(b.name).Set(0)
	logging.Info().Str("breaker", b.name).Msg("Circuit breaker reset")
}

func (b *Breaker) remainingCooldown() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.openedAt.IsZero() {
		return 0
	}
	remaining := b.cfg.Cooldown - time.Since(b.openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func stateToString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// castResult type-casts a breaker result with error propagation.
func castResult[T any](result any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}
