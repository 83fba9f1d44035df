package coordinator

import (
	"sync"
	"time"

	"github.com/cortexmem/cortex/internal/cortexerr"
	"github.com/cortexmem/cortex/internal/types"
)

// CircuitBreaker is the three-state machine shared by every coordinator
// (spec §4.9): Closed passes calls through and counts failures; Open
// rejects until recovery_timeout elapses; HalfOpen admits exactly one
// probe and decides the next state from its outcome.
type CircuitBreaker struct {
	mu sync.Mutex

	cfg   types.CircuitBreakerConfig
	state types.CircuitState

	failureCount  int
	totalRequests int
	openedAt      time.Time
	probeInFlight bool
}

// NewCircuitBreaker builds a breaker starting Closed.
func NewCircuitBreaker(cfg types.CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, state: types.CircuitClosed}
}

// Allow reports whether a call may proceed, transitioning Open->HalfOpen
// once recovery_timeout has elapsed. Returns a CircuitOpen error when the
// call must be rejected.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case types.CircuitClosed:
		return nil
	case types.CircuitOpen:
		if time.Since(b.openedAt) >= b.cfg.RecoveryTimeout {
			b.state = types.CircuitHalfOpen
			b.probeInFlight = true
			return nil
		}
		return cortexerr.New(cortexerr.CircuitOpen, "coordinator.breaker", nil)
	case types.CircuitHalfOpen:
		if b.probeInFlight {
			return cortexerr.New(cortexerr.CircuitOpen, "coordinator.breaker", nil)
		}
		b.probeInFlight = true
		return nil
	default:
		return nil
	}
}

// RecordSuccess reports a successful call. From HalfOpen this closes the
// breaker and resets counters; from Closed it just tallies the request.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case types.CircuitHalfOpen:
		b.state = types.CircuitClosed
		b.failureCount = 0
		b.totalRequests = 0
		b.probeInFlight = false
	case types.CircuitClosed:
		b.totalRequests++
	}
}

// RecordFailure reports a failed call. From HalfOpen this reopens the
// breaker; from Closed it tallies the failure and trips to Open once
// failure_count, total_requests, and error_rate all cross their
// configured thresholds.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case types.CircuitHalfOpen:
		b.state = types.CircuitOpen
		b.openedAt = time.Now()
		b.probeInFlight = false
	case types.CircuitClosed:
		b.totalRequests++
		b.failureCount++
		errorRate := float64(b.failureCount) / float64(b.totalRequests)
		if b.failureCount >= b.cfg.FailureThreshold &&
			b.totalRequests >= b.cfg.MinRequestThreshold &&
			errorRate >= b.cfg.ErrorRateThreshold {
			b.state = types.CircuitOpen
			b.openedAt = time.Now()
		}
	}
}

// State returns the current circuit state.
func (b *CircuitBreaker) State() types.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
