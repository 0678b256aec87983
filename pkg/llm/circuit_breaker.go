package llm

import (
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the current health state of one backend.
type CircuitState int

const (
	// CircuitClosed means calls flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the backend failed repeatedly and calls are skipped.
	CircuitOpen
	// CircuitHalfOpen means one probe call is allowed to test recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Threshold is the number of consecutive failures before the circuit trips.
	Threshold int
	// ResetAfter is how long an open circuit waits before allowing a probe.
	ResetAfter time.Duration
}

// DefaultCircuitBreakerConfig returns the defaults used by the router.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Threshold:  3,
		ResetAfter: 30 * time.Second,
	}
}

// CircuitBreaker tracks the health of a single backend across requests.
// This is the only mutable state the router shares between requests.
type CircuitBreaker struct {
	mu               sync.Mutex
	backend          string
	consecutiveFails int
	threshold        int
	resetAfter       time.Duration
	lastFailure      time.Time
	state            CircuitState
	now              func() time.Time
}

// NewCircuitBreaker creates a circuit breaker for the named backend.
func NewCircuitBreaker(backend string, config CircuitBreakerConfig) *CircuitBreaker {
	if config.Threshold < 1 {
		config.Threshold = DefaultCircuitBreakerConfig().Threshold
	}
	if config.ResetAfter <= 0 {
		config.ResetAfter = DefaultCircuitBreakerConfig().ResetAfter
	}
	return &CircuitBreaker{
		backend:    backend,
		threshold:  config.Threshold,
		resetAfter: config.ResetAfter,
		state:      CircuitClosed,
		now:        time.Now,
	}
}

// Allow reports whether a call may proceed. An open circuit moves to
// half-open once ResetAfter has elapsed and lets exactly one probe through.
func (cb *CircuitBreaker) Allow() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true, nil
	case CircuitOpen:
		since := cb.now().Sub(cb.lastFailure)
		if since > cb.resetAfter {
			cb.state = CircuitHalfOpen
			return true, nil
		}
		return false, cb.openError(fmt.Sprintf("failed %d times, last failure %v ago",
			cb.consecutiveFails, since.Round(time.Second)))
	case CircuitHalfOpen:
		return false, cb.openError("probe in flight")
	default:
		return false, cb.openError(fmt.Sprintf("unknown state %v", cb.state))
	}
}

func (cb *CircuitBreaker) openError(detail string) *Error {
	e := NewError(ErrorTypeCircuit, "circuit breaker "+cb.state.String()+": "+detail, false, nil)
	e.Backend = cb.backend
	return e
}

// RecordSuccess resets the failure count and closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails = 0
	cb.state = CircuitClosed
}

// RecordFailure increments the failure count and trips the circuit at the threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails++
	cb.lastFailure = cb.now()

	if cb.state == CircuitHalfOpen || cb.consecutiveFails >= cb.threshold {
		cb.state = CircuitOpen
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// ConsecutiveFailures returns the current count of consecutive failures.
func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.consecutiveFails
}
