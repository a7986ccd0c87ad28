package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State represents the state of the circuit breaker.
type State int

const (
	// Closed is the normal state: requests pass through.
	Closed State = iota
	// Open means the circuit has tripped and requests fail fast.
	Open
	// HalfOpen lets trial requests through to probe recovery.
	HalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "Half-Open"
	default:
		return "Unknown"
	}
}

// ErrCircuitOpen is returned when the circuit breaker rejects a request
// because it is in the Open state.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker guards a dependency that can fail in bursts, such as a
// remote model provider. Consecutive failures open the circuit; after the
// cool-down, trial requests decide whether it closes again.
type CircuitBreaker interface {
	// Execute runs req unless the circuit is open.
	Execute(req func() (interface{}, error)) (interface{}, error)
	// State returns the current state of the circuit breaker.
	State() State
}

type breaker struct {
	failureThreshold uint32        // consecutive failures that trip the circuit
	successThreshold uint32        // consecutive half-open successes that close it
	timeout          time.Duration // how long the circuit stays open before probing

	failures  uint32
	successes uint32
	openedAt  time.Time
	state     State
	mu        sync.Mutex
}

// New creates a CircuitBreaker.
// failureThreshold: consecutive failures required to open the circuit.
// successThreshold: consecutive successes in half-open required to close it.
// timeout: how long the circuit remains open before allowing probes.
func New(failureThreshold, successThreshold uint32, timeout time.Duration) CircuitBreaker {
	return &breaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		state:            Closed,
	}
}

// State returns the current state of the circuit breaker.
func (cb *breaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute wraps the execution of req with the circuit breaker logic. The
// request itself runs outside the lock so slow calls never serialize
// callers.
func (cb *breaker) Execute(req func() (interface{}, error)) (interface{}, error) {
	cb.mu.Lock()
	if cb.state == Open && time.Since(cb.openedAt) > cb.timeout {
		cb.state = HalfOpen
		cb.successes = 0
	}
	if cb.state == Open {
		cb.mu.Unlock()
		return nil, ErrCircuitOpen
	}
	cb.mu.Unlock()

	res, err := req()
	if err != nil {
		cb.onFailure()
		return nil, err
	}
	cb.onSuccess()
	return res, nil
}

func (cb *breaker) onSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case HalfOpen:
		cb.successes++
		if cb.successes >= cb.successThreshold {
			cb.state = Closed
			cb.failures = 0
			cb.successes = 0
		}
	case Closed:
		cb.failures = 0
	}
}

func (cb *breaker) onFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case HalfOpen:
		cb.trip()
	case Closed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.trip()
		}
	}
}

// trip opens the circuit. Caller must hold the lock.
func (cb *breaker) trip() {
	cb.state = Open
	cb.openedAt = time.Now()
	cb.failures = 0
	cb.successes = 0
}
