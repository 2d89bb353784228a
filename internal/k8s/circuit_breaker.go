package k8s

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/clabconsole/clabconsole-backend/internal/pkg/metrics"
)

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open: cluster API unavailable")

// CircuitBreakerState represents the state of a circuit breaker.
type CircuitBreakerState int

const (
	StateClosed   CircuitBreakerState = iota // Normal operation
	StateOpen                                // Failing fast
	StateHalfOpen                            // Probing for recovery
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker guards Kubernetes API calls. After failureThreshold consecutive transient
// failures the circuit opens for openDuration, then lets one probe call through.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	openDuration     time.Duration
	halfOpenMaxCalls int
	now              func() time.Time

	state             CircuitBreakerState
	failureCount      int
	lastFailureTime   time.Time
	halfOpenCallCount int
}

// NewCircuitBreaker creates a circuit breaker with default settings (5 failures, 30s open).
func NewCircuitBreaker() *CircuitBreaker {
	metrics.CircuitBreakerState.Set(float64(StateClosed))
	return &CircuitBreaker{
		failureThreshold: 5,
		openDuration:     30 * time.Second,
		halfOpenMaxCalls: 1,
		now:              time.Now,
		state:            StateClosed,
	}
}

// setState must be called with mu held.
func (cb *CircuitBreaker) setState(newState CircuitBreakerState) {
	if cb.state == newState {
		return
	}
	metrics.CircuitBreakerTransitionsTotal.WithLabelValues(cb.state.String(), newState.String()).Inc()
	metrics.CircuitBreakerState.Set(float64(newState))
	cb.state = newState
}

// Execute executes fn with circuit breaker protection.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cb.mu.Lock()
	if cb.state == StateOpen && cb.now().Sub(cb.lastFailureTime) >= cb.openDuration {
		cb.setState(StateHalfOpen)
		cb.halfOpenCallCount = 0
	}
	switch cb.state {
	case StateOpen:
		cb.mu.Unlock()
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenCallCount >= cb.halfOpenMaxCalls {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.halfOpenCallCount++
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		if !isRetryableError(err) {
			// 404, 403 and friends say nothing about API availability
			cb.failureCount = 0
			if cb.state == StateHalfOpen {
				cb.setState(StateClosed)
			}
			return err
		}
		cb.failureCount++
		cb.lastFailureTime = cb.now()
		metrics.CircuitBreakerFailuresTotal.Inc()
		if cb.state == StateHalfOpen || cb.failureCount >= cb.failureThreshold {
			cb.setState(StateOpen)
			cb.halfOpenCallCount = 0
		}
		return err
	}

	cb.failureCount = 0
	if cb.state != StateClosed {
		cb.setState(StateClosed)
		cb.halfOpenCallCount = 0
	}
	return nil
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// FailureCount returns the current consecutive failure count.
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount
}

// isRetryableError reports transient failures: deadlines, 5xx/429 and network errors.
// Caller cancellation is not a cluster failure.
func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || isRetryable(err) {
		return true
	}
	msg := err.Error()
	for _, sub := range []string{
		"connection refused",
		"connection reset",
		"i/o timeout",
		"no such host",
		"dial tcp",
		"unreachable",
	} {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}
