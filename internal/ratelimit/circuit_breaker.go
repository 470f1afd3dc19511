package ratelimit

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrCircuitOpen is returned while a dependency is considered down.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitBreaker stops calls to a dependency after repeated failures and
// lets one through again once resetTimeout has passed.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	resetTimeout     time.Duration
	logger           *zap.SugaredLogger

	failures            int
	successes           int
	totalRequests       int
	consecutiveFailures int
	isOpen              bool
	lastFailureTime     time.Time

	now   func() time.Time
	mutex sync.Mutex
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, failureThreshold int, resetTimeout time.Duration, logger *zap.SugaredLogger) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &CircuitBreaker{
		name:             name,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		logger:           logger,
		now:              time.Now,
	}
}

// RecordSuccess records a successful call
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.successes++
	cb.totalRequests++
	cb.consecutiveFailures = 0
}

// RecordFailure records a failed call
func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures++
	cb.consecutiveFailures++
	cb.totalRequests++
	cb.lastFailureTime = cb.now()

	if cb.isOpen {
		return
	}

	if cb.consecutiveFailures >= cb.failureThreshold {
		cb.isOpen = true
		cb.logger.Warnw("CircuitBreaker: open after consecutive failures",
			"name", cb.name, "failures", cb.consecutiveFailures, "retry_after", cb.resetTimeout)
		return
	}

	// Rate check once there is enough traffic to judge
	if cb.totalRequests >= 20 {
		failureRate := float64(cb.failures) / float64(cb.totalRequests)
		if failureRate >= 0.40 {
			cb.isOpen = true
			cb.logger.Warnw("CircuitBreaker: open on failure rate",
				"name", cb.name, "failure_rate", failureRate, "failures", cb.failures, "total", cb.totalRequests)
		}
	}
}

// CanProceed checks if calls are allowed
func (cb *CircuitBreaker) CanProceed() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if !cb.isOpen {
		return true
	}

	if cb.now().Sub(cb.lastFailureTime) > cb.resetTimeout {
		cb.logger.Infow("CircuitBreaker: half-open, allowing calls again", "name", cb.name)
		cb.isOpen = false
		cb.failures = 0
		cb.successes = 0
		cb.totalRequests = 0
		cb.consecutiveFailures = 0
		return true
	}

	return false
}

// BreakerStatus is a point-in-time view of a breaker
type BreakerStatus struct {
	Name     string `json:"name"`
	IsOpen   bool   `json:"is_open"`
	Failures int    `json:"failures"`
	Total    int    `json:"total"`
}

// GetStatus returns current circuit breaker status
func (cb *CircuitBreaker) GetStatus() BreakerStatus {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return BreakerStatus{Name: cb.name, IsOpen: cb.isOpen, Failures: cb.failures, Total: cb.totalRequests}
}
