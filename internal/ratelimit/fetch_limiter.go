package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// FetchLimiter paces page fetches: at most maxInFlight concurrent requests
// with a jittered minimum delay between request starts.
type FetchLimiter struct {
	maxInFlight int
	baseDelay   time.Duration
	jitter      time.Duration

	slots       chan struct{}
	mutex       sync.Mutex
	lastRequest time.Time
}

// NewFetchLimiter creates a new fetch limiter
func NewFetchLimiter(maxInFlight int, baseDelay, jitter time.Duration) *FetchLimiter {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	return &FetchLimiter{
		maxInFlight: maxInFlight,
		baseDelay:   baseDelay,
		jitter:      jitter,
		slots:       make(chan struct{}, maxInFlight),
	}
}

// Acquire waits for a free slot and the politeness delay. It returns the
// context error if ctx ends first; the slot is not held in that case.
func (fl *FetchLimiter) Acquire(ctx context.Context) error {
	select {
	case fl.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	fl.mutex.Lock()
	required := fl.baseDelay
	if fl.jitter > 0 {
		required += time.Duration(rand.Int63n(int64(fl.jitter)))
	}
	wait := required - time.Since(fl.lastRequest)
	// Reserve the start time before releasing the lock so concurrent callers queue behind it.
	if wait > 0 {
		fl.lastRequest = time.Now().Add(wait)
	} else {
		fl.lastRequest = time.Now()
		wait = 0
	}
	fl.mutex.Unlock()

	if wait == 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		<-fl.slots
		return ctx.Err()
	}
}

// Release marks a request as completed
func (fl *FetchLimiter) Release() {
	select {
	case <-fl.slots:
	default:
	}
}

// InFlight returns current in-flight request count
func (fl *FetchLimiter) InFlight() int {
	return len(fl.slots)
}
