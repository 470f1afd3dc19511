package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a token cannot be obtained within the allowed wait.
var ErrRateLimited = errors.New("rate limited")

// BucketConfig describes a token bucket: Capacity tokens refilled over Window.
type BucketConfig struct {
	Capacity int
	Window   time.Duration
	MaxWait  time.Duration
}

// TokenBucket guards calls to an outbound dependency. Callers never block
// longer than MaxWait; past that they get ErrRateLimited and must skip or back off.
type TokenBucket struct {
	limiter *rate.Limiter
	cfg     BucketConfig

	mu       sync.Mutex
	allowed  int64
	rejected int64
	waited   time.Duration
}

// NewTokenBucket creates a full bucket
func NewTokenBucket(cfg BucketConfig) *TokenBucket {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	every := rate.Every(cfg.Window / time.Duration(cfg.Capacity))
	return &TokenBucket{
		limiter: rate.NewLimiter(every, cfg.Capacity),
		cfg:     cfg,
	}
}

// Allow takes a token if one is available right now
func (b *TokenBucket) Allow() bool {
	ok := b.limiter.Allow()
	b.record(ok, 0)
	return ok
}

// Wait takes a token, waiting at most MaxWait for one to become available
func (b *TokenBucket) Wait(ctx context.Context) error {
	r := b.limiter.Reserve()
	if !r.OK() {
		b.record(false, 0)
		return ErrRateLimited
	}

	delay := r.Delay()
	if delay == 0 {
		b.record(true, 0)
		return nil
	}
	if delay > b.cfg.MaxWait {
		// Give the token back so skipped callers do not starve later ones.
		r.Cancel()
		b.record(false, 0)
		return fmt.Errorf("%w: next token in %v", ErrRateLimited, delay.Round(time.Millisecond))
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		b.record(true, delay)
		return nil
	case <-ctx.Done():
		r.Cancel()
		b.record(false, 0)
		return ctx.Err()
	}
}

func (b *TokenBucket) record(ok bool, waited time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ok {
		b.allowed++
		b.waited += waited
	} else {
		b.rejected++
	}
}

// Stats contains token bucket statistics
type Stats struct {
	Capacity        int     `json:"capacity"`
	WindowSeconds   float64 `json:"window_seconds"`
	TokensAvailable float64 `json:"tokens_available"`
	Allowed         int64   `json:"allowed"`
	Rejected        int64   `json:"rejected"`
	TotalWaitMillis int64   `json:"total_wait_ms"`
}

// GetStats returns current bucket statistics
func (b *TokenBucket) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Capacity:        b.cfg.Capacity,
		WindowSeconds:   b.cfg.Window.Seconds(),
		TokensAvailable: b.limiter.Tokens(),
		Allowed:         b.allowed,
		Rejected:        b.rejected,
		TotalWaitMillis: b.waited.Milliseconds(),
	}
}
