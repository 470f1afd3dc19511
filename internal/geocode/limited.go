package geocode

import (
	"context"

	"go.uber.org/zap"

	"real-estate-valuation/internal/ratelimit"
)

// Resolver is anything that can resolve an address
type Resolver interface {
	Resolve(ctx context.Context, address string) (*Result, error)
}

// Limited guards a Resolver with a token bucket and a circuit breaker.
// Callers that cannot get a token within the bucket's max wait get
// ratelimit.ErrRateLimited immediately instead of blocking.
type Limited struct {
	inner   Resolver
	bucket  *ratelimit.TokenBucket
	breaker *ratelimit.CircuitBreaker
	logger  *zap.SugaredLogger
}

// NewLimited wraps a resolver
func NewLimited(inner Resolver, bucket *ratelimit.TokenBucket, breaker *ratelimit.CircuitBreaker, logger *zap.SugaredLogger) *Limited {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Limited{inner: inner, bucket: bucket, breaker: breaker, logger: logger}
}

// Resolve implements Resolver
func (l *Limited) Resolve(ctx context.Context, address string) (*Result, error) {
	if l.breaker != nil && !l.breaker.CanProceed() {
		return nil, ratelimit.ErrCircuitOpen
	}
	if err := l.bucket.Wait(ctx); err != nil {
		l.logger.Debugw("Geocode: skipped", "reason", err)
		return nil, err
	}

	result, err := l.inner.Resolve(ctx, address)
	if l.breaker != nil {
		if err != nil {
			l.breaker.RecordFailure()
		} else {
			l.breaker.RecordSuccess()
		}
	}
	return result, err
}

// Stats returns the bucket statistics
func (l *Limited) Stats() ratelimit.Stats {
	return l.bucket.GetStats()
}
