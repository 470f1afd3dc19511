package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchLimiter_BoundsInFlight(t *testing.T) {
	fl := NewFetchLimiter(1, 0, 0)
	require.NoError(t, fl.Acquire(context.Background()))
	assert.Equal(t, 1, fl.InFlight())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, fl.Acquire(ctx), context.DeadlineExceeded)

	fl.Release()
	assert.Equal(t, 0, fl.InFlight())
	require.NoError(t, fl.Acquire(context.Background()))
}

func TestFetchLimiter_SpacesRequests(t *testing.T) {
	fl := NewFetchLimiter(2, 20*time.Millisecond, 0)

	start := time.Now()
	require.NoError(t, fl.Acquire(context.Background()))
	fl.Release()
	require.NoError(t, fl.Acquire(context.Background()))
	fl.Release()

	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
