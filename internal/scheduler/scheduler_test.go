package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"real-estate-valuation/internal/batch"
)

type countingRunner struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func (r *countingRunner) Run(ctx context.Context, job string) (*batch.BatchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = make(map[string]int)
	}
	r.calls[job]++
	if r.err != nil {
		return nil, r.err
	}
	return &batch.BatchResult{Job: job, Processed: 1, FinishedAt: time.Now()}, nil
}

func (r *countingRunner) count(job string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[job]
}

func TestCronSpec(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"02:00", "0 2 * * *"},
		{"23:45", "45 23 * * *"},
		{"*/10 * * * *", "*/10 * * * *"},
		{"5,35 * * * *", "5,35 * * * *"},
		{"0 3 * * *", "0 3 * * *"},
		{"@every 1s", "@every 1s"},
		{"25:00", "25:00"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, cronSpec(tt.in))
		})
	}
}

func TestScheduler_StartRegistersConfiguredJobs(t *testing.T) {
	s := NewScheduler(&countingRunner{}, map[string]string{
		batch.JobDedupAttach: "*/10 * * * *",
		batch.JobAreaRefresh: "03:30",
		batch.JobCleanup:     "",
	}, nil)
	require.NoError(t, s.Start())
	defer s.Stop()

	entries := s.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, batch.JobAreaRefresh, entries[0].Job)
	assert.Equal(t, "30 3 * * *", entries[0].Spec)
	assert.Equal(t, batch.JobDedupAttach, entries[1].Job)
	assert.False(t, entries[1].Next.IsZero())
}

func TestScheduler_InvalidSpec(t *testing.T) {
	s := NewScheduler(&countingRunner{}, map[string]string{
		batch.JobTrustRebuild: "every tuesday",
	}, nil)
	err := s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), batch.JobTrustRebuild)
}

func TestScheduler_RunsJobs(t *testing.T) {
	runner := &countingRunner{}
	s := NewScheduler(runner, map[string]string{batch.JobTrustRebuild: "@every 1s"}, nil)
	require.NoError(t, s.Start())

	assert.Eventually(t, func() bool {
		return runner.count(batch.JobTrustRebuild) >= 1
	}, 3*time.Second, 50*time.Millisecond)

	s.Stop()
	s.Stop() // idempotent
}

func TestScheduler_RunNow(t *testing.T) {
	runner := &countingRunner{}
	s := NewScheduler(runner, nil, nil)

	result, err := s.RunNow(context.Background(), batch.JobCleanup)
	require.NoError(t, err)
	assert.Equal(t, batch.JobCleanup, result.Job)
	assert.Equal(t, 1, runner.count(batch.JobCleanup))
}

func TestQueueWorker_PollsUntilStopped(t *testing.T) {
	runner := &countingRunner{}
	w := NewQueueWorker(runner, batch.JobDedupAttach, 10*time.Millisecond, nil)
	w.Start()
	w.Start() // second start is a no-op

	assert.Eventually(t, func() bool {
		return runner.count(batch.JobDedupAttach) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	w.Stop()
	stopped := runner.count(batch.JobDedupAttach)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, runner.count(batch.JobDedupAttach))

	stats := w.GetQueueStats()
	assert.Equal(t, false, stats["is_running"])
	assert.Equal(t, 1, stats["last_processed"])
}

func TestQueueWorker_RecordsFailures(t *testing.T) {
	runner := &countingRunner{err: errors.New("store unavailable")}
	w := NewQueueWorker(runner, batch.JobDedupAttach, time.Minute, nil)

	w.processNextBatch(context.Background())
	stats := w.GetQueueStats()
	assert.Equal(t, 1, stats["runs"])
	assert.Equal(t, "store unavailable", stats["last_error"])

	runner.err = batch.ErrJobRunning
	w.processNextBatch(context.Background())
	assert.Equal(t, 1, w.GetQueueStats()["runs"], "overlapping runs are not counted")
}
