package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"real-estate-valuation/internal/batch"
)

// QueueWorker polls for due raw listings by running one job type on a fixed
// interval. New and retry-due records are picked up without waiting for the
// next cron slot.
type QueueWorker struct {
	runner       JobRunner
	job          string
	pollInterval time.Duration
	logger       *zap.SugaredLogger

	mu         sync.Mutex
	stopChan   chan struct{}
	done       chan struct{}
	cancel     context.CancelFunc
	isRunning  bool
	runs       int
	lastResult *batch.BatchResult
	lastError  string
}

// NewQueueWorker creates a worker that runs job every pollInterval
func NewQueueWorker(runner JobRunner, job string, pollInterval time.Duration, logger *zap.SugaredLogger) *QueueWorker {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second // Check queue every 30 seconds
	}
	return &QueueWorker{
		runner:       runner,
		job:          job,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Start starts the queue worker
func (w *QueueWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		w.logger.Infow("QueueWorker: already running", "job", w.job)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.stopChan = make(chan struct{})
	w.done = make(chan struct{})
	w.isRunning = true
	w.logger.Infow("QueueWorker: started", "job", w.job, "poll_interval", w.pollInterval)

	go w.run(ctx)
}

// Stop stops the worker and waits for the current batch to return
func (w *QueueWorker) Stop() {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return
	}
	w.isRunning = false
	close(w.stopChan)
	w.cancel()
	done := w.done
	w.mu.Unlock()

	<-done
	w.logger.Infow("QueueWorker: stopped", "job", w.job)
}

// run is the main worker loop
func (w *QueueWorker) run(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.processNextBatch(ctx)
		}
	}
}

// processNextBatch runs one batch of the worker's job
func (w *QueueWorker) processNextBatch(ctx context.Context) {
	result, err := w.runner.Run(ctx, w.job)

	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case errors.Is(err, batch.ErrJobRunning):
		// The cron entry for the same job is mid-run
		return
	case err != nil:
		w.runs++
		w.lastError = err.Error()
		w.logger.Errorw("QueueWorker: batch failed", "job", w.job, "error", err)
		return
	}

	w.runs++
	w.lastResult = result
	w.lastError = ""
	if result.Processed+result.Failed > 0 {
		w.logger.Infow("QueueWorker: batch done",
			"job", w.job,
			"processed", result.Processed,
			"failed", result.Failed,
		)
	}
}

// GetQueueStats returns the worker's current state
func (w *QueueWorker) GetQueueStats() map[string]interface{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	stats := map[string]interface{}{
		"job":           w.job,
		"is_running":    w.isRunning,
		"poll_interval": w.pollInterval.String(),
		"runs":          w.runs,
	}
	if w.lastResult != nil {
		stats["last_processed"] = w.lastResult.Processed
		stats["last_failed"] = w.lastResult.Failed
		stats["last_finished_at"] = w.lastResult.FinishedAt
	}
	if w.lastError != "" {
		stats["last_error"] = w.lastError
	}
	return stats
}
