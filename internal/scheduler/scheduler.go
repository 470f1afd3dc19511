package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"real-estate-valuation/internal/batch"
)

// JobRunner executes one batch job type
type JobRunner interface {
	Run(ctx context.Context, job string) (*batch.BatchResult, error)
}

// Scheduler triggers batch jobs on cron specs
type Scheduler struct {
	cron   *cron.Cron
	runner JobRunner
	jobs   map[string]string
	logger *zap.SugaredLogger

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	entries   map[string]cron.EntryID
	isRunning bool
}

// Entry describes one scheduled job
type Entry struct {
	Job  string    `json:"job"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev,omitempty"`
}

// NewScheduler creates a scheduler. jobs maps a job type to a cron spec or
// a daily "HH:MM" time; an empty spec leaves the job unscheduled.
func NewScheduler(runner JobRunner, jobs map[string]string, logger *zap.SugaredLogger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner:  runner,
		jobs:    jobs,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]cron.EntryID),
	}
}

// Start registers every configured job and starts the cron loop
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}

	for _, job := range batch.Jobs {
		raw := s.jobs[job]
		if raw == "" {
			s.logger.Infow("Scheduler: job not scheduled", "job", job)
			continue
		}
		spec := cronSpec(raw)
		id, err := s.cron.AddFunc(spec, func() { s.runJob(job) })
		if err != nil {
			return fmt.Errorf("invalid schedule %q for %s: %w", raw, job, err)
		}
		s.entries[job] = id
		s.logger.Infow("Scheduler: job scheduled", "job", job, "spec", spec)
	}
	for job := range s.jobs {
		if _, known := s.entries[job]; !known && !isKnownJob(job) {
			s.logger.Warnw("Scheduler: ignoring unknown job type", "job", job)
		}
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.Infow("Scheduler: started", "jobs", len(s.entries))
	return nil
}

// Stop cancels in-flight jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Infow("Scheduler: stopped")
}

// RunNow executes a job immediately (for manual trigger)
func (s *Scheduler) RunNow(ctx context.Context, job string) (*batch.BatchResult, error) {
	s.logger.Infow("Scheduler: manual trigger", "job", job)
	return s.runner.Run(ctx, job)
}

// Entries lists the scheduled jobs with their next run times
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for job, id := range s.entries {
		e := s.cron.Entry(id)
		out = append(out, Entry{Job: job, Spec: cronSpec(s.jobs[job]), Next: e.Next, Prev: e.Prev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out
}

func (s *Scheduler) runJob(job string) {
	result, err := s.runner.Run(s.ctx, job)
	switch {
	case errors.Is(err, batch.ErrJobRunning):
		s.logger.Infow("Scheduler: previous run still in progress, skipping", "job", job)
	case err != nil:
		s.logger.Errorw("Scheduler: job failed", "job", job, "error", err)
	default:
		s.logger.Infow("Scheduler: job finished",
			"job", job,
			"processed", result.Processed,
			"failed", result.Failed,
		)
	}
}

func isKnownJob(job string) bool {
	for _, j := range batch.Jobs {
		if j == job {
			return true
		}
	}
	return false
}

// cronSpec converts a daily "HH:MM" time to a cron specification and
// passes anything else through.
// Example: "02:00" -> "0 2 * * *"
func cronSpec(value string) string {
	var hour, minute int
	var rest string
	n, _ := fmt.Sscanf(value, "%d:%d%s", &hour, &minute, &rest)
	if n == 2 && hour >= 0 && hour < 24 && minute >= 0 && minute < 60 {
		return fmt.Sprintf("%d %d * * *", minute, hour)
	}
	return value
}

// cronLogger routes cron's own logging through zap
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw("Scheduler: cron "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw("Scheduler: cron "+msg, append(keysAndValues, "error", err)...)
}
