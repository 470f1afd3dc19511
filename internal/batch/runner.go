package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"real-estate-valuation/internal/cleanup"
	"real-estate-valuation/internal/database"
	"real-estate-valuation/internal/models"
	"real-estate-valuation/internal/normalize"
	"real-estate-valuation/internal/search"
	"real-estate-valuation/internal/valuation"
)

// Job types
const (
	JobDedupAttach  = "dedup_attach"
	JobTrustRebuild = "trust_rebuild"
	JobAreaRefresh  = "area_refresh"
	JobRecrawl      = "recrawl"
	JobCleanup      = "cleanup"
)

// Jobs lists every job type in run order
var Jobs = []string{JobDedupAttach, JobTrustRebuild, JobAreaRefresh, JobRecrawl, JobCleanup}

var (
	// ErrUnknownJob is returned for a job type the runner does not know
	ErrUnknownJob = errors.New("unknown job type")
	// ErrJobRunning is returned when the same job is already in progress
	ErrJobRunning = errors.New("job already running")
	// ErrNotConfigured is returned when a job's collaborator is missing
	ErrNotConfigured = errors.New("job dependency not configured")
)

// Config holds batch runner settings
type Config struct {
	BatchSize    int
	Concurrency  int
	RecrawlAfter time.Duration
	AreaRefresh  time.Duration
}

// DefaultConfig returns default batch settings
func DefaultConfig() Config {
	return Config{
		BatchSize:    40,
		Concurrency:  4,
		RecrawlAfter: 72 * time.Hour,
		AreaRefresh:  24 * time.Hour,
	}
}

// BatchResult summarizes one job run
type BatchResult struct {
	Job        string        `json:"job"`
	Processed  int           `json:"processed"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Cancelled  bool          `json:"cancelled"`
	Errors     []RecordError `json:"errors,omitempty"`
	Details    any           `json:"details,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`

	mu sync.Mutex
}

// RecordError is one failed record of a run
type RecordError struct {
	RecordID string `json:"record_id"`
	Error    string `json:"error"`
}

func (r *BatchResult) ok() {
	r.mu.Lock()
	r.Processed++
	r.mu.Unlock()
}

func (r *BatchResult) skip() {
	r.mu.Lock()
	r.Skipped++
	r.mu.Unlock()
}

func (r *BatchResult) fail(id string, err error) {
	r.mu.Lock()
	r.Failed++
	r.Errors = append(r.Errors, RecordError{RecordID: id, Error: err.Error()})
	r.mu.Unlock()
}

// errSkip marks a record that was deliberately not processed
var errSkip = errors.New("skipped")

// PhotoIndexer hashes a listing's photos
type PhotoIndexer interface {
	IndexPhotos(ctx context.Context, listing *models.Listing) ([]models.PhotoAsset, error)
}

// Grouper attaches listings to dedup groups
type Grouper interface {
	AttachToGroup(ctx context.Context, listingID string) (string, error)
}

// Valuator runs the model suite
type Valuator interface {
	Score(ctx context.Context, in valuation.Input) (*models.ScoreResult, error)
}

// TrustScorer computes provenance trust
type TrustScorer interface {
	ComputeTrust(ctx context.Context, listingID string) (*models.TrustSnapshot, error)
}

// CompsSource reads comparables per area as EUR/m² values
type CompsSource interface {
	SaleCompsByArea(ctx context.Context, areaSlugs []string, since time.Time) (map[string][]float64, error)
	RentCompsByArea(ctx context.Context, areaSlugs []string, since time.Time) (map[string][]float64, error)
}

// SearchIndexer receives group documents
type SearchIndexer interface {
	IndexGroup(doc *search.GroupDocument) error
}

// PageScraper fetches a listing page as a raw record
type PageScraper interface {
	ScrapeListing(ctx context.Context, sourceURL string) (*models.RawListing, error)
}

// Pruner runs retention
type Pruner interface {
	Prune(ctx context.Context) (*cleanup.Result, error)
}

// Deps are the runner's collaborators. Comps, Search, Scraper and Cleanup are optional.
type Deps struct {
	Store      database.Store
	Normalizer *normalize.Normalizer
	Photos     PhotoIndexer
	Grouper    Grouper
	Valuation  Valuator
	Trust      TrustScorer
	Comps      CompsSource
	Search     SearchIndexer
	Scraper    PageScraper
	Cleanup    Pruner
}

// Runner executes batch jobs. Each job type runs at most once at a time;
// a failing record is logged and counted but never aborts the run.
type Runner struct {
	cfg    Config
	deps   Deps
	logger *zap.SugaredLogger
	now    func() time.Time

	mu      sync.Mutex
	running map[string]bool
}

// NewRunner creates a batch runner
func NewRunner(cfg Config, deps Deps, logger *zap.SugaredLogger) *Runner {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Runner{
		cfg:     cfg,
		deps:    deps,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		running: make(map[string]bool),
	}
}

// Run executes one job type once and records its JobState
func (r *Runner) Run(ctx context.Context, job string) (*BatchResult, error) {
	run, ok := r.jobFunc(job)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, job)
	}

	r.mu.Lock()
	if r.running[job] {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, job)
	}
	r.running[job] = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.running, job)
		r.mu.Unlock()
	}()

	result := &BatchResult{Job: job, StartedAt: r.now()}
	r.logger.Infow("Batch: starting job", "job", job)

	err := run(ctx, result)
	result.FinishedAt = r.now()
	if ctx.Err() != nil {
		result.Cancelled = true
	}

	r.saveJobState(job, result, err)

	if err != nil {
		r.logger.Errorw("Batch: job aborted", "job", job, "error", err)
		return result, err
	}
	r.logger.Infow("Batch: job completed",
		"job", job,
		"processed", result.Processed,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"cancelled", result.Cancelled,
		"duration", result.FinishedAt.Sub(result.StartedAt),
	)
	return result, nil
}

func (r *Runner) jobFunc(job string) (func(context.Context, *BatchResult) error, bool) {
	switch job {
	case JobDedupAttach:
		return r.runDedupAttach, true
	case JobTrustRebuild:
		return r.runTrustRebuild, true
	case JobAreaRefresh:
		return r.runAreaRefresh, true
	case JobRecrawl:
		return r.runRecrawl, true
	case JobCleanup:
		return r.runCleanup, true
	}
	return nil, false
}

// saveJobState uses a fresh context so a cancelled run is still recorded
func (r *Runner) saveJobState(job string, result *BatchResult, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	state, err := r.deps.Store.GetJobState(ctx, job)
	if errors.Is(err, database.ErrNotFound) {
		state = &models.JobState{JobType: job}
	} else if err != nil {
		r.logger.Warnw("Batch: failed to load job state", "job", job, "error", err)
		return
	}

	if runErr != nil {
		state.RecordFailure(runErr, result.FinishedAt)
	} else {
		state.RecordSuccess(result.Processed, result.Failed, result.FinishedAt)
	}
	if err := r.deps.Store.SaveJobState(ctx, state); err != nil {
		r.logger.Warnw("Batch: failed to save job state", "job", job, "error", err)
	}
}

// forEach processes records with bounded parallelism. Cancellation is
// checked between records; a started record always finishes.
func (r *Runner) forEach(ctx context.Context, result *BatchResult, ids []string, fn func(ctx context.Context, id string) error) {
	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)

	for _, id := range ids {
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			err := safely(func() error { return fn(ctx, id) })
			switch {
			case err == nil:
				result.ok()
			case errors.Is(err, errSkip):
				result.skip()
			default:
				result.fail(id, err)
				r.logger.Warnw("Batch: record failed", "job", result.Job, "record_id", id, "error", err)
			}
			return nil
		})
	}
	g.Wait()
}

// safely converts a panic in one record into an error
func safely(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}
