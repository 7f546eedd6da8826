package scoring

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/bazaar/internal/jobs"
)

// Recomputer is the part of Engine the background job drives.
type Recomputer interface {
	RecomputeOne(ctx context.Context, listingID string) (float64, error)
	RecomputeAll(ctx context.Context, batchSize int) (int, error)
}

// RecomputeJobConfig configures the score recompute job.
type RecomputeJobConfig struct {
	// DirtyInterval is the duration between incremental cycles over dirty listings.
	DirtyInterval time.Duration
	// FullInterval is the duration between full passes. Zero disables them.
	FullInterval time.Duration
	// BatchSize is the page size used by full passes.
	BatchSize int
	// Timeout for each cycle.
	Timeout time.Duration
	// Logger for job activity.
	Logger *slog.Logger
	// Metrics for backlog tracking.
	Metrics *Metrics
	// JobMetrics for centralized background job tracking.
	JobMetrics jobs.Reporter
}

// Defaults for RecomputeJobConfig.
const (
	DefaultDirtyInterval    = 30 * time.Second
	DefaultBatchSize        = 500
	DefaultRecomputeTimeout = 10 * time.Minute
)

// RecomputeJob keeps stored scores fresh: it rescores listings marked dirty
// on a short interval and runs a full pass on a long one.
type RecomputeJob struct {
	config  RecomputeJobConfig
	tracker *DirtyTracker
	engine  Recomputer

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRecomputeJob creates a new score recompute job.
func NewRecomputeJob(config RecomputeJobConfig, tracker *DirtyTracker, engine Recomputer) *RecomputeJob {
	if config.DirtyInterval <= 0 {
		config.DirtyInterval = DefaultDirtyInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultRecomputeTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if tracker == nil {
		tracker = NewDirtyTracker()
	}

	return &RecomputeJob{
		config:  config,
		tracker: tracker,
		engine:  engine,
	}
}

// Tracker returns the dirty tracker the job drains.
func (j *RecomputeJob) Tracker() *DirtyTracker {
	return j.tracker
}

// Start begins the periodic recompute job.
// Returns immediately; the job runs in a background goroutine.
func (j *RecomputeJob) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	go j.run(ctx)
	return nil
}

// Stop signals the recompute job to stop and waits for it to finish.
func (j *RecomputeJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	stopCh := j.stopCh
	doneCh := j.doneCh
	j.mu.Unlock()

	close(stopCh)
	<-doneCh

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
}

// IsRunning returns whether the job is currently running.
func (j *RecomputeJob) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *RecomputeJob) run(ctx context.Context) {
	defer close(j.doneCh)

	dirtyTicker := time.NewTicker(j.config.DirtyInterval)
	defer dirtyTicker.Stop()

	var fullC <-chan time.Time
	if j.config.FullInterval > 0 {
		fullTicker := time.NewTicker(j.config.FullInterval)
		defer fullTicker.Stop()
		fullC = fullTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			j.config.Logger.Info("score recompute job stopping due to context cancellation")
			return
		case <-j.stopCh:
			j.config.Logger.Info("score recompute job stopping due to stop signal")
			return
		case <-dirtyTicker.C:
			j.RecomputeNow(ctx)
		case <-fullC:
			j.FullPassNow(ctx)
		}
	}
}

// RecomputeNow immediately rescores every dirty listing. A listing that no
// longer exists is cleared; one that fails stays dirty for the next cycle.
// Returns the number of listings rescored.
func (j *RecomputeJob) RecomputeNow(parentCtx context.Context) int {
	pending := j.tracker.Pending()
	j.setBacklog()
	if len(pending) == 0 {
		return 0
	}

	ctx, cancel := context.WithTimeout(parentCtx, j.config.Timeout)
	defer cancel()

	startTime := time.Now()
	var succeeded, failed int

	j.config.Logger.Info("recomputing dirty listing scores",
		"dirty_count", len(pending))

	for i, mark := range pending {
		if ctx.Err() != nil {
			j.config.Logger.Error("dirty recompute timeout exceeded",
				"processed", i,
				"total", len(pending),
				"timeout", j.config.Timeout)
			j.reportError(jobs.JobTypeDirtyRecompute, "timeout")
			failed += len(pending) - i
			break
		}

		_, err := j.engine.RecomputeOne(ctx, mark.ListingID)
		switch {
		case err == nil:
			j.tracker.Resolve(mark)
			succeeded++
		case errors.Is(err, ErrNotFound):
			j.config.Logger.Debug("dirty listing no longer exists",
				"listing_id", mark.ListingID)
			j.tracker.Resolve(mark)
		default:
			j.config.Logger.Error("failed to recompute listing score",
				"listing_id", mark.ListingID,
				"error", err)
			j.reportError(jobs.JobTypeDirtyRecompute, "recompute_error")
			failed++
		}
	}

	duration := time.Since(startTime).Seconds()
	status := jobs.StatusSuccess
	if failed > 0 {
		status = jobs.StatusFailure
	}
	j.reportCompletion(jobs.JobTypeDirtyRecompute, status, duration)
	j.setBacklog()

	j.config.Logger.Info("dirty recompute completed",
		"duration_seconds", duration,
		"listings_processed", succeeded,
		"listings_failed", failed,
		"lag_seconds", time.Since(pending[0].MarkedAt).Seconds())

	return succeeded
}

// FullPassNow immediately rescores every active listing.
func (j *RecomputeJob) FullPassNow(parentCtx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(parentCtx, j.config.Timeout)
	defer cancel()

	startTime := time.Now()
	updated, err := j.engine.RecomputeAll(ctx, j.config.BatchSize)
	duration := time.Since(startTime).Seconds()

	if err != nil {
		errorType := "recompute_error"
		if errors.Is(err, context.DeadlineExceeded) {
			errorType = "timeout"
		}
		j.reportError(jobs.JobTypeScoreRecompute, errorType)
		j.reportCompletion(jobs.JobTypeScoreRecompute, jobs.StatusFailure, duration)
		return updated, err
	}

	j.reportCompletion(jobs.JobTypeScoreRecompute, jobs.StatusSuccess, duration)
	return updated, nil
}

func (j *RecomputeJob) reportError(jobType, errorType string) {
	if j.config.JobMetrics != nil {
		j.config.JobMetrics.IncJobErrors(jobType, errorType)
	}
}

func (j *RecomputeJob) reportCompletion(jobType, status string, seconds float64) {
	if j.config.JobMetrics != nil {
		j.config.JobMetrics.IncJobsTotal(jobType, status)
		j.config.JobMetrics.ObserveJobDuration(jobType, seconds)
	}
}

func (j *RecomputeJob) setBacklog() {
	if j.config.Metrics != nil {
		j.config.Metrics.SetDirtyListings(float64(j.tracker.DirtyCount()))
	}
}
