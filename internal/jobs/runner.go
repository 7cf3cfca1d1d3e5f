// Package jobs contains the background workers: the scrape job runner, which
// executes submitted jobs with bounded concurrency, and the retention sweeper,
// which ages stored files out of the storage tree.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/civicscan/civicscan/internal/safego"
	"github.com/civicscan/civicscan/internal/scraper"
)

// ErrJobAlreadyActive is returned when a job is submitted while an execution
// for the same job ID is still in flight.
var ErrJobAlreadyActive = errors.New("job is already executing")

// Executor runs one scrape job to a terminal state.
type Executor interface {
	Execute(ctx context.Context, jobID string) error
}

// CancelStore records terminal statuses the executor cannot write itself:
// cancellation, and failure when an execution panics. Both report whether the
// row changed, so a job that already reached a terminal state is detected.
type CancelStore interface {
	Cancel(ctx context.Context, jobID string) (bool, error)
	Fail(ctx context.Context, jobID, message string) (bool, error)
}

// ScrapeRunner executes scrape jobs in the background with a concurrency cap.
// Each running job gets its own cancellable context so individual jobs can be
// stopped without affecting the rest.
type ScrapeRunner struct {
	executor Executor
	store    CancelStore
	sem      chan struct{}

	mu     sync.Mutex
	active map[string]context.CancelFunc

	rootCtx  context.Context
	rootStop context.CancelFunc
	wg       sync.WaitGroup
}

// NewScrapeRunner creates a runner that executes at most maxConcurrent jobs
// at a time.
func NewScrapeRunner(executor Executor, store CancelStore, maxConcurrent int) *ScrapeRunner {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	ctx, stop := context.WithCancel(context.Background())
	return &ScrapeRunner{
		executor: executor,
		store:    store,
		sem:      make(chan struct{}, maxConcurrent),
		active:   make(map[string]context.CancelFunc),
		rootCtx:  ctx,
		rootStop: stop,
	}
}

// Submit schedules a job for background execution and returns immediately.
// The job waits for a concurrency slot, so submission always succeeds even
// when the runner is saturated; the work just queues.
func (r *ScrapeRunner) Submit(jobID string) error {
	r.mu.Lock()
	if _, ok := r.active[jobID]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobAlreadyActive, jobID)
	}
	jobCtx, cancel := context.WithCancel(r.rootCtx)
	r.active[jobID] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	safego.Go(func() {
		defer r.wg.Done()
		defer r.release(jobID)

		select {
		case r.sem <- struct{}{}:
			defer func() { <-r.sem }()
		case <-jobCtx.Done():
			// Cancelled or shut down before a slot opened.
			return
		}

		// A panicking executor would otherwise leave the job stuck in
		// running forever; record it as failed before the outer recovery
		// in safego swallows anything.
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("scrape job panicked", "job_id", jobID, "panic", rec)
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if _, err := r.store.Fail(ctx, jobID, fmt.Sprintf("internal error: %v", rec)); err != nil {
					slog.Error("failed to record panicked job", "job_id", jobID, "error", err)
				}
			}
		}()

		if err := r.executor.Execute(jobCtx, jobID); err != nil {
			if errors.Is(err, context.Canceled) {
				slog.Info("scrape job cancelled", "job_id", jobID)
				return
			}
			slog.Error("scrape job failed", "job_id", jobID, "error", err)
		}
	})

	return nil
}

// Cancel stops a job. The database transition happens first so a pending job
// that never started is cancelled too; only then is the execution context
// cancelled. Returns scraper.ErrInvalidTransition when the job is already in
// a terminal state.
func (r *ScrapeRunner) Cancel(ctx context.Context, jobID string) error {
	changed, err := r.store.Cancel(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}
	if !changed {
		return fmt.Errorf("%w: job %s is not pending or running", scraper.ErrInvalidTransition, jobID)
	}

	r.mu.Lock()
	cancel, ok := r.active[jobID]
	r.mu.Unlock()
	if ok {
		cancel()
	}

	slog.Info("scrape job cancel requested", "job_id", jobID)
	return nil
}

// ActiveCount returns the number of jobs currently submitted and not yet
// finished, including those still waiting for a slot.
func (r *ScrapeRunner) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Shutdown cancels all running jobs and waits for them to exit, or until ctx
// expires.
func (r *ScrapeRunner) Shutdown(ctx context.Context) error {
	r.rootStop()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out waiting for scrape jobs: %w", ctx.Err())
	}
}

func (r *ScrapeRunner) release(jobID string) {
	r.mu.Lock()
	cancel := r.active[jobID]
	delete(r.active, jobID)
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
