// Package batch runs forced enrichments over a list of instruments and
// records the outcome of each as a job run.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"equitymetrics/internal/enrich"
	"equitymetrics/internal/metrics"
	"equitymetrics/internal/model"
	"equitymetrics/internal/store"
)

// DefaultJobType labels batches started without an explicit type.
const DefaultJobType = "manual"

type Runner struct {
	enricher enrich.Enricher
	jobs     store.JobStore
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
}

func New(e enrich.Enricher, jobs store.JobStore, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		enricher: e,
		jobs:     jobs,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   logger,
	}
}

// RefreshBatch force-enriches each instrument in order. A failing instrument
// is recorded on its run and does not stop the batch; only job bookkeeping
// errors abort. The job id is returned whenever the job row was created.
func (r *Runner) RefreshBatch(ctx context.Context, instrumentIDs []string, jobType string) (string, error) {
	job, err := r.Begin(ctx, jobType)
	if err != nil {
		return "", err
	}
	return job.ID, r.Run(ctx, job, instrumentIDs)
}

// Begin records a running job so its id can be handed out before Run.
func (r *Runner) Begin(ctx context.Context, jobType string) (*model.Job, error) {
	if jobType == "" {
		jobType = DefaultJobType
	}
	job := &model.Job{ID: r.newID(), Type: jobType, Status: model.StatusRunning, StartedAt: r.now().UTC()}
	if err := r.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	metrics.JobsStarted.Add(1)
	return job, nil
}

// Run processes instrumentIDs under a job created by Begin and marks it done.
// Bookkeeping writes outlive ctx so a cancelled batch still ends with the job
// and every started run in a terminal state; instruments not yet started are
// skipped.
func (r *Runner) Run(ctx context.Context, job *model.Job, instrumentIDs []string) error {
	log := r.logger.With("job_id", job.ID, "job_type", job.Type)
	log.Info("batch started", "instruments", len(instrumentIDs))
	bctx := context.WithoutCancel(ctx)

	failed, processed := 0, 0
	for _, id := range instrumentIDs {
		if ctx.Err() != nil {
			log.Warn("batch cancelled", "processed", processed, "skipped", len(instrumentIDs)-processed)
			break
		}
		run := &model.JobRun{
			ID:           r.newID(),
			JobID:        job.ID,
			InstrumentID: id,
			Status:       model.StatusRunning,
			StartedAt:    r.now().UTC(),
		}
		if err := r.jobs.CreateJobRun(bctx, run); err != nil {
			return fmt.Errorf("create run for %s: %w", id, err)
		}

		status, msg := model.StatusDone, ""
		if err := r.enrichOne(ctx, id); err != nil {
			status, msg = model.StatusError, err.Error()
			failed++
			metrics.JobRunsFailed.Add(1)
			log.Warn("instrument refresh failed", "instrument_id", id, "error", err)
		}
		if err := r.jobs.FinishJobRun(bctx, run.ID, status, msg, r.now().UTC()); err != nil {
			return fmt.Errorf("finish run for %s: %w", id, err)
		}
		processed++
	}

	if err := r.jobs.FinishJob(bctx, job.ID, model.StatusDone, r.now().UTC()); err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	log.Info("batch finished", "instruments", len(instrumentIDs), "processed", processed, "failed", failed)
	return nil
}

func (r *Runner) enrichOne(ctx context.Context, id string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	_, err = r.enricher.Enrich(ctx, id, enrich.Options{Force: true})
	return err
}
