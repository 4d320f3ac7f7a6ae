package sync

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenyathi/weatherapp-sub000/internal/jobs"
	"github.com/eugenenyathi/weatherapp-sub000/internal/model"
	"github.com/eugenenyathi/weatherapp-sub000/internal/store"
)

const (
	// DefaultWaitTimeout bounds how long a read path blocks for an
	// in-flight fetch before serving whatever data exists.
	DefaultWaitTimeout = 30 * time.Second

	// DefaultPollInterval is the sleep between scheduler status polls.
	DefaultPollInterval = 500 * time.Millisecond
)

// StatusTracker records fetch-job lifecycle per location and lets read paths
// block-and-wait for in-flight fetches without duplicating work. The
// background scheduler drives the actual transitions; this component only
// mirrors them onto LocationJob rows.
type StatusTracker struct {
	jobRepo     store.JobRepository
	weatherRepo store.WeatherRepository
	locations   store.LocationRepository
	sched       jobs.Scheduler
	pipeline    *Pipeline
	log         *zap.Logger

	waitTimeout  time.Duration
	pollInterval time.Duration
	now          func() time.Time
}

// NewStatusTracker creates a StatusTracker. Non-positive bounds fall back to
// the defaults.
func NewStatusTracker(
	repos *store.Container,
	sched jobs.Scheduler,
	pipeline *Pipeline,
	waitTimeout, pollInterval time.Duration,
	log *zap.Logger,
) *StatusTracker {
	if waitTimeout <= 0 {
		waitTimeout = DefaultWaitTimeout
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &StatusTracker{
		jobRepo:      repos.Jobs,
		weatherRepo:  repos.Weather,
		locations:    repos.Locations,
		sched:        sched,
		pipeline:     pipeline,
		log:          log,
		waitTimeout:  waitTimeout,
		pollInterval: pollInterval,
		now:          time.Now,
	}
}

// RecordEnqueued inserts a Pending LocationJob row for a freshly enqueued
// fetch.
func (t *StatusTracker) RecordEnqueued(ctx context.Context, locationID int64, handle string) error {
	return t.jobRepo.Insert(ctx, &model.LocationJob{
		LocationID: locationID,
		JobID:      handle,
		Status:     model.JobPending,
	})
}

// MarkCompleted moves the most recent active job row for the location to
// Succeeded. Used as a continuation when a fetch job finishes.
func (t *StatusTracker) MarkCompleted(ctx context.Context, locationID int64) error {
	job, err := t.jobRepo.LatestActive(ctx, locationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return t.jobRepo.UpdateStatus(ctx, job.ID, model.JobSucceeded, t.now().UTC())
}

// WaitForCompletion blocks until the most recent active fetch job for the
// location settles, the wait times out, or ctx is canceled. Timeout is a
// normal termination, not an error: callers proceed with whatever data
// currently exists. Cancellation returns ctx.Err.
func (t *StatusTracker) WaitForCompletion(ctx context.Context, locationID int64) error {
	job, err := t.jobRepo.LatestActive(ctx, locationID)
	if errors.Is(err, store.ErrNotFound) {
		// Nothing in flight; nothing to wait for.
		return nil
	}
	if err != nil {
		return err
	}

	deadline := t.now().Add(t.waitTimeout)

	for {
		history, err := t.sched.History(job.JobID)
		if errors.Is(err, jobs.ErrJobNotFound) {
			return t.recoverUnknownJob(ctx, job)
		}
		if err != nil {
			return err
		}

		if len(history) > 0 {
			status := mirrorState(history[len(history)-1].State)
			if err := t.jobRepo.UpdateStatus(ctx, job.ID, status, t.now().UTC()); err != nil {
				return err
			}
			if status.Terminal() {
				return nil
			}
		}

		if !t.now().Add(t.pollInterval).Before(deadline) {
			t.log.Debug("wait for fetch completion timed out",
				zap.Int64("locationID", locationID), zap.String("jobID", job.JobID))
			return nil
		}

		timer := time.NewTimer(t.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// recoverUnknownJob handles a job handle the scheduler no longer knows (e.g.
// purged history): if the location still has no weather data a fresh fetch is
// enqueued and recorded, and the stale row is closed out either way.
func (t *StatusTracker) recoverUnknownJob(ctx context.Context, job *model.LocationJob) error {
	has, err := t.weatherRepo.HasData(ctx, job.LocationID)
	if err != nil {
		return err
	}

	if !has {
		loc, err := t.locations.GetByID(ctx, job.LocationID)
		if err != nil {
			return err
		}

		handle, err := t.sched.Enqueue(func(jobCtx context.Context) {
			if _, err := t.pipeline.SyncLocation(jobCtx, loc); err != nil {
				t.log.Error("recovery fetch failed",
					zap.Int64("locationID", loc.ID), zap.Error(err))
			}
		})
		if err != nil {
			return err
		}
		if err := t.RecordEnqueued(ctx, job.LocationID, handle); err != nil {
			return err
		}
		if _, err := t.sched.EnqueueContinuation(handle, func(jobCtx context.Context) {
			if err := t.MarkCompleted(jobCtx, loc.ID); err != nil {
				t.log.Error("failed to close fetch job row",
					zap.Int64("locationID", loc.ID), zap.Error(err))
			}
		}); err != nil {
			return err
		}
		t.log.Info("re-enqueued fetch for purged job",
			zap.Int64("locationID", job.LocationID), zap.String("staleJobID", job.JobID))
	}

	return t.jobRepo.UpdateStatus(ctx, job.ID, model.JobSucceeded, t.now().UTC())
}

// mirrorState maps a scheduler lifecycle state onto a LocationJob status.
func mirrorState(state jobs.State) model.JobStatus {
	switch state {
	case jobs.StateEnqueued:
		return model.JobPending
	case jobs.StateProcessing:
		return model.JobProcessing
	case jobs.StateSucceeded:
		return model.JobSucceeded
	case jobs.StateFailed:
		return model.JobFailed
	case jobs.StateDeleted:
		return model.JobDeleted
	default:
		return model.JobPending
	}
}
