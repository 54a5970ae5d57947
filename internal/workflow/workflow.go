// Package workflow drives the application lifecycle between workers and employers.
package workflow

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/joblink/internal/logger"
	"github.com/spigell/joblink/internal/marketplace"
	"github.com/spigell/joblink/internal/notify"
)

// Repository persists applications. Create returns a Conflict marketplace
// error when the worker already applied for the job.
type Repository interface {
	Create(ctx context.Context, app *marketplace.Application) error
	Get(ctx context.Context, id string) (*marketplace.Application, error)
	Update(ctx context.Context, app *marketplace.Application) error
	FindByPair(ctx context.Context, jobID, workerID string) (*marketplace.Application, error)
	ListByWorker(ctx context.Context, workerID string) ([]*marketplace.Application, error)
	ListByJob(ctx context.Context, jobID string) ([]*marketplace.Application, error)
}

// Jobs is the part of the catalog the workflow relies on. Hold must take the
// same per-job lock the catalog uses for fill and archive.
type Jobs interface {
	Get(ctx context.Context, id string) (*marketplace.Job, error)
	Owned(ctx context.Context, employerID string) (iter.Seq[*marketplace.Job], error)
	Hold(jobID string) func()
	MarkFilledHeld(ctx context.Context, jobID, employerID string) (*marketplace.Job, error)
	ReopenHeld(ctx context.Context, jobID, employerID string) (*marketplace.Job, error)
}

// Profiles is the part of the profile store the workflow relies on.
type Profiles interface {
	GetProfile(ctx context.Context, id string) (*marketplace.Profile, error)
	RecordHire(ctx context.Context, employerID string) (*marketplace.Profile, error)
	RecordCompletion(ctx context.Context, workerID string) (*marketplace.Profile, error)
}

type Options struct {
	Logger   *zap.Logger
	Notifier notify.Notifier
	// Profiles, when set, validates applying workers and records hires and
	// completed jobs.
	Profiles Profiles
}

type Workflow struct {
	repo     Repository
	jobs     Jobs
	profiles Profiles
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func New(repo Repository, jobs Jobs, opts Options) *Workflow {
	if repo == nil {
		repo = NewMemoryRepository()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	return &Workflow{
		repo:     repo,
		jobs:     jobs,
		profiles: opts.Profiles,
		notifier: opts.Notifier,
		logger:   opts.Logger,
		now:      time.Now,
	}
}

// Apply creates a pending application of the worker for the job.
func (w *Workflow) Apply(ctx context.Context, jobID, workerID string) (*marketplace.Application, error) {
	fields := map[string]string{}
	if jobID == "" {
		fields["jobId"] = "job id is required"
	}
	if workerID == "" {
		fields["workerId"] = "worker id is required"
	}
	if len(fields) > 0 {
		return nil, marketplace.NewValidationError("invalid application", fields)
	}

	unlock := w.jobs.Hold(jobID)
	defer unlock()

	job, err := w.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Filled {
		return nil, marketplace.NewStateError(fmt.Sprintf("job %s is already filled", jobID))
	}
	if job.Archived {
		return nil, marketplace.NewStateError(fmt.Sprintf("job %s is archived", jobID))
	}

	worker, err := w.worker(ctx, workerID)
	if err != nil {
		return nil, err
	}

	existing, err := w.repo.FindByPair(ctx, jobID, workerID)
	if err != nil && !marketplace.Is(err, marketplace.KindNotFound) {
		return nil, fmt.Errorf("checking previous application: %w", err)
	}
	if existing != nil {
		return nil, marketplace.NewConflictError(fmt.Sprintf("worker %s already applied for job %s", workerID, jobID))
	}

	now := w.now().UTC()
	app := &marketplace.Application{
		ID:        uuid.NewString(),
		JobID:     jobID,
		WorkerID:  workerID,
		Status:    marketplace.StatusPending,
		AppliedAt: now,
		UpdatedAt: now,
	}
	if err := w.repo.Create(ctx, app); err != nil {
		if marketplace.Is(err, marketplace.KindConflict) || marketplace.Is(err, marketplace.KindState) {
			return nil, err
		}
		return nil, fmt.Errorf("storing application: %w", err)
	}

	w.logger.Info("application received", logger.ApplicationFields(app.ID, jobID, workerID, string(app.Status))...)
	w.notifier.Notify(notify.ApplicationReceived{
		ApplicationID: app.ID,
		JobID:         jobID,
		JobTitle:      job.Title,
		WorkerID:      workerID,
		WorkerName:    displayName(worker),
		EmployerID:    job.EmployerID,
		At:            now,
	})

	return app.Clone(), nil
}

// MarkReviewed moves a pending application to reviewed.
func (w *Workflow) MarkReviewed(ctx context.Context, applicationID, employerID string) (*marketplace.Application, error) {
	app, _, err := w.transition(ctx, applicationID, employerID, marketplace.StatusReviewed, nil)
	return app, err
}

// Decide accepts or rejects the application. Accepting fills the job first,
// so only one application per job can ever be accepted.
func (w *Workflow) Decide(ctx context.Context, applicationID, employerID string, outcome marketplace.Outcome) (*marketplace.Application, error) {
	outcome, err := marketplace.ParseOutcome(string(outcome))
	if err != nil {
		return nil, err
	}
	to := outcome.Status()

	var before func(ctx context.Context, job *marketplace.Job) (func(context.Context) error, error)
	if to == marketplace.StatusAccepted {
		before = func(ctx context.Context, job *marketplace.Job) (func(context.Context) error, error) {
			if _, err := w.jobs.MarkFilledHeld(ctx, job.ID, employerID); err != nil {
				return nil, err
			}
			return func(ctx context.Context) error {
				_, err := w.jobs.ReopenHeld(ctx, job.ID, employerID)
				return err
			}, nil
		}
	}

	app, job, err := w.transition(ctx, applicationID, employerID, to, before)
	if err != nil {
		return nil, err
	}

	if to == marketplace.StatusAccepted && w.profiles != nil {
		if _, err := w.profiles.RecordHire(ctx, employerID); err != nil {
			w.logger.Warn("recording hire failed", append(logger.JobFields(job.ID, employerID), zap.Error(err))...)
		}
		if _, err := w.profiles.RecordCompletion(ctx, app.WorkerID); err != nil {
			w.logger.Warn("recording completed job failed", append(logger.JobFields(job.ID, employerID), zap.String(logger.FieldWorkerID, app.WorkerID), zap.Error(err))...)
		}
	}

	var workerName string
	if w.profiles != nil {
		if worker, err := w.profiles.GetProfile(ctx, app.WorkerID); err == nil {
			workerName = displayName(worker)
		}
	}

	w.notifier.Notify(notify.ApplicationDecided{
		ApplicationID: app.ID,
		JobID:         job.ID,
		JobTitle:      job.Title,
		WorkerID:      app.WorkerID,
		WorkerName:    workerName,
		EmployerID:    job.EmployerID,
		Status:        app.Status,
		At:            app.UpdatedAt,
	})

	return app, nil
}

func (w *Workflow) transition(
	ctx context.Context,
	applicationID, employerID string,
	to marketplace.Status,
	before func(ctx context.Context, job *marketplace.Job) (func(context.Context) error, error),
) (*marketplace.Application, *marketplace.Job, error) {
	app, err := w.repo.Get(ctx, applicationID)
	if err != nil {
		return nil, nil, err
	}

	unlock := w.jobs.Hold(app.JobID)
	defer unlock()

	// Reload under the job lock so concurrent decisions observe each other.
	app, err = w.repo.Get(ctx, applicationID)
	if err != nil {
		return nil, nil, err
	}

	job, err := w.jobs.Get(ctx, app.JobID)
	if err != nil {
		return nil, nil, err
	}
	if job.EmployerID != employerID {
		return nil, nil, marketplace.NewAuthorizationError(fmt.Sprintf("employer %s does not own job %s", employerID, job.ID))
	}
	if !marketplace.CanTransition(app.Status, to) {
		return nil, nil, marketplace.NewStateError(fmt.Sprintf("application %s cannot move from %s to %s", app.ID, app.Status, to))
	}

	var undo func(context.Context) error
	if before != nil {
		if undo, err = before(ctx, job); err != nil {
			return nil, nil, err
		}
	}

	if err := app.Transition(to, w.now().UTC()); err != nil {
		w.rollback(ctx, app, undo)
		return nil, nil, err
	}
	if err := w.repo.Update(ctx, app); err != nil {
		w.rollback(ctx, app, undo)
		return nil, nil, fmt.Errorf("updating application %s: %w", app.ID, err)
	}

	w.logger.Info("application "+string(to), logger.ApplicationFields(app.ID, app.JobID, app.WorkerID, string(app.Status))...)
	return app.Clone(), job, nil
}

// rollback reverts the side effect of a transition whose write failed. A
// failed revert leaves the job and the application out of step and is logged
// as an error.
func (w *Workflow) rollback(ctx context.Context, app *marketplace.Application, undo func(context.Context) error) {
	if undo == nil {
		return
	}
	if err := undo(context.WithoutCancel(ctx)); err != nil {
		w.logger.Error("reverting job fill failed, job stays filled without an accepted application",
			append(logger.ApplicationFields(app.ID, app.JobID, app.WorkerID, string(app.Status)), zap.Error(err))...)
		return
	}
	w.logger.Warn("job fill reverted", logger.ApplicationFields(app.ID, app.JobID, app.WorkerID, string(app.Status))...)
}

// ListForWorker returns the applications of a worker, most recent first.
func (w *Workflow) ListForWorker(ctx context.Context, workerID string) (iter.Seq[*marketplace.Application], error) {
	apps, err := w.repo.ListByWorker(ctx, workerID)
	if err != nil {
		return nil, fmt.Errorf("listing applications for worker %s: %w", workerID, err)
	}
	slices.SortStableFunc(apps, marketplace.CompareApplied)
	return slices.Values(apps), nil
}

// ListForJob returns the applications for a job, most recent first.
func (w *Workflow) ListForJob(ctx context.Context, jobID string) (iter.Seq[*marketplace.Application], error) {
	apps, err := w.repo.ListByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing applications for job %s: %w", jobID, err)
	}
	slices.SortStableFunc(apps, marketplace.CompareApplied)
	return slices.Values(apps), nil
}

// HasApplied reports whether the worker already has an application for the job.
func (w *Workflow) HasApplied(ctx context.Context, jobID, workerID string) (bool, error) {
	_, err := w.repo.FindByPair(ctx, jobID, workerID)
	switch {
	case err == nil:
		return true, nil
	case marketplace.Is(err, marketplace.KindNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("checking previous application: %w", err)
	}
}

// CountForJob tallies the applications received by a job.
func (w *Workflow) CountForJob(ctx context.Context, jobID string) (marketplace.Counts, error) {
	if _, err := w.jobs.Get(ctx, jobID); err != nil {
		return marketplace.Counts{}, err
	}
	apps, err := w.repo.ListByJob(ctx, jobID)
	if err != nil {
		return marketplace.Counts{}, fmt.Errorf("listing applications for job %s: %w", jobID, err)
	}
	return marketplace.CountByStatus(slices.Values(apps)), nil
}

// Summary aggregates the employer's jobs, archived ones included. A zero
// since counts every application and hire.
func (w *Workflow) Summary(ctx context.Context, employerID string, since time.Time) (*marketplace.EmployerSummary, error) {
	if w.profiles != nil {
		profile, err := w.profiles.GetProfile(ctx, employerID)
		if err != nil {
			return nil, err
		}
		if !profile.IsEmployer() {
			return nil, marketplace.NewAuthorizationError(fmt.Sprintf("profile %s is not an employer", employerID))
		}
	}

	jobs, err := w.jobs.Owned(ctx, employerID)
	if err != nil {
		return nil, err
	}

	summary := &marketplace.EmployerSummary{EmployerID: employerID}
	if !since.IsZero() {
		at := since.UTC()
		summary.Since = &at
	}
	for job := range jobs {
		if !job.Filled && !job.Archived {
			summary.ActiveJobs++
		}
		apps, err := w.repo.ListByJob(ctx, job.ID)
		if err != nil {
			return nil, fmt.Errorf("listing applications for job %s: %w", job.ID, err)
		}
		for _, app := range apps {
			if !app.AppliedAt.Before(since) {
				summary.Applications++
			}
			if app.Status == marketplace.StatusAccepted && app.DecidedAt != nil && !app.DecidedAt.Before(since) {
				summary.Hires++
			}
		}
	}
	return summary, nil
}

func (w *Workflow) worker(ctx context.Context, workerID string) (*marketplace.Profile, error) {
	if w.profiles == nil {
		return nil, nil
	}
	profile, err := w.profiles.GetProfile(ctx, workerID)
	if err != nil {
		return nil, err
	}
	if !profile.IsWorker() {
		return nil, marketplace.NewAuthorizationError(fmt.Sprintf("profile %s is not a worker", workerID))
	}
	if !profile.Active {
		return nil, marketplace.NewAuthorizationError(fmt.Sprintf("profile %s is deactivated", workerID))
	}
	return profile, nil
}

func displayName(p *marketplace.Profile) string {
	if p == nil {
		return ""
	}
	return p.DisplayName
}
