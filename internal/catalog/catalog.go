// Package catalog owns job postings: posting, search and owner-only edits.
package catalog

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/joblink/internal/filtering"
	"github.com/spigell/joblink/internal/keylock"
	"github.com/spigell/joblink/internal/logger"
	"github.com/spigell/joblink/internal/marketplace"
	"github.com/spigell/joblink/internal/matching"
	"github.com/spigell/joblink/internal/notify"
)

// Repository persists jobs. Get returns a NotFound marketplace error for
// unknown ids.
type Repository interface {
	Create(ctx context.Context, job *marketplace.Job) error
	Get(ctx context.Context, id string) (*marketplace.Job, error)
	Update(ctx context.Context, job *marketplace.Job) error
	List(ctx context.Context) ([]*marketplace.Job, error)
}

// Directory resolves profiles. The profile store satisfies it.
type Directory interface {
	GetProfile(ctx context.Context, id string) (*marketplace.Profile, error)
}

type Query = filtering.Query

type Options struct {
	Logger *zap.Logger
	// Directory, when set, is used to check that posting employers exist.
	Directory Directory
	Notifier  notify.Notifier
	Ranker    *matching.Ranker
}

type Catalog struct {
	repo      Repository
	locks     *keylock.Locker
	directory Directory
	notifier  notify.Notifier
	ranker    *matching.Ranker
	logger    *zap.Logger
	now       func() time.Time
}

func New(repo Repository, opts Options) *Catalog {
	if repo == nil {
		repo = NewMemoryRepository()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Ranker == nil {
		opts.Ranker = matching.NewRanker(nil, 0, opts.Logger)
	}
	return &Catalog{
		repo:      repo,
		locks:     keylock.New(),
		directory: opts.Directory,
		notifier:  opts.Notifier,
		ranker:    opts.Ranker,
		logger:    opts.Logger,
		now:       time.Now,
	}
}

// PostJob validates and stores a new, unfilled job for the employer.
func (c *Catalog) PostJob(ctx context.Context, employerID string, attrs marketplace.JobAttributes) (*marketplace.Job, error) {
	if err := attrs.Validate(); err != nil {
		return nil, err
	}
	if err := c.checkEmployer(ctx, employerID); err != nil {
		return nil, err
	}

	now := c.now().UTC()
	job := &marketplace.Job{
		ID:         uuid.NewString(),
		EmployerID: employerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	attrs.Apply(job)

	if err := c.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("storing job: %w", err)
	}

	c.logger.Info("job posted", append(logger.JobFields(job.ID, job.EmployerID), zap.String("title", job.Title))...)
	c.notifier.Notify(notify.JobPosted{JobID: job.ID, EmployerID: employerID, Title: job.Title, At: now})

	return job.Clone(), nil
}

func (c *Catalog) Get(ctx context.Context, id string) (*marketplace.Job, error) {
	return c.repo.Get(ctx, id)
}

// Search returns the jobs matching q, newest first. Archived jobs are never included.
func (c *Catalog) Search(ctx context.Context, q Query) (iter.Seq[*marketplace.Job], error) {
	jobs, _, err := c.filter(ctx, q, nil, filtering.Steps())
	if err != nil {
		return nil, err
	}
	jobs.SortByRecent()
	return slices.Values(jobs.Items), nil
}

// Owned returns every job of the employer, archived ones included, newest first.
func (c *Catalog) Owned(ctx context.Context, employerID string) (iter.Seq[*marketplace.Job], error) {
	if employerID == "" {
		return nil, marketplace.NewValidationError("invalid search", map[string]string{"employerId": "employer id is required"})
	}

	steps := filtering.Steps()
	filtering.DisableByName(steps, "archived", "owner view")

	jobs, _, err := c.filter(ctx, Query{EmployerID: employerID}, nil, steps)
	if err != nil {
		return nil, err
	}
	jobs.SortByRecent()
	return slices.Values(jobs.Items), nil
}

// Ranked searches with q and orders the result by match score for the worker.
func (c *Catalog) Ranked(ctx context.Context, worker *marketplace.Profile, q Query) ([]matching.Ranked, error) {
	if !worker.IsWorker() {
		return nil, marketplace.NewValidationError("invalid ranking request", map[string]string{
			"workerId": "ranking requires a worker profile",
		})
	}

	jobs, _, err := c.filter(ctx, q, worker, filtering.Steps())
	if err != nil {
		return nil, err
	}

	return c.ranker.Rank(ctx, worker, jobs.Items)
}

func (c *Catalog) filter(ctx context.Context, q Query, worker *marketplace.Profile, steps []filtering.Filter) (*marketplace.Jobs, map[string]int, error) {
	all, err := c.repo.List(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("listing jobs: %w", err)
	}

	if err := validateQuery(q, worker); err != nil {
		return nil, nil, err
	}

	deps := filtering.Deps{Logger: c.logger, Worker: worker, Scorer: c.ranker.Scorer()}
	jobs, scores, err := filtering.Run(ctx, &q, deps, steps, &marketplace.Jobs{Items: all})
	if err != nil {
		return nil, nil, marketplace.NewServiceError("filtering jobs", err)
	}

	if ce := c.logger.Check(zap.DebugLevel, "job filters"); ce != nil {
		ce.Write(zap.Any("filters", filtering.Describe(steps)), zap.Strings("matched_jobs", jobs.IDs()))
	}
	return jobs, scores, nil
}

func validateQuery(q Query, worker *marketplace.Profile) error {
	if q.MinScore < 0 || q.MinScore > matching.MaxScore {
		return marketplace.NewValidationError("invalid search", map[string]string{
			"minScore": fmt.Sprintf("minimum score must be between 0 and %d", matching.MaxScore),
		})
	}
	if q.MinScore > 0 && worker == nil {
		return marketplace.NewValidationError("invalid search", map[string]string{
			"minScore": "minimum score requires a worker",
		})
	}
	return nil
}

// MarkFilled closes the job to new applications. Only the owner may fill it,
// and a job can be filled once.
func (c *Catalog) MarkFilled(ctx context.Context, jobID, employerID string) (*marketplace.Job, error) {
	unlock := c.Hold(jobID)
	defer unlock()
	return c.MarkFilledHeld(ctx, jobID, employerID)
}

// Hold takes the job's write lock and returns its release func. Fill, edit,
// archive and the workflow's apply and decide all wait on it.
func (c *Catalog) Hold(jobID string) func() {
	return c.locks.Lock(jobID)
}

// MarkFilledHeld is MarkFilled for callers already inside Hold.
func (c *Catalog) MarkFilledHeld(ctx context.Context, jobID, employerID string) (*marketplace.Job, error) {
	return c.mutateHeld(ctx, jobID, employerID, func(job *marketplace.Job, now time.Time) error {
		if job.Filled {
			return marketplace.NewStateError(fmt.Sprintf("job %s is already filled", job.ID))
		}
		job.Filled = true
		job.FilledAt = &now
		return nil
	}, "job filled")
}

// ReopenHeld reverts a fill made by MarkFilledHeld under the same Hold.
func (c *Catalog) ReopenHeld(ctx context.Context, jobID, employerID string) (*marketplace.Job, error) {
	return c.mutateHeld(ctx, jobID, employerID, func(job *marketplace.Job, _ time.Time) error {
		if !job.Filled {
			return marketplace.NewStateError(fmt.Sprintf("job %s is not filled", job.ID))
		}
		job.Filled = false
		job.FilledAt = nil
		return nil
	}, "job reopened")
}

// Edit replaces the posting attributes of an open job.
func (c *Catalog) Edit(ctx context.Context, jobID, employerID string, attrs marketplace.JobAttributes) (*marketplace.Job, error) {
	if err := attrs.Validate(); err != nil {
		return nil, err
	}
	return c.mutate(ctx, jobID, employerID, func(job *marketplace.Job, _ time.Time) error {
		if job.Filled {
			return marketplace.NewStateError(fmt.Sprintf("job %s is filled and cannot be edited", job.ID))
		}
		if job.Archived {
			return marketplace.NewStateError(fmt.Sprintf("job %s is archived and cannot be edited", job.ID))
		}
		attrs.Apply(job)
		return nil
	}, "job edited")
}

// Archive hides the job from search. Applications keep referencing it.
func (c *Catalog) Archive(ctx context.Context, jobID, employerID string) (*marketplace.Job, error) {
	return c.mutate(ctx, jobID, employerID, func(job *marketplace.Job, _ time.Time) error {
		if job.Archived {
			return marketplace.NewStateError(fmt.Sprintf("job %s is already archived", job.ID))
		}
		job.Archived = true
		return nil
	}, "job archived")
}

func (c *Catalog) mutate(ctx context.Context, jobID, employerID string, fn func(job *marketplace.Job, now time.Time) error, msg string) (*marketplace.Job, error) {
	unlock := c.Hold(jobID)
	defer unlock()
	return c.mutateHeld(ctx, jobID, employerID, fn, msg)
}

func (c *Catalog) mutateHeld(ctx context.Context, jobID, employerID string, fn func(job *marketplace.Job, now time.Time) error, msg string) (*marketplace.Job, error) {
	job, err := c.repo.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.EmployerID != employerID {
		return nil, marketplace.NewAuthorizationError(fmt.Sprintf("employer %s does not own job %s", employerID, jobID))
	}

	now := c.now().UTC()
	if err := fn(job, now); err != nil {
		return nil, err
	}
	job.UpdatedAt = now

	if err := c.repo.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("updating job %s: %w", jobID, err)
	}

	c.logger.Info(msg, logger.JobFields(job.ID, job.EmployerID)...)
	return job.Clone(), nil
}

func (c *Catalog) checkEmployer(ctx context.Context, employerID string) error {
	if employerID == "" {
		return marketplace.NewValidationError("invalid job posting", map[string]string{"employerId": "employer id is required"})
	}
	if c.directory == nil {
		return nil
	}

	profile, err := c.directory.GetProfile(ctx, employerID)
	if err != nil {
		return err
	}
	if !profile.IsEmployer() {
		return marketplace.NewAuthorizationError(fmt.Sprintf("profile %s is not an employer", employerID))
	}
	if !profile.Active {
		return marketplace.NewAuthorizationError(fmt.Sprintf("profile %s is deactivated", employerID))
	}
	return nil
}
