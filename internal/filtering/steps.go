package filtering

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/joblink/internal/marketplace"
	"github.com/spigell/joblink/internal/matching"
)

type toggle struct {
	disabled bool
	reason   string
}

func (t *toggle) Disable(reason string) {
	t.disabled = true
	t.reason = reason
}

func (t *toggle) IsEnabled() bool { return !t.disabled }

// normalize lowercases a criterion and maps the wildcard to empty.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == Wildcard {
		return ""
	}
	return s
}

func keep(v *marketplace.Jobs, fn func(*marketplace.Job) bool) (*marketplace.Jobs, Step, []string) {
	initial := v.Len()
	dropped := v.Keep(fn)
	return v, Step{Initial: initial, Dropped: len(dropped), Left: v.Len()}, dropped
}

func unchanged(v *marketplace.Jobs) (*marketplace.Jobs, Step, error) {
	return v, Step{Initial: v.Len(), Dropped: 0, Left: v.Len()}, nil
}

type archivedFilter struct{ toggle }

// NewArchived creates a filter that hides archived jobs.
func NewArchived() Filter {
	return &archivedFilter{}
}

func (f *archivedFilter) Name() string { return "archived" }

func (f *archivedFilter) Validate(*Query) error { return nil }

func (f *archivedFilter) Apply(_ context.Context, deps Deps, v *marketplace.Jobs) (*marketplace.Jobs, Step, error) {
	v, step, dropped := keep(v, func(job *marketplace.Job) bool { return !job.Archived })
	if deps.Logger != nil && len(dropped) > 0 {
		deps.Logger.Debug("excluding archived jobs", zap.Strings("excluded_jobs", dropped))
	}
	return v, step, nil
}

type excludedFilter struct {
	toggle
	ids []string
}

// NewExcluded creates a filter that drops the jobs listed in Query.ExcludeIDs.
func NewExcluded() Filter {
	return &excludedFilter{}
}

func (f *excludedFilter) Name() string { return "excluded" }

func (f *excludedFilter) Validate(q *Query) error {
	f.ids = q.ExcludeIDs
	return nil
}

func (f *excludedFilter) Apply(_ context.Context, deps Deps, v *marketplace.Jobs) (*marketplace.Jobs, Step, error) {
	initial := v.Len()
	dropped := v.Exclude(marketplace.JobIDField, f.ids)
	if deps.Logger != nil && len(dropped) > 0 {
		deps.Logger.Debug("excluding listed jobs", zap.Strings("excluded_jobs", dropped))
	}
	return v, Step{Initial: initial, Dropped: len(dropped), Left: v.Len()}, nil
}

func (f *excludedFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: map[string]string{"excluded": strconv.Itoa(len(f.ids))}}
}

type employerFilter struct {
	toggle
	employerID string
}

// NewEmployer creates a filter that keeps jobs posted by a single employer.
func NewEmployer() Filter {
	return &employerFilter{}
}

func (f *employerFilter) Name() string { return "employer" }

func (f *employerFilter) Validate(q *Query) error {
	f.employerID = strings.TrimSpace(q.EmployerID)
	return nil
}

func (f *employerFilter) Apply(_ context.Context, _ Deps, v *marketplace.Jobs) (*marketplace.Jobs, Step, error) {
	if f.employerID == "" {
		return unchanged(v)
	}
	v, step, _ := keep(v, func(job *marketplace.Job) bool {
		return job.GetStringField(marketplace.JobEmployerIDField) == f.employerID
	})
	return v, step, nil
}

func (f *employerFilter) Status() Status {
	details := map[string]string{}
	if f.employerID != "" {
		details["employer_id"] = f.employerID
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}

type activeFilter struct {
	toggle
	activeOnly bool
}

// NewActive creates a filter that drops filled jobs when requested.
func NewActive() Filter {
	return &activeFilter{}
}

func (f *activeFilter) Name() string { return "active" }

func (f *activeFilter) Validate(q *Query) error {
	f.activeOnly = q.ActiveOnly
	return nil
}

func (f *activeFilter) Apply(_ context.Context, _ Deps, v *marketplace.Jobs) (*marketplace.Jobs, Step, error) {
	if !f.activeOnly {
		return unchanged(v)
	}
	v, step, _ := keep(v, func(job *marketplace.Job) bool { return !job.Filled })
	return v, step, nil
}

type urgentFilter struct {
	toggle
	urgentOnly bool
}

func NewUrgent() Filter {
	return &urgentFilter{}
}

func (f *urgentFilter) Name() string { return "urgent" }

func (f *urgentFilter) Validate(q *Query) error {
	f.urgentOnly = q.UrgentOnly
	return nil
}

func (f *urgentFilter) Apply(_ context.Context, _ Deps, v *marketplace.Jobs) (*marketplace.Jobs, Step, error) {
	if !f.urgentOnly {
		return unchanged(v)
	}
	v, step, _ := keep(v, func(job *marketplace.Job) bool { return job.Urgent })
	return v, step, nil
}

type categoryFilter struct {
	toggle
	category string
}

// NewCategory creates a filter matching the job category exactly, ignoring case.
func NewCategory() Filter {
	return &categoryFilter{}
}

func (f *categoryFilter) Name() string { return "category" }

func (f *categoryFilter) Validate(q *Query) error {
	f.category = normalize(q.Category)
	return nil
}

func (f *categoryFilter) Apply(_ context.Context, _ Deps, v *marketplace.Jobs) (*marketplace.Jobs, Step, error) {
	if f.category == "" {
		return unchanged(v)
	}
	v, step, _ := keep(v, func(job *marketplace.Job) bool {
		return strings.EqualFold(strings.TrimSpace(job.Category), f.category)
	})
	return v, step, nil
}

func (f *categoryFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: map[string]string{"category": f.category}}
}

type locationFilter struct {
	toggle
	location string
}

// NewLocation creates a filter matching the job location exactly, ignoring case.
func NewLocation() Filter {
	return &locationFilter{}
}

func (f *locationFilter) Name() string { return "location" }

func (f *locationFilter) Validate(q *Query) error {
	f.location = normalize(q.Location)
	return nil
}

func (f *locationFilter) Apply(_ context.Context, _ Deps, v *marketplace.Jobs) (*marketplace.Jobs, Step, error) {
	if f.location == "" {
		return unchanged(v)
	}
	v, step, _ := keep(v, func(job *marketplace.Job) bool {
		return strings.EqualFold(strings.TrimSpace(job.Location), f.location)
	})
	return v, step, nil
}

func (f *locationFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: map[string]string{"location": f.location}}
}

type textFilter struct {
	toggle
	text string
}

// NewText creates a filter matching free text against titles and required skills.
func NewText() Filter {
	return &textFilter{}
}

func (f *textFilter) Name() string { return "text" }

func (f *textFilter) Validate(q *Query) error {
	f.text = strings.ToLower(strings.TrimSpace(q.Text))
	return nil
}

func (f *textFilter) Apply(_ context.Context, _ Deps, v *marketplace.Jobs) (*marketplace.Jobs, Step, error) {
	if f.text == "" {
		return unchanged(v)
	}
	v, step, _ := keep(v, func(job *marketplace.Job) bool {
		if strings.Contains(strings.ToLower(job.Title), f.text) {
			return true
		}
		for _, skill := range job.RequiredSkills {
			if strings.Contains(strings.ToLower(skill), f.text) {
				return true
			}
		}
		return false
	})
	return v, step, nil
}

type minScoreFilter struct {
	toggle
	minScore int
	scores   map[string]int
}

// NewMinScore creates a filter that drops jobs scoring below the query threshold for the worker.
func NewMinScore() Filter {
	return &minScoreFilter{}
}

func (f *minScoreFilter) Name() string { return "min_score" }

func (f *minScoreFilter) Validate(q *Query) error {
	if q.MinScore < 0 || q.MinScore > matching.MaxScore {
		return fmt.Errorf("minimum score must be between 0 and %d, got %d", matching.MaxScore, q.MinScore)
	}
	f.minScore = q.MinScore
	return nil
}

func (f *minScoreFilter) Apply(ctx context.Context, deps Deps, v *marketplace.Jobs) (*marketplace.Jobs, Step, error) {
	if f.minScore == 0 {
		return unchanged(v)
	}
	if deps.Worker == nil {
		return v, Step{}, fmt.Errorf("worker profile is required for score filtering")
	}

	scorer := deps.Scorer
	if scorer == nil {
		scorer = matching.RuleScorer{}
	}

	f.scores = make(map[string]int, v.Len())
	var scoreErr error
	v, step, dropped := keep(v, func(job *marketplace.Job) bool {
		if scoreErr != nil {
			return false
		}
		score, err := scorer.Score(ctx, deps.Worker, job)
		if err != nil {
			scoreErr = fmt.Errorf("scoring job %s: %w", job.ID, err)
			return false
		}
		f.scores[job.ID] = score
		return score >= f.minScore
	})
	if scoreErr != nil {
		return v, Step{}, scoreErr
	}

	if deps.Logger != nil && len(dropped) > 0 {
		deps.Logger.Debug("excluding jobs below minimum score",
			zap.Int("minimum_score", f.minScore),
			zap.Strings("excluded_jobs", dropped),
		)
	}

	return v, step, nil
}

func (f *minScoreFilter) Scores() map[string]int {
	if f.scores == nil {
		return map[string]int{}
	}
	return f.scores
}

func (f *minScoreFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"minimum_score": strconv.Itoa(f.minScore)},
	}
}
