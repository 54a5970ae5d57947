package filtering

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/joblink/internal/marketplace"
	"github.com/spigell/joblink/internal/matching"
)

// Wildcard matches any category or location.
const Wildcard = "all"

// Filter represents a single filtering step applied to jobs.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Validate(q *Query) error
	Apply(ctx context.Context, deps Deps, v *marketplace.Jobs) (*marketplace.Jobs, Step, error)
}

// Deps aggregates dependencies shared across all filtering steps.
type Deps struct {
	Logger *zap.Logger
	Scorer matching.Scorer
	Worker *marketplace.Profile
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Query holds the search criteria consumed by the filters. Empty fields match everything.
type Query struct {
	Text       string
	Category   string
	Location   string
	UrgentOnly bool
	ActiveOnly bool
	EmployerID string
	// ExcludeIDs drops jobs by id, e.g. the ones a worker already applied for.
	ExcludeIDs []string
	// MinScore drops jobs scored below it for Deps.Worker. Zero disables the step.
	MinScore int
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

// statusProvider is implemented by filters that can supply detailed status information.
type statusProvider interface {
	Status() Status
}

// Steps returns a fresh pipeline in the order the catalog applies it.
func Steps() []Filter {
	return []Filter{
		NewArchived(),
		NewExcluded(),
		NewEmployer(),
		NewActive(),
		NewUrgent(),
		NewCategory(),
		NewLocation(),
		NewText(),
		NewMinScore(),
	}
}

// DisableByName marks a filter with the provided name as disabled while keeping it in the list.
func DisableByName(steps []Filter, name, reason string) {
	for _, step := range steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

// Run executes the supplied filters sequentially, returning the remaining jobs
// and any scores computed along the way.
func Run(ctx context.Context, q *Query, deps Deps, steps []Filter, v *marketplace.Jobs) (*marketplace.Jobs, map[string]int, error) {
	if q == nil {
		q = &Query{}
	}

	for _, step := range steps {
		if !step.IsEnabled() {
			continue
		}
		if err := step.Validate(q); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", step.Name(), err)
		}
	}

	scores := make(map[string]int)
	for _, step := range steps {
		if !step.IsEnabled() {
			if deps.Logger != nil {
				deps.Logger.Debug("filter disabled", zap.String("name", step.Name()))
			}
			continue
		}

		next, info, err := step.Apply(ctx, deps, v)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		if deps.Logger != nil {
			deps.Logger.Debug("filter step",
				zap.String("name", step.Name()),
				zap.Int("initial", info.Initial),
				zap.Int("dropped", info.Dropped),
				zap.Int("left", info.Left),
			)
		}

		v = next

		if collector, ok := step.(interface {
			Scores() map[string]int
		}); ok {
			for id, score := range collector.Scores() {
				scores[id] = score
			}
		}
	}

	return v, scores, nil
}

// Describe returns status entries for the provided filters.
func Describe(steps []Filter) []Status {
	statuses := make([]Status, 0, len(steps))
	for _, step := range steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}
