package marketplace

import (
	"cmp"
	"fmt"
	"iter"
	"strings"
	"time"
)

// Status is the lifecycle state of an application.
type Status string

const (
	StatusPending  Status = "pending"
	StatusReviewed Status = "reviewed"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Outcome is the employer decision on an application.
type Outcome string

const (
	OutcomeAccept Outcome = "accept"
	OutcomeReject Outcome = "reject"
)

// ParseOutcome normalizes a decision name.
func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(strings.ToLower(strings.TrimSpace(s))) {
	case OutcomeAccept, Outcome(StatusAccepted):
		return OutcomeAccept, nil
	case OutcomeReject, Outcome(StatusRejected):
		return OutcomeReject, nil
	default:
		return "", NewValidationError("invalid decision", map[string]string{
			"outcome": fmt.Sprintf("unknown outcome %q, expected accept or reject", s),
		})
	}
}

// Status returns the terminal status the outcome leads to.
func (o Outcome) Status() Status {
	if o == OutcomeAccept {
		return StatusAccepted
	}
	return StatusRejected
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

var transitions = map[Status][]Status{
	StatusPending:  {StatusReviewed, StatusAccepted, StatusRejected},
	StatusReviewed: {StatusAccepted, StatusRejected},
}

// CanTransition reports whether the lifecycle allows moving from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Application struct {
	ID        string     `json:"id"`
	JobID     string     `json:"jobId"`
	WorkerID  string     `json:"workerId"`
	Status    Status     `json:"status"`
	AppliedAt time.Time  `json:"appliedAt"`
	DecidedAt *time.Time `json:"decidedAt,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}
	c := *a
	if a.DecidedAt != nil {
		at := *a.DecidedAt
		c.DecidedAt = &at
	}
	return &c
}

// Transition moves the application to the next status or returns a StateError.
func (a *Application) Transition(to Status, at time.Time) error {
	if !CanTransition(a.Status, to) {
		return NewStateError(fmt.Sprintf("application %s cannot move from %s to %s", a.ID, a.Status, to))
	}
	a.Status = to
	a.UpdatedAt = at
	if to.Terminal() {
		decided := at
		a.DecidedAt = &decided
	}
	return nil
}

// CompareApplied orders by applied timestamp descending, then id ascending.
func CompareApplied(a, b *Application) int {
	if c := b.AppliedAt.Compare(a.AppliedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Counts tallies applications per status. ByStatus always carries every status.
type Counts struct {
	Total    int            `json:"total"`
	ByStatus map[Status]int `json:"byStatus"`
}

func CountByStatus(apps iter.Seq[*Application]) Counts {
	c := Counts{ByStatus: map[Status]int{
		StatusPending:  0,
		StatusReviewed: 0,
		StatusAccepted: 0,
		StatusRejected: 0,
	}}
	for app := range apps {
		c.Total++
		c.ByStatus[app.Status]++
	}
	return c
}

// EmployerSummary is the activity of an employer. ActiveJobs reflects the
// current state; Applications and Hires only count events at or after Since.
type EmployerSummary struct {
	EmployerID   string     `json:"employerId"`
	Since        *time.Time `json:"since,omitempty"`
	ActiveJobs   int        `json:"activeJobs"`
	Applications int        `json:"applications"`
	Hires        int        `json:"hires"`
}
