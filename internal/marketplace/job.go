package marketplace

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	JobIDField         = "ID"
	JobEmployerIDField = "EmployerID"

	DefaultCurrency = "NGN"
)

// Wage is an amount in minor currency units.
type Wage struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (w Wage) String() string {
	return fmt.Sprintf("%d.%02d %s", w.Amount/100, w.Amount%100, w.Currency)
}

type Job struct {
	ID             string     `json:"id"`
	EmployerID     string     `json:"employerId"`
	Title          string     `json:"title"`
	Location       string     `json:"location"`
	Wage           Wage       `json:"wage"`
	Category       string     `json:"category"`
	RequiredSkills SkillSet   `json:"requiredSkills"`
	Urgent         bool       `json:"urgent"`
	Description    string     `json:"description"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	Filled         bool       `json:"filled"`
	FilledAt       *time.Time `json:"filledAt,omitempty"`
	Archived       bool       `json:"archived"`
}

func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.RequiredSkills = j.RequiredSkills.Clone()
	if j.FilledAt != nil {
		at := *j.FilledAt
		c.FilledAt = &at
	}
	return &c
}

// AcceptsApplications reports whether workers can still apply.
func (j *Job) AcceptsApplications() bool {
	return j != nil && !j.Filled && !j.Archived
}

func (j *Job) GetStringField(name string) string {
	switch name {
	case JobIDField:
		return j.ID
	case JobEmployerIDField:
		return j.EmployerID
	default:
		return ""
	}
}

// JobAttributes is the employer-supplied part of a posting.
type JobAttributes struct {
	Title       string
	Location    string
	Wage        Wage
	Category    string
	Skills      []string
	Urgent      bool
	Description string
}

// Validate checks the posting invariants and reports every bad field.
func (a *JobAttributes) Validate() error {
	fields := map[string]string{}
	if strings.TrimSpace(a.Title) == "" {
		fields["title"] = "title is required"
	}
	if strings.TrimSpace(a.Location) == "" {
		fields["location"] = "location is required"
	}
	if a.Wage.Amount <= 0 {
		fields["wage"] = "wage must be greater than zero"
	}
	if c := strings.TrimSpace(a.Wage.Currency); c != "" && len(c) != 3 {
		fields["currency"] = "currency must be a 3-letter ISO code"
	}
	if len(fields) > 0 {
		return NewValidationError("invalid job posting", fields)
	}
	return nil
}

// Apply copies normalized attributes onto the job.
func (a *JobAttributes) Apply(j *Job) {
	j.Title = strings.TrimSpace(a.Title)
	j.Location = strings.TrimSpace(a.Location)
	j.Wage = Wage{Amount: a.Wage.Amount, Currency: strings.ToUpper(strings.TrimSpace(a.Wage.Currency))}
	if j.Wage.Currency == "" {
		j.Wage.Currency = DefaultCurrency
	}
	j.Category = strings.TrimSpace(a.Category)
	j.RequiredSkills = NewSkillSet(a.Skills...)
	j.Urgent = a.Urgent
	j.Description = strings.TrimSpace(a.Description)
}

// Jobs is a working set of postings passed through the filtering steps.
type Jobs struct {
	Items []*Job
}

func (v *Jobs) Len() int {
	return len(v.Items)
}

func (v *Jobs) IDs() []string {
	ids := make([]string, 0, len(v.Items))
	for _, job := range v.Items {
		ids = append(ids, job.ID)
	}
	return ids
}

// Keep retains the jobs accepted by keep and returns the ids of the dropped ones.
// Order is preserved.
func (v *Jobs) Keep(keep func(*Job) bool) []string {
	var dropped []string
	kept := v.Items[:0]
	for _, job := range v.Items {
		if keep(job) {
			kept = append(kept, job)
			continue
		}
		dropped = append(dropped, job.ID)
	}
	clear(v.Items[len(kept):])
	v.Items = kept
	return dropped
}

// Exclude removes jobs whose field matches one of targets.
func (v *Jobs) Exclude(name string, targets []string) []string {
	if len(targets) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		set[t] = struct{}{}
	}
	return v.Keep(func(job *Job) bool {
		_, found := set[job.GetStringField(name)]
		return !found
	})
}

// SortByRecent orders jobs newest first, ties broken by id ascending.
func (v *Jobs) SortByRecent() {
	slices.SortStableFunc(v.Items, CompareRecent)
}

// CompareRecent orders by creation time descending, then id ascending.
func CompareRecent(a, b *Job) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// ReportByCategory groups job summaries by category for CLI reports.
func (v *Jobs) ReportByCategory() map[string][]map[string]string {
	report := make(map[string][]map[string]string)
	for _, job := range v.Items {
		key := job.Category
		if key == "" {
			key = "uncategorized"
		}
		report[key] = append(report[key], map[string]string{
			"id":       job.ID,
			"title":    job.Title,
			"location": job.Location,
			"wage":     job.Wage.String(),
			"urgent":   fmt.Sprintf("%t", job.Urgent),
			"filled":   fmt.Sprintf("%t", job.Filled),
		})
	}
	return report
}
