// Package notify fans domain events out to listeners without blocking the
// operation that produced them.
package notify

import (
	"fmt"
	"time"

	"github.com/spigell/joblink/internal/marketplace"
)

const (
	KindJobPosted           = "job_posted"
	KindApplicationReceived = "application_received"
	KindApplicationDecided  = "application_decided"
)

// Event is one of JobPosted, ApplicationReceived or ApplicationDecided.
type Event interface {
	Kind() string
	OccurredAt() time.Time
	// Notifications renders the user-facing messages, one per recipient.
	Notifications() []Notification

	sealed()
}

// Notification is a message addressed to a single profile.
type Notification struct {
	Recipient   string    `json:"recipient"`
	Kind        string    `json:"kind"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	JobID       string    `json:"jobId,omitempty"`
	At          time.Time `json:"at"`
}

type JobPosted struct {
	JobID      string
	EmployerID string
	Title      string
	At         time.Time
}

func (e JobPosted) Kind() string          { return KindJobPosted }
func (e JobPosted) OccurredAt() time.Time { return e.At }
func (JobPosted) sealed()                 {}

func (e JobPosted) Notifications() []Notification {
	return []Notification{{
		Recipient:   e.EmployerID,
		Kind:        e.Kind(),
		Title:       "Job Posted Successfully!",
		Description: "Your job listing is now live and workers can start applying.",
		JobID:       e.JobID,
		At:          e.At,
	}}
}

type ApplicationReceived struct {
	ApplicationID string
	JobID         string
	JobTitle      string
	WorkerID      string
	WorkerName    string
	EmployerID    string
	At            time.Time
}

func (e ApplicationReceived) Kind() string          { return KindApplicationReceived }
func (e ApplicationReceived) OccurredAt() time.Time { return e.At }
func (ApplicationReceived) sealed()                 {}

func (e ApplicationReceived) Notifications() []Notification {
	return []Notification{
		{
			Recipient:   e.WorkerID,
			Kind:        e.Kind(),
			Title:       "Application Submitted!",
			Description: fmt.Sprintf("Your application for %s has been sent to the employer.", e.JobTitle),
			JobID:       e.JobID,
			At:          e.At,
		},
		{
			Recipient:   e.EmployerID,
			Kind:        e.Kind(),
			Title:       "New Applicant",
			Description: fmt.Sprintf("%s applied for %s.", nameOr(e.WorkerName, "A worker"), e.JobTitle),
			JobID:       e.JobID,
			At:          e.At,
		},
	}
}

type ApplicationDecided struct {
	ApplicationID string
	JobID         string
	JobTitle      string
	WorkerID      string
	WorkerName    string
	EmployerID    string
	Status        marketplace.Status
	At            time.Time
}

func (e ApplicationDecided) Kind() string          { return KindApplicationDecided }
func (e ApplicationDecided) OccurredAt() time.Time { return e.At }
func (ApplicationDecided) sealed()                 {}

func (e ApplicationDecided) Notifications() []Notification {
	name := nameOr(e.WorkerName, "The applicant")
	worker := Notification{Recipient: e.WorkerID, Kind: e.Kind(), JobID: e.JobID, At: e.At}
	employer := Notification{Recipient: e.EmployerID, Kind: e.Kind(), JobID: e.JobID, At: e.At}

	if e.Status == marketplace.StatusAccepted {
		worker.Title = "Application Accepted!"
		worker.Description = fmt.Sprintf("You have been hired for %s.", e.JobTitle)
		employer.Title = "Applicant Accepted!"
		employer.Description = fmt.Sprintf("%s has been notified and the job has been filled.", name)
	} else {
		worker.Title = "Application Declined"
		worker.Description = fmt.Sprintf("Your application for %s was not successful.", e.JobTitle)
		employer.Title = "Applicant Declined"
		employer.Description = fmt.Sprintf("%s has been notified of your decision.", name)
	}

	return []Notification{worker, employer}
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
