package cmd

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/joblink/internal/marketplace"
)

const (
	PromptMyJobs    = "My jobs"
	PromptPostJob   = "Post a job"
	PromptThisMonth = "This month"

	PromptMarkReviewed = "Mark reviewed"
	PromptAccept       = "Accept"
	PromptReject       = "Decline"
	PromptFill         = "Mark job filled"
	PromptArchive      = "Archive job"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Post jobs and review applicants as an employer",
	Run: func(cmd *cobra.Command, _ []string) {
		review(cmd)
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)

	reviewCmd.Flags().StringP("employer", "e", "", "employer profile id (prompted when empty)")
}

func review(cmd *cobra.Command) {
	ctx := context.Background()
	a, logger := prepareInteractive(ctx)
	defer a.close(ctx)

	employerID, _ := cmd.Flags().GetString("employer")
	employer, err := chooseProfile(ctx, a, marketplace.RoleEmployer, employerID)
	if err != nil {
		logger.Fatal("choosing an employer", zap.Error(err))
	}

	logger.Info("reviewing as employer", zap.String("name", employer.DisplayName), zap.String("employer_id", employer.ID))

	menu := promptui.Select{
		Label: "What next?",
		Items: []string{PromptMyJobs, PromptPostJob, PromptThisMonth, PromptNotifications, PromptExit},
	}

	for {
		_, action, err := menu.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if err := handleReviewAction(ctx, action, a, logger, employer); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Error("action failed", zap.String("action", action), zap.Error(err))
		}
	}
}

func handleReviewAction(ctx context.Context, action string, a *application, log *zap.Logger, employer *marketplace.Profile) error {
	switch action {
	case PromptMyJobs:
		return manageJobs(ctx, a, log, employer)
	case PromptPostJob:
		return postJob(ctx, a, log, employer)
	case PromptThisMonth:
		now := time.Now()
		summary, err := a.workflow.Summary(ctx, employer.ID, time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()))
		if err != nil {
			return err
		}
		log.Info("This Month",
			zap.Int("active_jobs", summary.ActiveJobs),
			zap.Int("applications", summary.Applications),
			zap.Int("hires_made", summary.Hires),
			zap.Int("total_hires", employer.TotalHires),
		)
		return nil
	case PromptNotifications:
		for _, n := range a.inbox.List(employer.ID) {
			log.Info(n.Title, zap.String("description", n.Description), zap.Time("at", n.At))
		}
		return nil
	case PromptExit:
		log.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func manageJobs(ctx context.Context, a *application, log *zap.Logger, employer *marketplace.Profile) error {
	for {
		seq, err := a.catalog.Owned(ctx, employer.ID)
		if err != nil {
			return err
		}
		jobs := slices.Collect(seq)
		if len(jobs) == 0 {
			log.Info("no jobs posted yet")
			return nil
		}

		items := make([]string, 0, len(jobs)+1)
		for _, job := range jobs {
			counts, err := a.workflow.CountForJob(ctx, job.ID)
			if err != nil {
				return err
			}
			items = append(items, fmt.Sprintf("%s / %d applications", jobLabel(job), counts.Total))
		}

		idx, selected, err := (&promptui.Select{
			Label: "Choose a job and press ENTER",
			Items: append(items, PromptBack),
			Size:  10,
		}).Run()
		if err != nil {
			return err
		}
		if selected == PromptBack {
			return nil
		}

		if err := manageApplicants(ctx, a, log, employer, jobs[idx]); err != nil {
			return err
		}
	}
}

func manageApplicants(ctx context.Context, a *application, log *zap.Logger, employer *marketplace.Profile, job *marketplace.Job) error {
	for {
		seq, err := a.workflow.ListForJob(ctx, job.ID)
		if err != nil {
			return err
		}
		apps := slices.Collect(seq)

		items := make([]string, 0, len(apps)+3)
		for _, app := range apps {
			name := app.WorkerID
			if worker, err := a.profiles.GetProfile(ctx, app.WorkerID); err == nil {
				name = profileLabel(worker)
			}
			items = append(items, fmt.Sprintf("[%s] %s", app.Status, name))
		}
		items = append(items, PromptFill, PromptArchive, PromptBack)

		idx, selected, err := (&promptui.Select{
			Label: fmt.Sprintf("Applicants for %s", job.Title),
			Items: items,
			Size:  10,
		}).Run()
		if err != nil {
			return err
		}

		switch selected {
		case PromptBack:
			return nil
		case PromptFill:
			if _, err := a.catalog.MarkFilled(ctx, job.ID, employer.ID); err != nil {
				log.Warn("cannot fill job", zap.Error(err))
			}
			continue
		case PromptArchive:
			if _, err := a.catalog.Archive(ctx, job.ID, employer.ID); err != nil {
				log.Warn("cannot archive job", zap.Error(err))
				continue
			}
			return nil
		}

		if err := decide(ctx, a, log, employer, apps[idx]); err != nil {
			return err
		}
	}
}

func decide(ctx context.Context, a *application, log *zap.Logger, employer *marketplace.Profile, app *marketplace.Application) error {
	_, action, err := (&promptui.Select{
		Label: "Decision",
		Items: []string{PromptMarkReviewed, PromptAccept, PromptReject, PromptBack},
	}).Run()
	if err != nil {
		return err
	}

	var updated *marketplace.Application
	switch action {
	case PromptBack:
		return nil
	case PromptMarkReviewed:
		updated, err = a.workflow.MarkReviewed(ctx, app.ID, employer.ID)
	case PromptAccept:
		updated, err = a.workflow.Decide(ctx, app.ID, employer.ID, marketplace.OutcomeAccept)
	case PromptReject:
		updated, err = a.workflow.Decide(ctx, app.ID, employer.ID, marketplace.OutcomeReject)
	}
	if err != nil {
		if marketplace.KindOf(err) == marketplace.KindService {
			return err
		}
		log.Warn("cannot update application", zap.Error(err))
		return nil
	}

	log.Info("application updated", zap.String("application_id", updated.ID), zap.String("status", string(updated.Status)))
	return nil
}

func postJob(ctx context.Context, a *application, log *zap.Logger, employer *marketplace.Profile) error {
	ask := func(label string, validate promptui.ValidateFunc) (string, error) {
		return (&promptui.Prompt{Label: label, Validate: validate}).Run()
	}
	required := func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New("required")
		}
		return nil
	}

	title, err := ask("Job title", required)
	if err != nil {
		return err
	}
	location, err := ask("Location", required)
	if err != nil {
		return err
	}
	wage, err := ask("Daily wage in naira", func(s string) error {
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil || n <= 0 {
			return errors.New("must be a positive whole number")
		}
		return nil
	})
	if err != nil {
		return err
	}
	category, err := ask("Category", nil)
	if err != nil {
		return err
	}
	skills, err := ask("Required skills (comma separated)", nil)
	if err != nil {
		return err
	}
	description, err := ask("Description", nil)
	if err != nil {
		return err
	}
	_, urgency, err := (&promptui.Select{Label: "Urgent?", Items: []string{PromptNo, PromptYes}}).Run()
	if err != nil {
		return err
	}

	amount, _ := strconv.ParseInt(strings.TrimSpace(wage), 10, 64)
	job, err := a.catalog.PostJob(ctx, employer.ID, marketplace.JobAttributes{
		Title:       title,
		Location:    location,
		Wage:        marketplace.Wage{Amount: amount * 100},
		Category:    category,
		Skills:      strings.Split(skills, ","),
		Urgent:      urgency == PromptYes,
		Description: description,
	})
	if err != nil {
		if marketplace.Is(err, marketplace.KindValidation) {
			log.Warn("job was not posted", zap.Error(err))
			return nil
		}
		return err
	}

	log.Info("Job Posted Successfully!", zap.String("job_id", job.ID), zap.String("title", job.Title))
	return nil
}
