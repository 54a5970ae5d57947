package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/joblink/internal/catalog"
	"github.com/spigell/joblink/internal/logger"
	"github.com/spigell/joblink/internal/marketplace"
	"github.com/spigell/joblink/internal/matching"
)

const (
	PromptRecommended    = "Recommended jobs"
	PromptSearch         = "Search jobs"
	PromptReport         = "Report by category"
	PromptMyApplications = "My applications"
	PromptNotifications  = "Notifications"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse and apply for jobs as a worker",
	Run: func(cmd *cobra.Command, _ []string) {
		browse(cmd)
	},
}

func init() {
	rootCmd.AddCommand(browseCmd)

	browseCmd.Flags().StringP("worker", "w", "", "worker profile id (prompted when empty)")
}

func browse(cmd *cobra.Command) {
	ctx := context.Background()
	a, logger := prepareInteractive(ctx)
	defer a.close(ctx)

	workerID, _ := cmd.Flags().GetString("worker")
	worker, err := chooseProfile(ctx, a, marketplace.RoleWorker, workerID)
	if err != nil {
		logger.Fatal("choosing a worker", zap.Error(err))
	}

	logger.Info("browsing as worker", zap.String("name", worker.DisplayName), zap.String("worker_id", worker.ID))

	menu := promptui.Select{
		Label: "What next?",
		Items: []string{PromptRecommended, PromptSearch, PromptReport, PromptMyApplications, PromptNotifications, PromptExit},
	}

	for {
		_, action, err := menu.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if err := handleBrowseAction(ctx, action, a, logger, worker); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Error("action failed", zap.String("action", action), zap.Error(err))
		}
	}
}

func handleBrowseAction(ctx context.Context, action string, a *application, log *zap.Logger, worker *marketplace.Profile) error {
	switch action {
	case PromptRecommended:
		applied, err := appliedJobIDs(ctx, a, worker.ID)
		if err != nil {
			return err
		}
		ranked, err := a.catalog.Ranked(ctx, worker, catalog.Query{ActiveOnly: true, ExcludeIDs: applied})
		if err != nil {
			return err
		}
		return pickAndApply(ctx, a, log, worker, ranked)
	case PromptSearch:
		text, err := (&promptui.Prompt{Label: "Search by title or skill"}).Run()
		if err != nil {
			return err
		}
		applied, err := appliedJobIDs(ctx, a, worker.ID)
		if err != nil {
			return err
		}
		ranked, err := a.catalog.Ranked(ctx, worker, catalog.Query{Text: text, ActiveOnly: true, ExcludeIDs: applied})
		if err != nil {
			return err
		}
		return pickAndApply(ctx, a, log, worker, ranked)
	case PromptReport:
		jobs, err := a.catalog.Search(ctx, catalog.Query{})
		if err != nil {
			return err
		}
		all := &marketplace.Jobs{Items: slices.Collect(jobs)}
		pretty, _ := json.MarshalIndent(all.ReportByCategory(), "", "  ")
		log.Info(string(pretty), zap.Int("jobs count", all.Len()))
		return nil
	case PromptMyApplications:
		apps, err := a.workflow.ListForWorker(ctx, worker.ID)
		if err != nil {
			return err
		}
		counts := marketplace.CountByStatus(apps)
		log.Info("application history", zap.Int("total", counts.Total), zap.Any("by_status", counts.ByStatus))
		for app := range apps {
			title := app.JobID
			if job, err := a.catalog.Get(ctx, app.JobID); err == nil {
				title = job.Title
			}
			log.Info("application", zap.String("job", title), zap.String("status", string(app.Status)),
				zap.Time("applied_at", app.AppliedAt))
		}
		return nil
	case PromptNotifications:
		for _, n := range a.inbox.List(worker.ID) {
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

func pickAndApply(ctx context.Context, a *application, log *zap.Logger, worker *marketplace.Profile, ranked []matching.Ranked) error {
	for {
		if len(ranked) == 0 {
			log.Info("no open jobs match")
			return nil
		}

		items := make([]string, 0, len(ranked)+1)
		for _, r := range ranked {
			items = append(items, fmt.Sprintf("%3d%% %s", r.Score, jobLabel(r.Job)))
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

		job := ranked[idx].Job
		log.Info(job.Title, zap.String("description", job.Description), zap.Strings("skills", job.RequiredSkills))

		ok, err := confirmed()
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		app, err := a.workflow.Apply(ctx, job.ID, worker.ID)
		if err != nil {
			if marketplace.Is(err, marketplace.KindConflict) || marketplace.Is(err, marketplace.KindState) {
				log.Warn("cannot apply", zap.Error(err))
				continue
			}
			return err
		}

		log.Info("Application Submitted!", logger.ApplicationFields(app.ID, job.ID, worker.ID, string(app.Status))...)
		ranked = slices.Delete(ranked, idx, idx+1)
	}
}

func appliedJobIDs(ctx context.Context, a *application, workerID string) ([]string, error) {
	apps, err := a.workflow.ListForWorker(ctx, workerID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for app := range apps {
		ids = append(ids, app.JobID)
	}
	return ids, nil
}
