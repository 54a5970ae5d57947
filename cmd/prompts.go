package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
	"go.uber.org/zap"

	"github.com/spigell/joblink/internal/marketplace"
	"github.com/spigell/joblink/internal/utils"
)

const (
	PromptYes  = "Yes"
	PromptNo   = "No"
	PromptBack = "back"
	PromptExit = "exit"
)

var errExit = errors.New("exit requested")

var confirm = promptui.Select{
	Label: "Procced?",
	Items: []string{PromptYes, PromptNo},
}

// prepareInteractive builds the stores for the interactive commands. In-memory
// stores start from the sample fixture so there is something to browse.
func prepareInteractive(ctx context.Context) (*application, *zap.Logger) {
	logger := mustLogger()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	a, err := newApplication(ctx, config, logger)
	if err != nil {
		logger.Fatal("initializing", zap.Error(err))
	}

	if !a.persistent() {
		if err := seedStores(ctx, a, config.Seed.File); err != nil {
			logger.Fatal("seeding in-memory stores", zap.Error(err))
		}
	}
	return a, logger
}

// chooseProfile returns the profile with id, or asks the user to pick one of the role.
func chooseProfile(ctx context.Context, a *application, role marketplace.Role, id string) (*marketplace.Profile, error) {
	if id != "" {
		p, err := a.profiles.GetProfile(ctx, id)
		if err != nil {
			return nil, err
		}
		if p.Role != role {
			return nil, fmt.Errorf("profile %s is not a %s", id, role)
		}
		return p, nil
	}

	list, err := a.profiles.List(ctx, role)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("there are no %s profiles, run the seed command first", role)
	}

	items := make([]string, 0, len(list))
	for _, p := range list {
		items = append(items, profileLabel(p))
	}

	idx, _, err := (&promptui.Select{
		Label: fmt.Sprintf("Choose a %s profile and press ENTER", role),
		Items: items,
		Size:  10,
	}).Run()
	if err != nil {
		return nil, err
	}
	return list[idx], nil
}

func profileLabel(p *marketplace.Profile) string {
	label := fmt.Sprintf("%s / %s / %.1f★", p.DisplayName, p.Location, p.Rating)
	if p.IsWorker() && p.Skills.Len() > 0 {
		label += " / " + strings.Join(p.Skills, ", ")
	}
	return label
}

func jobLabel(job *marketplace.Job) string {
	label := fmt.Sprintf("%s / %s / %s", job.Title, job.Location, wageLabel(job.Wage))
	if job.Urgent {
		label += " / urgent"
	}
	if job.Filled {
		label += " / filled"
	}
	if job.Archived {
		label += " / archived"
	}
	return label
}

func wageLabel(w marketplace.Wage) string {
	if w.Currency == marketplace.DefaultCurrency {
		return utils.FormatNaira(w.Amount) + "/day"
	}
	return w.String() + "/day"
}

func confirmed() (bool, error) {
	_, answer, err := confirm.Run()
	if err != nil {
		return false, err
	}
	return answer == PromptYes, nil
}
