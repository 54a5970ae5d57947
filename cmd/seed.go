package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/joblink/internal/marketplace"
	"github.com/spigell/joblink/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load sample profiles, jobs and applications",
	Run: func(_ *cobra.Command, _ []string) {
		runSeed()
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().StringP("file", "f", "", "fixture file (default is the built-in sample data)")
	viper.BindPFlag("seed.file", seedCmd.Flags().Lookup("file"))
}

func runSeed() {
	ctx := context.Background()
	logger := mustLogger()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	a, err := newApplication(ctx, config, logger)
	if err != nil {
		logger.Fatal("initializing", zap.Error(err))
	}
	defer a.close(ctx)

	if !a.persistent() {
		logger.Warn("database is not configured, seeded data is discarded on exit")
	}

	fixture, err := seed.Load(config.Seed.File)
	if err != nil {
		logger.Fatal("loading fixture", zap.Error(err))
	}

	seeder := &seed.Seeder{Profiles: a.profiles, Catalog: a.catalog, Workflow: a.workflow, Logger: logger.Named("seed")}
	res, err := seeder.Apply(ctx, fixture)
	if err != nil {
		logger.Fatal("seeding", zap.Error(err))
	}

	jobs := &marketplace.Jobs{}
	for _, job := range res.Jobs {
		jobs.Items = append(jobs.Items, job)
	}
	jobs.SortByRecent()

	// do not bother error since the report is plain strings
	pretty, _ := json.MarshalIndent(jobs.ReportByCategory(), "", "  ")
	logger.Info(fmt.Sprintf("seeded jobs by category: \n %s", pretty), zap.Int("jobs count", jobs.Len()))
}
