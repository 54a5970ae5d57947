package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Run: func(_ *cobra.Command, _ []string) {
		migrate()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func migrate() {
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
		logger.Fatal("database is not configured", zap.String("hint", "set database.url, JOBLINK_DATABASE_URL, DATABASE_URL or DATABASE_URL_FILE"))
	}

	if err := a.db.Migrate(ctx); err != nil {
		logger.Fatal("migrating", zap.Error(err))
	}
	logger.Info("schema is up to date")
}
