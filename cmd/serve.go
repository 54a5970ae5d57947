package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/joblink/internal/seed"
	"github.com/spigell/joblink/internal/server"
)

const closeTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Run: func(cmd *cobra.Command, _ []string) {
		serve(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Bool("seed", false, "load the sample fixture before serving (in-memory stores only)")
}

func serve(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := mustLogger()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the joblink api", zap.String("version", version))

	a, err := newApplication(ctx, config, logger)
	if err != nil {
		logger.Fatal("initializing", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		a.close(closeCtx)
	}()

	if withSeed, _ := cmd.Flags().GetBool("seed"); withSeed {
		if a.persistent() {
			logger.Warn("skipping seed", zap.String("reason", "seed flag applies to in-memory stores, use the seed command for postgres"))
		} else if err := seedStores(ctx, a, config.Seed.File); err != nil {
			logger.Fatal("seeding", zap.Error(err))
		}
	}

	opts := server.Options{
		Logger:         logger.Named("http"),
		RequestTimeout: config.Server.RequestTimeout,
		AllowOrigins:   config.Server.AllowOrigins,
		ApplyLimit:     config.RateLimit.ApplyLimit,
		ApplyWindow:    config.RateLimit.ApplyWindow,
	}
	if a.db != nil {
		opts.Health = a.db.Ping
	}

	srv := server.New(server.Services{
		Profiles: a.profiles,
		Catalog:  a.catalog,
		Workflow: a.workflow,
		Inbox:    a.inbox,
		Limiter:  a.limiter,
	}, opts)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, config.Server.Addr)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return
	}
	logger.Info("server stopped")
}

func seedStores(ctx context.Context, a *application, file string) error {
	fixture, err := seed.Load(file)
	if err != nil {
		return err
	}
	seeder := &seed.Seeder{
		Profiles: a.profiles,
		Catalog:  a.catalog,
		Workflow: a.workflow,
		Logger:   a.logger.Named("seed"),
	}
	_, err = seeder.Apply(ctx, fixture)
	return err
}
