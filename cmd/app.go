package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/joblink/internal/catalog"
	"github.com/spigell/joblink/internal/logger"
	"github.com/spigell/joblink/internal/matching"
	"github.com/spigell/joblink/internal/matching/gemini"
	"github.com/spigell/joblink/internal/notify"
	"github.com/spigell/joblink/internal/profiles"
	"github.com/spigell/joblink/internal/ratelimit"
	"github.com/spigell/joblink/internal/secrets"
	"github.com/spigell/joblink/internal/storage/postgres"
	"github.com/spigell/joblink/internal/workflow"
)

// application holds the wired stores shared by the subcommands.
type application struct {
	config *Config
	logger *zap.Logger

	db    *postgres.DB
	redis *redis.Client

	dispatcher *notify.Dispatcher
	inbox      *notify.Inbox
	limiter    ratelimit.Limiter

	profiles *profiles.Store
	catalog  *catalog.Catalog
	workflow *workflow.Workflow
}

// mustLogger builds the logger the way every subcommand expects.
func mustLogger() *zap.Logger {
	l, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	return l
}

func newApplication(ctx context.Context, config *Config, log *zap.Logger) (*application, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	a := &application{config: config, logger: log}

	if err := a.connectDatabase(ctx); err != nil {
		return nil, err
	}
	if err := a.connectRedis(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}

	scorer, err := newScorer(ctx, config.Matching, log)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("building scorer: %w", err)
	}
	ranker := matching.NewRanker(scorer, config.Matching.Concurrency, log.Named("matching"))

	listeners, err := a.listeners()
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.dispatcher = notify.NewDispatcher(config.Notify.QueueSize, log.Named("notify"), listeners...)

	var (
		profileRepo profiles.Repository
		jobRepo     catalog.Repository
		appRepo     workflow.Repository
	)
	if a.db != nil {
		profileRepo, jobRepo, appRepo = a.db.Profiles(), a.db.Jobs(), a.db.Applications()
	}

	a.profiles = profiles.New(profileRepo, log.Named("profiles"))
	a.catalog = catalog.New(jobRepo, catalog.Options{
		Logger:    log.Named("catalog"),
		Directory: a.profiles,
		Notifier:  a.dispatcher,
		Ranker:    ranker,
	})
	a.workflow = workflow.New(appRepo, a.catalog, workflow.Options{
		Logger:   log.Named("workflow"),
		Notifier: a.dispatcher,
		Profiles: a.profiles,
	})

	if a.redis != nil {
		a.limiter = ratelimit.NewRedis(a.redis, "", log.Named("ratelimit"))
	} else {
		a.limiter = ratelimit.NewMemory()
	}

	return a, nil
}

func (a *application) persistent() bool {
	return a.db != nil
}

func (a *application) connectDatabase(ctx context.Context) error {
	url, err := secrets.Load(secrets.Source{
		Name:     "database url",
		Value:    a.config.Database.URL,
		Env:      "DATABASE_URL",
		File:     a.config.Database.URLFile,
		Optional: true,
	})
	if err != nil {
		return fmt.Errorf("%w (set database.url-file or DATABASE_URL_FILE)", err)
	}
	if url == "" {
		a.logger.Info("no database configured, using in-memory stores")
		return nil
	}

	db, err := postgres.Connect(ctx, url)
	if err != nil {
		return err
	}
	a.db = db
	a.logger.Info("connected to postgres")
	return nil
}

func (a *application) connectRedis(ctx context.Context) error {
	cfg := a.config.Redis
	if cfg == nil || strings.TrimSpace(cfg.Addr) == "" {
		return nil
	}

	password, err := secrets.Load(secrets.Source{
		Name:     "redis password",
		Value:    cfg.Password,
		File:     cfg.PasswordFile,
		Optional: true,
	})
	if err != nil {
		return err
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: password, DB: cfg.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("connecting to redis %s: %w", cfg.Addr, err)
	}
	a.redis = client
	a.logger.Info("connected to redis", zap.String("addr", cfg.Addr))
	return nil
}

func (a *application) listeners() ([]notify.Listener, error) {
	cfg := a.config.Notify
	a.inbox = notify.NewInbox(cfg.InboxSize)

	listeners := []notify.Listener{
		notify.NewLogListener(a.logger.Named("notify")),
		a.inbox,
	}

	if a.redis != nil && cfg.RedisChannel != "" {
		listeners = append(listeners, notify.NewRedisPublisher(a.redis, cfg.RedisChannel))
	}

	if hook := cfg.Webhook; hook != nil && hook.URL != "" {
		token, err := secrets.Load(secrets.Source{
			Name:     "webhook token",
			Value:    hook.Token,
			File:     hook.TokenFile,
			Optional: true,
		})
		if err != nil {
			return nil, err
		}
		listeners = append(listeners, notify.NewWebhook(hook.URL, token, a.logger.Named("webhook")))
	}

	return listeners, nil
}

func newScorer(ctx context.Context, cfg *MatchingConfig, log *zap.Logger) (matching.Scorer, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	switch provider {
	case "", "rules":
		return matching.RuleScorer{}, nil
	case "gemini":
	default:
		return nil, fmt.Errorf("unsupported matching provider: %s", cfg.Provider)
	}

	if cfg.Gemini == nil {
		return nil, errors.New("gemini configuration is required when matching.provider is gemini")
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.Gemini.APIKey,
		Env:   "GEMINI_API_KEY",
		File:  cfg.Gemini.APIKeyFile,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set matching.gemini.api-key-file, GEMINI_API_KEY_FILE or GEMINI_API_KEY)", err)
	}

	genLogger := log.With(zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries))
	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, cfg.Gemini.MaxRetries, genLogger)
	if err != nil {
		return nil, err
	}

	return gemini.NewScorer(generator, matching.RuleScorer{}, cfg.Gemini.MaxLogLength,
		logger.WithCommonFields(log, "gemini", generator.Model())), nil
}

// close drains pending notifications and releases connections.
func (a *application) close(ctx context.Context) {
	if a.dispatcher != nil {
		if err := a.dispatcher.Close(ctx); err != nil {
			a.logger.Warn("draining notifications", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("closing redis", zap.Error(err))
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	_ = a.logger.Sync()
}
