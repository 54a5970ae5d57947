package cmd

import (
	"errors"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "joblink"
)

type Config struct {
	Server    *ServerConfig    `mapstructure:"server"`
	Database  *DatabaseConfig  `mapstructure:"database"`
	Redis     *RedisConfig     `mapstructure:"redis"`
	Matching  *MatchingConfig  `mapstructure:"matching"`
	Notify    *NotifyConfig    `mapstructure:"notify"`
	RateLimit *RateLimitConfig `mapstructure:"ratelimit"`
	Seed      *SeedConfig      `mapstructure:"seed"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	RequestTimeout time.Duration `mapstructure:"request-timeout"`
	AllowOrigins   []string      `mapstructure:"allow-origins"`
}

// DatabaseConfig selects Postgres persistence. An empty URL keeps everything in memory.
type DatabaseConfig struct {
	URL     string `mapstructure:"url"`
	URLFile string `mapstructure:"url-file"`
}

type RedisConfig struct {
	Addr         string `mapstructure:"addr"`
	Password     string `mapstructure:"password"`
	PasswordFile string `mapstructure:"password-file"`
	DB           int    `mapstructure:"db"`
}

type MatchingConfig struct {
	Provider    string        `mapstructure:"provider"`
	Concurrency int           `mapstructure:"concurrency"`
	Gemini      *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type NotifyConfig struct {
	QueueSize    int            `mapstructure:"queue-size"`
	InboxSize    int            `mapstructure:"inbox-size"`
	RedisChannel string         `mapstructure:"redis-channel"`
	Webhook      *WebhookConfig `mapstructure:"webhook"`
}

type WebhookConfig struct {
	URL       string `mapstructure:"url"`
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"token-file"`
}

type RateLimitConfig struct {
	ApplyLimit  int           `mapstructure:"apply-limit"`
	ApplyWindow time.Duration `mapstructure:"apply-window"`
}

type SeedConfig struct {
	File string `mapstructure:"file"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "joblink matches casual workers with short-term jobs and runs the hiring workflow",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is joblink.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults(viper.GetViper())

	viper.SetEnvPrefix(strings.ToUpper(app))
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindings := [][]string{
		{"database.url-file", "JOBLINK_DATABASE_URL_FILE", "DATABASE_URL_FILE"},
		{"matching.gemini.api-key-file", "JOBLINK_MATCHING_GEMINI_API_KEY_FILE", "GEMINI_API_KEY_FILE"},
	}
	for _, b := range bindings {
		if err := viper.BindEnv(b...); err != nil {
			log.Fatalf("binding %s environment variable: %v", b[2], err)
		}
	}
}

// setDefaults registers every key so AutomaticEnv can override it on Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.request-timeout", 10*time.Second)
	v.SetDefault("server.allow-origins", []string{})

	v.SetDefault("database.url", "")
	v.SetDefault("database.url-file", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.password-file", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("matching.provider", "rules")
	v.SetDefault("matching.concurrency", 4)
	v.SetDefault("matching.gemini.api-key", "")
	v.SetDefault("matching.gemini.api-key-file", "")
	v.SetDefault("matching.gemini.model", "gemini-2.5-flash")
	v.SetDefault("matching.gemini.max-retries", 3)
	v.SetDefault("matching.gemini.max-log-length", 512)

	v.SetDefault("notify.queue-size", 256)
	v.SetDefault("notify.inbox-size", 50)
	v.SetDefault("notify.redis-channel", "joblink:notifications")
	v.SetDefault("notify.webhook.url", "")
	v.SetDefault("notify.webhook.token", "")
	v.SetDefault("notify.webhook.token-file", "")

	v.SetDefault("ratelimit.apply-limit", 3)
	v.SetDefault("ratelimit.apply-window", time.Minute)

	v.SetDefault("seed.file", "")
}

func initConfig() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// The config file is optional; defaults and environment cover a local run.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
