package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/queueworks/forq"
	"github.com/queueworks/forq/engine"
	mw "github.com/queueworks/forq/middleware"
	"github.com/queueworks/forq/store"
	"github.com/queueworks/forq/store/memory"
	"github.com/queueworks/forq/store/postgres"
	"github.com/queueworks/forq/store/sqlite"

	goredis "github.com/redis/go-redis/v9"
	redisstore "github.com/queueworks/forq/store/redis"
)

var cfgPath string

// fileConfig is the on-disk configuration. Everything here is local
// process configuration; queue-wide settings (backoff_base,
// default_max_retries) live in the store and are managed with
// `forq config`.
type fileConfig struct {
	Driver       string        `yaml:"driver"`
	DSN          string        `yaml:"dsn"`
	PollInterval time.Duration `yaml:"poll_interval"`
	ShutdownWait time.Duration `yaml:"shutdown_wait"`
	LogLevel     string        `yaml:"log_level"`
	WorkerPIDs   string        `yaml:"worker_pids"`
}

func defaultFileConfig() fileConfig {
	cfg := forq.DefaultConfig()
	return fileConfig{
		Driver:       "sqlite",
		DSN:          "forq.db",
		PollInterval: cfg.PollInterval,
		ShutdownWait: cfg.ShutdownWait,
		LogLevel:     "info",
		WorkerPIDs:   ".forq-workers.json",
	}
}

// loadConfig reads the YAML config file. A missing file at the default
// path is fine; an explicitly given path must exist.
func loadConfig() (fileConfig, error) {
	cfg := defaultFileConfig()

	data, err := os.ReadFile(cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !rootCmd.PersistentFlags().Changed("config") {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", cfgPath, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", cfgPath, err)
	}
	return cfg, nil
}

func newLogger(cfg fileConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openStore builds the store named by the config and runs migrations.
func openStore(cmd *cobra.Command, cfg fileConfig, logger *slog.Logger) (store.Store, error) {
	ctx := cmd.Context()

	var (
		s   store.Store
		err error
	)
	switch cfg.Driver {
	case "sqlite", "":
		s, err = sqlite.New(cfg.DSN, sqlite.WithLogger(logger))
	case "postgres":
		s, err = postgres.New(ctx, cfg.DSN, postgres.WithLogger(logger))
	case "redis":
		opts, parseErr := goredis.ParseURL(cfg.DSN)
		if parseErr != nil {
			return nil, fmt.Errorf("parse redis dsn: %w", parseErr)
		}
		s = redisstore.New(goredis.NewClient(opts), redisstore.WithLogger(logger))
	case "memory":
		s = memory.New()
	default:
		return nil, fmt.Errorf("unknown driver %q (want sqlite, postgres, redis, or memory)", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := s.Migrate(ctx); err != nil {
		s.Close() //nolint:errcheck // already failing
		return nil, err
	}
	return s, nil
}

// buildEngine opens the store and assembles an engine around it. The
// caller must Close the returned store.
func buildEngine(cmd *cobra.Command, cfg fileConfig, logger *slog.Logger) (*engine.Engine, store.Store, error) {
	s, err := openStore(cmd, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	e, err := engine.New(s,
		engine.WithLogger(logger),
		engine.WithConfig(forq.Config{
			PollInterval: cfg.PollInterval,
			ShutdownWait: cfg.ShutdownWait,
		}),
		engine.WithMiddleware(mw.Recover(logger)),
		engine.WithMiddleware(mw.Logging(logger)),
		engine.WithMiddleware(mw.Tracing()),
		engine.WithMiddleware(mw.Metrics()),
	)
	if err != nil {
		s.Close() //nolint:errcheck // already failing
		return nil, nil, err
	}
	return e, s, nil
}

var rootCmd = &cobra.Command{
	Use:           "forq",
	Short:         "A crash-tolerant job queue backed by durable storage",
	Long: `forq runs shell commands as durable queued jobs. Jobs survive process
crashes, fail over between workers, retry with exponential backoff, and
land in a dead letter queue when their retry budget is spent.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	rootCmd.AddCommand(
		newEnqueueCmd(),
		newListCmd(),
		newStatusCmd(),
		newWorkerCmd(),
		newDLQCmd(),
		newConfigCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "forq.yaml", "path to the config file")
}
