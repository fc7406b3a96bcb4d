package main

import (
	"context"
	"fmt"

	"github.com/Sternrassler/timeline-collector/pkg/client"
	"github.com/Sternrassler/timeline-collector/pkg/collector"
	"github.com/Sternrassler/timeline-collector/pkg/config"
	"github.com/Sternrassler/timeline-collector/pkg/logging"
	"github.com/Sternrassler/timeline-collector/pkg/metrics"
	"github.com/Sternrassler/timeline-collector/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app holds what the subcommands share once PersistentPreRunE has run.
type app struct {
	configPath  string
	logLevel    string
	metricsAddr string

	cfg     *config.Config
	session *client.Client
	store   ratelimit.Store
	redis   *redis.Client
	logger  zerolog.Logger
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "timeline-collector",
		Short: "Collect posts from search results or user timelines",
		Long: `Collects posts from a rate-limited timeline provider and writes them to
stdout, one JSON object (or one text line) per post. Quota waits and 503
retries are handled transparently; a long collection simply pauses.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&a.metricsAddr, "metrics-addr", "", "Serve /metrics and /health on this address")

	rootCmd.AddCommand(newSearchCmd(a))
	rootCmd.AddCommand(newUserCmd(a))
	rootCmd.AddCommand(newQuotaCmd(a))

	return rootCmd, a
}

// run executes the command tree and releases what setup opened, also when a
// command fails.
func run(ctx context.Context, rootCmd *cobra.Command, a *app) (err error) {
	defer func() {
		if closeErr := a.close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close redis: %w", closeErr)
		}
	}()
	return rootCmd.ExecuteContext(ctx)
}

func (a *app) setup(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.metricsAddr != "" {
		cfg.Metrics.Addr = a.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logging.Setup(cfg.LoggingConfig())
	a.logger = logging.NewLogger(logging.ComponentCLI)

	session, err := client.New(cfg.ClientConfig())
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	a.session = session

	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Redis.Addr, err)
		}
		a.store = ratelimit.NewRedisStore(a.redis)
		a.logger.Info().Str("addr", cfg.Redis.Addr).Msg("Sharing quota state via Redis")
	}

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
				a.logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	return nil
}

func (a *app) close() error {
	if a.redis != nil {
		err := a.redis.Close()
		a.redis = nil
		return err
	}
	return nil
}

func (a *app) collectorConfig() collector.Config {
	cfg := a.cfg.CollectorConfig()
	cfg.Store = a.store
	return cfg
}
