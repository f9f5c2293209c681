package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medvoyage/content-service/config"
	"github.com/medvoyage/content-service/internal/kvstore"
	"github.com/medvoyage/content-service/internal/queue"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *zerolog.Logger

	store *kvstore.Redis
	q     *queue.Queue
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "content-service",
	Short: "Content Service CLI - Generation queue operations tool",
	Long: `A CLI tool for operating the content generation queue: submitting jobs
and keyword batches, draining queues with a local worker, inspecting statistics,
and running maintenance (reclaim, purge, replay).`,
	PersistentPreRunE: persistentPreRun,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml or ./config.yaml)")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
	}
}

// persistentPreRun runs before each command and initializes dependencies
func persistentPreRun(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Name() == "completion" {
		return nil
	}

	logger = initLogger()

	if cfg == nil {
		return fmt.Errorf("config required for %s command but not loaded", cmd.Name())
	}
	if err := initQueue(cmd.Context()); err != nil {
		return fmt.Errorf("queue initialization failed: %w", err)
	}
	return nil
}

func initLogger() *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	if cfg != nil && cfg.Logging.Level != "" {
		if parsedLevel, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
			level = parsedLevel
		}
	}

	// Always use console format for CLI
	var output io.Writer
	if cfg != nil && cfg.Logging.Format == "json" {
		output = os.Stdout
	} else {
		noColor := false
		if cfg != nil {
			noColor = cfg.Logging.NoColor
		}
		output = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: noColor}
	}

	log := zerolog.New(output).Level(level).With().Timestamp().Logger()
	return &log
}

func initQueue(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var err error
	store, err = kvstore.NewRedis(ctx, kvstore.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to queue store at %s: %w", cfg.Redis.Addr, err)
	}

	policy := queue.DefaultPolicy()
	if cfg.Queue.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Queue.MaxAttempts
	}
	if cfg.Queue.InitialDelay > 0 {
		policy.InitialDelay = cfg.Queue.InitialDelay
	}
	if cfg.Queue.BackoffMultiplier > 1 {
		policy.BackoffMultiplier = cfg.Queue.BackoffMultiplier
	}
	if cfg.Queue.MaxDelay > 0 {
		policy.MaxDelay = cfg.Queue.MaxDelay
	}
	if cfg.Queue.ProcessingTimeout > 0 {
		policy.ProcessingTimeout = cfg.Queue.ProcessingTimeout
	}
	q = queue.New(store, policy, logger)
	return nil
}

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
