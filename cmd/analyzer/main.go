package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/memdump-analysis/internal/service"
	"github.com/memdump-analysis/pkg/config"
	"github.com/memdump-analysis/pkg/telemetry"
	"github.com/memdump-analysis/pkg/utils"
	"github.com/memdump-analysis/pkg/version"
)

var (
	configPath string
	verbose    bool
)

// shutdownTimeout bounds the telemetry flush on exit.
const shutdownTimeout = 10 * time.Second

func binName() string {
	return filepath.Base(os.Args[0])
}

var rootCmd = &cobra.Command{
	Use:   "memdump-analyzer",
	Short: "A memory dump analysis service",
	Long: `memdump-analyzer is a background service analyzing the memory-infra dumps
of uploaded Chrome traces.

It polls the task table for traces whose capture completed, downloads each
trace from object storage, classifies its memory dumps, uploads the
reports and stores per-dump summaries and suggestions.`,
	SilenceUsage: true,
	RunE:         runService,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		version.Get().Print(cmd.OutOrStdout(), binName())
	},
}

func init() {
	bin := binName()
	rootCmd.Example = `  # Start service with config file
  ` + bin + ` -c /etc/memdump-analysis/config.yaml

  # Start with verbose output
  ` + bin + ` -c ./config.yaml -v

  # Export traces over OTLP
  OTEL_ENABLED=true OTEL_EXPORTER_OTLP_ENDPOINT=collector:4317 ` + bin + ` -c ./config.yaml`

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (defaults to ./config.yaml when present)")

	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the service logger from the log section of the config.
func newLogger(cfg *config.LogConfig) (utils.Logger, io.Closer, error) {
	level := utils.ParseLogLevel(cfg.Level)
	if verbose {
		level = utils.LevelDebug
	}
	format := utils.ParseLogFormat(cfg.Format)

	if cfg.OutputPath == "" {
		return utils.NewLogger(level, format, os.Stdout), nil, nil
	}

	return utils.NewRotatingFileLogger(level, format, cfg.OutputPath, utils.RotationConfig{
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
}

func runService(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, closer, err := newLogger(&cfg.Log)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}
	utils.SetGlobalLogger(logger)

	logger.Info("Starting memdump-analyzer service...")
	logger.Info("Version: %s", version.Get().Short())
	logger.Info("Analysis version: %s, profile: %s", cfg.Analysis.Version, cfg.Analysis.Profile)
	logger.Info("Max workers: %d", cfg.Scheduler.WorkerCount)
	if cfg.Database.Type == "sqlite" {
		logger.Info("Database: sqlite://%s", cfg.Database.Database)
	} else {
		logger.Info("Database: %s://%s:%d/%s", cfg.Database.Type, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	}
	logger.Info("Storage: %s", cfg.Storage.Type)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.FromConfig(cfg.Telemetry, version.Version))
	if err != nil {
		logger.Warn("Failed to initialize telemetry, tracing disabled: %v", err)
	} else if telemetry.Enabled() {
		tc := telemetry.GetConfig()
		logger.Info("OpenTelemetry tracing enabled (endpoint: %s, protocol: %s)", tc.Endpoint, tc.Protocol)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("Failed to flush telemetry: %v", err)
		}
	}()

	svc, err := service.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	if err := svc.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}

	if err := svc.Start(ctx); err != nil {
		svc.Stop()
		return fmt.Errorf("failed to start service: %w", err)
	}

	logger.Info("Service started, waiting for tasks...")

	<-ctx.Done()
	logger.Info("Received shutdown signal, stopping...")

	if err := svc.Stop(); err != nil {
		logger.Error("Error during shutdown: %v", err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
