// Package cmd provides the codesearch CLI commands: sync, batch, search,
// purge, and stats over the internal/pipeline orchestrator. Grounded on
// Aman-CERP-amanmcp's cmd/amanmcp/cmd package shape (one file per
// subcommand, a shared root.go wiring persistent flags and ambient
// telemetry setup via PersistentPreRunE/PersistentPostRunE).
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jamaly87/codebase-semantic-search/internal/config"
	"github.com/jamaly87/codebase-semantic-search/internal/metrics"
	"github.com/jamaly87/codebase-semantic-search/internal/pipeline"
	"github.com/jamaly87/codebase-semantic-search/internal/telemetry"
)

var (
	appCfg       *config.AppConfig
	logger       *telemetry.Logger
	metricsReg   *metrics.Registry
	flushSentry  func()
	logFile      *telemetry.RotatingFile
	cancelLogger context.CancelFunc

	configName      string
	backendOverride string
)

// NewRootCmd builds the codesearch root command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "codesearch",
		Short: "Semantic code search: chunk, embed, and query a repository",
		Long: `codesearch indexes a repository into chunks, contextualises and embeds
them, and stores them in a pluggable vector store for hybrid semantic search.

Run 'codesearch sync' in a repository to index it, then 'codesearch search
<query>' to find code by meaning rather than exact keyword match.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupTelemetry()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			teardownTelemetry()
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configName, "config-name", "", "named config to use from .vectorconfig.json (default: first entry)")
	root.PersistentFlags().StringVar(&backendOverride, "backend", "", "override the resolved vector-store backend: sql|managed")

	root.AddCommand(newSyncCmd())
	root.AddCommand(newBatchCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newPurgeCmd())
	root.AddCommand(newStatsCmd())

	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func setupTelemetry() error {
	cfg, err := config.LoadAppConfig()
	if err != nil {
		return fmt.Errorf("load app config: %w", err)
	}
	appCfg = cfg

	logOutput := io.Writer(os.Stdout)
	if cfg.Logging.Directory != "" {
		var logCtx context.Context
		logCtx, cancelLogger = context.WithCancel(context.Background())
		rotating, err := telemetry.NewRotatingFile(logCtx, telemetry.RotateConfig{
			Directory:  cfg.Logging.Directory,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		})
		if err != nil {
			cancelLogger()
			return fmt.Errorf("open log file: %w", err)
		}
		logFile = rotating
		logOutput = io.MultiWriter(os.Stdout, rotating)
	}

	logger = telemetry.NewLogger(telemetry.LoggerConfig{
		Level:         cfg.Logging.Level,
		Format:        cfg.Logging.Format,
		Output:        logOutput,
		SentryEnabled: cfg.Telemetry.SentryDSN != "",
	})

	flush, err := telemetry.InitSentry(cfg.Telemetry.SentryDSN, "codesearch-cli")
	if err != nil {
		return fmt.Errorf("init sentry: %w", err)
	}
	flushSentry = flush

	metricsReg = metrics.New(prometheus.NewRegistry())
	return nil
}

func teardownTelemetry() {
	if flushSentry != nil {
		flushSentry()
	}
	if logFile != nil {
		logFile.Close()
	}
	if cancelLogger != nil {
		cancelLogger()
	}
}

// resolveRepoPath returns args[0] if given, else the current directory.
func resolveRepoPath(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	return os.Getwd()
}

func stateDir() (string, error) {
	if appCfg != nil && appCfg.StateDir != "" {
		return appCfg.StateDir, nil
	}
	return config.StateDir()
}

func applyBackendOverride(cfg *config.VectorStoreConfig) {
	if backendOverride != "" {
		cfg.Backend = config.Backend(backendOverride)
	}
}

func withContext() (context.Context, context.CancelFunc) {
	return context.WithCancel(context.Background())
}

// buildOrchestrator resolves repoPath's config (honouring --config-name and
// --backend), then constructs an Orchestrator for a single CLI invocation.
func buildOrchestrator(ctx context.Context, repoPath string) (*pipeline.Orchestrator, error) {
	cfg, err := config.LoadRepositoryConfig(repoPath, configName)
	if err != nil {
		return nil, fmt.Errorf("load repository config: %w", err)
	}
	applyBackendOverride(&cfg)

	dir, err := stateDir()
	if err != nil {
		return nil, fmt.Errorf("resolve state directory: %w", err)
	}

	return pipeline.New(ctx, repoPath, dir, &cfg, metricsReg)
}
