package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"arps/internal/config"
	"arps/internal/logging"
	"arps/internal/oracle"
	"arps/internal/pipeline"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration

	// Loaded in PersistentPreRunE
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "arps",
	Short: "arps - Autonomous Renewal-Protection Pipeline",
	Long: `arps reads the evidence around an at-risk customer renewal and produces an
auditable remediation plan.

Three stages run in order against a reasoning oracle:
  1. Context Weaver: causal risk assessment from CRM, support and internal threads
  2. Resource Allocator: remediation actions ranked by ROI
  3. Policy Enforcer: checks the recommended action against the account's rules

Every oracle answer is validated and repaired locally; the run returns one
complete result or one error.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		return initLogging(cfg)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

// initLogging installs the CLI logger. --verbose switches to a zap production
// logger at debug level; otherwise the config's logging section decides.
func initLogging(c *config.Config) error {
	if !verbose {
		return logging.Initialize(c.LoggingConfig())
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	if c.Logging.File != "" {
		zc.OutputPaths = []string{c.Logging.File}
	}
	logger, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logging.Use(logger, c.Logging.Categories)
}

// newOrchestrator validates the config and builds the oracle-backed pipeline.
func newOrchestrator(ctx context.Context, c *config.Config) (*pipeline.Orchestrator, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	o, err := oracle.New(ctx, c.OracleConfig())
	if err != nil {
		return nil, err
	}
	logging.Boot("oracle %s ready (pro=%v, fail mode %s)", c.LLM.Provider, c.LLM.UsePro, c.Pipeline.PolicyFailMode)
	return pipeline.New(c.PipelineConfig(o)), nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Config file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Run timeout")

	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(solveCmd)
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if hint := errors.FlattenHints(err); hint != "" {
			fmt.Fprintln(os.Stderr, "hint:", hint)
		}
		os.Exit(1)
	}
}
