package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"webnerd/internal/config"
	"webnerd/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	headless   bool

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "webnerd",
	Short: "webNERD - autonomous web-navigation agent",
	Long: `webNERD drives a real Chrome instance toward a natural-language goal.

It compresses each page into a signed snapshot, asks an LLM planner for a
small batch of commands referencing page elements by candidate id, executes
them with structured evidence, and records the whole episode in a
persistent cognitive lattice so interrupted runs can resume.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if configPath == "" {
			configPath = config.DefaultConfigPath()
		}
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cmd.Flags().Changed("headless") {
			cfg.Browser.Headless = headless
		}
		if verbose {
			cfg.Logging.DebugMode = true
		}

		if err := logging.Initialize("."); err != nil {
			logger.Warn("file logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default .webnerd/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&headless, "headless", false, "run Chrome headless")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(browserCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(initCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
