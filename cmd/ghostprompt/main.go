package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"ghostprompt/internal/config"
	"ghostprompt/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ghostprompt",
	Short: "ghostprompt - inline completion prompt builder",
	Long: `ghostprompt assembles the prompt sent to a code completion model.

It combines the text around the cursor with recently edited hunks,
snippets from similar open files and items from context providers,
all fitted into a fixed token budget.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		zc.OutputPaths = []string{"stderr"}
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		} else {
			zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.UseZap(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: <workspace>/.ghostprompt/config.yaml)")

	rootCmd.AddCommand(promptCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(usageCmd)
}

// loadConfig loads the config file and pins the workspace to an absolute
// path. The --workspace flag wins over the file and the environment.
func loadConfig() (*config.Config, error) {
	root := workspace
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root = wd
	}
	path := configPath
	if path == "" {
		path = filepath.Join(root, ".ghostprompt", "config.yaml")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if workspace != "" || cfg.Workspace == "" || cfg.Workspace == "." {
		cfg.Workspace = root
	}
	if cfg.Workspace, err = filepath.Abs(cfg.Workspace); err != nil {
		return nil, err
	}
	if err := logging.Initialize(cfg.LoggingSettings()); err != nil {
		return nil, err
	}
	if verbose {
		logging.SetLevel("debug")
	}
	logging.Get(logging.CategoryConfig).Debug("loaded config from %s (workspace %s)", path, cfg.Workspace)
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
