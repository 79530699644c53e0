package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/config"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/logging"
)

var (
	configPath string
	logLevel   string
	dataDir    string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "feedmap <command>",
	Short:         "Infer a relational schema from a JSON real-estate feed",
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `feedmap crawls a JSON feed, infers per-endpoint schemas and entity
relationships, and writes a consolidated report with table and index
recommendations.

Examples:

  feedmap run https://example.com/api/complexes
  feedmap discover https://example.com/api/complexes --max-pages 10
  feedmap analyze dump/complexes.json dump/blocks.json
  feedmap migrate
`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath, Version)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.LogLevel = logLevel
		}
		if dataDir != "" {
			loaded.Storage.Dir = dataDir
		}

		l, err := logging.NewLogger(loaded.Env, loaded.LogLevel)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}

		cfg = loaded
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath, "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "artifact directory override for the file storage backend")

	rootCmd.Version = Version

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(migrateCmd)
}
