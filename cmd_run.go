package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/logging"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/storage"
)

var (
	runFlags     discoverFlags
	runFailEmpty bool
	runDDL       bool
)

var runCmd = &cobra.Command{
	Use:   "run <url>",
	Short: "Discover endpoints, infer schemas and write the report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		primaryURL := args[0]

		store, closeStore, err := storage.New(ctx, cfg, "", logger)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		defer closeStore()

		pipeline, err := newPipeline(cfg, store, logger)
		if err != nil {
			return err
		}

		result, err := pipeline.Run(ctx, primaryURL, discoveryOptions(cfg, runFlags))
		if result != nil && result.Manifest != nil {
			printSummary(cmd.OutOrStdout(), result)
			if runDDL {
				printDDL(cmd.OutOrStdout(), result.Report)
			}
		}
		if err != nil {
			return err
		}
		if runFailEmpty {
			return requireEntities(logging.SanitizeURL(primaryURL), result)
		}
		return nil
	},
}

func addDiscoverFlags(cmd *cobra.Command, flags *discoverFlags) {
	cmd.Flags().IntVar(&flags.maxPages, "max-pages", 0, "maximum pages to fetch including the first (0 uses config)")
	cmd.Flags().BoolVar(&flags.noProbe, "no-probe", false, "skip sub-resource probing")
	cmd.Flags().BoolVar(&flags.noRegion, "no-region", false, "skip region filter detection")
}

func init() {
	addDiscoverFlags(runCmd, &runFlags)
	runCmd.Flags().BoolVar(&runDDL, "ddl", false, "print the suggested PostgreSQL DDL")
	runCmd.Flags().BoolVar(&runFailEmpty, "fail-empty", false, "exit non-zero when no entities are detected")
}
