package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/storage"
)

var (
	analyzeFailEmpty bool
	analyzeDDL       bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>...",
	Short: "Infer schemas and the report from local JSON files",
	Long: `Runs schema inference over previously downloaded payloads without any
network access. The first file is treated as the primary endpoint.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, closeStore, err := storage.New(ctx, cfg, "", logger)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		defer closeStore()

		pipeline, err := newPipeline(cfg, store, logger)
		if err != nil {
			return err
		}

		result, err := pipeline.AnalyzeFiles(ctx, args)
		if result != nil {
			printSummary(cmd.OutOrStdout(), result)
			if analyzeDDL {
				printDDL(cmd.OutOrStdout(), result.Report)
			}
		}
		if err != nil {
			return err
		}
		if analyzeFailEmpty {
			return requireEntities(strings.Join(args, ", "), result)
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeDDL, "ddl", false, "print the suggested PostgreSQL DDL")
	analyzeCmd.Flags().BoolVar(&analyzeFailEmpty, "fail-empty", false, "exit non-zero when no entities are detected")
}
