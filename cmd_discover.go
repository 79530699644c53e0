package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/services"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/storage"
)

var discoverOnlyFlags discoverFlags

var discoverCmd = &cobra.Command{
	Use:   "discover <url>",
	Short: "Crawl a feed and store raw payloads and the manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, closeStore, err := storage.New(ctx, cfg, "", logger)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		defer closeStore()

		manifest, discoverErr := newDiscovery(cfg, store, logger).Discover(ctx, args[0], discoveryOptions(cfg, discoverOnlyFlags))

		location, err := store.SaveJSON(context.WithoutCancel(ctx), services.ArtifactManifest, manifest)
		if err != nil {
			return fmt.Errorf("failed to save manifest: %w", err)
		}
		logger.Info("Manifest saved", zap.String("location", location))

		printManifest(cmd.OutOrStdout(), manifest)
		printArtifacts(cmd.OutOrStdout(), map[string]string{services.ArtifactManifest: location})
		return discoverErr
	},
}

func init() {
	addDiscoverFlags(discoverCmd, &discoverOnlyFlags)
}
