package main

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/config"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/fetch"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/heuristics"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/models"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/retry"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/services"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/storage"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/workerpool"
)

// discoverFlags are the per-command overrides of the discovery config.
type discoverFlags struct {
	maxPages int
	noProbe  bool
	noRegion bool
}

func discoveryOptions(c *config.Config, flags discoverFlags) services.DiscoveryOptions {
	opts := services.DefaultDiscoveryOptions()
	opts.MaxPages = c.Discovery.MaxPages
	opts.ProbeEntities = c.Discovery.ProbeEntities && !flags.noProbe
	opts.DetectRegion = c.Discovery.DetectRegion && !flags.noRegion
	if len(c.Discovery.ProbeSuffixes) > 0 {
		opts.ProbeSuffixes = c.Discovery.ProbeSuffixes
	}
	if len(c.Discovery.RegionParams) > 0 {
		opts.RegionParams = c.Discovery.RegionParams
	}
	if flags.maxPages > 0 {
		opts.MaxPages = flags.maxPages
	}
	return opts
}

func mapperConfig(c *config.Config) models.MapperConfig {
	return models.MapperConfig{
		MaxDepth:         c.Mapper.MaxDepth,
		ArraySampleSize:  c.Mapper.ArraySampleSize,
		ExampleMaxLength: c.Mapper.ExampleMaxLength,
		EnumThreshold:    c.Mapper.EnumThreshold,
	}
}

func fetchConfig(c *config.Config) fetch.Config {
	return fetch.Config{
		Timeout:   c.HTTP.Timeout(),
		UserAgent: c.HTTP.UserAgent,
		Retry: &retry.Config{
			MaxRetries:   c.HTTP.MaxRetries,
			InitialDelay: time.Duration(c.HTTP.InitialDelayMs) * time.Millisecond,
			MaxDelay:     time.Duration(c.HTTP.MaxDelayMs) * time.Millisecond,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
	}
}

func newDiscovery(c *config.Config, store storage.Store, logger *zap.Logger) services.EndpointDiscovery {
	return services.NewEndpointDiscovery(fetch.NewClient(fetchConfig(c), logger), store, logger)
}

// newPipeline assembles every service over store.
func newPipeline(c *config.Config, store storage.Store, logger *zap.Logger) (services.Pipeline, error) {
	var keywords heuristics.KeywordMatcher = heuristics.DefaultDictionary()
	if c.KeywordsFile != "" {
		dict, err := heuristics.LoadDictionary(c.KeywordsFile)
		if err != nil {
			return nil, err
		}
		keywords = dict
	}
	inflector := heuristics.NewInflector()

	return services.NewPipeline(services.PipelineDeps{
		Discovery: newDiscovery(c, store, logger),
		Mapper:    services.NewSchemaMapper(logger),
		Analyzer:  services.NewRelationshipAnalyzer(inflector, logger),
		Builder:   services.NewReportBuilder(keywords, inflector, logger),
		Store:     store,
		Pool:      workerpool.New(workerpool.Config{MaxConcurrent: c.Workers.MaxConcurrent}, logger),
	}, mapperConfig(c), logger), nil
}

// requireEntities turns an entity-less report into an error.
func requireEntities(source string, result *services.PipelineResult) error {
	if result == nil || result.Report == nil || len(result.Report.Entities) == 0 {
		return fmt.Errorf("%s: %w", source, apperrors.ErrNoEntities)
	}
	return nil
}
