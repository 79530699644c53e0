package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/logging"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/models"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/storage"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/workerpool"
)

// Artifact names written by the pipeline.
const (
	ArtifactManifest      = "manifest"
	ArtifactReport        = "report"
	ArtifactRelationships = "relationships"
	artifactSchemaPrefix  = "schema"
	artifactGraphPrefix   = "graph"
)

// PipelineResult is everything one run produced.
type PipelineResult struct {
	Manifest  *models.DiscoveryManifest
	Schemas   map[string]*models.SchemaReport
	Graphs    map[string]*models.RelationshipGraph
	Report    *models.Report
	Artifacts map[string]string // artifact name -> storage location
}

// Pipeline chains discovery, per-endpoint inference and report building.
type Pipeline interface {
	// Run crawls primaryURL and analyzes every collected payload.
	Run(ctx context.Context, primaryURL string, opts DiscoveryOptions) (*PipelineResult, error)
	// AnalyzeFiles runs inference over local JSON files without fetching anything.
	AnalyzeFiles(ctx context.Context, paths []string) (*PipelineResult, error)
}

type pipeline struct {
	discovery EndpointDiscovery
	mapper    SchemaMapper
	analyzer  RelationshipAnalyzer
	builder   ReportBuilder
	store     storage.Store
	pool      *workerpool.Pool
	mapperCfg models.MapperConfig
	logger    *zap.Logger
}

// PipelineDeps are the collaborators a Pipeline is assembled from.
type PipelineDeps struct {
	Discovery EndpointDiscovery
	Mapper    SchemaMapper
	Analyzer  RelationshipAnalyzer
	Builder   ReportBuilder
	Store     storage.Store
	Pool      *workerpool.Pool
}

// NewPipeline creates a new Pipeline.
func NewPipeline(deps PipelineDeps, mapperCfg models.MapperConfig, logger *zap.Logger) Pipeline {
	return &pipeline{
		discovery: deps.Discovery,
		mapper:    deps.Mapper,
		analyzer:  deps.Analyzer,
		builder:   deps.Builder,
		store:     deps.Store,
		pool:      deps.Pool,
		mapperCfg: mapperCfg,
		logger:    logger.Named("pipeline"),
	}
}

// endpointAnalysis is the per-payload output of the fan-out stage.
type endpointAnalysis struct {
	schema *models.SchemaReport
	graph  *models.RelationshipGraph
}

// loadFunc reads the payload behind a CollectedFile path.
type loadFunc func(ctx context.Context, path string) ([]byte, error)

func (p *pipeline) Run(ctx context.Context, primaryURL string, opts DiscoveryOptions) (*PipelineResult, error) {
	manifest, err := p.discovery.Discover(ctx, primaryURL, opts)
	if err != nil {
		// Keep what was crawled so the caller can still inspect it.
		result := &PipelineResult{Manifest: manifest, Artifacts: map[string]string{}}
		if manifest != nil {
			p.save(context.WithoutCancel(ctx), result, ArtifactManifest, manifest)
		}
		return result, err
	}
	return p.analyze(ctx, manifest, p.store.LoadRaw)
}

func (p *pipeline) AnalyzeFiles(ctx context.Context, paths []string) (*PipelineResult, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no input files")
	}
	return p.analyze(ctx, p.localManifest(paths), func(_ context.Context, path string) ([]byte, error) {
		return os.ReadFile(path)
	})
}

// localManifest describes local files as if discovery had collected them.
// The first file plays the primary endpoint.
func (p *pipeline) localManifest(paths []string) *models.DiscoveryManifest {
	now := time.Now().UTC()
	manifest := &models.DiscoveryManifest{
		RunID:          p.store.RunID(),
		StartedAt:      now,
		FinishedAt:     now,
		CollectedFiles: make([]models.CollectedFile, 0, len(paths)),
		Pagination:     models.PaginationInfo{Type: models.PaginationNone},
		EmbeddedURLs:   []string{},
		Probes:         []models.ProbeResult{},
		Errors:         []models.DiscoveryError{},
	}

	labels := make(map[string]int)
	for i, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		fileURL := "file://" + filepath.ToSlash(abs)

		label := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if i == 0 {
			manifest.PrimaryURL = fileURL
			label = models.LabelPrimary
		}
		labels[label]++
		if n := labels[label]; n > 1 {
			label = fmt.Sprintf("%s_%d", label, n)
		}

		manifest.CollectedFiles = append(manifest.CollectedFiles, models.CollectedFile{
			URL:   fileURL,
			Label: label,
			Path:  path,
		})
	}
	manifest.Totals.Files = len(manifest.CollectedFiles)
	return manifest
}

// analyze decodes every collected payload, infers schema and relationships in
// parallel, then merges everything into one report.
func (p *pipeline) analyze(ctx context.Context, manifest *models.DiscoveryManifest, load loadFunc) (*PipelineResult, error) {
	result := &PipelineResult{
		Manifest:  manifest,
		Schemas:   make(map[string]*models.SchemaReport),
		Graphs:    make(map[string]*models.RelationshipGraph),
		Artifacts: make(map[string]string),
	}

	items := make([]workerpool.Item[*endpointAnalysis], 0, len(manifest.CollectedFiles))
	files := make([]models.CollectedFile, 0, len(manifest.CollectedFiles))
	seen := make(map[string]bool)
	for i := range manifest.CollectedFiles {
		file := manifest.CollectedFiles[i]
		if seen[file.URL] {
			continue
		}
		seen[file.URL] = true
		files = append(files, file)
		items = append(items, workerpool.Item[*endpointAnalysis]{
			ID: file.Label,
			Execute: func(ctx context.Context) (*endpointAnalysis, error) {
				return p.analyzeFile(ctx, file, load, &manifest.CollectedFiles[i])
			},
		})
	}

	results := workerpool.Process(ctx, p.pool, items, func(completed, total int) {
		p.logger.Debug("Endpoint analyzed", zap.Int("completed", completed), zap.Int("total", total))
	})

	for _, r := range results {
		file := files[r.Index]
		if r.Err != nil {
			manifest.AddError(file.URL, file.Label, r.Err.Error())
			continue
		}
		result.Schemas[file.URL] = r.Result.schema
		result.Graphs[file.URL] = r.Result.graph
	}
	manifest.Totals.Errors = len(manifest.Errors)
	manifest.Totals.Bytes = 0
	for _, f := range manifest.CollectedFiles {
		manifest.Totals.Bytes += f.Bytes
	}

	if err := ctx.Err(); err != nil {
		p.save(context.WithoutCancel(ctx), result, ArtifactManifest, manifest)
		return result, fmt.Errorf("analysis interrupted: %w", err)
	}

	result.Report = p.builder.Build(manifest, result.Schemas, result.Graphs)

	if err := p.persist(ctx, result); err != nil {
		return result, err
	}

	p.logger.Info("Pipeline finished",
		zap.String("run_id", manifest.RunID),
		zap.Int("endpoints", len(result.Schemas)),
		zap.Int("entities", len(result.Report.Entities)),
		zap.Int("errors", len(manifest.Errors)))

	return result, nil
}

// analyzeFile runs on a pool goroutine. It only touches its own CollectedFile.
func (p *pipeline) analyzeFile(ctx context.Context, file models.CollectedFile, load loadFunc, entry *models.CollectedFile) (*endpointAnalysis, error) {
	data, err := load(ctx, file.Path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", file.Label, err)
	}
	doc, err := jsonutil.Decode(data)
	if err != nil {
		return nil, err
	}
	if entry.Bytes == 0 {
		entry.Bytes = len(data)
		entry.ItemCount = jsonutil.CountItems(doc)
	}

	schema := p.mapper.Analyze(doc, file.URL, p.mapperCfg)
	graph := p.analyzer.Analyze(schema, file.URL)

	p.logger.Debug("Analyzed payload",
		zap.String("label", file.Label),
		zap.String("url", logging.SanitizeURL(file.URL)),
		zap.Int("fields", schema.Stats.TotalFields),
		zap.Int("entities", len(schema.Entities)))

	return &endpointAnalysis{schema: schema, graph: graph}, nil
}

// persist writes per-endpoint schemas and graphs, the primary relationship
// graph, the manifest and the report.
func (p *pipeline) persist(ctx context.Context, result *PipelineResult) error {
	manifest := result.Manifest
	for _, file := range manifest.CollectedFiles {
		schema, ok := result.Schemas[file.URL]
		if !ok {
			continue
		}
		if err := p.save(ctx, result, storage.ArtifactName(artifactSchemaPrefix, file.Label), schema); err != nil {
			return err
		}
		if err := p.save(ctx, result, storage.ArtifactName(artifactGraphPrefix, file.Label), result.Graphs[file.URL]); err != nil {
			return err
		}
	}

	if graph := primaryGraph(manifest, result.Graphs); graph != nil {
		if err := p.save(ctx, result, ArtifactRelationships, graph); err != nil {
			return err
		}
	}
	if err := p.save(ctx, result, ArtifactManifest, manifest); err != nil {
		return err
	}
	return p.save(ctx, result, ArtifactReport, result.Report)
}

func (p *pipeline) save(ctx context.Context, result *PipelineResult, name string, v any) error {
	location, err := p.store.SaveJSON(ctx, name, v)
	if err != nil {
		p.logger.Error("Failed to save artifact", zap.String("name", name), zap.Error(err))
		return fmt.Errorf("save %s: %w", name, err)
	}
	result.Artifacts[name] = location
	return nil
}

// primaryGraph is the graph of the primary endpoint, or of the first analyzed
// file when the primary itself could not be analyzed.
func primaryGraph(manifest *models.DiscoveryManifest, graphs map[string]*models.RelationshipGraph) *models.RelationshipGraph {
	if g := graphs[manifest.PrimaryURL]; g != nil {
		return g
	}
	for _, f := range manifest.CollectedFiles {
		if g := graphs[f.URL]; g != nil {
			return g
		}
	}
	return nil
}
