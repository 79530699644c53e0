package services

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/heuristics"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/models"
)

// requiredOccurrenceRatio is the share of an entity's most frequent field a
// never-null field must reach to be reported as required.
const requiredOccurrenceRatio = 0.95

// ReportBuilder merges per-endpoint inference into one Report.
type ReportBuilder interface {
	// Build merges schemas and graphs keyed by endpoint URL. The merge is
	// single-threaded; callers fan out the per-endpoint work beforehand.
	Build(manifest *models.DiscoveryManifest, schemas map[string]*models.SchemaReport, graphs map[string]*models.RelationshipGraph) *models.Report
}

type reportBuilder struct {
	keywords  heuristics.KeywordMatcher
	inflector heuristics.Inflector
	logger    *zap.Logger
	now       func() time.Time
}

// NewReportBuilder creates a new ReportBuilder. Nil collaborators fall back to
// the built-in keyword dictionary and English inflector.
func NewReportBuilder(keywords heuristics.KeywordMatcher, inflector heuristics.Inflector, logger *zap.Logger) ReportBuilder {
	if keywords == nil {
		keywords = heuristics.DefaultDictionary()
	}
	if inflector == nil {
		inflector = heuristics.NewInflector()
	}
	return &reportBuilder{
		keywords:  keywords,
		inflector: inflector,
		logger:    logger.Named("report-builder"),
		now:       time.Now,
	}
}

// reportAccumulator holds merge state for a single Build call.
type reportAccumulator struct {
	fields     map[string]*fieldMerge
	entities   map[string]*models.ReportEntity
	fkSeen     map[string]map[string]bool // table -> fk field paths
	pathTables map[string]string          // entity path -> table name
}

// fieldMerge is a MergedField plus the histograms needed to resolve it.
type fieldMerge struct {
	field     *models.MergedField
	types     map[string]int
	distinct  map[string]int
	overflow  bool
	threshold int
}

func (b *reportBuilder) Build(manifest *models.DiscoveryManifest, schemas map[string]*models.SchemaReport, graphs map[string]*models.RelationshipGraph) *models.Report {
	if manifest == nil {
		manifest = &models.DiscoveryManifest{}
	}
	endpoints := endpointOrder(manifest, schemas, graphs)

	acc := &reportAccumulator{
		fields:     make(map[string]*fieldMerge),
		entities:   make(map[string]*models.ReportEntity),
		fkSeen:     make(map[string]map[string]bool),
		pathTables: make(map[string]string),
	}

	for _, url := range endpoints {
		if schema := schemas[url]; schema != nil {
			acc.mergeFields(url, schema)
		}
	}
	fields := acc.resolveFields()

	for _, url := range endpoints {
		acc.mergeGraphEntities(url, graphs[url])
	}
	for _, url := range endpoints {
		acc.mergeSchemaEntities(url, schemas[url], graphs[url])
	}

	relationships := b.consolidateRelationships(endpoints, graphs, acc)
	entities := acc.orderedEntities(relationships.SuggestedTableOrder)
	fieldPaths := mergedFieldPaths(fields)
	for _, entity := range entities {
		b.enrichEntity(entity, fields, fieldPaths)
	}

	report := &models.Report{
		Entities:      entities,
		Relationships: relationships,
		Fields:        fields,
	}
	report.FilterCandidates = b.filterCandidates(fields, fieldPaths)
	report.SearchCandidates = b.searchCandidates(fields, fieldPaths)
	report.IndexRecommendations = b.indexRecommendations(report, acc.pathTables)
	report.DataQuality = buildDataQuality(manifest, endpoints, schemas, fields, fieldPaths)
	report.DDL = b.buildDDL(report, fields, fieldPaths, acc.pathTables)
	report.Meta = models.ReportMeta{
		RunID:             manifest.RunID,
		PrimaryURL:        manifest.PrimaryURL,
		GeneratedAt:       b.now().UTC(),
		EndpointsAnalyzed: countPresent(endpoints, schemas),
		FilesCollected:    len(manifest.CollectedFiles),
		DiscoveryErrors:   len(manifest.Errors),
		TotalFields:       len(fields),
		TotalEntities:     len(entities),
	}

	b.logger.Info("Report built",
		zap.String("run_id", manifest.RunID),
		zap.Int("endpoints", report.Meta.EndpointsAnalyzed),
		zap.Int("fields", report.Meta.TotalFields),
		zap.Int("entities", report.Meta.TotalEntities),
		zap.Int("index_recommendations", len(report.IndexRecommendations)))

	return report
}

// endpointOrder lists endpoints in manifest order, then any remaining keys sorted.
func endpointOrder(manifest *models.DiscoveryManifest, schemas map[string]*models.SchemaReport, graphs map[string]*models.RelationshipGraph) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range manifest.CollectedFiles {
		if seen[f.URL] {
			continue
		}
		if _, ok := schemas[f.URL]; !ok {
			if _, ok := graphs[f.URL]; !ok {
				continue
			}
		}
		seen[f.URL] = true
		out = append(out, f.URL)
	}

	var rest []string
	for url := range schemas {
		if !seen[url] {
			seen[url] = true
			rest = append(rest, url)
		}
	}
	for url := range graphs {
		if !seen[url] {
			seen[url] = true
			rest = append(rest, url)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func countPresent(endpoints []string, schemas map[string]*models.SchemaReport) int {
	n := 0
	for _, url := range endpoints {
		if schemas[url] != nil {
			n++
		}
	}
	return n
}

// mergeFields unions one endpoint's fields: counts are summed, histograms unioned.
func (acc *reportAccumulator) mergeFields(url string, schema *models.SchemaReport) {
	threshold := schema.Meta.Config.EnumThreshold
	if threshold < 2 {
		threshold = models.DefaultMapperConfig().EnumThreshold
	}

	for _, path := range schemaFieldPaths(schema) {
		fd := schema.Fields[path]
		fm, ok := acc.fields[path]
		if !ok {
			fm = &fieldMerge{
				field: &models.MergedField{
					Path:      path,
					Type:      fd.Type,
					Depth:     fd.Depth,
					Endpoints: []string{},
				},
				types:     make(map[string]int),
				distinct:  make(map[string]int),
				threshold: threshold,
			}
			acc.fields[path] = fm
		}

		f := fm.field
		f.Occurrences += fd.Occurrences
		f.NullCount += fd.NullCount
		if fd.Depth < f.Depth {
			f.Depth = fd.Depth
		}
		if f.Example == nil && fd.Example != nil {
			ex := *fd.Example
			f.Example = &ex
		}
		if !containsString(f.Endpoints, url) {
			f.Endpoints = append(f.Endpoints, url)
		}
		if threshold > fm.threshold {
			fm.threshold = threshold
		}

		if len(fd.TypeCounts) > 0 {
			for t, n := range fd.TypeCounts {
				fm.types[t] += n
			}
		} else if fd.Type != "" {
			fm.types[fd.Type] += fd.Occurrences - fd.NullCount
		}

		values := fd.DistinctValues
		if values == nil {
			values = fd.EnumValues
		}
		fm.overflow = fm.overflow || fd.DistinctOverflow
		for v, n := range values {
			if _, seen := fm.distinct[v]; seen {
				fm.distinct[v] += n
			} else if len(fm.distinct) <= fm.threshold {
				fm.distinct[v] = n
			} else {
				fm.overflow = true
			}
		}
	}
}

// resolveFields finalizes merged types and recomputes enum candidacy over
// the unioned histograms.
func (acc *reportAccumulator) resolveFields() map[string]*models.MergedField {
	out := make(map[string]*models.MergedField, len(acc.fields))
	for path, fm := range acc.fields {
		f := fm.field
		if len(fm.types) > 0 {
			f.Type = resolveType(fm.types)
		}
		if isEnumCandidate(f.Type, len(fm.distinct), fm.overflow, fm.threshold) {
			f.IsEnumCandidate = true
			f.EnumValues = copyCounts(fm.distinct)
		}
		out[path] = f
	}
	return out
}

// mergeGraphEntities upserts every graph entity under its table name.
func (acc *reportAccumulator) mergeGraphEntities(url string, graph *models.RelationshipGraph) {
	if graph == nil || len(graph.Entities) == 0 {
		return
	}
	for _, path := range sortedNodePaths(graph.Entities) {
		node := graph.Entities[path]
		var parentTable *string
		if node.Parent != nil {
			if parent, ok := graph.Entities[*node.Parent]; ok {
				t := parent.TableName
				parentTable = &t
			}
		}
		children := make([]string, 0, len(node.Children))
		for _, c := range node.Children {
			if child, ok := graph.Entities[c]; ok {
				children = append(children, child.TableName)
			}
		}
		acc.upsertEntity(url, path, node.Name, node.TableName, node.ItemCount, node.IDField, parentTable, children, node.ForeignKeys)
	}
}

// mergeSchemaEntities adds schema entities the relationship analysis did not
// cover, so a feed without a usable graph still yields its entities.
func (acc *reportAccumulator) mergeSchemaEntities(url string, schema *models.SchemaReport, graph *models.RelationshipGraph) {
	if schema == nil {
		return
	}
	for _, entity := range orderedEntities(schema) {
		if graph != nil {
			if _, ok := graph.Entities[entity.Path]; ok {
				continue
			}
		}
		var parentTable *string
		if entity.Parent != nil {
			t := TableName(*entity.Parent)
			parentTable = &t
		}
		acc.upsertEntity(url, entity.Path, EntityName(entity.Path), TableName(entity.Path),
			entity.ItemCount, entity.IDField, parentTable, nil, entity.ForeignKeys)
	}
}

func (acc *reportAccumulator) upsertEntity(url, path, name, table string, itemCount int, idField, parentTable *string, children []string, fks []models.ForeignKeyCandidate) {
	e, ok := acc.entities[table]
	if !ok {
		e = &models.ReportEntity{
			TableName:   table,
			Name:        name,
			Paths:       []string{},
			Endpoints:   []string{},
			Children:    []string{},
			ForeignKeys: []models.ForeignKeyCandidate{},
			Keywords:    map[string][]string{},
		}
		acc.entities[table] = e
		acc.fkSeen[table] = make(map[string]bool)
	}

	acc.pathTables[path] = table
	if !containsString(e.Paths, path) {
		e.Paths = append(e.Paths, path)
	}
	if !containsString(e.Endpoints, url) {
		e.Endpoints = append(e.Endpoints, url)
	}
	if itemCount > e.ItemCount {
		e.ItemCount = itemCount
	}
	if e.IDField == nil && idField != nil {
		id := *idField
		e.IDField = &id
	}
	if e.Parent == nil && parentTable != nil && *parentTable != table {
		p := *parentTable
		e.Parent = &p
	}
	for _, c := range children {
		if c != table && !containsString(e.Children, c) {
			e.Children = append(e.Children, c)
		}
	}
	for _, fk := range fks {
		if acc.fkSeen[table][fk.Field] {
			continue
		}
		acc.fkSeen[table][fk.Field] = true
		e.ForeignKeys = append(e.ForeignKeys, fk)
	}
}

// orderedEntities sorts entities by their position in the table order, then by name.
func (acc *reportAccumulator) orderedEntities(tableOrder []string) []*models.ReportEntity {
	rank := make(map[string]int, len(tableOrder))
	for i, t := range tableOrder {
		rank[t] = i
	}
	out := make([]*models.ReportEntity, 0, len(acc.entities))
	for _, e := range acc.entities {
		sort.Strings(e.Children)
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, iok := rank[out[i].TableName]
		rj, jok := rank[out[j].TableName]
		if iok != jok {
			return iok
		}
		if ri != rj {
			return ri < rj
		}
		return out[i].TableName < out[j].TableName
	})
	return out
}

// enrichEntity classifies the fields that become the entity's columns across
// all of its paths, including scalars nested inside plain objects.
func (b *reportBuilder) enrichEntity(entity *models.ReportEntity, fields map[string]*models.MergedField, fieldPaths []string) {
	groups := models.EntityFieldGroups{
		Required: []string{},
		Nullable: []string{},
		Enum:     []string{},
		Numeric:  []string{},
		Date:     []string{},
		Text:     []string{},
		Geo:      []string{},
	}

	var direct []string
	for _, p := range entity.Paths {
		direct = append(direct, entityColumnFields(p, fields, fieldPaths)...)
	}

	maxOcc := 0
	for _, p := range direct {
		if f := fields[p]; f != nil && f.Occurrences > maxOcc {
			maxOcc = f.Occurrences
		}
	}

	keywords := make(map[string][]string)
	for _, p := range direct {
		f := fields[p]
		if f == nil {
			continue
		}
		name := heuristics.LastSegment(p)

		if f.NullCount > 0 {
			groups.Nullable = append(groups.Nullable, p)
		} else if float64(f.Occurrences) >= requiredOccurrenceRatio*float64(maxOcc) {
			groups.Required = append(groups.Required, p)
		}
		if f.IsEnumCandidate {
			groups.Enum = append(groups.Enum, p)
		}
		if f.Type == models.FieldTypeInt || f.Type == models.FieldTypeFloat {
			groups.Numeric = append(groups.Numeric, p)
		}
		if b.keywords.Matches(name, heuristics.CategoryDate) {
			groups.Date = append(groups.Date, p)
		}
		if f.Type == models.FieldTypeString && b.keywords.Matches(name, heuristics.CategoryText) {
			groups.Text = append(groups.Text, p)
		}
		if b.keywords.Matches(name, heuristics.CategoryGeo) {
			groups.Geo = append(groups.Geo, p)
		}
		for _, cat := range b.keywords.Categories(name) {
			keywords[string(cat)] = append(keywords[string(cat)], p)
		}
	}

	entity.Fields = groups
	entity.Keywords = keywords
}

// consolidateRelationships flattens every graph into hierarchy links,
// deduplicated foreign keys, an audit list and one table order.
func (b *reportBuilder) consolidateRelationships(endpoints []string, graphs map[string]*models.RelationshipGraph, acc *reportAccumulator) models.RelationshipSummary {
	summary := models.RelationshipSummary{
		Hierarchy:           []models.HierarchyLink{},
		ForeignKeys:         []models.ForeignKeyLink{},
		ConfidenceScores:    []models.ConfidenceScore{},
		SuggestedTableOrder: []string{},
		CircularTables:      []string{},
	}
	seenLinks := make(map[string]bool)
	seenTables := make(map[string]bool)
	seenCircular := make(map[string]bool)

	for _, url := range endpoints {
		graph := graphs[url]
		if graph == nil {
			continue
		}
		tableOf := func(path string) string {
			if node, ok := graph.Entities[path]; ok {
				return node.TableName
			}
			return TableName(path)
		}

		for _, e := range graph.Relationships {
			summary.ConfidenceScores = append(summary.ConfidenceScores, models.ConfidenceScore{
				Endpoint:   url,
				From:       e.From,
				To:         e.To,
				Type:       e.Type,
				Via:        e.Via,
				Confidence: e.Confidence,
				Note:       e.Note,
			})

			switch {
			case e.Via == models.ViaNesting && e.Type == models.RelationshipManyToOne && e.To != nil:
				link := models.HierarchyLink{
					ParentTable:  tableOf(*e.To),
					ChildTable:   tableOf(e.From),
					ParentEntity: *e.To,
					ChildEntity:  e.From,
				}
				key := "h\x00" + link.ParentTable + "\x00" + link.ChildTable
				if !seenLinks[key] {
					seenLinks[key] = true
					summary.Hierarchy = append(summary.Hierarchy, link)
				}
			case e.Via == models.ViaForeignKey:
				link := models.ForeignKeyLink{
					FromTable:  tableOf(e.From),
					Field:      e.Field,
					Confidence: e.Confidence,
					Resolved:   e.To != nil,
				}
				to := "?"
				if e.To != nil {
					t := tableOf(*e.To)
					link.ToTable = &t
					to = t
				}
				key := "f\x00" + link.FromTable + "\x00" + to + "\x00" + link.Field
				if !seenLinks[key] {
					seenLinks[key] = true
					summary.ForeignKeys = append(summary.ForeignKeys, link)
				}
			}
		}

		for _, st := range graph.SuggestedTables {
			if !seenTables[st.TableName] {
				seenTables[st.TableName] = true
				summary.SuggestedTableOrder = append(summary.SuggestedTableOrder, st.TableName)
			}
			if st.Note == models.CircularDependencyNote && !seenCircular[st.TableName] {
				seenCircular[st.TableName] = true
				summary.CircularTables = append(summary.CircularTables, st.TableName)
			}
		}
	}

	// Entities known only from schemas still need a slot in the order.
	var missing []*models.ReportEntity
	for table, e := range acc.entities {
		if !seenTables[table] {
			missing = append(missing, e)
		}
	}
	sort.Slice(missing, func(i, j int) bool {
		di, dj := minArrayDepth(missing[i].Paths), minArrayDepth(missing[j].Paths)
		if di != dj {
			return di < dj
		}
		return missing[i].TableName < missing[j].TableName
	})
	for _, e := range missing {
		summary.SuggestedTableOrder = append(summary.SuggestedTableOrder, e.TableName)
	}

	return summary
}

func minArrayDepth(paths []string) int {
	depth := -1
	for _, p := range paths {
		if d := heuristics.ArrayDepth(p); depth < 0 || d < depth {
			depth = d
		}
	}
	return depth
}

func schemaFieldPaths(schema *models.SchemaReport) []string {
	paths := make([]string, 0, len(schema.Fields))
	for p := range schema.Fields {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func mergedFieldPaths(fields map[string]*models.MergedField) []string {
	paths := make([]string, 0, len(fields))
	for p := range fields {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// entityColumnFields returns the direct fields of an entity path plus the
// non-object fields nested under it that do not cross another array.
func entityColumnFields(entityPath string, fields map[string]*models.MergedField, fieldPaths []string) []string {
	out := GetDirectFields(entityPath, fieldPaths)
	lead := entityPath + "."
	for _, p := range fieldPaths {
		if !strings.HasPrefix(p, lead) || !strings.Contains(p[len(lead):], ".") {
			continue
		}
		if f := fields[p]; f == nil || f.Type == models.FieldTypeObject {
			continue
		}
		if owner, _, ok := ownerEntityPath(p); ok && owner == entityPath {
			out = append(out, p)
		}
	}
	return out
}

// ownerEntityPath returns the entity path a field belongs to: everything up to
// and including its last "[]".
func ownerEntityPath(fieldPath string) (entity, rest string, ok bool) {
	idx := strings.LastIndex(fieldPath, heuristics.ArraySuffix)
	if idx < 0 {
		return "", "", false
	}
	end := idx + len(heuristics.ArraySuffix)
	rest = strings.TrimPrefix(fieldPath[end:], ".")
	if rest == "" {
		return "", "", false
	}
	return fieldPath[:end], rest, true
}
