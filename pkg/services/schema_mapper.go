package services

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/heuristics"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/models"
)

// maxNumericEnumValues is the tighter enum bound for numeric fields: a small
// sample of a wide numeric range yields spuriously few distinct values.
const maxNumericEnumValues = 10

// rootArrayPath is the synthetic entity path of a document whose root is a list.
const rootArrayPath = heuristics.ArraySuffix

// SchemaMapper infers a flat field map and candidate entities from one decoded document.
type SchemaMapper interface {
	// Analyze never fails: any decodable JSON value yields a well-formed,
	// possibly sparse, report.
	Analyze(document any, sourceURL string, cfg models.MapperConfig) *models.SchemaReport
}

type schemaMapper struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewSchemaMapper creates a new SchemaMapper.
func NewSchemaMapper(logger *zap.Logger) SchemaMapper {
	return &schemaMapper{
		logger: logger.Named("schema-mapper"),
		now:    time.Now,
	}
}

// frameKind selects how a stack frame is expanded.
type frameKind int

const (
	frameValue frameKind = iota
	frameObject
)

// frame is one pending step of the traversal.
type frame struct {
	kind  frameKind
	value any
	path  string
	depth int
}

// fieldAccumulator collects observations for one path.
type fieldAccumulator struct {
	path        string
	depth       int
	occurrences int
	nullCount   int
	types       map[string]int
	example     *string
	distinct    map[string]int
	overflow    bool
}

// schemaAccumulator is owned by a single Analyze call; nothing is shared
// between calls, so independent documents can be mapped in parallel.
type schemaAccumulator struct {
	cfg      models.MapperConfig
	fields   map[string]*fieldAccumulator
	entities map[string]int // entity path -> max item count observed
	stack    []frame
}

func (s *schemaMapper) Analyze(document any, sourceURL string, cfg models.MapperConfig) *models.SchemaReport {
	cfg = normalizeMapperConfig(cfg)
	acc := &schemaAccumulator{
		cfg:      cfg,
		fields:   make(map[string]*fieldAccumulator),
		entities: make(map[string]int),
	}

	switch root := document.(type) {
	case []any:
		acc.registerEntity(rootArrayPath, len(root))
		sample := sampleItems(root, cfg.ArraySampleSize)
		for i := len(sample) - 1; i >= 0; i-- {
			if obj, ok := sample[i].(map[string]any); ok {
				acc.push(frame{kind: frameObject, value: obj, path: rootArrayPath, depth: 1})
			}
		}
	case map[string]any:
		acc.push(frame{kind: frameObject, value: root, path: "", depth: 0})
	}

	acc.walk()

	report := acc.build(sourceURL, string(jsonutil.KindOf(document)), s.now())

	s.logger.Debug("Schema mapped",
		zap.String("source_url", sourceURL),
		zap.Int("fields", report.Stats.TotalFields),
		zap.Int("entities", report.Stats.TotalEntities),
		zap.Int("max_depth", report.Stats.MaxDepth))

	return report
}

// normalizeMapperConfig replaces unusable limits with defaults.
func normalizeMapperConfig(cfg models.MapperConfig) models.MapperConfig {
	def := models.DefaultMapperConfig()
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = def.MaxDepth
	}
	if cfg.ArraySampleSize <= 0 {
		cfg.ArraySampleSize = def.ArraySampleSize
	}
	if cfg.ExampleMaxLength <= 0 {
		cfg.ExampleMaxLength = def.ExampleMaxLength
	}
	if cfg.EnumThreshold < 2 {
		cfg.EnumThreshold = def.EnumThreshold
	}
	return cfg
}

func (a *schemaAccumulator) push(f frame) {
	a.stack = append(a.stack, f)
}

// walk drains the explicit stack. Children are pushed in reverse so they pop
// in document (sorted key) order and the first example seen is deterministic.
func (a *schemaAccumulator) walk() {
	for len(a.stack) > 0 {
		f := a.stack[len(a.stack)-1]
		a.stack = a.stack[:len(a.stack)-1]

		switch f.kind {
		case frameObject:
			a.traverseObject(f.value.(map[string]any), f.path, f.depth)
		case frameValue:
			a.traverseValue(f.value, f.path, f.depth)
		}
	}
}

func (a *schemaAccumulator) traverseObject(obj map[string]any, path string, depth int) {
	if depth > a.cfg.MaxDepth {
		return
	}
	keys := jsonutil.SortedKeys(obj)
	for i := len(keys) - 1; i >= 0; i-- {
		key := keys[i]
		childPath := key
		if path != "" {
			childPath = path + "." + key
		}
		a.push(frame{kind: frameValue, value: obj[key], path: childPath, depth: depth})
	}
}

func (a *schemaAccumulator) traverseValue(value any, path string, depth int) {
	a.observe(value, path, depth)

	switch t := value.(type) {
	case []any:
		a.traverseList(t, path, depth)
	case map[string]any:
		a.push(frame{kind: frameObject, value: t, path: path, depth: depth + 1})
	}
}

// traverseList checks depth before descending so pathological nesting is bounded.
func (a *schemaAccumulator) traverseList(list []any, path string, depth int) {
	if depth > a.cfg.MaxDepth {
		return
	}
	arrayPath := path + heuristics.ArraySuffix
	sample := sampleItems(list, a.cfg.ArraySampleSize)
	if len(sample) == 0 {
		return
	}

	if _, ok := sample[0].(map[string]any); ok {
		a.registerEntity(arrayPath, len(list))
	}

	for i := len(sample) - 1; i >= 0; i-- {
		a.push(frame{kind: frameValue, value: sample[i], path: arrayPath, depth: depth + 1})
	}
}

func (a *schemaAccumulator) registerEntity(path string, count int) {
	if prev, ok := a.entities[path]; !ok || count > prev {
		a.entities[path] = count
	}
}

func (a *schemaAccumulator) observe(value any, path string, depth int) {
	fa, ok := a.fields[path]
	if !ok {
		fa = &fieldAccumulator{
			path:     path,
			depth:    depth,
			types:    make(map[string]int),
			distinct: make(map[string]int),
		}
		a.fields[path] = fa
	}

	kind := jsonutil.KindOf(value)
	fa.occurrences++
	fa.types[string(kind)]++
	if kind == jsonutil.KindNull {
		fa.nullCount++
		return
	}

	s, scalar := jsonutil.ScalarString(value)
	if !scalar {
		return
	}
	if fa.example == nil {
		ex := truncateRunes(s, a.cfg.ExampleMaxLength)
		fa.example = &ex
	}
	if _, seen := fa.distinct[s]; seen {
		fa.distinct[s]++
	} else if len(fa.distinct) <= a.cfg.EnumThreshold {
		fa.distinct[s] = 1
	} else {
		fa.overflow = true
	}
}

func (a *schemaAccumulator) build(sourceURL, rootType string, now time.Time) *models.SchemaReport {
	report := &models.SchemaReport{
		Meta: models.SchemaMeta{
			SourceURL:  sourceURL,
			RootType:   rootType,
			AnalyzedAt: now.UTC(),
			Config:     a.cfg,
		},
		Entities:       make(map[string]*models.EntityDescriptor, len(a.entities)),
		Fields:         make(map[string]*models.FieldDescriptor, len(a.fields)),
		EntityOrder:    []string{},
		IDFields:       []string{},
		EnumCandidates: []string{},
		NullableFields: []string{},
	}
	stats := models.SchemaStats{TypeDistribution: make(map[string]int)}

	for path, fa := range a.fields {
		fd := a.resolveField(fa)
		report.Fields[path] = fd

		stats.TypeDistribution[fd.Type]++
		if fd.Depth > stats.MaxDepth {
			stats.MaxDepth = fd.Depth
		}
		if fd.NullCount > 0 {
			stats.NullableFields++
			report.NullableFields = append(report.NullableFields, path)
		}
		if fd.IsEnumCandidate {
			stats.EnumCandidates++
			report.EnumCandidates = append(report.EnumCandidates, path)
		}
		if fd.IsIDField {
			report.IDFields = append(report.IDFields, path)
		}
	}

	fieldPaths := sortedFieldPaths(report.Fields)
	for path, count := range a.entities {
		report.Entities[path] = a.describeEntity(path, count, fieldPaths, report.Fields)
	}
	for path, entity := range report.Entities {
		entity.Parent = resolveParent(path, report.Entities)
	}
	report.EntityOrder = orderByNesting(report.Entities)

	sort.Strings(report.IDFields)
	sort.Strings(report.EnumCandidates)
	sort.Strings(report.NullableFields)

	stats.TotalFields = len(report.Fields)
	stats.TotalEntities = len(report.Entities)
	report.Stats = stats
	return report
}

func (a *schemaAccumulator) resolveField(fa *fieldAccumulator) *models.FieldDescriptor {
	fd := &models.FieldDescriptor{
		Path:             fa.path,
		Type:             resolveType(fa.types),
		TypeCounts:       fa.types,
		Occurrences:      fa.occurrences,
		NullCount:        fa.nullCount,
		Depth:            fa.depth,
		Example:          fa.example,
		DistinctOverflow: fa.overflow,
		IsIDField:        heuristics.IsIDFieldName(heuristics.LastSegment(fa.path)),
	}
	if fa.occurrences > 0 {
		fd.NullRatio = round4(float64(fa.nullCount) / float64(fa.occurrences))
	}
	if len(fa.distinct) > 0 {
		fd.DistinctValues = fa.distinct
	}

	if isEnumCandidate(fd.Type, len(fa.distinct), fa.overflow, a.cfg.EnumThreshold) {
		fd.IsEnumCandidate = true
		fd.EnumValues = copyCounts(fa.distinct)
	}
	return fd
}

// resolveType picks the single non-null observed type, "null" when only nulls
// were seen, and "mixed" when non-null observations disagree.
func resolveType(types map[string]int) string {
	resolved := ""
	for t := range types {
		if t == string(jsonutil.KindNull) {
			continue
		}
		if resolved != "" {
			return models.FieldTypeMixed
		}
		resolved = t
	}
	if resolved == "" {
		return models.FieldTypeNull
	}
	return resolved
}

func isEnumCandidate(fieldType string, distinct int, overflow bool, threshold int) bool {
	if overflow || distinct < 2 || distinct > threshold {
		return false
	}
	if jsonutil.Kind(fieldType).IsNumeric() && distinct > maxNumericEnumValues {
		return false
	}
	return true
}

// describeEntity derives direct fields, the id field and foreign key candidates.
func (a *schemaAccumulator) describeEntity(path string, count int, fieldPaths []string, fields map[string]*models.FieldDescriptor) *models.EntityDescriptor {
	entity := &models.EntityDescriptor{
		Path:         path,
		ItemCount:    count,
		DirectFields: GetDirectFields(path, fieldPaths),
		ForeignKeys:  []models.ForeignKeyCandidate{},
	}

	if _, ok := fields[path+".id"]; ok {
		id := path + ".id"
		entity.IDField = &id
	} else {
		for _, f := range entity.DirectFields {
			if strings.HasSuffix(f, "_id") || strings.HasSuffix(f, ".id") {
				id := f
				entity.IDField = &id
				break
			}
		}
	}

	for _, f := range entity.DirectFields {
		if entity.IDField != nil && f == *entity.IDField {
			continue
		}
		name := heuristics.LastSegment(f)
		if !heuristics.IsForeignKeyName(name) {
			continue
		}
		entity.ForeignKeys = append(entity.ForeignKeys, models.ForeignKeyCandidate{
			Field:      f,
			FieldName:  name,
			TargetHint: heuristics.ForeignKeyTarget(name),
		})
	}
	return entity
}

// GetDirectFields returns the field paths exactly one key below prefix:
// "prefix.key" with no further "." or "[" in the remainder. fieldPaths must be sorted.
func GetDirectFields(prefix string, fieldPaths []string) []string {
	direct := []string{}
	lead := prefix + "."
	for _, p := range fieldPaths {
		if !strings.HasPrefix(p, lead) {
			continue
		}
		rest := p[len(lead):]
		if rest == "" || strings.ContainsAny(rest, ".[") {
			continue
		}
		direct = append(direct, p)
	}
	return direct
}

// resolveParent strips the entity's final "[]" and returns the nearest enclosing
// array-of-objects path, provided it is itself a registered entity.
func resolveParent(path string, entities map[string]*models.EntityDescriptor) *string {
	trimmed := strings.TrimSuffix(path, heuristics.ArraySuffix)
	idx := strings.LastIndex(trimmed, heuristics.ArraySuffix)
	if idx < 0 {
		return nil
	}
	parent := trimmed[:idx+len(heuristics.ArraySuffix)]
	if parent == path {
		return nil
	}
	if _, ok := entities[parent]; !ok {
		return nil
	}
	return &parent
}

// orderByNesting sorts entity paths by array depth, then lexically.
func orderByNesting(entities map[string]*models.EntityDescriptor) []string {
	paths := make([]string, 0, len(entities))
	for p := range entities {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		di, dj := heuristics.ArrayDepth(paths[i]), heuristics.ArrayDepth(paths[j])
		if di != dj {
			return di < dj
		}
		return paths[i] < paths[j]
	})
	return paths
}

func sortedFieldPaths(fields map[string]*models.FieldDescriptor) []string {
	paths := make([]string, 0, len(fields))
	for p := range fields {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func sampleItems(list []any, n int) []any {
	if len(list) > n {
		return list[:n]
	}
	return list
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "…"
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
