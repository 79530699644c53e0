package services

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/heuristics"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/models"
)

const (
	maxFullTextCandidates = 30
	maxGeoCandidates      = 20

	// fullTextMinExampleLength is the example length above which any string
	// field is considered free text.
	fullTextMinExampleLength = 30
)

// filterCandidates reports, per filter category, the scalar fields whose
// name matches the category keywords.
func (b *reportBuilder) filterCandidates(fields map[string]*models.MergedField, fieldPaths []string) map[string]models.FilterCandidate {
	out := make(map[string]models.FilterCandidate, len(heuristics.FilterCategories))
	for _, cat := range heuristics.FilterCategories {
		matched := []string{}
		for _, p := range fieldPaths {
			f := fields[p]
			if f.Type == models.FieldTypeObject || f.Type == models.FieldTypeArray {
				continue
			}
			if b.keywords.Matches(heuristics.LastSegment(p), cat) {
				matched = append(matched, p)
			}
		}
		out[string(cat)] = models.FilterCandidate{Available: len(matched) > 0, Fields: matched}
	}
	return out
}

func (b *reportBuilder) searchCandidates(fields map[string]*models.MergedField, fieldPaths []string) models.SearchCandidates {
	var text, geo []string
	for _, p := range fieldPaths {
		f := fields[p]
		name := heuristics.LastSegment(p)
		if b.isFullText(f, name) {
			text = append(text, p)
		}
		if b.keywords.Matches(name, heuristics.CategoryGeo) {
			geo = append(geo, p)
		}
	}
	return models.SearchCandidates{
		FullText: topByOccurrence(text, fields, maxFullTextCandidates),
		Geo:      topByOccurrence(geo, fields, maxGeoCandidates),
	}
}

// isFullText requires a string field that either carries long examples or
// has a text-like name.
func (b *reportBuilder) isFullText(f *models.MergedField, name string) bool {
	if f.Type != models.FieldTypeString {
		return false
	}
	if f.Example != nil && utf8.RuneCountInString(*f.Example) > fullTextMinExampleLength {
		return true
	}
	return b.keywords.Matches(name, heuristics.CategoryText)
}

func topByOccurrence(paths []string, fields map[string]*models.MergedField, limit int) []string {
	out := append([]string{}, paths...)
	sort.SliceStable(out, func(i, j int) bool {
		return fields[out[i]].Occurrences > fields[out[j]].Occurrences
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// indexSet collects recommendations deduplicated by (table, column, type).
type indexSet struct {
	seen map[string]bool
	recs []models.IndexRecommendation
}

func (s *indexSet) add(rec models.IndexRecommendation) {
	if rec.Table == "" || rec.Column == "" {
		return
	}
	key := rec.Table + "\x00" + rec.Column + "\x00" + rec.Type
	if s.seen[key] {
		return
	}
	s.seen[key] = true
	s.recs = append(s.recs, rec)
}

func (b *reportBuilder) indexRecommendations(report *models.Report, pathTables map[string]string) []models.IndexRecommendation {
	set := &indexSet{seen: make(map[string]bool), recs: []models.IndexRecommendation{}}

	for _, e := range report.Entities {
		if e.IDField != nil {
			set.add(models.IndexRecommendation{
				Table:  e.TableName,
				Column: columnName(heuristics.LastSegment(*e.IDField)),
				Type:   models.IndexPrimary,
				Reason: "entity identifier",
			})
		}
	}

	for _, e := range report.Entities {
		if e.Parent == nil {
			continue
		}
		set.add(models.IndexRecommendation{
			Table:  e.TableName,
			Column: b.inflector.Singular(*e.Parent) + "_id",
			Type:   models.IndexBTree,
			Reason: fmt.Sprintf("nested under %s", *e.Parent),
		})
	}

	for _, fk := range report.Relationships.ForeignKeys {
		if !fk.Resolved || fk.ToTable == nil {
			continue
		}
		set.add(models.IndexRecommendation{
			Table:  fk.FromTable,
			Column: columnName(heuristics.LastSegment(fk.Field)),
			Type:   models.IndexBTree,
			Reason: fmt.Sprintf("references %s", *fk.ToTable),
		})
	}

	for _, e := range report.Entities {
		for _, fk := range e.ForeignKeys {
			set.add(models.IndexRecommendation{
				Table:  e.TableName,
				Column: columnName(fk.FieldName),
				Type:   models.IndexBTree,
				Reason: "foreign key candidate",
			})
		}
	}

	for _, cat := range heuristics.FilterCategories {
		for _, p := range report.FilterCandidates[string(cat)].Fields {
			table, column, ok := fieldColumn(p, pathTables)
			if !ok {
				continue
			}
			set.add(models.IndexRecommendation{
				Table:  table,
				Column: column,
				Type:   models.IndexBTree,
				Reason: fmt.Sprintf("%s filter", cat),
			})
		}
	}

	for _, p := range report.SearchCandidates.FullText {
		table, column, ok := fieldColumn(p, pathTables)
		if !ok {
			continue
		}
		set.add(models.IndexRecommendation{
			Table:  table,
			Column: column,
			Type:   models.IndexFulltext,
			Reason: "full-text search",
		})
	}

	b.geoIndexes(set, report.SearchCandidates.Geo, pathTables)

	return set.recs
}

// geoIndexes collapses a latitude/longitude pair on one table into a single
// SPATIAL index; unpaired geo columns get a plain index.
func (b *reportBuilder) geoIndexes(set *indexSet, geoPaths []string, pathTables map[string]string) {
	type geoColumns struct {
		lat, lng string
		other    []string
	}
	byTable := make(map[string]*geoColumns)
	var tables []string

	for _, p := range geoPaths {
		table, column, ok := fieldColumn(p, pathTables)
		if !ok {
			continue
		}
		g, exists := byTable[table]
		if !exists {
			g = &geoColumns{}
			byTable[table] = g
			tables = append(tables, table)
		}
		name := heuristics.LastSegment(p)
		switch {
		case heuristics.IsLatitude(name) && g.lat == "":
			g.lat = column
		case heuristics.IsLongitude(name) && g.lng == "":
			g.lng = column
		default:
			g.other = append(g.other, column)
		}
	}

	for _, table := range tables {
		g := byTable[table]
		if g.lat != "" && g.lng != "" {
			set.add(models.IndexRecommendation{
				Table:   table,
				Column:  g.lat + "," + g.lng,
				Columns: []string{g.lat, g.lng},
				Type:    models.IndexSpatial,
				Reason:  "latitude/longitude pair",
			})
		} else {
			if g.lat != "" {
				g.other = append(g.other, g.lat)
			}
			if g.lng != "" {
				g.other = append(g.other, g.lng)
			}
		}
		for _, column := range g.other {
			set.add(models.IndexRecommendation{
				Table:  table,
				Column: column,
				Type:   models.IndexBTree,
				Reason: "geo lookup",
			})
		}
	}
}

// fieldColumn maps a field path to its owning table and a flattened column name.
// Fields outside any entity have no table.
func fieldColumn(path string, pathTables map[string]string) (table, column string, ok bool) {
	entity, rest, ok := ownerEntityPath(path)
	if !ok {
		return "", "", false
	}
	table, ok = pathTables[entity]
	if !ok {
		return "", "", false
	}
	return table, columnName(strings.ReplaceAll(rest, ".", "_")), true
}

func columnName(name string) string {
	return heuristics.ToSnakeCase(name)
}
