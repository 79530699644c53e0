package services

import (
	"strings"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/heuristics"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/logging"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/models"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/sql"
)

const (
	// maxModeledArrayDepth is the deepest array nesting a relational model is
	// expected to capture.
	maxModeledArrayDepth = 2

	maxSuspiciousValueLength = 100
)

func buildDataQuality(manifest *models.DiscoveryManifest, endpoints []string, schemas map[string]*models.SchemaReport, fields map[string]*models.MergedField, fieldPaths []string) models.DataQuality {
	dq := models.DataQuality{
		TypeDistribution: make(map[string]int),
		EnumCandidates:   []models.EnumCandidate{},
		DynamicKeys:      []string{},
		DeepArrays:       []string{},
		MixedTypeFields:  []string{},
		SuspiciousValues: []models.SuspiciousValue{},
		PerEndpoint:      []models.EndpointQuality{},
	}

	nullable := 0
	for _, p := range fieldPaths {
		f := fields[p]
		dq.TypeDistribution[f.Type]++
		if f.NullCount > 0 {
			nullable++
		}
		if f.Depth > dq.MaxDepth {
			dq.MaxDepth = f.Depth
		}
		if f.IsEnumCandidate {
			dq.EnumCandidates = append(dq.EnumCandidates, models.EnumCandidate{Path: p, Values: f.EnumValues})
		}
		if hasNumericSegment(p) {
			dq.DynamicKeys = append(dq.DynamicKeys, p)
		}
		if strings.HasSuffix(p, heuristics.ArraySuffix) && heuristics.ArrayDepth(p) > maxModeledArrayDepth {
			dq.DeepArrays = append(dq.DeepArrays, p)
		}
		if f.Type == models.FieldTypeMixed {
			dq.MixedTypeFields = append(dq.MixedTypeFields, p)
		}
		dq.SuspiciousValues = append(dq.SuspiciousValues, suspiciousValues(p, f)...)
	}
	if len(fieldPaths) > 0 {
		dq.NullableRatio = round4(float64(nullable) / float64(len(fieldPaths)))
	}

	for _, url := range endpoints {
		schema := schemas[url]
		if schema == nil {
			continue
		}
		eq := models.EndpointQuality{
			URL:         url,
			Label:       manifest.LabelFor(url),
			TotalFields: schema.Stats.TotalFields,
			Entities:    schema.Stats.TotalEntities,
			MaxDepth:    schema.Stats.MaxDepth,
			MixedFields: schema.Stats.TypeDistribution[models.FieldTypeMixed],
		}
		if schema.Stats.TotalFields > 0 {
			eq.NullableRatio = round4(float64(schema.Stats.NullableFields) / float64(schema.Stats.TotalFields))
		}
		dq.PerEndpoint = append(dq.PerEndpoint, eq)
	}

	return dq
}

// suspiciousValues screens the example and enum values of a field.
func suspiciousValues(path string, f *models.MergedField) []models.SuspiciousValue {
	var values []string
	if f.Example != nil {
		values = append(values, *f.Example)
	}
	for v := range f.EnumValues {
		values = append(values, v)
	}

	var out []models.SuspiciousValue
	for _, r := range sql.CheckValues(path, values) {
		out = append(out, models.SuspiciousValue{
			Path:        r.Path,
			Value:       logging.TruncateString(r.Value, maxSuspiciousValueLength),
			Fingerprint: r.Fingerprint,
		})
	}
	return out
}

// hasNumericSegment flags paths that use ids as object keys.
func hasNumericSegment(path string) bool {
	for _, seg := range heuristics.Segments(path) {
		if heuristics.IsNumericSegment(seg) {
			return true
		}
	}
	return false
}
