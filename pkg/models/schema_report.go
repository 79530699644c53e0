package models

import "time"

// Resolved field types. A field whose non-null observations disagree is "mixed".
const (
	FieldTypeNull   = "null"
	FieldTypeBool   = "bool"
	FieldTypeInt    = "int"
	FieldTypeFloat  = "float"
	FieldTypeString = "string"
	FieldTypeArray  = "array"
	FieldTypeObject = "object"
	FieldTypeMixed  = "mixed"
)

// MapperConfig bounds one schema mapping run.
type MapperConfig struct {
	MaxDepth         int `json:"max_depth"`
	ArraySampleSize  int `json:"array_sample_size"`
	ExampleMaxLength int `json:"example_max_length"`
	EnumThreshold    int `json:"enum_threshold"`
}

// DefaultMapperConfig returns the limits used when none are configured.
func DefaultMapperConfig() MapperConfig {
	return MapperConfig{
		MaxDepth:         10,
		ArraySampleSize:  50,
		ExampleMaxLength: 100,
		EnumThreshold:    20,
	}
}

// FieldDescriptor describes one unique field path observed in a document.
// Invariant: Occurrences >= NullCount >= 0.
type FieldDescriptor struct {
	Path        string         `json:"path"`
	Type        string         `json:"type"`
	TypeCounts  map[string]int `json:"type_counts"` // observed type histogram, including null
	Occurrences int            `json:"occurrences"`
	NullCount   int            `json:"null_count"`
	NullRatio   float64        `json:"null_ratio"`
	Depth       int            `json:"depth"`
	Example     *string        `json:"example"` // first non-null scalar, truncated

	// DistinctValues is a bounded histogram of scalar values, capped at
	// enum_threshold+1 keys. DistinctOverflow is set once the cap was hit.
	DistinctValues   map[string]int `json:"distinct_values,omitempty"`
	DistinctOverflow bool           `json:"distinct_overflow,omitempty"`

	IsEnumCandidate bool           `json:"is_enum_candidate"`
	EnumValues      map[string]int `json:"enum_values,omitempty"`
	IsIDField       bool           `json:"is_id_field"`
}

// ForeignKeyCandidate is a direct entity field whose name suggests a reference.
type ForeignKeyCandidate struct {
	Field      string `json:"field"`       // full path
	FieldName  string `json:"field_name"`  // last segment
	TargetHint string `json:"target_hint"` // field name without its id suffix
}

// EntityDescriptor is an array-of-objects path, a candidate relational table.
// Invariant: Parent, when set, is a strict structural prefix of Path and a key
// of the owning report's Entities.
type EntityDescriptor struct {
	Path         string                `json:"path"`
	ItemCount    int                   `json:"item_count"`
	IDField      *string               `json:"id_field"`
	Parent       *string               `json:"parent"`
	DirectFields []string              `json:"direct_fields"`
	ForeignKeys  []ForeignKeyCandidate `json:"foreign_keys"`
}

// SchemaMeta describes how a SchemaReport was produced.
type SchemaMeta struct {
	SourceURL  string       `json:"source_url"`
	RootType   string       `json:"root_type"`
	AnalyzedAt time.Time    `json:"analyzed_at"`
	Config     MapperConfig `json:"config"`
}

// SchemaStats summarizes a SchemaReport. TotalFields always equals len(Fields).
type SchemaStats struct {
	TotalFields      int            `json:"total_fields"`
	TotalEntities    int            `json:"total_entities"`
	MaxDepth         int            `json:"max_depth"`
	NullableFields   int            `json:"nullable_fields"`
	EnumCandidates   int            `json:"enum_candidates"`
	TypeDistribution map[string]int `json:"type_distribution"`
}

// SchemaReport is the inferred schema of one decoded document.
type SchemaReport struct {
	Meta     SchemaMeta                   `json:"meta"`
	Stats    SchemaStats                  `json:"stats"`
	Entities map[string]*EntityDescriptor `json:"entities"`
	Fields   map[string]*FieldDescriptor  `json:"fields"`

	// EntityOrder lists entity paths by nesting depth ascending, then path.
	EntityOrder []string `json:"entity_order"`

	IDFields       []string `json:"id_fields"`
	EnumCandidates []string `json:"enum_candidates"`
	NullableFields []string `json:"nullable_fields"`
}

// OrderedEntities returns the entities in EntityOrder.
func (r *SchemaReport) OrderedEntities() []*EntityDescriptor {
	out := make([]*EntityDescriptor, 0, len(r.EntityOrder))
	for _, path := range r.EntityOrder {
		if e, ok := r.Entities[path]; ok {
			out = append(out, e)
		}
	}
	return out
}
