package models

import "time"

// Index recommendation kinds.
const (
	IndexPrimary  = "PRIMARY KEY"
	IndexBTree    = "INDEX"
	IndexFulltext = "FULLTEXT"
	IndexSpatial  = "SPATIAL"
)

// ReportMeta describes a Report run.
type ReportMeta struct {
	RunID             string    `json:"run_id"`
	PrimaryURL        string    `json:"primary_url"`
	GeneratedAt       time.Time `json:"generated_at"`
	EndpointsAnalyzed int       `json:"endpoints_analyzed"`
	FilesCollected    int       `json:"files_collected"`
	DiscoveryErrors   int       `json:"discovery_errors"`
	TotalFields       int       `json:"total_fields"`
	TotalEntities     int       `json:"total_entities"`
}

// MergedField is one field path unioned across every endpoint.
// Occurrences and NullCount are sums; EnumValues is the unioned histogram.
type MergedField struct {
	Path            string         `json:"path"`
	Type            string         `json:"type"`
	Occurrences     int            `json:"occurrences"`
	NullCount       int            `json:"null_count"`
	Depth           int            `json:"depth"`
	Example         *string        `json:"example"`
	IsEnumCandidate bool           `json:"is_enum_candidate"`
	EnumValues      map[string]int `json:"enum_values,omitempty"`
	Endpoints       []string       `json:"endpoints"`
}

// EntityFieldGroups classifies an entity's direct fields.
type EntityFieldGroups struct {
	Required []string `json:"required"`
	Nullable []string `json:"nullable"`
	Enum     []string `json:"enum"`
	Numeric  []string `json:"numeric"`
	Date     []string `json:"date"`
	Text     []string `json:"text"`
	Geo      []string `json:"geo"`
}

// ReportEntity is one logical table merged across endpoints, keyed by table name.
type ReportEntity struct {
	TableName   string                `json:"table_name"`
	Name        string                `json:"name"`
	Paths       []string              `json:"paths"`
	Endpoints   []string              `json:"endpoints"`
	ItemCount   int                   `json:"item_count"`
	IDField     *string               `json:"id_field"`
	Parent      *string               `json:"parent"` // parent table name
	Children    []string              `json:"children"`
	ForeignKeys []ForeignKeyCandidate `json:"foreign_keys"`
	Fields      EntityFieldGroups     `json:"fields"`
	Keywords    map[string][]string   `json:"keywords"` // category -> direct field paths
}

// HierarchyLink is a flattened nesting edge.
type HierarchyLink struct {
	ParentTable  string `json:"parent_table"`
	ChildTable   string `json:"child_table"`
	ParentEntity string `json:"parent_entity"`
	ChildEntity  string `json:"child_entity"`
}

// ForeignKeyLink is a flattened, deduplicated foreign-key edge.
type ForeignKeyLink struct {
	FromTable  string  `json:"from_table"`
	ToTable    *string `json:"to_table"`
	Field      string  `json:"field"`
	Confidence float64 `json:"confidence"`
	Resolved   bool    `json:"resolved"`
}

// ConfidenceScore keeps every edge for audit.
type ConfidenceScore struct {
	Endpoint   string  `json:"endpoint"`
	From       string  `json:"from"`
	To         *string `json:"to"`
	Type       string  `json:"type"`
	Via        string  `json:"via"`
	Confidence float64 `json:"confidence"`
	Note       string  `json:"note,omitempty"`
}

// RelationshipSummary consolidates relationship graphs across endpoints.
type RelationshipSummary struct {
	Hierarchy           []HierarchyLink   `json:"hierarchy"`
	ForeignKeys         []ForeignKeyLink  `json:"foreign_keys"`
	ConfidenceScores    []ConfidenceScore `json:"confidence_scores"`
	SuggestedTableOrder []string          `json:"suggested_table_order"`
	CircularTables      []string          `json:"circular_tables"`
}

// FilterCandidate reports one filter category.
type FilterCandidate struct {
	Available bool     `json:"available"`
	Fields    []string `json:"fields"`
}

// SearchCandidates lists full-text and geo search fields.
type SearchCandidates struct {
	FullText []string `json:"full_text"`
	Geo      []string `json:"geo"`
}

// IndexRecommendation proposes one index.
type IndexRecommendation struct {
	Table   string   `json:"table"`
	Column  string   `json:"column"`
	Columns []string `json:"columns,omitempty"` // composite (spatial) indexes
	Type    string   `json:"type"`
	Reason  string   `json:"reason"`
}

// EnumCandidate is an enum-like field with its value histogram.
type EnumCandidate struct {
	Path   string         `json:"path"`
	Values map[string]int `json:"values"`
}

// EndpointQuality is the data quality breakdown for one endpoint.
type EndpointQuality struct {
	URL           string  `json:"url"`
	Label         string  `json:"label"`
	TotalFields   int     `json:"total_fields"`
	Entities      int     `json:"entities"`
	NullableRatio float64 `json:"nullable_ratio"`
	MaxDepth      int     `json:"max_depth"`
	MixedFields   int     `json:"mixed_fields"`
}

// SuspiciousValue is an observed feed value that parses as SQL injection.
type SuspiciousValue struct {
	Path        string `json:"path"`
	Value       string `json:"value"`
	Fingerprint string `json:"fingerprint"`
}

// DataQuality flags structural risks in the merged schema.
type DataQuality struct {
	NullableRatio    float64           `json:"nullable_ratio"`
	TypeDistribution map[string]int    `json:"type_distribution"`
	MaxDepth         int               `json:"max_depth"`
	EnumCandidates   []EnumCandidate   `json:"enum_candidates"`
	DynamicKeys      []string          `json:"dynamic_keys"`      // purely numeric path segments
	DeepArrays       []string          `json:"deep_arrays"`       // nested deeper than 2 array levels
	MixedTypeFields  []string          `json:"mixed_type_fields"` // schema drift
	SuspiciousValues []SuspiciousValue `json:"suspicious_values"`
	PerEndpoint      []EndpointQuality `json:"per_endpoint"`
}

// Report is the final cross-endpoint inference.
type Report struct {
	Meta                 ReportMeta                 `json:"meta"`
	Entities             []*ReportEntity            `json:"entities"`
	Relationships        RelationshipSummary        `json:"relationships"`
	FilterCandidates     map[string]FilterCandidate `json:"filter_candidates"`
	SearchCandidates     SearchCandidates           `json:"search_candidates"`
	IndexRecommendations []IndexRecommendation      `json:"index_recommendations"`
	DataQuality          DataQuality                `json:"data_quality"`
	Fields               map[string]*MergedField    `json:"fields"`

	// DDL is suggested PostgreSQL DDL: CREATE TABLE in table order, then
	// foreign key constraints, then indexes. Statements carry no trailing semicolon.
	DDL []string `json:"ddl"`
}
