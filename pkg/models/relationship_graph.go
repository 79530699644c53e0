package models

// Relationship types.
const (
	RelationshipOneToMany    = "one_to_many"
	RelationshipManyToOne    = "many_to_one"
	RelationshipUnresolvedFK = "unresolved_fk"
)

// Detection methods for relationship edges.
const (
	ViaNesting    = "nesting"     // JSON structural containment; always confidence 1.0
	ViaForeignKey = "foreign_key" // *_id naming heuristic
)

// Confidence levels assigned by the relationship analyzer.
const (
	ConfidenceNesting      = 1.0
	ConfidenceForeignKey   = 0.85
	ConfidenceUnresolvedFK = 0.5
)

// Graph statuses.
const (
	GraphStatusOK         = "ok"
	GraphStatusNoEntities = "no_entities"
)

// Hierarchy shapes.
const (
	HierarchyTree   = "tree"
	HierarchyForest = "forest"
)

// CircularDependencyNote tags tables that could not be topologically ordered.
const CircularDependencyNote = "circular dependency — verify manually"

// RelationshipEdge is a detected link between two entities.
// Invariants: Via=nesting implies Confidence=1.0; From != To.
type RelationshipEdge struct {
	From       string  `json:"from"`
	To         *string `json:"to"` // nil when the reference could not be resolved
	Type       string  `json:"type"`
	Via        string  `json:"via"`
	Confidence float64 `json:"confidence"`
	Field      string  `json:"field,omitempty"` // referencing field for foreign_key edges
	Note       string  `json:"note,omitempty"`
}

// IsResolved reports whether the edge points at a known entity.
func (e *RelationshipEdge) IsResolved() bool {
	return e.To != nil
}

// EntityNode is one entity in a RelationshipGraph.
type EntityNode struct {
	Path         string                `json:"path"`
	Name         string                `json:"name"`
	TableName    string                `json:"table_name"`
	Depth        int                   `json:"depth"`
	ItemCount    int                   `json:"item_count"`
	IDField      *string               `json:"id_field"`
	Parent       *string               `json:"parent"`
	Children     []string              `json:"children"`
	DirectFields []string              `json:"direct_fields"`
	ForeignKeys  []ForeignKeyCandidate `json:"foreign_keys"`
}

// HierarchyNode is one entity in the nesting tree.
type HierarchyNode struct {
	Entity    string           `json:"entity"`
	TableName string           `json:"table_name"`
	ItemCount int              `json:"item_count"`
	Children  []*HierarchyNode `json:"children"`
}

// Hierarchy is either a single tree (Root) or a forest (Roots).
type Hierarchy struct {
	Type  string           `json:"type"`
	Root  *HierarchyNode   `json:"root,omitempty"`
	Roots []*HierarchyNode `json:"roots,omitempty"`
}

// SuggestedTable is one step of the dependency-respecting table creation order.
type SuggestedTable struct {
	Order     int      `json:"order"`
	Entity    string   `json:"entity"`
	TableName string   `json:"table_name"`
	DependsOn []string `json:"depends_on"`
	Note      string   `json:"note,omitempty"`
}

// RelationshipGraph is the entity graph inferred from one SchemaReport.
// Every entity appears exactly once in SuggestedTables.
type RelationshipGraph struct {
	SourceURL       string                 `json:"source_url"`
	Status          string                 `json:"status"`
	Message         string                 `json:"message,omitempty"`
	Entities        map[string]*EntityNode `json:"entities"`
	Relationships   []*RelationshipEdge    `json:"relationships"`
	Hierarchy       *Hierarchy             `json:"hierarchy"`
	SuggestedTables []*SuggestedTable      `json:"suggested_tables"`
}
