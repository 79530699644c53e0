package services

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/models"
)

func analyzeGraph(t *testing.T, raw string) *models.RelationshipGraph {
	t.Helper()
	schema := analyzeDoc(t, raw)
	return NewRelationshipAnalyzer(nil, zap.NewNop()).Analyze(schema, "https://feed.example.com/api")
}

func tableOrder(graph *models.RelationshipGraph) []string {
	out := make([]string, 0, len(graph.SuggestedTables))
	for _, st := range graph.SuggestedTables {
		out = append(out, st.TableName)
	}
	return out
}

// assertTopologicalOrder checks that every resolved many_to_one target is
// placed no later than its source, unless the source is tagged circular.
func assertTopologicalOrder(t *testing.T, graph *models.RelationshipGraph) {
	t.Helper()
	index := make(map[string]int, len(graph.SuggestedTables))
	circular := make(map[string]bool)
	for i, st := range graph.SuggestedTables {
		_, dup := index[st.Entity]
		assert.False(t, dup, "entity %s listed twice", st.Entity)
		index[st.Entity] = i
		assert.Equal(t, i+1, st.Order)
		if st.Note == models.CircularDependencyNote {
			circular[st.Entity] = true
		}
	}
	assert.Len(t, index, len(graph.Entities))

	for _, e := range graph.Relationships {
		if e.Type != models.RelationshipManyToOne || e.To == nil || circular[e.From] {
			continue
		}
		assert.LessOrEqual(t, index[*e.To], index[e.From], "%s must come before %s", *e.To, e.From)
	}
}

func findEdge(graph *models.RelationshipGraph, from, via, relType string) *models.RelationshipEdge {
	for _, e := range graph.Relationships {
		if e.From == from && e.Via == via && e.Type == relType {
			return e
		}
	}
	return nil
}

func TestRelationshipAnalyzer_ForeignKeyResolvesToPluralTable(t *testing.T) {
	graph := analyzeGraph(t, `{
		"projects":[{"id":1,"name":"X","developer_id":9},{"id":2,"name":"Y","developer_id":9}],
		"developers":[{"id":9,"name":"Z"}]
	}`)

	assert.Equal(t, models.GraphStatusOK, graph.Status)
	require.Len(t, graph.Relationships, 1)
	edge := graph.Relationships[0]
	assert.Equal(t, "projects[]", edge.From)
	require.NotNil(t, edge.To)
	assert.Equal(t, "developers[]", *edge.To)
	assert.Equal(t, models.RelationshipManyToOne, edge.Type)
	assert.Equal(t, models.ViaForeignKey, edge.Via)
	assert.Equal(t, models.ConfidenceForeignKey, edge.Confidence)
	assert.Equal(t, "projects[].developer_id", edge.Field)

	assert.Equal(t, []string{"developers", "projects"}, tableOrder(graph))
	assert.Equal(t, []string{"developers"}, graph.SuggestedTables[1].DependsOn)
	assertTopologicalOrder(t, graph)

	require.NotNil(t, graph.Hierarchy)
	assert.Equal(t, models.HierarchyForest, graph.Hierarchy.Type)
	assert.Len(t, graph.Hierarchy.Roots, 2)
}

func TestRelationshipAnalyzer_UnresolvedForeignKey(t *testing.T) {
	graph := analyzeGraph(t, `{"flats":[{"id":1,"owner_id":3}]}`)

	require.Len(t, graph.Relationships, 1)
	edge := graph.Relationships[0]
	assert.Equal(t, models.RelationshipUnresolvedFK, edge.Type)
	assert.Nil(t, edge.To)
	assert.False(t, edge.IsResolved())
	assert.Equal(t, models.ConfidenceUnresolvedFK, edge.Confidence)
	assert.Equal(t, "flats[].owner_id", edge.Field)

	require.Len(t, graph.SuggestedTables, 1)
	assert.Empty(t, graph.SuggestedTables[0].Note)
}

func TestRelationshipAnalyzer_SeparateUnresolvedFieldsAreKept(t *testing.T) {
	graph := analyzeGraph(t, `{"flats":[{"id":1,"owner_id":3,"agentId":4}]}`)

	var fields []string
	for _, e := range graph.Relationships {
		assert.Equal(t, models.RelationshipUnresolvedFK, e.Type)
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{"flats[].owner_id", "flats[].agentId"}, fields)
}

func TestRelationshipAnalyzer_NestingEdgesAndTree(t *testing.T) {
	graph := analyzeGraph(t, `{"projects":[{"id":1,"buildings":[{"id":10,"flats":[{"id":100}]}]}]}`)

	buildings := "projects[].buildings[]"
	up := findEdge(graph, buildings, models.ViaNesting, models.RelationshipManyToOne)
	require.NotNil(t, up)
	assert.Equal(t, "projects[]", *up.To)
	assert.Equal(t, models.ConfidenceNesting, up.Confidence)

	down := findEdge(graph, "projects[]", models.ViaNesting, models.RelationshipOneToMany)
	require.NotNil(t, down)
	assert.Equal(t, buildings, *down.To)

	assert.Equal(t, []string{buildings}, graph.Entities["projects[]"].Children)
	assert.Equal(t, "buildings", graph.Entities[buildings].TableName)
	assert.Equal(t, 2, graph.Entities[buildings].Depth)

	require.NotNil(t, graph.Hierarchy)
	assert.Equal(t, models.HierarchyTree, graph.Hierarchy.Type)
	root := graph.Hierarchy.Root
	require.NotNil(t, root)
	assert.Equal(t, "projects", root.TableName)
	require.Len(t, root.Children, 1)
	require.Len(t, root.Children[0].Children, 1)
	assert.Equal(t, "flats", root.Children[0].Children[0].TableName)

	assert.Equal(t, []string{"projects", "buildings", "flats"}, tableOrder(graph))
	assertTopologicalOrder(t, graph)
}

func TestRelationshipAnalyzer_NestingPrecedesForeignKeyAndDeduplicates(t *testing.T) {
	// buildings nested in projects also carry project_id: both edges survive,
	// nesting first, since they differ by via.
	graph := analyzeGraph(t, `{"projects":[{"id":1,"buildings":[{"id":10,"project_id":1}]}]}`)

	require.NotEmpty(t, graph.Relationships)
	assert.Equal(t, models.ViaNesting, graph.Relationships[0].Via)

	var fkCount int
	for _, e := range graph.Relationships {
		if e.Via == models.ViaForeignKey {
			fkCount++
			assert.Equal(t, "projects[]", *e.To)
		}
	}
	assert.Equal(t, 1, fkCount)
	assertTopologicalOrder(t, graph)
}

func TestRelationshipAnalyzer_TableOrderRespectsDependencies(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		entities int
	}{
		{
			name: "chain",
			raw: `{
				"flats":[{"id":1,"building_id":2}],
				"buildings":[{"id":2,"project_id":3}],
				"projects":[{"id":3,"developer_id":4}],
				"developers":[{"id":4}]
			}`,
			entities: 4,
		},
		{
			name: "diamond",
			raw: `{
				"offers":[{"id":1,"flat_id":2,"agent_id":3}],
				"flats":[{"id":2,"bank_id":4}],
				"agents":[{"id":3,"bank_id":4}],
				"banks":[{"id":4}]
			}`,
			entities: 4,
		},
		{
			name:     "nesting with reference to another root",
			raw:      `{"projects":[{"id":1,"buildings":[{"id":2,"flats":[{"id":3,"seller_id":9}]}]}],"sellers":[{"id":9}]}`,
			entities: 4,
		},
		{
			name: "cycle with a dependent",
			raw: `{
				"authors":[{"id":1,"book_id":2}],
				"books":[{"id":2,"author_id":1}],
				"reviews":[{"id":3,"book_id":2}],
				"publishers":[{"id":4}]
			}`,
			entities: 4,
		},
		{
			name:     "unresolved references only",
			raw:      `{"flats":[{"id":1,"district_id":5,"metro_id":6}]}`,
			entities: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			graph := analyzeGraph(t, tt.raw)
			require.Len(t, graph.Entities, tt.entities)
			require.Len(t, graph.SuggestedTables, tt.entities)
			assertTopologicalOrder(t, graph)
		})
	}
}

func TestRelationshipAnalyzer_TableOrderRespectsRandomReferences(t *testing.T) {
	names := []string{"agents", "banks", "builders", "districts", "flats", "offers", "projects", "sellers"}

	for seed := int64(1); seed <= 25; seed++ {
		t.Run(fmt.Sprintf("seed_%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			doc := make(map[string][]map[string]any, len(names))
			for i, name := range names {
				item := map[string]any{"id": i + 1}
				for j, other := range names {
					if j != i && rng.Float64() < 0.3 {
						item[other[:len(other)-1]+"_id"] = j + 1
					}
				}
				doc[name] = []map[string]any{item}
			}
			raw, err := json.Marshal(doc)
			require.NoError(t, err)

			graph := analyzeGraph(t, string(raw))
			require.Len(t, graph.SuggestedTables, len(names))
			assertTopologicalOrder(t, graph)
		})
	}
}

func TestRelationshipAnalyzer_SelfReferenceIsSkipped(t *testing.T) {
	graph := analyzeGraph(t, `{"regions":[{"id":1,"region_id":null},{"id":2,"region_id":1}]}`)

	assert.Empty(t, graph.Relationships)
	require.Len(t, graph.SuggestedTables, 1)
}

func TestRelationshipAnalyzer_CycleIsTaggedNotDropped(t *testing.T) {
	graph := analyzeGraph(t, `{
		"authors":[{"id":1,"book_id":2}],
		"books":[{"id":2,"author_id":1}],
		"publishers":[{"id":3}]
	}`)

	require.Len(t, graph.SuggestedTables, 3)
	assert.Equal(t, "publishers", graph.SuggestedTables[0].TableName)
	assert.Empty(t, graph.SuggestedTables[0].Note)
	for _, st := range graph.SuggestedTables[1:] {
		assert.Equal(t, models.CircularDependencyNote, st.Note)
	}
	assertTopologicalOrder(t, graph)
}

func TestRelationshipAnalyzer_TiesBreakByDepth(t *testing.T) {
	graph := analyzeGraph(t, `{
		"zones":[{"id":1,"areas":[{"id":2}]}],
		"blocks":[{"id":3}]
	}`)

	order := tableOrder(graph)
	require.Len(t, order, 3)
	assert.Equal(t, []string{"blocks", "zones", "areas"}, order)
}

func TestRelationshipAnalyzer_RootListEntity(t *testing.T) {
	graph := analyzeGraph(t, `[{"id":1,"complexes":[{"id":5}]}]`)

	root := graph.Entities["[]"]
	require.NotNil(t, root)
	assert.Equal(t, "root", root.Name)
	assert.Equal(t, "root", root.TableName)
	assert.Equal(t, []string{"[].complexes[]"}, root.Children)
}

func TestRelationshipAnalyzer_NoEntities(t *testing.T) {
	graph := analyzeGraph(t, `{"a":{"b":{"c":1}}}`)

	assert.Equal(t, models.GraphStatusNoEntities, graph.Status)
	assert.Equal(t, "no entities detected", graph.Message)
	assert.Nil(t, graph.Hierarchy)
	assert.Empty(t, graph.Relationships)
	assert.Empty(t, graph.SuggestedTables)

	graph = NewRelationshipAnalyzer(nil, zap.NewNop()).Analyze(nil, "")
	assert.Equal(t, models.GraphStatusNoEntities, graph.Status)
}

func TestRelationshipAnalyzer_HandBuiltSchema(t *testing.T) {
	parent := "complexes[]"
	schema := &models.SchemaReport{
		Entities: map[string]*models.EntityDescriptor{
			"complexes[]": {Path: "complexes[]", ItemCount: 2},
			"complexes[].houses[]": {
				Path:      "complexes[].houses[]",
				ItemCount: 4,
				Parent:    &parent,
				ForeignKeys: []models.ForeignKeyCandidate{
					{Field: "complexes[].houses[].ownerId", FieldName: "ownerId", TargetHint: "owner"},
				},
			},
		},
	}

	graph := NewRelationshipAnalyzer(nil, zap.NewNop()).Analyze(schema, "")

	assert.Equal(t, []string{"complexes", "houses"}, tableOrder(graph))
	unresolved := findEdge(graph, "complexes[].houses[]", models.ViaForeignKey, models.RelationshipUnresolvedFK)
	require.NotNil(t, unresolved)
	assert.Nil(t, unresolved.To)
	assertTopologicalOrder(t, graph)
}
