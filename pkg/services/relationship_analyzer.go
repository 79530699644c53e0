package services

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/heuristics"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/models"
)

// rootEntityName names the synthetic entity of a root-level list.
const rootEntityName = "root"

// RelationshipAnalyzer builds an entity graph from one SchemaReport.
type RelationshipAnalyzer interface {
	// Analyze returns a graph with Status=no_entities when the schema has none.
	Analyze(schema *models.SchemaReport, sourceURL string) *models.RelationshipGraph
}

type relationshipAnalyzer struct {
	inflector heuristics.Inflector
	logger    *zap.Logger
}

// NewRelationshipAnalyzer creates a new RelationshipAnalyzer.
func NewRelationshipAnalyzer(inflector heuristics.Inflector, logger *zap.Logger) RelationshipAnalyzer {
	if inflector == nil {
		inflector = heuristics.NewInflector()
	}
	return &relationshipAnalyzer{
		inflector: inflector,
		logger:    logger.Named("relationship-analyzer"),
	}
}

func (a *relationshipAnalyzer) Analyze(schema *models.SchemaReport, sourceURL string) *models.RelationshipGraph {
	graph := &models.RelationshipGraph{
		SourceURL:       sourceURL,
		Status:          models.GraphStatusOK,
		Entities:        make(map[string]*models.EntityNode),
		Relationships:   []*models.RelationshipEdge{},
		SuggestedTables: []*models.SuggestedTable{},
	}

	if schema == nil || len(schema.Entities) == 0 {
		graph.Status = models.GraphStatusNoEntities
		graph.Message = "no entities detected"
		return graph
	}

	for _, entity := range orderedEntities(schema) {
		graph.Entities[entity.Path] = a.buildNode(entity)
	}

	nesting := a.nestingEdges(graph.Entities)
	foreign := a.foreignKeyEdges(graph.Entities)
	graph.Relationships = dedupeEdges(append(nesting, foreign...))

	attachChildren(graph.Entities, graph.Relationships)
	graph.Hierarchy = buildHierarchy(graph.Entities)
	graph.SuggestedTables = suggestTableOrder(graph.Entities, graph.Relationships)

	a.logger.Debug("Relationships analyzed",
		zap.String("source_url", sourceURL),
		zap.Int("entities", len(graph.Entities)),
		zap.Int("relationships", len(graph.Relationships)))

	return graph
}

// orderedEntities uses EntityOrder when present and falls back to sorted paths,
// so reports built by hand or loaded from disk are also accepted.
func orderedEntities(schema *models.SchemaReport) []*models.EntityDescriptor {
	if len(schema.EntityOrder) == len(schema.Entities) {
		return schema.OrderedEntities()
	}
	paths := make([]string, 0, len(schema.Entities))
	for p := range schema.Entities {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	out := make([]*models.EntityDescriptor, 0, len(paths))
	for _, p := range paths {
		out = append(out, schema.Entities[p])
	}
	return out
}

func (a *relationshipAnalyzer) buildNode(entity *models.EntityDescriptor) *models.EntityNode {
	name := EntityName(entity.Path)
	fks := entity.ForeignKeys
	if fks == nil {
		fks = []models.ForeignKeyCandidate{}
	}
	return &models.EntityNode{
		Path:         entity.Path,
		Name:         name,
		TableName:    heuristics.ToSnakeCase(name),
		Depth:        heuristics.ArrayDepth(entity.Path),
		ItemCount:    entity.ItemCount,
		IDField:      entity.IDField,
		Parent:       entity.Parent,
		Children:     []string{},
		DirectFields: entity.DirectFields,
		ForeignKeys:  fks,
	}
}

// EntityName returns the last bracketed segment of an entity path.
func EntityName(path string) string {
	name := heuristics.LastSegment(path)
	if name == "" {
		return rootEntityName
	}
	return name
}

// TableName returns the snake_case table name for an entity path.
func TableName(path string) string {
	return heuristics.ToSnakeCase(EntityName(path))
}

// nestingEdges emits child->parent many_to_one and parent->child one_to_many
// edges for every entity whose parent is a known entity.
func (a *relationshipAnalyzer) nestingEdges(nodes map[string]*models.EntityNode) []*models.RelationshipEdge {
	var edges []*models.RelationshipEdge
	for _, path := range sortedNodePaths(nodes) {
		node := nodes[path]
		if node.Parent == nil {
			continue
		}
		parent := *node.Parent
		if _, ok := nodes[parent]; !ok || parent == path {
			continue
		}
		child := path
		edges = append(edges,
			&models.RelationshipEdge{
				From:       child,
				To:         &parent,
				Type:       models.RelationshipManyToOne,
				Via:        models.ViaNesting,
				Confidence: models.ConfidenceNesting,
				Note:       fmt.Sprintf("%s items are nested inside %s", node.TableName, nodes[parent].TableName),
			},
			&models.RelationshipEdge{
				From:       parent,
				To:         &child,
				Type:       models.RelationshipOneToMany,
				Via:        models.ViaNesting,
				Confidence: models.ConfidenceNesting,
				Note:       fmt.Sprintf("%s contains %s", nodes[parent].TableName, node.TableName),
			},
		)
	}
	return edges
}

// foreignKeyEdges resolves each entity's target hints against the table index.
// Unresolved hints become unresolved_fk edges; they are never discarded.
func (a *relationshipAnalyzer) foreignKeyEdges(nodes map[string]*models.EntityNode) []*models.RelationshipEdge {
	index := a.tableIndex(nodes)

	var edges []*models.RelationshipEdge
	for _, path := range sortedNodePaths(nodes) {
		node := nodes[path]
		for _, fk := range node.ForeignKeys {
			hint := heuristics.ToSnakeCase(fk.TargetHint)
			if hint == "" {
				continue
			}

			target, ok := index[hint]
			if !ok {
				target, ok = index[a.inflector.Plural(hint)]
			}

			if !ok {
				edges = append(edges, &models.RelationshipEdge{
					From:       path,
					To:         nil,
					Type:       models.RelationshipUnresolvedFK,
					Via:        models.ViaForeignKey,
					Confidence: models.ConfidenceUnresolvedFK,
					Field:      fk.Field,
					Note:       fmt.Sprintf("no entity matches hint %q", fk.TargetHint),
				})
				continue
			}
			if target == path {
				continue
			}

			to := target
			edges = append(edges, &models.RelationshipEdge{
				From:       path,
				To:         &to,
				Type:       models.RelationshipManyToOne,
				Via:        models.ViaForeignKey,
				Confidence: models.ConfidenceForeignKey,
				Field:      fk.Field,
				Note:       fmt.Sprintf("%s references %s", fk.FieldName, nodes[target].TableName),
			})
		}
	}
	return edges
}

// tableIndex maps table names and their singular forms to entity paths.
// Shallower entities win collisions so references resolve to top-level tables.
func (a *relationshipAnalyzer) tableIndex(nodes map[string]*models.EntityNode) map[string]string {
	index := make(map[string]string)
	for _, path := range sortedNodePaths(nodes) {
		node := nodes[path]
		for _, key := range []string{node.TableName, a.inflector.Singular(node.TableName)} {
			if key == "" {
				continue
			}
			if existing, ok := index[key]; ok && nodes[existing].Depth <= node.Depth {
				continue
			}
			index[key] = path
		}
	}
	return index
}

// dedupeEdges keeps the first edge per (from, to, via), with nesting edges
// ahead of foreign-key edges. Unresolved edges key on their field instead of
// the missing target, so each unresolved reference survives.
func dedupeEdges(edges []*models.RelationshipEdge) []*models.RelationshipEdge {
	sort.SliceStable(edges, func(i, j int) bool {
		return viaRank(edges[i].Via) < viaRank(edges[j].Via)
	})

	seen := make(map[string]bool, len(edges))
	out := make([]*models.RelationshipEdge, 0, len(edges))
	for _, e := range edges {
		if e.To != nil && *e.To == e.From {
			continue
		}
		to := "?" + e.Field
		if e.To != nil {
			to = *e.To
		}
		key := e.From + "\x00" + to + "\x00" + e.Via
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}

func viaRank(via string) int {
	if via == models.ViaNesting {
		return 0
	}
	return 1
}

// attachChildren fills Children from one_to_many nesting edges. Idempotent.
func attachChildren(nodes map[string]*models.EntityNode, edges []*models.RelationshipEdge) {
	for _, e := range edges {
		if e.Type != models.RelationshipOneToMany || e.Via != models.ViaNesting || e.To == nil {
			continue
		}
		parent, ok := nodes[e.From]
		if !ok || containsString(parent.Children, *e.To) {
			continue
		}
		parent.Children = append(parent.Children, *e.To)
	}
	for _, node := range nodes {
		sort.Strings(node.Children)
	}
}

// buildHierarchy returns nil for no roots, a tree for one root and a forest otherwise.
func buildHierarchy(nodes map[string]*models.EntityNode) *models.Hierarchy {
	var roots []string
	for _, path := range sortedNodePaths(nodes) {
		node := nodes[path]
		if node.Parent == nil {
			roots = append(roots, path)
			continue
		}
		if _, ok := nodes[*node.Parent]; !ok {
			roots = append(roots, path)
		}
	}

	switch len(roots) {
	case 0:
		return nil
	case 1:
		return &models.Hierarchy{
			Type: models.HierarchyTree,
			Root: hierarchyNode(roots[0], nodes, map[string]bool{}),
		}
	default:
		forest := &models.Hierarchy{Type: models.HierarchyForest}
		visited := map[string]bool{}
		for _, r := range roots {
			forest.Roots = append(forest.Roots, hierarchyNode(r, nodes, visited))
		}
		return forest
	}
}

// hierarchyNode recurses over Children. Nesting depth is bounded by the mapper's
// max_depth, and visited guards against malformed input.
func hierarchyNode(path string, nodes map[string]*models.EntityNode, visited map[string]bool) *models.HierarchyNode {
	node := nodes[path]
	visited[path] = true
	out := &models.HierarchyNode{
		Entity:    path,
		TableName: node.TableName,
		ItemCount: node.ItemCount,
		Children:  []*models.HierarchyNode{},
	}
	for _, child := range node.Children {
		if visited[child] {
			continue
		}
		if _, ok := nodes[child]; !ok {
			continue
		}
		out.Children = append(out.Children, hierarchyNode(child, nodes, visited))
	}
	return out
}

// suggestTableOrder runs Kahn's algorithm over resolved many_to_one edges
// (from depends on to). Ready entities are taken shallowest first; entities
// left in a cycle are appended and tagged.
func suggestTableOrder(nodes map[string]*models.EntityNode, edges []*models.RelationshipEdge) []*models.SuggestedTable {
	dependsOn := make(map[string]map[string]bool, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for path := range nodes {
		dependsOn[path] = map[string]bool{}
	}
	for _, e := range edges {
		if e.Type != models.RelationshipManyToOne || e.To == nil {
			continue
		}
		from, to := e.From, *e.To
		if from == to {
			continue
		}
		if _, ok := nodes[from]; !ok {
			continue
		}
		if _, ok := nodes[to]; !ok {
			continue
		}
		if dependsOn[from][to] {
			continue
		}
		dependsOn[from][to] = true
		dependents[to] = append(dependents[to], from)
	}

	inDegree := make(map[string]int, len(nodes))
	var ready []string
	for path, deps := range dependsOn {
		inDegree[path] = len(deps)
		if len(deps) == 0 {
			ready = append(ready, path)
		}
	}

	less := func(x, y string) bool {
		if nodes[x].Depth != nodes[y].Depth {
			return nodes[x].Depth < nodes[y].Depth
		}
		return x < y
	}

	placed := make(map[string]bool, len(nodes))
	tables := make([]*models.SuggestedTable, 0, len(nodes))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })
		next := ready[0]
		ready = ready[1:]

		placed[next] = true
		tables = append(tables, suggestedTable(len(tables)+1, next, nodes, dependsOn[next], ""))

		for _, dep := range dependents[next] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	var cyclic []string
	for path := range nodes {
		if !placed[path] {
			cyclic = append(cyclic, path)
		}
	}
	sort.Slice(cyclic, func(i, j int) bool { return less(cyclic[i], cyclic[j]) })
	for _, path := range cyclic {
		tables = append(tables, suggestedTable(len(tables)+1, path, nodes, dependsOn[path], models.CircularDependencyNote))
	}

	return tables
}

func suggestedTable(order int, path string, nodes map[string]*models.EntityNode, deps map[string]bool, note string) *models.SuggestedTable {
	dependsOn := make([]string, 0, len(deps))
	for d := range deps {
		dependsOn = append(dependsOn, nodes[d].TableName)
	}
	sort.Strings(dependsOn)
	return &models.SuggestedTable{
		Order:     order,
		Entity:    path,
		TableName: nodes[path].TableName,
		DependsOn: dependsOn,
		Note:      note,
	}
}

func sortedNodePaths(nodes map[string]*models.EntityNode) []string {
	paths := make([]string, 0, len(nodes))
	for p := range nodes {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		di, dj := nodes[paths[i]].Depth, nodes[paths[j]].Depth
		if di != dj {
			return di < dj
		}
		return paths[i] < paths[j]
	})
	return paths
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

