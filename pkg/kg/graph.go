package kg

import (
	"slices"
)

// SPOPattern names the subject, predicate and object aliases that produced
// one bound edge alias.
type SPOPattern struct {
	S string `json:"s"`
	P string `json:"p"`
	O string `json:"o"`
}

// KgGraph is the mutable graph-of-record for one question. It is created
// empty, grows step by step as the plan executes, and is discarded once the
// question is answered. It is only mutated by the single active step, so no
// internal locking is needed.
type KgGraph struct {
	NodesAlias []string `json:"nodes_alias"`
	EdgeAlias  []string `json:"edge_alias"`

	QueryGraph map[string]SPOPattern `json:"query_graph"`

	EntityMap map[string][]*EntityData   `json:"entity_map"`
	EdgeMap   map[string][]*RelationData `json:"edge_map"`

	AnsweredAlias map[string][]string `json:"answered_alias,omitempty"`

	StartNodeAliasName []string `json:"start_node_alias_name,omitempty"`
	StartNodeName      []string `json:"start_node_name,omitempty"`

	AliasSet map[string]struct{} `json:"-"`
}

// NewKgGraph returns an empty graph-of-record.
func NewKgGraph() *KgGraph {
	return &KgGraph{
		QueryGraph:    make(map[string]SPOPattern),
		EntityMap:     make(map[string][]*EntityData),
		EdgeMap:       make(map[string][]*RelationData),
		AnsweredAlias: make(map[string][]string),
		AliasSet:      make(map[string]struct{}),
	}
}

// AddNodes binds entities under an alias, deduplicating by entity key and
// merging duplicate records.
func (g *KgGraph) AddNodes(alias string, entities []*EntityData) {
	if len(entities) == 0 {
		return
	}
	g.touchAlias(alias)
	if !slices.Contains(g.NodesAlias, alias) && !g.isAnswered(alias) {
		g.NodesAlias = append(g.NodesAlias, alias)
	}
	g.EntityMap[alias] = mergeEntityLists(g.EntityMap[alias], entities)
}

// AddEdges binds relations under an alias together with the pattern that
// produced them, deduplicating by edge key.
func (g *KgGraph) AddEdges(alias string, pattern SPOPattern, relations []*RelationData) {
	if len(relations) == 0 {
		return
	}
	g.touchAlias(alias)
	if !slices.Contains(g.EdgeAlias, alias) {
		g.EdgeAlias = append(g.EdgeAlias, alias)
	}
	g.QueryGraph[alias] = pattern
	g.EdgeMap[alias] = mergeRelationLists(g.EdgeMap[alias], relations)
}

// MarkStartNode records a retrieval seed entity for result serialization.
func (g *KgGraph) MarkStartNode(alias, name string) {
	if !slices.Contains(g.StartNodeAliasName, alias) {
		g.StartNodeAliasName = append(g.StartNodeAliasName, alias)
	}
	if name != "" && !slices.Contains(g.StartNodeName, name) {
		g.StartNodeName = append(g.StartNodeName, name)
	}
}

// Merge folds another graph-of-record into this one. Alias sets are unioned,
// entity lists merge by key with non-empty fields winning, edge lists union
// by key, answered values union deduplicated, and query_graph entries from
// other always overwrite. The operation is idempotent and associative up to
// ordering.
func (g *KgGraph) Merge(other *KgGraph) {
	if other == nil || other == g {
		return
	}

	for alias, entities := range other.EntityMap {
		g.AddNodes(alias, entities)
	}
	for alias, relations := range other.EdgeMap {
		g.AddEdges(alias, other.QueryGraph[alias], relations)
	}
	for alias, pattern := range other.QueryGraph {
		g.QueryGraph[alias] = pattern
	}
	for alias, values := range other.AnsweredAlias {
		g.AddAnsweredAlias(alias, values...)
	}
	for alias := range other.AliasSet {
		g.AliasSet[alias] = struct{}{}
	}
	for _, alias := range other.StartNodeAliasName {
		if !slices.Contains(g.StartNodeAliasName, alias) {
			g.StartNodeAliasName = append(g.StartNodeAliasName, alias)
		}
	}
	for _, name := range other.StartNodeName {
		if !slices.Contains(g.StartNodeName, name) {
			g.StartNodeName = append(g.StartNodeName, name)
		}
	}
}

// GetEntityByAlias returns the entities bound to an alias. When the alias
// has no direct node data but appears as an endpoint of matched edges, the
// entity list is synthesized from those edges. Returns nil when nothing is
// bound.
func (g *KgGraph) GetEntityByAlias(alias string) []*EntityData {
	if entities, ok := g.EntityMap[alias]; ok && len(entities) > 0 {
		return entities
	}

	var synthesized []*EntityData
	for edgeAlias, pattern := range g.QueryGraph {
		isSubject := pattern.S == alias
		isObject := pattern.O == alias
		if !isSubject && !isObject {
			continue
		}
		for _, rel := range g.EdgeMap[edgeAlias] {
			if isSubject {
				synthesized = append(synthesized, relEndpoint(rel, true))
			}
			if isObject {
				synthesized = append(synthesized, relEndpoint(rel, false))
			}
		}
	}
	if len(synthesized) == 0 {
		return nil
	}
	return mergeEntityLists(nil, synthesized)
}

// AddAnsweredAlias appends scalar answer values under an alias, deduplicated.
// The alias joins the answered set only if it is not already bound as a node
// or edge alias, keeping each alias in at most one of the three sets.
func (g *KgGraph) AddAnsweredAlias(alias string, values ...string) {
	g.touchAlias(alias)
	for _, v := range values {
		if v == "" {
			continue
		}
		if !slices.Contains(g.AnsweredAlias[alias], v) {
			g.AnsweredAlias[alias] = append(g.AnsweredAlias[alias], v)
		}
	}
}

// GetAnsweredAlias returns the answer values bound to an alias, or nil.
func (g *KgGraph) GetAnsweredAlias(alias string) []string {
	return g.AnsweredAlias[alias]
}

// AnsweredAliasNames returns the aliases carrying terminal answers that are
// not simultaneously bound as node or edge aliases.
func (g *KgGraph) AnsweredAliasNames() []string {
	var out []string
	for alias := range g.AnsweredAlias {
		if !slices.Contains(g.NodesAlias, alias) && !slices.Contains(g.EdgeAlias, alias) {
			out = append(out, alias)
		}
	}
	slices.Sort(out)
	return out
}

// RmvNodeIns removes the listed entity instances (by biz_id) from an alias
// and transitively filters every bound edge whose endpoint no longer
// satisfies the pattern.
func (g *KgGraph) RmvNodeIns(alias string, disallow []string) {
	entities, ok := g.EntityMap[alias]
	if !ok {
		return
	}
	banned := make(map[string]struct{}, len(disallow))
	for _, id := range disallow {
		banned[id] = struct{}{}
	}

	kept := entities[:0]
	for _, e := range entities {
		if _, gone := banned[e.BizID]; !gone {
			kept = append(kept, e)
		}
	}
	g.EntityMap[alias] = kept

	allowed := make(map[string]struct{}, len(kept))
	for _, e := range kept {
		allowed[e.BizID] = struct{}{}
	}
	g.filterEdgesByEndpoint(alias, allowed)
}

// RmvEdgeIns removes the listed edge instances (by edge key) from an alias
// and prunes synthesized endpoint entities that no remaining edge supports.
func (g *KgGraph) RmvEdgeIns(alias string, disallow []string) {
	relations, ok := g.EdgeMap[alias]
	if !ok {
		return
	}
	banned := make(map[string]struct{}, len(disallow))
	for _, key := range disallow {
		banned[key] = struct{}{}
	}

	kept := relations[:0]
	for _, r := range relations {
		if _, gone := banned[r.Key()]; !gone {
			kept = append(kept, r)
		}
	}
	g.EdgeMap[alias] = kept

	pattern, ok := g.QueryGraph[alias]
	if !ok {
		return
	}
	g.pruneEndpointEntities(pattern.S, alias, true)
	g.pruneEndpointEntities(pattern.O, alias, false)
}

func (g *KgGraph) filterEdgesByEndpoint(nodeAlias string, allowed map[string]struct{}) {
	for edgeAlias, pattern := range g.QueryGraph {
		isSubject := pattern.S == nodeAlias
		isObject := pattern.O == nodeAlias
		if !isSubject && !isObject {
			continue
		}
		relations := g.EdgeMap[edgeAlias]
		kept := relations[:0]
		for _, r := range relations {
			endpoint := r.FromID
			if isObject {
				endpoint = r.EndID
			}
			if _, ok := allowed[endpoint]; ok {
				kept = append(kept, r)
			}
		}
		g.EdgeMap[edgeAlias] = kept
	}
}

func (g *KgGraph) pruneEndpointEntities(nodeAlias, edgeAlias string, subject bool) {
	entities, ok := g.EntityMap[nodeAlias]
	if !ok || len(entities) == 0 {
		return
	}
	supported := make(map[string]struct{})
	for _, r := range g.EdgeMap[edgeAlias] {
		if subject {
			supported[r.FromID] = struct{}{}
		} else {
			supported[r.EndID] = struct{}{}
		}
	}
	kept := entities[:0]
	for _, e := range entities {
		if _, ok := supported[e.BizID]; ok {
			kept = append(kept, e)
		}
	}
	g.EntityMap[nodeAlias] = kept
}

func (g *KgGraph) touchAlias(alias string) {
	g.AliasSet[alias] = struct{}{}
}

func (g *KgGraph) isAnswered(alias string) bool {
	_, ok := g.AnsweredAlias[alias]
	return ok
}

func mergeEntityLists(dst, src []*EntityData) []*EntityData {
	index := make(map[string]*EntityData, len(dst))
	for _, e := range dst {
		index[e.Key()] = e
	}
	for _, e := range src {
		if existing, ok := index[e.Key()]; ok {
			existing.MergeFrom(e)
			continue
		}
		dst = append(dst, e)
		index[e.Key()] = e
	}
	return dst
}

func mergeRelationLists(dst, src []*RelationData) []*RelationData {
	seen := make(map[string]struct{}, len(dst))
	for _, r := range dst {
		seen[r.Key()] = struct{}{}
	}
	for _, r := range src {
		if _, ok := seen[r.Key()]; ok {
			continue
		}
		dst = append(dst, r)
		seen[r.Key()] = struct{}{}
	}
	return dst
}

func relEndpoint(rel *RelationData, subject bool) *EntityData {
	if subject {
		if rel.FromEntity != nil {
			return rel.FromEntity
		}
		return &EntityData{BizID: rel.FromID, Type: rel.FromType, Score: rel.Score}
	}
	if rel.EndEntity != nil {
		return rel.EndEntity
	}
	return &EntityData{BizID: rel.EndID, Type: rel.EndType, Score: rel.Score}
}
