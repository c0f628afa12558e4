package match

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/moa/backend/pkg/graphstore"
	"github.com/OFFIS-RIT/moa/backend/pkg/kg"
	"github.com/OFFIS-RIT/moa/backend/pkg/logger"
	"github.com/OFFIS-RIT/moa/backend/pkg/logicform"
)

// defaultScoreFloor drops low-relevance entities after an exact match.
const defaultScoreFloor = 0.9

// ExactMatcher resolves patterns with structured DSL queries against the
// graph backend. Matching is all-or-nothing: when score filtering empties
// any bound alias, the whole match is rejected.
type ExactMatcher struct {
	store      graphstore.GraphStore
	scoreFloor float64
}

// NewExactMatcher creates an exact matcher over the given backend.
func NewExactMatcher(store graphstore.GraphStore) *ExactMatcher {
	return &ExactMatcher{store: store, scoreFloor: defaultScoreFloor}
}

// RecallOneHopGraphs issues two query variants in order: first restricted
// to the pattern's declared labels and predicate, then a looser
// predicate-with-any-label query. The first variant returning rows wins.
func (m *ExactMatcher) RecallOneHopGraphs(ctx context.Context, node *logicform.RetrievalNode, heads, tails []*kg.EntityData) ([]*kg.OneHopGraphData, error) {
	headIDs := collectIDs(node.Subject, heads)
	tailIDs := collectIDs(node.Object, tails)

	predicates := predicateLabels(node)
	if len(predicates) == 0 {
		// alias-only predicate, recall every edge between the candidates
		predicates = []string{""}
	}

	for _, predicate := range predicates {
		strict := graphstore.DSLQuery{
			SubjectLabels: node.Subject.TypeLabels(),
			SubjectIDs:    headIDs,
			Predicate:     predicate,
			ObjectLabels:  node.Object.TypeLabels(),
			ObjectIDs:     tailIDs,
		}
		loose := graphstore.DSLQuery{
			SubjectIDs: headIDs,
			Predicate:  predicate,
			ObjectIDs:  tailIDs,
			AnyLabel:   true,
		}

		for _, query := range []graphstore.DSLQuery{strict, loose} {
			result, err := m.store.ExecuteDSL(ctx, query)
			if err != nil {
				return nil, fmt.Errorf("failed to execute exact match query: %w", err)
			}
			if hops := rowsToOneHops(result); len(hops) > 0 {
				return hops, nil
			}
		}
	}
	return nil, nil
}

// RetrievalRelation filters the recalled relations against the literal
// predicate names and the pattern constraints, drops entities below the
// score floor, and materializes the survivors.
func (m *ExactMatcher) RetrievalRelation(ctx context.Context, subQuery string, node *logicform.RetrievalNode, oneHops []*kg.OneHopGraphData) (*kg.KgGraph, error) {
	predicates := make(map[string]struct{})
	for _, label := range predicateLabels(node) {
		predicates[label] = struct{}{}
	}

	var selected []*kg.RelationData
	for _, hop := range oneHops {
		for _, rel := range hop.AllRelations() {
			if len(predicates) > 0 {
				if _, ok := predicates[rel.Type]; !ok {
					if _, ok := predicates[rel.TypeZH]; !ok {
						continue
					}
				}
			}
			if !satisfiesConstraints(&node.Subject.SPOBase, rel.FromEntity) {
				continue
			}
			if !satisfiesConstraints(&node.Object.SPOBase, rel.EndEntity) {
				continue
			}
			if entityScore(rel.FromEntity, rel.Score) < m.scoreFloor || entityScore(rel.EndEntity, rel.Score) < m.scoreFloor {
				continue
			}
			selected = append(selected, rel)
		}
	}

	g := materialize(node, selected)
	// all-or-nothing: a half-bound pattern is worse than no match
	if len(selected) > 0 {
		if len(g.GetEntityByAlias(node.Subject.Alias)) == 0 || len(g.GetEntityByAlias(node.Object.Alias)) == 0 {
			logger.Debug("[Match] Exact match rejected, alias emptied by score filter", "predicate", node.Predicate.Alias)
			return kg.NewKgGraph(), nil
		}
	}
	return g, nil
}

func collectIDs(entity *logicform.SPOEntity, bound []*kg.EntityData) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, id := range entity.IDSet {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, e := range bound {
		if _, ok := seen[e.BizID]; !ok {
			seen[e.BizID] = struct{}{}
			ids = append(ids, e.BizID)
		}
	}
	return ids
}

// rowsToOneHops groups matched relations into per-subject neighborhoods.
func rowsToOneHops(result *graphstore.TabularResult) []*kg.OneHopGraphData {
	if result == nil {
		return nil
	}
	hops := make(map[string]*kg.OneHopGraphData)
	var order []string
	for _, row := range result.Rows {
		if len(row) < 3 {
			continue
		}
		subject, _ := row[0].(*kg.EntityData)
		rel, ok := row[1].(*kg.RelationData)
		if !ok || subject == nil {
			continue
		}
		hop, exists := hops[subject.BizID]
		if !exists {
			hop = kg.NewOneHopGraphData(subject)
			hops[subject.BizID] = hop
			order = append(order, subject.BizID)
		}
		hop.AddRelation(rel, true)
	}

	out := make([]*kg.OneHopGraphData, 0, len(order))
	for _, id := range order {
		out = append(out, hops[id])
	}
	return out
}

func entityScore(entity *kg.EntityData, fallback float64) float64 {
	if entity == nil {
		return fallback
	}
	return entity.Score
}
