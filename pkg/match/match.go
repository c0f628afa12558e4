// Package match resolves parsed retrieval patterns against the graph.
// ExactMatcher issues structured queries and filters by literal predicate
// name; FuzzyMatcher shortlists one-hop evidence by embedding similarity and
// lets the LLM collaborator arbitrate. Both implement the same contract so
// the executor can try them in order.
package match

import (
	"context"
	"strconv"
	"strings"

	"github.com/OFFIS-RIT/moa/backend/pkg/kg"
	"github.com/OFFIS-RIT/moa/backend/pkg/logicform"
)

// Matcher resolves one retrieval pattern against the graph in two phases:
// candidate expansion, then relation selection. Empty results mean "no
// match", never an error.
type Matcher interface {
	// RecallOneHopGraphs expands candidate neighborhoods for the pattern.
	// heads and tails carry entities already bound to the subject and
	// object aliases by earlier steps; either may be empty.
	RecallOneHopGraphs(ctx context.Context, node *logicform.RetrievalNode, heads, tails []*kg.EntityData) ([]*kg.OneHopGraphData, error)

	// RetrievalRelation selects the relations answering the pattern from
	// the recalled neighborhoods and materializes them into a graph.
	RetrievalRelation(ctx context.Context, subQuery string, node *logicform.RetrievalNode, oneHops []*kg.OneHopGraphData) (*kg.KgGraph, error)
}

// Match runs both phases of a matcher.
func Match(ctx context.Context, m Matcher, subQuery string, node *logicform.RetrievalNode, heads, tails []*kg.EntityData) (*kg.KgGraph, error) {
	oneHops, err := m.RecallOneHopGraphs(ctx, node, heads, tails)
	if err != nil {
		return nil, err
	}
	if len(oneHops) == 0 {
		return kg.NewKgGraph(), nil
	}
	return m.RetrievalRelation(ctx, subQuery, node, oneHops)
}

// predicateLabels returns every name the pattern's predicate may appear
// under in the graph.
func predicateLabels(node *logicform.RetrievalNode) []string {
	seen := make(map[string]struct{})
	var labels []string
	add := func(l string) {
		if l == "" {
			return
		}
		if _, ok := seen[l]; ok {
			return
		}
		seen[l] = struct{}{}
		labels = append(labels, l)
	}
	for _, t := range node.Predicate.Types {
		add(t.Std)
		add(t.UnStd)
	}
	return labels
}

// satisfiesConstraints checks every property constraint of a pattern against
// an entity's property bag.
func satisfiesConstraints(base *logicform.SPOBase, entity *kg.EntityData) bool {
	if len(base.Constraints) == 0 {
		return true
	}
	if entity == nil || entity.Prop == nil {
		return false
	}
	for _, c := range base.Constraints {
		value, ok := entity.Prop.Get(c.Prop)
		if !ok {
			return false
		}
		if !compareValues(value, c.Op, c.Value) {
			return false
		}
	}
	return true
}

// compareValues compares numerically when both sides parse as numbers,
// otherwise falls back to string comparison.
func compareValues(got string, op logicform.CompareOp, want string) bool {
	gotNum, errG := strconv.ParseFloat(strings.TrimSpace(got), 64)
	wantNum, errW := strconv.ParseFloat(strings.TrimSpace(want), 64)
	if errG == nil && errW == nil {
		switch op {
		case logicform.OpEqual:
			return gotNum == wantNum
		case logicform.OpGreater:
			return gotNum > wantNum
		case logicform.OpLess:
			return gotNum < wantNum
		case logicform.OpGreaterEqual:
			return gotNum >= wantNum
		case logicform.OpLessEqual:
			return gotNum <= wantNum
		}
		return false
	}

	switch op {
	case logicform.OpEqual:
		return strings.EqualFold(strings.TrimSpace(got), strings.TrimSpace(want))
	case logicform.OpGreater:
		return got > want
	case logicform.OpLess:
		return got < want
	case logicform.OpGreaterEqual:
		return got >= want
	case logicform.OpLessEqual:
		return got <= want
	}
	return false
}

// materialize builds a graph-of-record from the selected relations of one
// pattern.
func materialize(node *logicform.RetrievalNode, relations []*kg.RelationData) *kg.KgGraph {
	g := kg.NewKgGraph()
	if len(relations) == 0 {
		return g
	}

	pattern := kg.SPOPattern{S: node.Subject.Alias, P: node.Predicate.Alias, O: node.Object.Alias}

	var subjects, objects []*kg.EntityData
	for _, rel := range relations {
		if rel.FromEntity != nil {
			subjects = append(subjects, rel.FromEntity)
		}
		if rel.EndEntity != nil {
			objects = append(objects, rel.EndEntity)
		}
	}
	g.AddNodes(node.Subject.Alias, subjects)
	g.AddNodes(node.Object.Alias, objects)
	g.AddEdges(node.Predicate.Alias, pattern, relations)
	g.MarkStartNode(node.Subject.Alias, node.Subject.Name)
	return g
}
