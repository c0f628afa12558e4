package match

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/OFFIS-RIT/moa/backend/pkg/ai"
	"github.com/OFFIS-RIT/moa/backend/pkg/cache"
	"github.com/OFFIS-RIT/moa/backend/pkg/graphstore"
	"github.com/OFFIS-RIT/moa/backend/pkg/kg"
	"github.com/OFFIS-RIT/moa/backend/pkg/logger"
	"github.com/OFFIS-RIT/moa/backend/pkg/logicform"
)

const (
	fuzzyTopK          = 5
	fuzzySimilarityMin = 0.3
)

// FuzzyMatcher resolves patterns whose predicate has no literal hit in the
// graph. Candidate one-hop evidence is shortlisted by embedding similarity
// to the sub-query, grouped by predicate name, and arbitrated by the LLM
// collaborator. Resolved predicate mappings are cached by their
// unstandardized text so repeated steps skip the LLM call.
type FuzzyMatcher struct {
	store    graphstore.GraphStore
	aiClient ai.SolverAIClient
	cache    cache.Cache
}

// NewFuzzyMatcher creates a fuzzy matcher. The cache is advisory and may be
// shared across questions.
func NewFuzzyMatcher(store graphstore.GraphStore, aiClient ai.SolverAIClient, c cache.Cache) *FuzzyMatcher {
	return &FuzzyMatcher{store: store, aiClient: aiClient, cache: c}
}

// RecallOneHopGraphs expands the neighborhood of every bound candidate,
// heads first, tails when no heads are bound.
func (m *FuzzyMatcher) RecallOneHopGraphs(ctx context.Context, node *logicform.RetrievalNode, heads, tails []*kg.EntityData) ([]*kg.OneHopGraphData, error) {
	candidates := heads
	if len(candidates) == 0 {
		candidates = tails
	}

	var hops []*kg.OneHopGraphData
	for _, entity := range candidates {
		hop, err := m.store.GetEntityOneHop(ctx, entity)
		if err != nil {
			return nil, fmt.Errorf("failed to expand one hop of %s: %w", entity.BizID, err)
		}
		if hop != nil && len(hop.AllRelations()) > 0 {
			hops = append(hops, hop)
		}
	}
	return hops, nil
}

// RetrievalRelation shortlists evidence lines by cosine similarity to the
// sub-query, keeps the top candidates above the similarity floor, and asks
// the LLM collaborator which of them answer the pattern.
func (m *FuzzyMatcher) RetrievalRelation(ctx context.Context, subQuery string, node *logicform.RetrievalNode, oneHops []*kg.OneHopGraphData) (*kg.KgGraph, error) {
	var lines []string
	var rels []*kg.RelationData
	for _, hop := range oneHops {
		hopLines, hopRels := hop.EvidenceStrings()
		lines = append(lines, hopLines...)
		rels = append(rels, hopRels...)
	}
	if len(lines) == 0 {
		return kg.NewKgGraph(), nil
	}

	if cached, ok := m.cachedPredicates(ctx, node); ok {
		return materialize(node, selectByPredicate(rels, cached)), nil
	}

	shortlist, err := m.shortlist(ctx, subQuery, lines)
	if err != nil {
		return nil, err
	}
	if len(shortlist) == 0 {
		return kg.NewKgGraph(), nil
	}

	// group the survivors by predicate name for the arbitration prompt
	var candidateLines []string
	var candidateRels []*kg.RelationData
	for _, idx := range shortlist {
		candidateLines = append(candidateLines, lines[idx])
		candidateRels = append(candidateRels, rels[idx])
	}

	hint := patternHint(node)
	var verdict struct {
		Matches []int `json:"matches"`
	}
	err = m.aiClient.GenerateCompletionWithFormat(
		ctx,
		"predicate_match",
		"Indices of candidate relations matching the queried predicate",
		ai.BuildPredicateMatchPrompt(hint, predicateHint(node), candidateLines),
		&verdict,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to arbitrate predicates: %w", err)
	}

	var selected []*kg.RelationData
	selectedPredicates := make(map[string]struct{})
	for _, idx := range verdict.Matches {
		if idx < 0 || idx >= len(candidateRels) {
			logger.Warn("[Match] Arbitration returned out-of-range index", "index", idx)
			continue
		}
		selected = append(selected, candidateRels[idx])
		selectedPredicates[candidateRels[idx].Type] = struct{}{}
	}

	m.storePredicates(ctx, node, selectedPredicates)
	return materialize(node, selected), nil
}

// shortlist returns the indices of the top candidate lines by cosine
// similarity, keeping at most fuzzyTopK above fuzzySimilarityMin.
func (m *FuzzyMatcher) shortlist(ctx context.Context, subQuery string, lines []string) ([]int, error) {
	queryVec, err := m.aiClient.GenerateEmbedding(ctx, []byte(subQuery))
	if err != nil {
		return nil, fmt.Errorf("failed to embed sub-query: %w", err)
	}

	inputs := make([][]byte, len(lines))
	for i, line := range lines {
		inputs[i] = []byte(line)
	}
	lineVecs, err := m.aiClient.GenerateEmbeddings(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("failed to embed candidates: %w", err)
	}

	type scored struct {
		idx int
		sim float64
	}
	var ranked []scored
	for i, vec := range lineVecs {
		sim := cosine(queryVec, vec)
		if sim >= fuzzySimilarityMin {
			ranked = append(ranked, scored{idx: i, sim: sim})
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].sim > ranked[j].sim })
	if len(ranked) > fuzzyTopK {
		ranked = ranked[:fuzzyTopK]
	}

	out := make([]int, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.idx)
	}
	return out, nil
}

func (m *FuzzyMatcher) cacheKey(node *logicform.RetrievalNode) string {
	labels := node.Predicate.UnStdLabels()
	if len(labels) == 0 {
		return ""
	}
	return "fuzzy_predicate:" + strings.Join(labels, "|")
}

func (m *FuzzyMatcher) cachedPredicates(ctx context.Context, node *logicform.RetrievalNode) (map[string]struct{}, bool) {
	if m.cache == nil {
		return nil, false
	}
	key := m.cacheKey(node)
	if key == "" {
		return nil, false
	}
	raw, ok := m.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil || len(names) == 0 {
		return nil, false
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set, true
}

func (m *FuzzyMatcher) storePredicates(ctx context.Context, node *logicform.RetrievalNode, predicates map[string]struct{}) {
	if m.cache == nil || len(predicates) == 0 {
		return
	}
	key := m.cacheKey(node)
	if key == "" {
		return
	}
	names := make([]string, 0, len(predicates))
	for n := range predicates {
		names = append(names, n)
	}
	sort.Strings(names)
	raw, err := json.Marshal(names)
	if err != nil {
		return
	}
	m.cache.Set(ctx, key, string(raw))
}

func selectByPredicate(rels []*kg.RelationData, predicates map[string]struct{}) []*kg.RelationData {
	var out []*kg.RelationData
	for _, rel := range rels {
		if rel == nil {
			continue
		}
		if _, ok := predicates[rel.Type]; ok {
			out = append(out, rel)
		}
	}
	return out
}

// patternHint renders the unstandardized pattern as
// "subjectType[name] predicate objectType[name]".
func patternHint(node *logicform.RetrievalNode) string {
	return fmt.Sprintf("%s %s %s", node.Subject.MentionLabel(), predicateHint(node), node.Object.MentionLabel())
}

func predicateHint(node *logicform.RetrievalNode) string {
	if labels := node.Predicate.UnStdLabels(); len(labels) > 0 {
		return labels[0]
	}
	return node.Predicate.Alias
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
