package match

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/OFFIS-RIT/moa/backend/pkg/ai"
	"github.com/OFFIS-RIT/moa/backend/pkg/cache"
	"github.com/OFFIS-RIT/moa/backend/pkg/graphstore"
	"github.com/OFFIS-RIT/moa/backend/pkg/kg"
	"github.com/OFFIS-RIT/moa/backend/pkg/logicform"
)

type mockGraphStore struct {
	dslResults []*graphstore.TabularResult
	dslCalls   int
	oneHops    map[string]*kg.OneHopGraphData
	oneHopErr  error
}

func (m *mockGraphStore) ExecuteDSL(ctx context.Context, query graphstore.DSLQuery) (*graphstore.TabularResult, error) {
	idx := m.dslCalls
	m.dslCalls++
	if idx < len(m.dslResults) {
		return m.dslResults[idx], nil
	}
	return &graphstore.TabularResult{Header: []string{"s", "p", "o"}}, nil
}

func (m *mockGraphStore) GetEntityOneHop(ctx context.Context, entity *kg.EntityData) (*kg.OneHopGraphData, error) {
	if m.oneHopErr != nil {
		return nil, m.oneHopErr
	}
	return m.oneHops[entity.BizID], nil
}

func (m *mockGraphStore) GetNodes(ctx context.Context, label string, ids []string) ([]*kg.EntityData, error) {
	return nil, nil
}

func (m *mockGraphStore) CalculatePageRankScores(ctx context.Context, targetLabel string, startNodes []graphstore.StartNode) (map[string]float64, error) {
	return nil, nil
}

type mockAIClient struct {
	embeddings      map[string][]float32
	formatResponses []string
	formatCalls     int
	completionCalls int
}

func (m *mockAIClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	m.completionCalls++
	return "", nil
}

func (m *mockAIClient) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	idx := m.formatCalls
	m.formatCalls++
	resp := "{}"
	if idx < len(m.formatResponses) {
		resp = m.formatResponses[idx]
	}
	return json.Unmarshal([]byte(resp), out)
}

func (m *mockAIClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if vec, ok := m.embeddings[string(input)]; ok {
		return vec, nil
	}
	return []float32{0, 0, 1}, nil
}

func (m *mockAIClient) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		vec, _ := m.GenerateEmbedding(ctx, in)
		out[i] = vec
	}
	return out, nil
}

func (m *mockAIClient) ResetMetrics()               {}
func (m *mockAIClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func parseRetrieval(t *testing.T, expr string) *logicform.RetrievalNode {
	t.Helper()
	node, err := logicform.NewParser().Parse(expr)
	if err != nil {
		t.Fatalf("Parse(%q) error = %v", expr, err)
	}
	return node.(*logicform.RetrievalNode)
}

func birthYearRow(score float64) []any {
	subject := &kg.EntityData{BizID: "turing", Name: "Alan Turing", Type: "Person", Score: score}
	object := &kg.EntityData{BizID: "1912", Name: "1912", Type: "Year", Score: score}
	rel := &kg.RelationData{
		FromID: "turing", EndID: "1912", FromType: "Person", EndType: "Year",
		Type: "birthYear", FromEntity: subject, EndEntity: object, Score: score,
	}
	return []any{subject, rel, object}
}

func TestExactMatchStrictVariantWins(t *testing.T) {
	store := &mockGraphStore{dslResults: []*graphstore.TabularResult{
		{Header: []string{"s", "p", "o"}, Rows: [][]any{birthYearRow(0.95)}},
	}}
	matcher := NewExactMatcher(store)
	node := parseRetrieval(t, "Retrieval(s=s1:Person[`Alan Turing`], p=p1:birthYear, o=o1:Year)")

	g, err := Match(context.Background(), matcher, "when was Alan Turing born", node, nil, nil)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if store.dslCalls != 1 {
		t.Errorf("dsl calls = %d, want 1 (strict variant answered)", store.dslCalls)
	}
	if len(g.EdgeMap["p1"]) != 1 {
		t.Fatalf("edges bound to p1 = %d, want 1", len(g.EdgeMap["p1"]))
	}
	objects := g.GetEntityByAlias("o1")
	if len(objects) != 1 || objects[0].Name != "1912" {
		t.Errorf("object binding = %v, want 1912", objects)
	}
}

func TestExactMatchFallsBackToLooseVariant(t *testing.T) {
	store := &mockGraphStore{dslResults: []*graphstore.TabularResult{
		{Header: []string{"s", "p", "o"}},
		{Header: []string{"s", "p", "o"}, Rows: [][]any{birthYearRow(0.95)}},
	}}
	matcher := NewExactMatcher(store)
	node := parseRetrieval(t, "Retrieval(s=s1:Person[`Alan Turing`], p=p1:birthYear, o=o1:Year)")

	g, err := Match(context.Background(), matcher, "when was Alan Turing born", node, nil, nil)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if store.dslCalls != 2 {
		t.Errorf("dsl calls = %d, want 2", store.dslCalls)
	}
	if len(g.EdgeMap["p1"]) != 1 {
		t.Errorf("edges bound to p1 = %d, want 1", len(g.EdgeMap["p1"]))
	}
}

func TestExactMatchRejectsLowScores(t *testing.T) {
	store := &mockGraphStore{dslResults: []*graphstore.TabularResult{
		{Header: []string{"s", "p", "o"}, Rows: [][]any{birthYearRow(0.5)}},
	}}
	matcher := NewExactMatcher(store)
	node := parseRetrieval(t, "Retrieval(s=s1:Person[`Alan Turing`], p=p1:birthYear, o=o1:Year)")

	g, err := Match(context.Background(), matcher, "when was Alan Turing born", node, nil, nil)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if len(g.EdgeMap) != 0 || len(g.EntityMap) != 0 {
		t.Errorf("low-score match should yield an empty graph, got %d edges", len(g.EdgeMap["p1"]))
	}
}

func TestExactMatchConstraintFilter(t *testing.T) {
	subject := &kg.EntityData{BizID: "turing", Name: "Alan Turing", Type: "Person", Score: 1}
	object := &kg.EntityData{BizID: "f1", Name: "Paper", Type: "Work", Score: 1, Prop: kg.NewProp()}
	object.Prop.SetOrigin("year", "1930")
	rel := &kg.RelationData{FromID: "turing", EndID: "f1", FromType: "Person", EndType: "Work", Type: "wrote", FromEntity: subject, EndEntity: object, Score: 1}

	store := &mockGraphStore{dslResults: []*graphstore.TabularResult{
		{Header: []string{"s", "p", "o"}, Rows: [][]any{{subject, rel, object}}},
	}}
	matcher := NewExactMatcher(store)
	node := parseRetrieval(t, "Retrieval(s=s1:Person, p=p1:wrote, o=o1:Work, o1.year>=1950)")

	g, err := Match(context.Background(), matcher, "what did he write after 1950", node, nil, nil)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if len(g.EdgeMap["p1"]) != 0 {
		t.Errorf("constraint year>=1950 should reject a 1930 work")
	}
}

func TestFuzzyMatchArbitration(t *testing.T) {
	center := &kg.EntityData{BizID: "turing", Name: "Alan Turing", Type: "Person", Score: 1}
	born := &kg.RelationData{FromID: "turing", EndID: "1912", FromType: "Person", EndType: "Year", Type: "yearOfBirth", FromEntity: center, EndEntity: &kg.EntityData{BizID: "1912", Name: "1912", Type: "Year", Score: 1}, Score: 1}
	died := &kg.RelationData{FromID: "turing", EndID: "1954", FromType: "Person", EndType: "Year", Type: "yearOfDeath", FromEntity: center, EndEntity: &kg.EntityData{BizID: "1954", Name: "1954", Type: "Year", Score: 1}, Score: 1}
	hop := kg.NewOneHopGraphData(center)
	hop.AddRelation(born, true)
	hop.AddRelation(died, true)

	store := &mockGraphStore{oneHops: map[string]*kg.OneHopGraphData{"turing": hop}}
	client := &mockAIClient{
		embeddings: map[string][]float32{
			"when was Alan Turing born":                 {1, 0, 0},
			born.ToEvidence():                           {0.9, 0.1, 0},
			died.ToEvidence():                           {0.5, 0.5, 0},
		},
		formatResponses: []string{`{"matches": [0]}`},
	}
	matcher := NewFuzzyMatcher(store, client, cache.NewMemoryCache(16, 0))
	node := parseRetrieval(t, "Retrieval(s=s1:Person[`Alan Turing`], p=p1:birthYear, o=o1:Year)")

	g, err := Match(context.Background(), matcher, "when was Alan Turing born", node, []*kg.EntityData{center}, nil)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	rels := g.EdgeMap["p1"]
	if len(rels) != 1 || rels[0].Type != "yearOfBirth" {
		t.Fatalf("selected relations = %v, want only yearOfBirth", rels)
	}
	if client.formatCalls != 1 {
		t.Errorf("arbitration calls = %d, want 1", client.formatCalls)
	}
}

func TestFuzzyMatchUsesPredicateCache(t *testing.T) {
	center := &kg.EntityData{BizID: "turing", Name: "Alan Turing", Type: "Person", Score: 1}
	born := &kg.RelationData{FromID: "turing", EndID: "1912", FromType: "Person", EndType: "Year", Type: "yearOfBirth", FromEntity: center, EndEntity: &kg.EntityData{BizID: "1912", Name: "1912", Type: "Year", Score: 1}, Score: 1}
	hop := kg.NewOneHopGraphData(center)
	hop.AddRelation(born, true)

	store := &mockGraphStore{oneHops: map[string]*kg.OneHopGraphData{"turing": hop}}
	client := &mockAIClient{}
	c := cache.NewMemoryCache(16, 0)
	c.Set(context.Background(), "fuzzy_predicate:birthYear", `["yearOfBirth"]`)

	matcher := NewFuzzyMatcher(store, client, c)
	node := parseRetrieval(t, "Retrieval(s=s1:Person[`Alan Turing`], p=p1:birthYear, o=o1:Year)")

	g, err := Match(context.Background(), matcher, "when was Alan Turing born", node, []*kg.EntityData{center}, nil)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if len(g.EdgeMap["p1"]) != 1 {
		t.Fatalf("edges = %d, want 1 from cached predicate", len(g.EdgeMap["p1"]))
	}
	if client.formatCalls != 0 {
		t.Errorf("arbitration calls = %d, want 0 on cache hit", client.formatCalls)
	}
}

func TestFuzzyMatchSimilarityFloor(t *testing.T) {
	center := &kg.EntityData{BizID: "turing", Name: "Alan Turing", Type: "Person", Score: 1}
	unrelated := &kg.RelationData{FromID: "turing", EndID: "x", FromType: "Person", EndType: "Thing", Type: "unrelated", FromEntity: center, EndEntity: &kg.EntityData{BizID: "x", Name: "X", Type: "Thing", Score: 1}, Score: 1}
	hop := kg.NewOneHopGraphData(center)
	hop.AddRelation(unrelated, true)

	store := &mockGraphStore{oneHops: map[string]*kg.OneHopGraphData{"turing": hop}}
	client := &mockAIClient{
		embeddings: map[string][]float32{
			"when was Alan Turing born": {1, 0, 0},
			unrelated.ToEvidence():      {0, 1, 0},
		},
	}
	matcher := NewFuzzyMatcher(store, client, cache.NewMemoryCache(16, 0))
	node := parseRetrieval(t, "Retrieval(s=s1:Person[`Alan Turing`], p=p1:spouse, o=o1:Person)")

	g, err := Match(context.Background(), matcher, "when was Alan Turing born", node, []*kg.EntityData{center}, nil)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if len(g.EdgeMap) != 0 {
		t.Errorf("no candidate above the similarity floor, graph should be empty")
	}
	if client.formatCalls != 0 {
		t.Errorf("arbitration calls = %d, want 0 with empty shortlist", client.formatCalls)
	}
}
