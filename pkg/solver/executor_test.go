package solver

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/moa/backend/pkg/ai"
	"github.com/OFFIS-RIT/moa/backend/pkg/kg"
	"github.com/OFFIS-RIT/moa/backend/pkg/logicform"
)

type mockMatcher struct {
	graph       *kg.KgGraph
	recallCalls int
}

func (m *mockMatcher) RecallOneHopGraphs(ctx context.Context, node *logicform.RetrievalNode, heads, tails []*kg.EntityData) ([]*kg.OneHopGraphData, error) {
	m.recallCalls++
	if m.graph == nil {
		return nil, nil
	}
	return []*kg.OneHopGraphData{kg.NewOneHopGraphData(&kg.EntityData{BizID: "turing", Type: "Person", Score: 1})}, nil
}

func (m *mockMatcher) RetrievalRelation(ctx context.Context, subQuery string, node *logicform.RetrievalNode, oneHops []*kg.OneHopGraphData) (*kg.KgGraph, error) {
	return m.graph, nil
}

type mockAIClient struct {
	completions     []string
	completionCalls int
	formatResponses map[string]string
	formatCalls     map[string]int
}

func (m *mockAIClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	m.completionCalls++
	if len(m.completions) == 0 {
		return "", errors.New("no completion configured")
	}
	next := m.completions[0]
	if len(m.completions) > 1 {
		m.completions = m.completions[1:]
	}
	return next, nil
}

func (m *mockAIClient) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	if m.formatCalls == nil {
		m.formatCalls = make(map[string]int)
	}
	m.formatCalls[name]++
	resp, ok := m.formatResponses[name]
	if !ok {
		return errors.New("no format response configured")
	}
	return json.Unmarshal([]byte(resp), out)
}

func (m *mockAIClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (m *mockAIClient) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (m *mockAIClient) ResetMetrics()               {}
func (m *mockAIClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

type stubRunner struct {
	failures int
	output   string
	calls    int
	codes    []string
}

func (r *stubRunner) Run(ctx context.Context, code string) (string, error) {
	r.calls++
	r.codes = append(r.codes, code)
	if r.calls <= r.failures {
		return "", errors.New("ZeroDivisionError: division by zero")
	}
	return r.output, nil
}

func parseRetrievalNode(t *testing.T, expr string) *logicform.RetrievalNode {
	t.Helper()
	node, err := logicform.NewParser().Parse(expr)
	if err != nil {
		t.Fatalf("Parse(%q) error = %v", expr, err)
	}
	retrieval, ok := node.(*logicform.RetrievalNode)
	if !ok {
		t.Fatalf("Parse(%q) = %T, want *RetrievalNode", expr, node)
	}
	return retrieval
}

func birthYearGraph() *kg.KgGraph {
	subject := &kg.EntityData{BizID: "turing", Name: "Alan Turing", Type: "Person", Score: 1}
	object := &kg.EntityData{BizID: "1912", Name: "1912", Type: "Year", Score: 1}
	rel := &kg.RelationData{
		FromID: "turing", EndID: "1912",
		FromType: "Person", EndType: "Year",
		FromEntity: subject, EndEntity: object,
		Type: "birthYear", Score: 1,
	}

	g := kg.NewKgGraph()
	g.AddNodes("s1", []*kg.EntityData{subject})
	g.AddNodes("o1", []*kg.EntityData{object})
	g.AddEdges("p1", kg.SPOPattern{S: "s1", P: "p1", O: "o1"}, []*kg.RelationData{rel})
	return g
}

func TestExecuteExactWinsWithoutFuzzyCalls(t *testing.T) {
	exact := &mockMatcher{graph: birthYearGraph()}
	fuzzy := &mockMatcher{}
	client := &mockAIClient{completions: []string{"Alan Turing was born in 1912."}}

	executor := NewExecutor(ExecutorParams{Exact: exact, Fuzzy: fuzzy, AIClient: client})
	node := parseRetrievalNode(t, "Retrieval(s=s1:Person[`Alan Turing`], p=p1:birthYear, o=o1:Year)")

	result, err := executor.Execute(context.Background(), "When was Alan Turing born?", []LFPlan{
		{SubQuery: "when was Alan Turing born", Node: node},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	step := result.SubResults[0]
	if step.MatchType != MatchTypeExact {
		t.Errorf("match type = %q, want %q", step.MatchType, MatchTypeExact)
	}
	if fuzzy.recallCalls != 0 {
		t.Errorf("fuzzy matcher called %d times, want 0", fuzzy.recallCalls)
	}
	if !step.IfAnswered {
		t.Error("step not answered despite exact match")
	}
	if len(result.Graph.GetEntityByAlias("o1")) == 0 {
		t.Error("object alias not merged into the graph-of-record")
	}
}

func TestExecuteFallsBackToFuzzy(t *testing.T) {
	exact := &mockMatcher{}
	fuzzy := &mockMatcher{graph: birthYearGraph()}
	client := &mockAIClient{completions: []string{"Alan Turing was born in 1912."}}

	executor := NewExecutor(ExecutorParams{Exact: exact, Fuzzy: fuzzy, AIClient: client})
	node := parseRetrievalNode(t, "Retrieval(s=s1:Person[`Alan Turing`], p=p1:birthYear, o=o1:Year)")

	result, err := executor.Execute(context.Background(), "When was Alan Turing born?", []LFPlan{
		{SubQuery: "when was Alan Turing born", Node: node},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	step := result.SubResults[0]
	if step.MatchType != MatchTypeFuzzy {
		t.Errorf("match type = %q, want %q", step.MatchType, MatchTypeFuzzy)
	}
	if exact.recallCalls != 1 {
		t.Errorf("exact matcher called %d times, want 1", exact.recallCalls)
	}
}

func TestExecuteForceChunkSynthesizesOncePerStep(t *testing.T) {
	exact := &mockMatcher{graph: birthYearGraph()}
	client := &mockAIClient{completions: []string{"Alan Turing was born in 1912.", "final answer"}}

	executor := NewExecutor(ExecutorParams{Exact: exact, Fuzzy: &mockMatcher{}, AIClient: client, ForceChunk: true})
	node := parseRetrievalNode(t, "Retrieval(s=s1:Person[`Alan Turing`], p=p1:birthYear, o=o1:Year)")

	result, err := executor.Execute(context.Background(), "When was Alan Turing born?", []LFPlan{
		{SubQuery: "when was Alan Turing born", Node: node},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	step := result.SubResults[0]
	if !step.IfAnswered {
		t.Error("step not answered despite exact match")
	}
	// one sub-answer synthesis plus the final synthesis; the fallback must
	// not prompt again over the unchanged evidence set
	if client.completionCalls != 2 {
		t.Errorf("completion calls = %d, want 2", client.completionCalls)
	}
}

func TestExecuteMathRetriesWithDebugEntries(t *testing.T) {
	runner := &stubRunner{failures: 2, output: "42"}
	client := &mockAIClient{completions: []string{"```python\nprint(6 * 7)\n```"}}

	executor := NewExecutor(ExecutorParams{AIClient: client, Runner: runner})
	result, err := executor.Execute(context.Background(), "what is six times seven", []LFPlan{
		{SubQuery: "compute six times seven", Node: &logicform.MathNode{Content: "6 * 7", Target: "the product", Alias: "m1"}},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	step := result.SubResults[0]
	if step.SubAnswer != "42" {
		t.Errorf("sub answer = %q, want %q", step.SubAnswer, "42")
	}
	if len(step.DebugInfo) != 2 {
		t.Fatalf("debug entries = %d, want 2", len(step.DebugInfo))
	}
	for i, entry := range step.DebugInfo {
		if entry.Code == "" || entry.Error == "" {
			t.Errorf("debug entry %d missing code or error: %+v", i, entry)
		}
	}
	if got := result.Graph.GetAnsweredAlias("m1"); len(got) != 1 || got[0] != "42" {
		t.Errorf("answered alias m1 = %v, want [42]", got)
	}
}

func TestExecuteMathExhaustsRetries(t *testing.T) {
	runner := &stubRunner{failures: 10}
	client := &mockAIClient{completions: []string{"```python\n1/0\n```"}}

	executor := NewExecutor(ExecutorParams{AIClient: client, Runner: runner})
	result, err := executor.Execute(context.Background(), "divide by zero", []LFPlan{
		{SubQuery: "divide by zero", Node: &logicform.MathNode{Content: "1/0", Alias: "m1"}},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	step := result.SubResults[0]
	if step.SubAnswer != UnknownAnswer {
		t.Errorf("sub answer = %q, want the unknown sentinel", step.SubAnswer)
	}
	if runner.calls != 3 {
		t.Errorf("runner called %d times, want 3", runner.calls)
	}
	if got := result.Graph.GetAnsweredAlias("m1"); len(got) != 0 {
		t.Errorf("unanswered alias m1 bound to %v", got)
	}
}

func TestExecuteMathResolvesAliasReferences(t *testing.T) {
	g := kg.NewKgGraph()
	g.AddAnsweredAlias("o1", "1912")

	resolved := resolveAliasRefs(g, "2026 - `o1`")
	if resolved != "2026 - 1912" {
		t.Errorf("resolved content = %q, want %q", resolved, "2026 - 1912")
	}

	unresolved := resolveAliasRefs(g, "2026 - `missing`")
	if unresolved != "2026 - `missing`" {
		t.Errorf("unbound reference rewritten to %q", unresolved)
	}
}

func TestExecuteDeduceBindsVerdict(t *testing.T) {
	client := &mockAIClient{
		completions:     []string{"yes"},
		formatResponses: map[string]string{"deduction": `{"answered": true, "answer": "yes"}`},
	}

	executor := NewExecutor(ExecutorParams{AIClient: client})
	result, err := executor.Execute(context.Background(), "was Turing born before 1950", []LFPlan{
		{SubQuery: "was Turing born before 1950", Node: &logicform.DeduceNode{
			Op:      logicform.DeduceJudgement,
			Content: "the birth year is before 1950",
			Alias:   "d1",
		}},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	step := result.SubResults[0]
	if step.SubAnswer != "yes" {
		t.Errorf("sub answer = %q, want %q", step.SubAnswer, "yes")
	}
	if step.MatchType != MatchTypeAtomic {
		t.Errorf("match type = %q, want %q", step.MatchType, MatchTypeAtomic)
	}
	if got := result.Graph.GetAnsweredAlias("d1"); len(got) != 1 || got[0] != "yes" {
		t.Errorf("answered alias d1 = %v, want [yes]", got)
	}
}

func TestExecuteOutputRendersAnsweredAliases(t *testing.T) {
	client := &mockAIClient{completions: []string{"final answer"}}
	executor := NewExecutor(ExecutorParams{AIClient: client, Runner: &stubRunner{output: "114"}})

	result, err := executor.Execute(context.Background(), "how old would Turing be", []LFPlan{
		{SubQuery: "compute the age", Node: &logicform.MathNode{Content: "2026 - 1912", Alias: "m1"}},
		{SubQuery: "output the age", Node: &logicform.OutputNode{Aliases: []string{"m1"}}},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	output := result.SubResults[1]
	if !strings.Contains(output.SubAnswer, "m1: 114") {
		t.Errorf("output answer = %q, want it to contain %q", output.SubAnswer, "m1: 114")
	}
	if output.MatchType != MatchTypeAtomic {
		t.Errorf("match type = %q, want %q", output.MatchType, MatchTypeAtomic)
	}
	if len(result.KGSolvedAnswer) == 0 {
		t.Error("solved-answer accumulator is empty")
	}
}

func TestSubQueryResultToJSON(t *testing.T) {
	result := &SubQueryResult{
		SubQuery:  "q",
		SubAnswer: "a",
		MatchType: MatchTypeChunk,
		DebugInfo: []DebugEntry{{Code: "print(1)", Error: "boom"}},
	}

	raw, err := result.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for _, key := range []string{"sub_query", "sub_answer", "doc_retrieved", "spo_retrieved", "match_type", "execute_cost", "debug_info"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("key %q missing from serialized result", key)
		}
	}
}

func TestSolveTraceStates(t *testing.T) {
	trace := NewSolveTrace()
	RecordStepState(trace, "q1", StepWaiting)
	RecordStepState(trace, "q2", StepWaiting)
	RecordStepState(trace, "q1", StepRunning)
	RecordStepFinished(trace, "q1", MatchTypeExact, 12)

	snapshot := trace.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("snapshot size = %d, want 2", len(snapshot))
	}
	if snapshot[0].SubQuery != "q1" || snapshot[0].State != StepFinished || snapshot[0].MatchType != MatchTypeExact {
		t.Errorf("q1 snapshot = %+v", snapshot[0])
	}
	if snapshot[1].State != StepWaiting {
		t.Errorf("q2 state = %q, want %q", snapshot[1].State, StepWaiting)
	}

	finished := trace.Finished()
	if len(finished) != 1 || finished[0] != "q1" {
		t.Errorf("finished = %v, want [q1]", finished)
	}
}
