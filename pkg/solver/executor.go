package solver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/OFFIS-RIT/moa/backend/internal/util"
	"github.com/OFFIS-RIT/moa/backend/pkg/ai"
	"github.com/OFFIS-RIT/moa/backend/pkg/chunk"
	"github.com/OFFIS-RIT/moa/backend/pkg/kg"
	"github.com/OFFIS-RIT/moa/backend/pkg/logger"
	"github.com/OFFIS-RIT/moa/backend/pkg/logicform"
	"github.com/OFFIS-RIT/moa/backend/pkg/match"
)

const (
	defaultMaxRetries = 3

	// bounded worker pool for concurrent Math answer strategies
	voteWorkers = 3
)

// Executor runs the steps of one question in order. Later steps observe
// exactly the graph-of-record state left by earlier steps, so steps are
// never executed concurrently.
type Executor struct {
	exact     match.Matcher
	fuzzy     match.Matcher
	retriever *chunk.Retriever
	aiClient  ai.SolverAIClient
	runner    CodeRunner
	tracer    Tracer

	forceChunk     bool
	maxRetries     int
	voteStrategies int
}

// ExecutorParams configures an Executor. Runner defaults to a python3
// subprocess runner, MaxRetries to 3, VoteStrategies to 1 (no voting).
type ExecutorParams struct {
	Exact     match.Matcher
	Fuzzy     match.Matcher
	Retriever *chunk.Retriever
	AIClient  ai.SolverAIClient
	Runner    CodeRunner
	Tracer    Tracer

	// ForceChunk always invokes the chunk retriever, even when the graph
	// already answered the step.
	ForceChunk bool

	MaxRetries     int
	VoteStrategies int
}

// NewExecutor creates a step executor.
func NewExecutor(params ExecutorParams) *Executor {
	e := &Executor{
		exact:          params.Exact,
		fuzzy:          params.Fuzzy,
		retriever:      params.Retriever,
		aiClient:       params.AIClient,
		runner:         params.Runner,
		tracer:         params.Tracer,
		forceChunk:     params.ForceChunk,
		maxRetries:     params.MaxRetries,
		voteStrategies: params.VoteStrategies,
	}
	if e.runner == nil {
		e.runner = NewPythonRunner("", 0)
	}
	if e.maxRetries <= 0 {
		e.maxRetries = defaultMaxRetries
	}
	if e.voteStrategies <= 0 {
		e.voteStrategies = 1
	}
	return e
}

// Execute runs every plan step in order against a fresh graph-of-record and
// merges the outcomes. Individual step failures degrade to the unknown
// sentinel; only context cancellation aborts the run.
func (e *Executor) Execute(ctx context.Context, question string, plans []LFPlan) (*LFExecuteResult, error) {
	result := &LFExecuteResult{Graph: kg.NewKgGraph()}

	for _, plan := range plans {
		RecordStepState(e.tracer, plan.SubQuery, StepWaiting)
	}

	for _, plan := range plans {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		RecordStepState(e.tracer, plan.SubQuery, StepRunning)
		start := time.Now()

		stepResult := e.executeStep(ctx, result.Graph, plan)
		stepResult.ExecuteCost = time.Since(start)

		if alias := bindAlias(plan.Node); alias != "" && stepResult.IfAnswered {
			result.Graph.AddAnsweredAlias(alias, stepResult.SubAnswer)
		}

		result.SubResults = append(result.SubResults, stepResult)
		result.RecalledDocs = mergeDocs(result.RecalledDocs, stepResult.DocRetrieved)
		RecordStepFinished(e.tracer, plan.SubQuery, stepResult.MatchType, stepResult.ExecuteCost.Milliseconds())
	}

	e.finalize(ctx, question, plans, result)
	return result, nil
}

// executeStep runs the structural executor for the node type, then the
// chunk fallback when the step has no confident answer.
func (e *Executor) executeStep(ctx context.Context, g *kg.KgGraph, plan LFPlan) *SubQueryResult {
	result := &SubQueryResult{SubQuery: plan.SubQuery}

	switch node := plan.Node.(type) {
	case *logicform.RetrievalNode:
		e.executeRetrieval(ctx, g, plan.SubQuery, node, result)
	case *logicform.MathNode:
		e.executeMath(ctx, g, node, result)
	case *logicform.DeduceNode:
		e.executeDeduce(ctx, g, node, result)
	case *logicform.OutputNode:
		e.executeOutput(g, node, result)
		return result
	default:
		logger.Warn("[Solver] Unknown plan node kind", "kind", plan.Node.Kind())
		result.SubAnswer = UnknownAnswer
		return result
	}

	if e.forceChunk || !confident(result.SubAnswer) {
		e.chunkFallback(ctx, g, plan.SubQuery, result)
	}

	if result.SubAnswer == "" {
		result.SubAnswer = UnknownAnswer
	}
	result.IfAnswered = confident(result.SubAnswer)
	return result
}

// executeRetrieval tries the exact matcher, then the fuzzy matcher. Under
// the force-chunk policy the chunk recall races the graph match since both
// write disjoint result slots.
func (e *Executor) executeRetrieval(ctx context.Context, g *kg.KgGraph, subQuery string, node *logicform.RetrievalNode, result *SubQueryResult) {
	heads := g.GetEntityByAlias(node.Subject.Alias)
	tails := g.GetEntityByAlias(node.Object.Alias)

	var matched *kg.KgGraph
	var docs []string

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		matched = e.matchPattern(groupCtx, subQuery, node, heads, tails, result)
		return nil
	})
	if e.forceChunk && e.retriever != nil {
		group.Go(func() error {
			var err error
			docs, err = e.retriever.RecallDocs(groupCtx, []string{subQuery}, g)
			if err != nil {
				logger.Warn("[Solver] Chunk recall failed", "error", err)
			}
			return nil
		})
	}
	_ = group.Wait()

	if !graphEmpty(matched) {
		g.Merge(matched)
		result.SPORetrieved = matched.ToEvidence()
	}
	if len(docs) > 0 {
		result.DocRetrieved = docs
	}
	if len(result.SPORetrieved) == 0 && len(result.DocRetrieved) == 0 {
		return
	}

	answer, err := e.generateWithRetry(ctx, ai.BuildSubQuestionPrompt(
		subQuery,
		strings.Join(result.SPORetrieved, "\n"),
		strings.Join(result.DocRetrieved, "\n\n"),
	))
	if err != nil {
		logger.Warn("[Solver] Sub-answer synthesis failed", "sub_query", subQuery, "error", err)
		return
	}
	result.SubAnswer = strings.TrimSpace(answer)
	result.synthesized = true
}

// matchPattern runs the exact matcher and falls back to the fuzzy matcher
// only when the exact match produced nothing.
func (e *Executor) matchPattern(ctx context.Context, subQuery string, node *logicform.RetrievalNode, heads, tails []*kg.EntityData, result *SubQueryResult) *kg.KgGraph {
	matched, err := match.Match(ctx, e.exact, subQuery, node, heads, tails)
	if err != nil {
		logger.Warn("[Solver] Exact match failed", "sub_query", subQuery, "error", err)
	}
	if !graphEmpty(matched) {
		result.MatchType = MatchTypeExact
		return matched
	}

	matched, err = match.Match(ctx, e.fuzzy, subQuery, node, heads, tails)
	if err != nil {
		logger.Warn("[Solver] Fuzzy match failed", "sub_query", subQuery, "error", err)
	}
	if !graphEmpty(matched) {
		result.MatchType = MatchTypeFuzzy
		return matched
	}
	return nil
}

// chunkFallback recalls passages for the step and synthesizes a sub-answer
// from whichever evidence sets are non-empty.
func (e *Executor) chunkFallback(ctx context.Context, g *kg.KgGraph, subQuery string, result *SubQueryResult) {
	recalled := false
	if e.retriever != nil && len(result.DocRetrieved) == 0 {
		docs, err := e.retriever.RecallDocs(ctx, []string{subQuery}, g)
		if err != nil {
			logger.Warn("[Solver] Chunk recall failed", "sub_query", subQuery, "error", err)
		}
		result.DocRetrieved = docs
		recalled = len(docs) > 0
	}
	if len(result.DocRetrieved) == 0 && len(result.SPORetrieved) == 0 {
		return
	}
	// the step already synthesized over this exact evidence set; prompting
	// again cannot change the outcome
	if result.synthesized && !recalled {
		return
	}

	answer, err := e.generateWithRetry(ctx, ai.BuildSubQuestionPrompt(
		subQuery,
		strings.Join(result.SPORetrieved, "\n"),
		strings.Join(result.DocRetrieved, "\n\n"),
	))
	if err != nil {
		logger.Warn("[Solver] Chunk sub-answer synthesis failed", "sub_query", subQuery, "error", err)
		return
	}

	answer = strings.TrimSpace(answer)
	if !confident(answer) {
		return
	}
	result.SubAnswer = answer
	if result.MatchType == "" || len(result.SPORetrieved) == 0 {
		result.MatchType = MatchTypeChunk
	}
}

// executeOutput renders the bound values of the named aliases as the final
// textual answer and appends them to the solved-answer accumulator.
func (e *Executor) executeOutput(g *kg.KgGraph, node *logicform.OutputNode, result *SubQueryResult) {
	var lines []string
	for _, alias := range node.Aliases {
		if values := g.GetAnsweredAlias(alias); len(values) > 0 {
			lines = append(lines, fmt.Sprintf("%s: %s", alias, strings.Join(values, ", ")))
			continue
		}
		if entities := g.GetEntityByAlias(alias); len(entities) > 0 {
			names := make([]string, 0, len(entities))
			for _, entity := range entities {
				names = append(names, entity.ShortName())
			}
			lines = append(lines, fmt.Sprintf("%s: %s", alias, strings.Join(names, ", ")))
			continue
		}
		if path := g.ToSPOPath(alias); path != "" {
			lines = append(lines, path)
		}
	}

	if len(lines) == 0 {
		result.SubAnswer = UnknownAnswer
		return
	}
	result.SubAnswer = strings.Join(lines, "\n")
	result.IfAnswered = true
	result.MatchType = MatchTypeAtomic
}

// finalize deduplicates and reranks the recalled passages across all steps
// and synthesizes the final answer from the accumulated evidence.
func (e *Executor) finalize(ctx context.Context, question string, plans []LFPlan, result *LFExecuteResult) {
	for _, stepResult := range result.SubResults {
		if stepResult.IfAnswered {
			result.KGSolvedAnswer = append(result.KGSolvedAnswer, stepResult.SubQuery+": "+stepResult.SubAnswer)
		}
	}

	if e.retriever != nil && len(result.RecalledDocs) > 1 {
		queries := make([]string, 0, len(plans)+1)
		queries = append(queries, question)
		for _, plan := range plans {
			queries = append(queries, plan.SubQuery)
		}
		reranked, err := e.retriever.RerankDocs(ctx, queries, result.RecalledDocs)
		if err != nil {
			logger.Warn("[Solver] Doc rerank failed", "error", err)
			reranked = result.RecalledDocs
		}
		result.RerankedDocs = reranked
	} else {
		result.RerankedDocs = result.RecalledDocs
	}

	answer, err := e.generateWithRetry(ctx, ai.BuildSynthesisPrompt(
		question,
		strings.Join(trimToBudget(result.Graph.ToEvidence(), graphEvidenceBudget), "\n"),
		strings.Join(result.KGSolvedAnswer, "\n"),
		strings.Join(trimToBudget(result.RerankedDocs, docEvidenceBudget), "\n\n"),
	))
	if err != nil {
		logger.Error("[Solver] Final answer synthesis failed", "error", err)
		answer = UnknownAnswer
	}
	result.Answer = strings.TrimSpace(answer)
}

func (e *Executor) generateWithRetry(ctx context.Context, prompt string) (string, error) {
	return util.RetryWithContext(ctx, e.maxRetries, func(ctx context.Context) (string, error) {
		return e.aiClient.GenerateCompletion(ctx, prompt)
	})
}

// bindAlias returns the alias a step's answer is bound under, if any.
func bindAlias(node logicform.Node) string {
	switch n := node.(type) {
	case *logicform.RetrievalNode:
		return n.Object.Alias
	case *logicform.MathNode:
		return n.Alias
	case *logicform.DeduceNode:
		return n.Alias
	}
	return ""
}

// confident reports whether an answer is usable: non-empty and not the
// unknown sentinel.
func confident(answer string) bool {
	if answer == "" {
		return false
	}
	return !strings.Contains(strings.ToLower(answer), "i don't know")
}

func graphEmpty(g *kg.KgGraph) bool {
	if g == nil {
		return true
	}
	return len(g.EntityMap) == 0 && len(g.EdgeMap) == 0
}

// mergeDocs appends docs, skipping ones already present.
func mergeDocs(dst, src []string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, doc := range dst {
		seen[doc] = struct{}{}
	}
	for _, doc := range src {
		if _, ok := seen[doc]; ok {
			continue
		}
		seen[doc] = struct{}{}
		dst = append(dst, doc)
	}
	return dst
}
