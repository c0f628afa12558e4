package solver

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/OFFIS-RIT/moa/backend/pkg/ai"
	"github.com/OFFIS-RIT/moa/backend/pkg/kg"
	"github.com/OFFIS-RIT/moa/backend/pkg/logger"
	"github.com/OFFIS-RIT/moa/backend/pkg/logicform"
)

var reAliasRef = regexp.MustCompile("`([^`]+)`")

// executeMath resolves alias references in the computation, generates a
// script through the LLM collaborator and executes it in a subprocess.
// Failed attempts feed their error back into the next attempt's prompt.
func (e *Executor) executeMath(ctx context.Context, g *kg.KgGraph, node *logicform.MathNode, result *SubQueryResult) {
	content := resolveAliasRefs(g, node.Content)
	if node.Target != "" {
		content = content + "; the result should be: " + node.Target
	}
	known := knownValues(g)

	if e.voteStrategies > 1 {
		e.mathWithVote(ctx, content, known, result)
		return
	}

	lastError := ""
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		answer, entry := e.mathAttempt(ctx, content, known, lastError)
		if entry == nil {
			result.SubAnswer = answer
			result.MatchType = MatchTypeAtomic
			return
		}
		result.DebugInfo = append(result.DebugInfo, *entry)
		lastError = entry.Error
	}
	result.SubAnswer = UnknownAnswer
}

// mathAttempt runs one generate-and-execute cycle. A nil debug entry means
// the attempt succeeded.
func (e *Executor) mathAttempt(ctx context.Context, content, known, lastError string) (string, *DebugEntry) {
	raw, err := e.generateWithRetry(ctx, ai.BuildMathCodePrompt(content, known, lastError))
	if err != nil {
		return "", &DebugEntry{Error: fmt.Sprintf("code generation failed: %v", err)}
	}

	code := ai.ExtractCodeBlock(raw)
	out, err := e.runner.Run(ctx, code)
	if err != nil {
		return "", &DebugEntry{Code: code, Error: err.Error()}
	}
	return strings.TrimSpace(out), nil
}

// mathWithVote issues independent answer strategies concurrently and lets
// the LLM collaborator vote over the candidates. Each strategy writes to
// its own slot; results are only combined after all strategies resolve.
func (e *Executor) mathWithVote(ctx context.Context, content, known string, result *SubQueryResult) {
	candidates := make([]string, e.voteStrategies)
	entries := make([]*DebugEntry, e.voteStrategies)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(voteWorkers)
	for i := 0; i < e.voteStrategies; i++ {
		group.Go(func() error {
			candidates[i], entries[i] = e.mathAttempt(groupCtx, content, known, "")
			return nil
		})
	}
	_ = group.Wait()

	var answered []string
	for i, candidate := range candidates {
		if entries[i] != nil {
			result.DebugInfo = append(result.DebugInfo, *entries[i])
			continue
		}
		answered = append(answered, candidate)
	}

	switch len(answered) {
	case 0:
		result.SubAnswer = UnknownAnswer
		return
	case 1:
		result.SubAnswer = answered[0]
		result.MatchType = MatchTypeAtomic
		return
	}

	var verdict struct {
		Index int `json:"index"`
	}
	err := e.aiClient.GenerateCompletionWithFormat(
		ctx,
		"vote",
		"Index of the most trustworthy candidate answer",
		ai.BuildVotePrompt(content, answered),
		&verdict,
	)
	if err != nil || verdict.Index < 0 || verdict.Index >= len(answered) {
		logger.Warn("[Solver] Candidate vote failed, keeping the first candidate", "error", err)
		verdict.Index = 0
	}
	result.SubAnswer = answered[verdict.Index]
	result.MatchType = MatchTypeAtomic
}

// resolveAliasRefs substitutes backtick-quoted alias references with the
// values bound to them in earlier steps. Unbound references stay verbatim.
func resolveAliasRefs(g *kg.KgGraph, content string) string {
	return reAliasRef.ReplaceAllStringFunc(content, func(ref string) string {
		alias := strings.Trim(ref, "`")
		values := aliasValues(g, alias)
		if len(values) == 0 {
			return ref
		}
		return strings.Join(values, ", ")
	})
}

// aliasValues returns the scalar answers bound to an alias, falling back to
// the names of its bound entities.
func aliasValues(g *kg.KgGraph, alias string) []string {
	if values := g.GetAnsweredAlias(alias); len(values) > 0 {
		return values
	}
	entities := g.GetEntityByAlias(alias)
	names := make([]string, 0, len(entities))
	for _, entity := range entities {
		names = append(names, entity.ShortName())
	}
	return names
}

// knownValues renders every answered alias for the code-generation prompt.
func knownValues(g *kg.KgGraph) string {
	var lines []string
	for _, alias := range g.AnsweredAliasNames() {
		lines = append(lines, fmt.Sprintf("%s = %s", alias, strings.Join(g.GetAnsweredAlias(alias), ", ")))
	}
	return strings.Join(lines, "\n")
}
