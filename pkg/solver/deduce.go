package solver

import (
	"context"
	"strings"

	"github.com/OFFIS-RIT/moa/backend/internal/util"
	"github.com/OFFIS-RIT/moa/backend/pkg/ai"
	"github.com/OFFIS-RIT/moa/backend/pkg/kg"
	"github.com/OFFIS-RIT/moa/backend/pkg/logger"
	"github.com/OFFIS-RIT/moa/backend/pkg/logicform"
)

// executeDeduce runs one deduction sub-operator over the evidence collected
// so far. An unanswered verdict leaves the sub-answer empty so the chunk
// fallback can take over.
func (e *Executor) executeDeduce(ctx context.Context, g *kg.KgGraph, node *logicform.DeduceNode, result *SubQueryResult) {
	content := resolveAliasRefs(g, node.Content)
	if node.Target != "" {
		content = content + "; the result should be: " + node.Target
	}
	evidence := strings.Join(g.ToEvidence(), "\n")

	var prompt string
	switch node.Op {
	case logicform.DeduceJudgement:
		prompt = ai.BuildJudgementPrompt(content, evidence)
	case logicform.DeduceEntailment:
		prompt = ai.BuildEntailmentPrompt(content, evidence)
	case logicform.DeduceChoice:
		prompt = ai.BuildChoicePrompt(content, evidence)
	case logicform.DeduceMultiChoice:
		prompt = ai.BuildMultiChoicePrompt(content, evidence)
	default:
		logger.Warn("[Solver] Unknown deduce operator", "op", node.Op)
		return
	}

	var verdict struct {
		Answered bool   `json:"answered"`
		Answer   string `json:"answer"`
	}
	err := util.RetryErr(e.maxRetries, func() error {
		return e.aiClient.GenerateCompletionWithFormat(
			ctx,
			"deduction",
			"Whether the evidence suffices and the deduced answer",
			prompt,
			&verdict,
		)
	})
	if err != nil {
		logger.Warn("[Solver] Deduction failed", "op", node.Op, "error", err)
		return
	}
	if !verdict.Answered {
		return
	}
	result.SubAnswer = strings.TrimSpace(verdict.Answer)
	result.MatchType = MatchTypeAtomic
}
