package solver

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/OFFIS-RIT/moa/backend/pkg/logger"
)

// Evidence budgets for the final synthesis prompt, in o200k_base tokens.
// Graph evidence is cheap and precise so it gets a smaller share than the
// recalled documents.
const (
	graphEvidenceBudget = 4000
	docEvidenceBudget   = 12000
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

func getEncoding() *tiktoken.Tiktoken {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("o200k_base")
		if err != nil {
			logger.Warn("[Solver] Failed to load token encoding, evidence will not be budgeted", "error", err)
			return
		}
		encoding = enc
	})
	return encoding
}

// trimToBudget keeps lines in order until the token budget is exhausted.
// Lines are already ranked by relevance, so dropping the tail loses the
// least useful evidence first.
func trimToBudget(lines []string, budget int) []string {
	enc := getEncoding()
	if enc == nil || len(lines) == 0 {
		return lines
	}

	used := 0
	for i, line := range lines {
		used += len(enc.Encode(line, nil, nil))
		if used > budget {
			logger.Debug("[Solver] Evidence trimmed to token budget", "kept", i, "dropped", len(lines)-i)
			return lines[:i]
		}
	}
	return lines
}
