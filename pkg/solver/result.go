// Package solver drives an ordered list of logic-form steps through the
// matching fallback chain and merges the per-step outcomes into a final
// answer.
package solver

import (
	"encoding/json"
	"time"

	"github.com/OFFIS-RIT/moa/backend/pkg/kg"
	"github.com/OFFIS-RIT/moa/backend/pkg/logicform"
)

// MatchType records which retrieval tier produced a step's answer.
type MatchType string

const (
	MatchTypeExact  MatchType = "exact spo"
	MatchTypeFuzzy  MatchType = "fuzzy spo"
	MatchTypeChunk  MatchType = "chunk"
	MatchTypeAtomic MatchType = "atomic_question"
)

// UnknownAnswer is the sentinel for a step that exhausted every fallback
// tier without producing an answer.
const UnknownAnswer = "I don't know"

// LFPlan pairs one sub-query with its parsed plan node.
type LFPlan struct {
	SubQuery string
	Node     logicform.Node
}

// DebugEntry records one failed code-execution attempt of a Math step.
type DebugEntry struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// SubQueryResult is the outcome of one executed step.
type SubQueryResult struct {
	SubQuery     string
	SubAnswer    string
	IfAnswered   bool
	DocRetrieved []string
	SPORetrieved []string
	MatchType    MatchType
	ExecuteCost  time.Duration
	DebugInfo    []DebugEntry

	// set once a sub-answer was synthesized from the current evidence, so
	// the fallback does not prompt again over an unchanged evidence set
	synthesized bool
}

type subQueryResultJSON struct {
	SubQuery     string       `json:"sub_query"`
	SubAnswer    string       `json:"sub_answer"`
	DocRetrieved []string     `json:"doc_retrieved"`
	SPORetrieved []string     `json:"spo_retrieved"`
	MatchType    MatchType    `json:"match_type"`
	ExecuteCost  float64      `json:"execute_cost"`
	DebugInfo    []DebugEntry `json:"debug_info"`
}

// ToJSON serializes the step outcome. The execute cost is reported in
// seconds.
func (r *SubQueryResult) ToJSON() ([]byte, error) {
	docs := r.DocRetrieved
	if docs == nil {
		docs = []string{}
	}
	spo := r.SPORetrieved
	if spo == nil {
		spo = []string{}
	}
	debug := r.DebugInfo
	if debug == nil {
		debug = []DebugEntry{}
	}
	return json.Marshal(subQueryResultJSON{
		SubQuery:     r.SubQuery,
		SubAnswer:    r.SubAnswer,
		DocRetrieved: docs,
		SPORetrieved: spo,
		MatchType:    r.MatchType,
		ExecuteCost:  r.ExecuteCost.Seconds(),
		DebugInfo:    debug,
	})
}

// LFExecuteResult aggregates every step outcome of one question.
type LFExecuteResult struct {
	SubResults     []*SubQueryResult
	RecalledDocs   []string
	RerankedDocs   []string
	Graph          *kg.KgGraph
	KGSolvedAnswer []string
	Answer         string
}
