package solver

import (
	"sort"
	"sync"
)

// StepState is the lifecycle state of one sub-query.
type StepState string

const (
	StepWaiting  StepState = "WAITING"
	StepRunning  StepState = "RUNNING"
	StepFinished StepState = "FINISHED"
)

type TraceEventKind string

const (
	TraceEventStepState TraceEventKind = "step_state"
	TraceEventToolCall  TraceEventKind = "tool_call"
)

// TraceEvent is an extensible event envelope for execution tracing.
// Additive changes to this struct are backward compatible for implementers.
type TraceEvent struct {
	Kind TraceEventKind

	SubQuery  string
	State     StepState
	MatchType MatchType

	ToolName   string
	DurationMs int64
	Error      string
}

// Tracer is a sink for execution tracing events.
//
// Implementers can forward events to logs, telemetry, or progress reporting
// pipelines.
type Tracer interface {
	Record(event TraceEvent)
}

// MultiTracer fan-outs trace events to multiple tracers.
type MultiTracer []Tracer

func (m MultiTracer) Record(event TraceEvent) {
	for _, t := range m {
		if t == nil {
			continue
		}
		t.Record(event)
	}
}

func RecordStepState(t Tracer, subQuery string, state StepState) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventStepState, SubQuery: subQuery, State: state})
}

func RecordStepFinished(t Tracer, subQuery string, matchType MatchType, durationMs int64) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{
		Kind:       TraceEventStepState,
		SubQuery:   subQuery,
		State:      StepFinished,
		MatchType:  matchType,
		DurationMs: durationMs,
	})
}

// SolveTrace collects the lifecycle state of every sub-query during one
// question run.
//
// This is primarily used to expose execution progress to callers polling a
// long-running question.
//
// SolveTrace is safe for concurrent use.
type SolveTrace struct {
	mu sync.Mutex

	states     map[string]StepState
	matchTypes map[string]MatchType
	order      []string
}

// SolveTraceSnapshot is one step's state at snapshot time, in execution
// order.
type SolveTraceSnapshot struct {
	SubQuery  string
	State     StepState
	MatchType MatchType
}

func NewSolveTrace() *SolveTrace {
	return &SolveTrace{
		states:     make(map[string]StepState),
		matchTypes: make(map[string]MatchType),
	}
}

func (t *SolveTrace) Record(event TraceEvent) {
	if t == nil || event.Kind != TraceEventStepState || event.SubQuery == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.states[event.SubQuery]; !ok {
		t.order = append(t.order, event.SubQuery)
	}
	t.states[event.SubQuery] = event.State
	if event.MatchType != "" {
		t.matchTypes[event.SubQuery] = event.MatchType
	}
}

func (t *SolveTrace) Snapshot() []SolveTraceSnapshot {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]SolveTraceSnapshot, 0, len(t.order))
	for _, subQuery := range t.order {
		out = append(out, SolveTraceSnapshot{
			SubQuery:  subQuery,
			State:     t.states[subQuery],
			MatchType: t.matchTypes[subQuery],
		})
	}
	return out
}

// Finished reports the sub-queries that have reached the FINISHED state,
// sorted for determinism.
func (t *SolveTrace) Finished() []string {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var out []string
	for subQuery, state := range t.states {
		if state == StepFinished {
			out = append(out, subQuery)
		}
	}
	sort.Strings(out)
	return out
}
