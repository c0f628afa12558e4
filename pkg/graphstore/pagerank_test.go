package graphstore

import (
	"math"
	"testing"
)

func TestPropagateFavorsNeighbors(t *testing.T) {
	adjacency := map[string][]string{
		"a": {"b"},
		"b": {"a", "c"},
		"c": {"b"},
		"x": {"y"},
		"y": {"x"},
	}
	scores := Propagate(adjacency, map[string]float64{"a": 1})

	if scores["b"] <= 0 || scores["c"] <= 0 {
		t.Fatalf("reachable nodes not scored: b=%v c=%v", scores["b"], scores["c"])
	}
	if scores["b"] <= scores["c"] {
		t.Errorf("direct neighbor b (%v) should outscore two-hop c (%v)", scores["b"], scores["c"])
	}
	if _, ok := scores["x"]; ok {
		t.Errorf("unreachable node x scored %v", scores["x"])
	}
}

func TestPropagateConvergesToRestartFixedPoint(t *testing.T) {
	// a seed without edges keeps only its restart mass; the loop must settle
	// on (1-damping) exactly once the per-node delta drops below epsilon
	scores := Propagate(map[string][]string{}, map[string]float64{"a": 1})

	want := 1 - pagerankDamping
	if math.Abs(scores["a"]-want) > pagerankEpsilon {
		t.Errorf("score[a] = %v, want fixed point %v", scores["a"], want)
	}
	if len(scores) != 1 {
		t.Errorf("scores = %v, want only the seed", scores)
	}
}

func TestPropagateEmptyStart(t *testing.T) {
	scores := Propagate(map[string][]string{"a": {"b"}}, nil)
	if len(scores) != 0 {
		t.Errorf("scores = %v, want empty", scores)
	}
}
