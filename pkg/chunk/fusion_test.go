package chunk

import (
	"math"
	"testing"
)

func TestFuseScoresBlendsEvenly(t *testing.T) {
	sim := map[string]float64{"a": 1.0, "b": 0.0}
	pagerank := map[string]float64{"a": 0.0, "b": 1.0}

	combined := FuseScores(sim, pagerank, 0.5, 0.9, 0.5)

	if math.Abs(combined["a"]-0.5) > 1e-9 || math.Abs(combined["b"]-0.5) > 1e-9 {
		t.Errorf("combined = %v, want a=0.5 b=0.5", combined)
	}
}

func TestFuseScoresTrustsPagerankAboveThreshold(t *testing.T) {
	sim := map[string]float64{"a": 1.0, "b": 0.2}
	pagerank := map[string]float64{"a": 0.1, "b": 0.9}

	combined := FuseScores(sim, pagerank, 0.95, 0.9, 0.5)

	if len(combined) != len(pagerank) {
		t.Fatalf("combined keys = %d, want %d", len(combined), len(pagerank))
	}
	for k, v := range pagerank {
		if combined[k] != v {
			t.Errorf("combined[%s] = %v, want pagerank score %v", k, combined[k], v)
		}
	}
}

func TestFuseScoresFillsMissingKeys(t *testing.T) {
	sim := map[string]float64{"a": 1.0}
	pagerank := map[string]float64{"b": 1.0}

	combined := FuseScores(sim, pagerank, 0.5, 0.9, 0.5)

	if _, ok := combined["a"]; !ok {
		t.Error("key a missing from combined scores")
	}
	if _, ok := combined["b"]; !ok {
		t.Error("key b missing from combined scores")
	}
}

func TestTopKeysDescending(t *testing.T) {
	scores := map[string]float64{"a": 0.2, "b": 0.9, "c": 0.5}
	got := topKeys(scores, 2)
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("topKeys() = %v, want [b c]", got)
	}
}

func TestBordaFuse(t *testing.T) {
	rankings := [][]string{
		{"d1", "d2", "d3"},
		{"d2", "d1", "d3"},
		{"d2", "d3", "d1"},
	}
	got := bordaFuse(rankings)
	if got[0] != "d2" {
		t.Errorf("top doc = %s, want d2", got[0])
	}
	if got[len(got)-1] != "d3" {
		t.Errorf("last doc = %s, want d3", got[len(got)-1])
	}
}
