package graphstore

import "math"

const (
	pagerankDamping    = 0.85
	pagerankIterations = 20
	pagerankEpsilon    = 1e-6
)

// Propagate runs personalized PageRank over an adjacency list. The start
// map is the restart distribution (it is normalized internally); the result
// assigns every reachable node a score in (0,1]. Implementations that hold
// their adjacency in memory share this routine; SQL-backed stores load the
// relevant subgraph first.
func Propagate(adjacency map[string][]string, start map[string]float64) map[string]float64 {
	if len(start) == 0 {
		return map[string]float64{}
	}

	restart := normalize(start)

	scores := make(map[string]float64, len(restart))
	for id, w := range restart {
		scores[id] = w
	}

	for i := 0; i < pagerankIterations; i++ {
		next := make(map[string]float64, len(scores))
		for id, w := range restart {
			next[id] = (1 - pagerankDamping) * w
		}
		for node, score := range scores {
			neighbors := adjacency[node]
			if len(neighbors) == 0 {
				continue
			}
			share := pagerankDamping * score / float64(len(neighbors))
			for _, n := range neighbors {
				next[n] += share
			}
		}
		converged := maxDelta(scores, next) < pagerankEpsilon
		scores = next
		if converged {
			break
		}
	}
	return scores
}

func maxDelta(prev, next map[string]float64) float64 {
	delta := 0.0
	for id, score := range next {
		if d := math.Abs(score - prev[id]); d > delta {
			delta = d
		}
	}
	for id, score := range prev {
		if _, ok := next[id]; !ok && score > delta {
			delta = score
		}
	}
	return delta
}

func normalize(start map[string]float64) map[string]float64 {
	total := 0.0
	for _, w := range start {
		if w > 0 {
			total += w
		}
	}
	out := make(map[string]float64, len(start))
	if total == 0 {
		uniform := 1.0 / float64(len(start))
		for id := range start {
			out[id] = uniform
		}
		return out
	}
	for id, w := range start {
		if w > 0 {
			out[id] = w / total
		}
	}
	return out
}
