package chunk

import "sort"

// FuseScores combines vector similarity and propagation scores for chunk
// candidates. When every matched entity is high-confidence (minMatchedScore
// above threshold) the propagation scores are trusted alone; otherwise both
// maps are min-max normalized independently over the union of their keys
// (missing keys count as 0) and blended with the given pagerank weight.
func FuseScores(simScores, pagerankScores map[string]float64, minMatchedScore, threshold, weight float64) map[string]float64 {
	if len(pagerankScores) > 0 && minMatchedScore > threshold {
		out := make(map[string]float64, len(pagerankScores))
		for k, v := range pagerankScores {
			out[k] = v
		}
		return out
	}

	keys := make(map[string]struct{}, len(simScores)+len(pagerankScores))
	for k := range simScores {
		keys[k] = struct{}{}
	}
	for k := range pagerankScores {
		keys[k] = struct{}{}
	}

	simNorm := minMaxNormalize(simScores, keys)
	prNorm := minMaxNormalize(pagerankScores, keys)

	out := make(map[string]float64, len(keys))
	for k := range keys {
		out[k] = simNorm[k]*(1-weight) + prNorm[k]*weight
	}
	return out
}

func minMaxNormalize(scores map[string]float64, keys map[string]struct{}) map[string]float64 {
	out := make(map[string]float64, len(keys))
	if len(scores) == 0 {
		for k := range keys {
			out[k] = 0
		}
		return out
	}

	min, max := 0.0, 0.0
	first := true
	for k := range keys {
		v := scores[k]
		if first {
			min, max = v, v
			first = false
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	span := max - min
	for k := range keys {
		if span == 0 {
			out[k] = 0
			continue
		}
		out[k] = (scores[k] - min) / span
	}
	return out
}

// topKeys returns the ids of the top n scores, descending, ties broken by id
// for determinism.
func topKeys(scores map[string]float64, n int) []string {
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if scores[keys[i]] != scores[keys[j]] {
			return scores[keys[i]] > scores[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if n > 0 && len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// bordaFuse aggregates several independent rankings of documents into one
// order by summing inverse rank positions.
func bordaFuse(rankings [][]string) []string {
	scores := make(map[string]float64)
	var order []string
	seen := make(map[string]struct{})

	for _, ranking := range rankings {
		for pos, doc := range ranking {
			scores[doc] += 1.0 / float64(pos+1)
			if _, ok := seen[doc]; !ok {
				seen[doc] = struct{}{}
				order = append(order, doc)
			}
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})
	return order
}
