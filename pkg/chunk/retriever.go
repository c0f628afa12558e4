// Package chunk implements the free-text fallback retriever: named entities
// recognized in the query are linked to graph nodes, a propagation score
// from those seeds is fused with plain vector similarity, and the resulting
// passages are reranked across queries.
package chunk

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/OFFIS-RIT/moa/backend/pkg/ai"
	"github.com/OFFIS-RIT/moa/backend/pkg/cache"
	"github.com/OFFIS-RIT/moa/backend/pkg/graphstore"
	"github.com/OFFIS-RIT/moa/backend/pkg/kg"
	"github.com/OFFIS-RIT/moa/backend/pkg/logger"
)

const (
	defaultRecallNum         = 10
	defaultPagerankThreshold = 0.9
	defaultPagerankWeight    = 0.5

	// over-fetch factor for the vector similarity pass
	overFetchFactor = 20

	// typed entity hits win over untyped hits above this score
	typedPreferenceScore = 0.8
)

// Retriever recalls and reranks text chunks for queries the graph could not
// answer.
type Retriever struct {
	store    graphstore.GraphStore
	search   graphstore.SearchStore
	aiClient ai.SolverAIClient

	nerCache cache.Cache
	simCache cache.Cache

	recallNum         int
	pagerankThreshold float64
	pagerankWeight    float64
}

// RetrieverParams configures a Retriever. Zero values fall back to the
// defaults (recall 10, threshold 0.9, weight 0.5).
type RetrieverParams struct {
	Store    graphstore.GraphStore
	Search   graphstore.SearchStore
	AIClient ai.SolverAIClient

	NERCache        cache.Cache
	SimilarityCache cache.Cache

	RecallNum         int
	PagerankThreshold float64
	PagerankWeight    float64
}

// NewRetriever creates a chunk retriever.
func NewRetriever(params RetrieverParams) *Retriever {
	r := &Retriever{
		store:             params.Store,
		search:            params.Search,
		aiClient:          params.AIClient,
		nerCache:          params.NERCache,
		simCache:          params.SimilarityCache,
		recallNum:         params.RecallNum,
		pagerankThreshold: params.PagerankThreshold,
		pagerankWeight:    params.PagerankWeight,
	}
	if r.recallNum <= 0 {
		r.recallNum = defaultRecallNum
	}
	if r.pagerankThreshold == 0 {
		r.pagerankThreshold = defaultPagerankThreshold
	}
	if r.pagerankWeight == 0 {
		r.pagerankWeight = defaultPagerankWeight
	}
	return r
}

// RecallDocs retrieves the top passages for the queries, fusing propagation
// scores from linked entities with vector similarity. Entities already
// bound in retrievedSPO seed the propagation alongside the linked mentions.
func (r *Retriever) RecallDocs(ctx context.Context, queries []string, retrievedSPO *kg.KgGraph) ([]string, error) {
	combined := make(map[string]float64)

	for _, query := range queries {
		matched, err := r.matchQueryEntities(ctx, query, retrievedSPO)
		if err != nil {
			return nil, err
		}
		minMatched := 0.0
		haveMatched := false
		for _, score := range matched {
			if !haveMatched || score < minMatched {
				minMatched = score
				haveMatched = true
			}
		}

		pagerankScores := map[string]float64{}
		if len(matched) > 0 {
			seeds := make([]graphstore.StartNode, 0, len(matched))
			for id := range matched {
				seeds = append(seeds, graphstore.StartNode{ID: id})
			}
			pagerankScores, err = r.store.CalculatePageRankScores(ctx, graphstore.ChunkLabel, seeds)
			if err != nil {
				return nil, fmt.Errorf("failed to calculate propagation scores: %w", err)
			}
		}

		simScores, err := r.similarityScores(ctx, query)
		if err != nil {
			return nil, err
		}

		fused := FuseScores(simScores, pagerankScores, minMatched, r.pagerankThreshold, r.pagerankWeight)
		for id, score := range fused {
			combined[id] += score
		}
	}

	ids := topKeys(combined, r.recallNum)
	chunks, err := r.search.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to materialize chunks: %w", err)
	}

	docs := make([]string, 0, len(chunks))
	titles := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		docs = append(docs, renderChunk(c))
		titles[c.Title] = struct{}{}
	}

	return r.spliceFullTextHit(ctx, queries, docs, titles), nil
}

// RerankDocs merges per-query rank orders of the docs with a Borda-count
// fusion and returns the docs in aggregate order.
func (r *Retriever) RerankDocs(ctx context.Context, queries []string, docs []string) ([]string, error) {
	if len(docs) <= 1 || len(queries) == 0 {
		return docs, nil
	}

	queryVecs, err := r.aiClient.GenerateEmbeddings(ctx, toBytes(queries))
	if err != nil {
		return nil, fmt.Errorf("failed to embed rerank queries: %w", err)
	}
	docVecs, err := r.aiClient.GenerateEmbeddings(ctx, toBytes(docs))
	if err != nil {
		return nil, fmt.Errorf("failed to embed rerank docs: %w", err)
	}

	rankings := make([][]string, 0, len(queries))
	for _, qv := range queryVecs {
		scores := make(map[string]float64, len(docs))
		for i, dv := range docVecs {
			scores[docs[i]] = cosine(qv, dv)
		}
		rankings = append(rankings, topKeys(scores, 0))
	}
	return bordaFuse(rankings), nil
}

type nerResult struct {
	Entities []nerEntity `json:"entities"`
}

type nerEntity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// namedEntities runs cached NER plus mention standardization over a query.
func (r *Retriever) namedEntities(ctx context.Context, query string) ([]nerEntity, error) {
	cacheKey := "ner:" + query
	if r.nerCache != nil {
		if raw, ok := r.nerCache.Get(ctx, cacheKey); ok {
			var cached []nerEntity
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				return cached, nil
			}
		}
	}

	var result nerResult
	err := r.aiClient.GenerateCompletionWithFormat(
		ctx,
		"named_entities",
		"Entities mentioned in the question",
		ai.BuildNERPrompt(query),
		&result,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to recognize entities: %w", err)
	}

	entities := result.Entities
	if len(entities) > 0 {
		entities = r.standardizeMentions(ctx, query, entities)
	}

	if r.nerCache != nil {
		if raw, err := json.Marshal(entities); err == nil {
			r.nerCache.Set(ctx, cacheKey, string(raw))
		}
	}
	return entities, nil
}

// standardizeMentions asks the model for canonical mention names. Failures
// keep the raw mentions.
func (r *Retriever) standardizeMentions(ctx context.Context, query string, entities []nerEntity) []nerEntity {
	mentions := make([]string, len(entities))
	for i, e := range entities {
		mentions[i] = e.Name
	}

	var result struct {
		Standardized []string `json:"standardized"`
	}
	err := r.aiClient.GenerateCompletionWithFormat(
		ctx,
		"standardized_mentions",
		"Canonical names for the mentions, aligned with the input order",
		ai.BuildStandardizePrompt(query, mentions),
		&result,
	)
	if err != nil || len(result.Standardized) != len(entities) {
		logger.Debug("[Chunk] Mention standardization skipped", "error", err)
		return entities
	}
	for i := range entities {
		if result.Standardized[i] != "" {
			entities[i].Name = result.Standardized[i]
		}
	}
	return entities
}

// matchQueryEntities links query mentions to graph entities and merges in
// the entities already retrieved by graph steps, keeping the higher score.
func (r *Retriever) matchQueryEntities(ctx context.Context, query string, retrievedSPO *kg.KgGraph) (map[string]float64, error) {
	matched := make(map[string]float64)

	entities, err := r.namedEntities(ctx, query)
	if err != nil {
		return nil, err
	}
	for _, mention := range entities {
		id, score, err := r.linkMention(ctx, mention)
		if err != nil {
			return nil, err
		}
		if id == "" {
			continue
		}
		if score > matched[id] {
			matched[id] = score
		}
	}

	if retrievedSPO != nil {
		for _, alias := range retrievedSPO.NodesAlias {
			for _, e := range retrievedSPO.GetEntityByAlias(alias) {
				if e.Score > matched[e.BizID] {
					matched[e.BizID] = e.Score
				}
			}
		}
	}
	return matched, nil
}

// linkMention resolves one mention via the typed index and the untyped
// fallback index, preferring the typed hit when it scores above 0.8.
func (r *Retriever) linkMention(ctx context.Context, mention nerEntity) (string, float64, error) {
	vec, err := r.aiClient.GenerateEmbedding(ctx, []byte(mention.Name))
	if err != nil {
		return "", 0, fmt.Errorf("failed to embed mention: %w", err)
	}

	best := func(label, property string) (*graphstore.VectorResult, error) {
		hits, err := r.search.SearchVector(ctx, label, property, vec, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to search %s index: %w", property, err)
		}
		if len(hits) == 0 || hits[0].Entity == nil {
			return nil, nil
		}
		return &hits[0], nil
	}

	var typed *graphstore.VectorResult
	if mention.Type != "" && mention.Type != "Others" {
		typed, err = best(mention.Type, "name")
		if err != nil {
			return "", 0, err
		}
	}
	if typed != nil && typed.Score > typedPreferenceScore {
		return typed.Entity.BizID, typed.Score, nil
	}

	untyped, err := best("", "name")
	if err != nil {
		return "", 0, err
	}
	if untyped == nil {
		untyped, err = best("", "description")
		if err != nil {
			return "", 0, err
		}
	}

	switch {
	case untyped == nil && typed == nil:
		return "", 0, nil
	case untyped == nil:
		return typed.Entity.BizID, typed.Score, nil
	case typed != nil && typed.Score >= untyped.Score:
		return typed.Entity.BizID, typed.Score, nil
	default:
		return untyped.Entity.BizID, untyped.Score, nil
	}
}

// similarityScores ranks chunks by embedding similarity to the query with
// an over-fetch factor, cached per query text.
func (r *Retriever) similarityScores(ctx context.Context, query string) (map[string]float64, error) {
	cacheKey := "chunksim:" + query
	if r.simCache != nil {
		if raw, ok := r.simCache.Get(ctx, cacheKey); ok {
			var cached map[string]float64
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				return cached, nil
			}
		}
	}

	vec, err := r.aiClient.GenerateEmbedding(ctx, []byte(query))
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	hits, err := r.search.SearchVector(ctx, graphstore.ChunkLabel, "content", vec, r.recallNum*overFetchFactor)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunk vectors: %w", err)
	}

	scores := make(map[string]float64, len(hits))
	for _, hit := range hits {
		if hit.Chunk != nil {
			scores[hit.Chunk.ID] = hit.Score
		}
	}

	if r.simCache != nil {
		if raw, err := json.Marshal(scores); err == nil {
			r.simCache.Set(ctx, cacheKey, string(raw))
		}
	}
	return scores, nil
}

// spliceFullTextHit runs one plain full-text search and splices its best hit
// into the result list when its title is not already present.
func (r *Retriever) spliceFullTextHit(ctx context.Context, queries []string, docs []string, titles map[string]struct{}) []string {
	if len(queries) == 0 {
		return docs
	}
	hits, err := r.search.SearchText(ctx, queries[0], nil, 1)
	if err != nil {
		logger.Warn("[Chunk] Full-text splice failed", "error", err)
		return docs
	}
	if len(hits) == 0 || hits[0].Chunk == nil {
		return docs
	}
	hit := hits[0].Chunk
	if _, ok := titles[hit.Title]; ok {
		return docs
	}

	if len(docs) > 0 {
		docs[len(docs)-1] = renderChunk(hit)
	} else {
		docs = append(docs, renderChunk(hit))
	}
	return docs
}

func renderChunk(c *graphstore.Chunk) string {
	if c.Title == "" {
		return c.Content
	}
	return c.Title + "\n" + c.Content
}

func toBytes(values []string) [][]byte {
	out := make([][]byte, len(values))
	for i, v := range values {
		out[i] = []byte(v)
	}
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
