// Package memory provides an in-memory graphstore implementation. It backs
// unit tests and small single-process deployments; the pgx implementation
// is the production backend.
package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/moa/backend/pkg/graphstore"
	"github.com/OFFIS-RIT/moa/backend/pkg/kg"
)

// Store keeps the whole graph, chunk corpus and vector indexes in process
// memory. All methods are safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	entities  map[string]*kg.EntityData
	labels    map[string]map[string]struct{}
	relations []*kg.RelationData

	chunks     map[string]*graphstore.Chunk
	chunkOrder []string
	mentions   map[string][]string

	entityVectors map[string][]float32
	chunkVectors  map[string][]float32
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		entities:      make(map[string]*kg.EntityData),
		labels:        make(map[string]map[string]struct{}),
		chunks:        make(map[string]*graphstore.Chunk),
		mentions:      make(map[string][]string),
		entityVectors: make(map[string][]float32),
		chunkVectors:  make(map[string][]float32),
	}
}

// AddEntity registers an entity together with optional per-property
// embeddings (property key -> vector).
func (s *Store) AddEntity(entity *kg.EntityData, vectors map[string][]float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entities[entity.BizID] = entity
	if _, ok := s.labels[entity.Type]; !ok {
		s.labels[entity.Type] = make(map[string]struct{})
	}
	s.labels[entity.Type][entity.BizID] = struct{}{}

	for prop, vec := range vectors {
		s.entityVectors[vectorKey(entity.Type, prop, entity.BizID)] = vec
		// untyped fallback index
		s.entityVectors[vectorKey("", prop, entity.BizID)] = vec
	}
}

// AddRelation registers an edge. Endpoint entities are resolved lazily at
// query time.
func (s *Store) AddRelation(rel *kg.RelationData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relations = append(s.relations, rel)
}

// AddChunk registers a text chunk with its content embedding and the ids of
// the entities it mentions.
func (s *Store) AddChunk(chunk *graphstore.Chunk, vector []float32, mentionedIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chunks[chunk.ID]; !ok {
		s.chunkOrder = append(s.chunkOrder, chunk.ID)
	}
	s.chunks[chunk.ID] = chunk
	if vector != nil {
		s.chunkVectors[chunk.ID] = vector
	}
	s.mentions[chunk.ID] = mentionedIDs
}

// ExecuteDSL scans the edge list against the pattern restrictions.
func (s *Store) ExecuteDSL(ctx context.Context, query graphstore.DSLQuery) (*graphstore.TabularResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := &graphstore.TabularResult{Header: []string{"s", "p", "o"}}
	for _, rel := range s.relations {
		if query.Predicate != "" && rel.Type != query.Predicate {
			continue
		}
		if !query.AnyLabel {
			if !matchLabel(query.SubjectLabels, rel.FromType) || !matchLabel(query.ObjectLabels, rel.EndType) {
				continue
			}
		}
		if !matchID(query.SubjectIDs, rel.FromID) || !matchID(query.ObjectIDs, rel.EndID) {
			continue
		}

		row := []any{s.resolve(rel.FromID, rel.FromType), s.withEndpoints(rel), s.resolve(rel.EndID, rel.EndType)}
		result.Rows = append(result.Rows, row)
		if query.Limit > 0 && len(result.Rows) >= query.Limit {
			break
		}
	}
	return result, nil
}

// GetEntityOneHop collects every edge adjacent to the entity.
func (s *Store) GetEntityOneHop(ctx context.Context, entity *kg.EntityData) (*kg.OneHopGraphData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	center := s.entities[entity.BizID]
	if center == nil {
		center = entity
	}
	hop := kg.NewOneHopGraphData(center)
	for _, rel := range s.relations {
		switch entity.BizID {
		case rel.FromID:
			hop.AddRelation(s.withEndpoints(rel), true)
		case rel.EndID:
			hop.AddRelation(s.withEndpoints(rel), false)
		}
	}
	return hop, nil
}

// GetNodes resolves entities by label and ids.
func (s *Store) GetNodes(ctx context.Context, label string, ids []string) ([]*kg.EntityData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*kg.EntityData
	for _, id := range ids {
		entity, ok := s.entities[id]
		if !ok {
			continue
		}
		if label != "" && entity.Type != label {
			continue
		}
		out = append(out, entity)
	}
	return out, nil
}

// CalculatePageRankScores propagates from the start nodes over the edge
// list plus the chunk mention links and returns scores for nodes of the
// target label.
func (s *Store) CalculatePageRankScores(ctx context.Context, targetLabel string, startNodes []graphstore.StartNode) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adjacency := make(map[string][]string)
	for _, rel := range s.relations {
		adjacency[rel.FromID] = append(adjacency[rel.FromID], rel.EndID)
		adjacency[rel.EndID] = append(adjacency[rel.EndID], rel.FromID)
	}
	for chunkID, entityIDs := range s.mentions {
		for _, id := range entityIDs {
			adjacency[chunkID] = append(adjacency[chunkID], id)
			adjacency[id] = append(adjacency[id], chunkID)
		}
	}

	start := make(map[string]float64, len(startNodes))
	for _, n := range startNodes {
		start[n.ID] = 1
	}
	scores := graphstore.Propagate(adjacency, start)

	out := make(map[string]float64)
	for id, score := range scores {
		if s.hasLabel(id, targetLabel) {
			out[id] = score
		}
	}
	return out, nil
}

// SearchVector brute-forces cosine similarity over the selected index.
func (s *Store) SearchVector(ctx context.Context, label string, propertyKey string, query []float32, topK int) ([]graphstore.VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []graphstore.VectorResult
	if label == graphstore.ChunkLabel {
		for id, vec := range s.chunkVectors {
			results = append(results, graphstore.VectorResult{Chunk: s.chunks[id], Score: cosine(query, vec)})
		}
	} else {
		prefix := vectorKey(label, propertyKey, "")
		for key, vec := range s.entityVectors {
			if !strings.HasPrefix(key, prefix) {
				continue
			}
			id := key[len(prefix):]
			results = append(results, graphstore.VectorResult{Entity: s.entities[id], Score: cosine(query, vec)})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// SearchText scores chunks by query-term overlap.
func (s *Store) SearchText(ctx context.Context, query string, labels []string, topK int) ([]graphstore.VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}

	var results []graphstore.VectorResult
	for _, id := range s.chunkOrder {
		chunk := s.chunks[id]
		text := strings.ToLower(chunk.Title + " " + chunk.Content)
		matched := 0
		for _, term := range terms {
			if strings.Contains(text, term) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		results = append(results, graphstore.VectorResult{Chunk: chunk, Score: float64(matched) / float64(len(terms))})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// GetChunks materializes chunks by id, preserving order and skipping
// unknown ids.
func (s *Store) GetChunks(ctx context.Context, ids []string) ([]*graphstore.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*graphstore.Chunk, 0, len(ids))
	for _, id := range ids {
		if chunk, ok := s.chunks[id]; ok {
			out = append(out, chunk)
		}
	}
	return out, nil
}

func (s *Store) resolve(id, typ string) *kg.EntityData {
	if entity, ok := s.entities[id]; ok {
		return entity
	}
	return &kg.EntityData{BizID: id, Type: typ, Score: 1}
}

func (s *Store) withEndpoints(rel *kg.RelationData) *kg.RelationData {
	if rel.FromEntity == nil {
		rel.FromEntity = s.entities[rel.FromID]
	}
	if rel.EndEntity == nil {
		rel.EndEntity = s.entities[rel.EndID]
	}
	return rel
}

func (s *Store) hasLabel(id, label string) bool {
	if label == graphstore.ChunkLabel {
		_, ok := s.chunks[id]
		return ok
	}
	ids, ok := s.labels[label]
	if !ok {
		return false
	}
	_, ok = ids[id]
	return ok
}

func matchLabel(labels []string, label string) bool {
	if len(labels) == 0 {
		return true
	}
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

func matchID(ids []string, id string) bool {
	if len(ids) == 0 {
		return true
	}
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func vectorKey(label, prop, id string) string {
	return label + "\x00" + prop + "\x00" + id
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
