// Package graphstore defines the storage contracts the reasoning engine
// runs against: structured graph queries, one-hop expansion, propagation
// scoring, and vector/full-text search over entities and chunks.
package graphstore

import (
	"context"

	"github.com/OFFIS-RIT/moa/backend/pkg/kg"
)

// DSLQuery is a structured pattern query against the graph: optional label
// and id restrictions on both endpoints plus an optional predicate name.
type DSLQuery struct {
	SubjectLabels []string
	SubjectIDs    []string
	Predicate     string
	AnyLabel      bool
	ObjectLabels  []string
	ObjectIDs     []string
	Limit         int
}

// TabularResult is the row-oriented result of a DSL query. Cells hold
// *kg.EntityData, *kg.RelationData or plain strings depending on the column.
type TabularResult struct {
	Header []string
	Rows   [][]any
}

// StartNode seeds a propagation-score calculation.
type StartNode struct {
	ID   string
	Type string
}

// Chunk is a retrievable unit of free text.
type Chunk struct {
	ID      string
	Title   string
	Content string
}

// GraphStore is the structured graph backend. Missing data yields empty
// results, never errors.
type GraphStore interface {
	// ExecuteDSL runs a structured pattern query and returns matched rows
	// with columns "s", "p", "o".
	ExecuteDSL(ctx context.Context, query DSLQuery) (*TabularResult, error)

	// GetEntityOneHop expands the direct neighborhood of an entity.
	GetEntityOneHop(ctx context.Context, entity *kg.EntityData) (*kg.OneHopGraphData, error)

	// GetNodes resolves entities by label and graph-native ids.
	GetNodes(ctx context.Context, label string, ids []string) ([]*kg.EntityData, error)

	// CalculatePageRankScores runs personalized propagation from the start
	// nodes and returns scores for every node carrying the target label.
	CalculatePageRankScores(ctx context.Context, targetLabel string, startNodes []StartNode) (map[string]float64, error)
}

// VectorResult is one scored hit from a vector search.
type VectorResult struct {
	Entity *kg.EntityData
	Chunk  *Chunk
	Score  float64
}

// SearchStore is the similarity backend over entity and chunk indexes.
type SearchStore interface {
	// SearchVector ranks nodes of the given label by embedding similarity
	// over the named property index. An empty label searches the untyped
	// fallback index.
	SearchVector(ctx context.Context, label string, propertyKey string, query []float32, topK int) ([]VectorResult, error)

	// SearchText runs a plain full-text search over chunks.
	SearchText(ctx context.Context, query string, labels []string, topK int) ([]VectorResult, error)

	// GetChunks materializes chunk content by id, preserving input order.
	GetChunks(ctx context.Context, ids []string) ([]*Chunk, error)
}

// ChunkLabel is the node label under which document chunks are stored.
const ChunkLabel = "Chunk"
