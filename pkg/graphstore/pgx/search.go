package pgx

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/moa/backend/pkg/graphstore"
	"github.com/OFFIS-RIT/moa/backend/pkg/kg"

	"github.com/pgvector/pgvector-go"
)

// SearchVector ranks nodes of the given label by cosine similarity over the
// named property index. Entities carry separate name and description
// embedding columns; chunks carry a content embedding. An empty label
// searches entities of every type.
func (s *Store) SearchVector(ctx context.Context, label string, propertyKey string, query []float32, topK int) ([]graphstore.VectorResult, error) {
	if topK <= 0 {
		topK = 10
	}
	vec := pgvector.NewVector(query)

	if label == graphstore.ChunkLabel {
		rows, err := s.conn.Query(ctx, `
SELECT id, title, content, 1 - (embedding <=> $1) AS score
FROM chunks
WHERE embedding IS NOT NULL
ORDER BY embedding <=> $1
LIMIT $2`, vec, topK)
		if err != nil {
			return nil, fmt.Errorf("failed to search chunk vectors: %w", err)
		}
		defer rows.Close()

		var out []graphstore.VectorResult
		for rows.Next() {
			var chunk graphstore.Chunk
			var score float64
			if err := rows.Scan(&chunk.ID, &chunk.Title, &chunk.Content, &score); err != nil {
				return nil, fmt.Errorf("failed to scan chunk hit: %w", err)
			}
			out = append(out, graphstore.VectorResult{Chunk: &chunk, Score: score})
		}
		return out, rows.Err()
	}

	column := "name_embedding"
	if propertyKey == "description" {
		column = "desc_embedding"
	}

	sql := fmt.Sprintf(`
SELECT %s, 1 - (%s <=> $1) AS score
FROM entities
WHERE %s IS NOT NULL`, entityColumns, column, column)
	args := []any{vec}
	if label != "" {
		sql += " AND type = $2"
		args = append(args, label)
	}
	sql += fmt.Sprintf("\nORDER BY %s <=> $1\nLIMIT %d", column, topK)

	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search entity vectors: %w", err)
	}
	defer rows.Close()

	var out []graphstore.VectorResult
	for rows.Next() {
		var (
			entity   kg.EntityData
			typeZH   *string
			desc     *string
			rawProps []byte
			score    float64
		)
		if err := rows.Scan(&entity.BizID, &entity.Name, &entity.Type, &typeZH, &desc, &rawProps, &entity.Score, &score); err != nil {
			return nil, fmt.Errorf("failed to scan entity hit: %w", err)
		}
		if typeZH != nil {
			entity.TypeZH = *typeZH
		}
		if desc != nil {
			entity.Description = *desc
		}
		entity.Prop = propsFromJSON(rawProps)
		out = append(out, graphstore.VectorResult{Entity: &entity, Score: score})
	}
	return out, rows.Err()
}

// SearchText runs a websearch-style full-text query over chunk titles and
// content.
func (s *Store) SearchText(ctx context.Context, query string, labels []string, topK int) ([]graphstore.VectorResult, error) {
	if topK <= 0 {
		topK = 10
	}

	rows, err := s.conn.Query(ctx, `
SELECT id, title, content, ts_rank(search, websearch_to_tsquery('simple', $1)) AS score
FROM chunks
WHERE search @@ websearch_to_tsquery('simple', $1)
ORDER BY score DESC
LIMIT $2`, query, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to run full-text search: %w", err)
	}
	defer rows.Close()

	var out []graphstore.VectorResult
	for rows.Next() {
		var chunk graphstore.Chunk
		var score float64
		if err := rows.Scan(&chunk.ID, &chunk.Title, &chunk.Content, &score); err != nil {
			return nil, fmt.Errorf("failed to scan full-text hit: %w", err)
		}
		out = append(out, graphstore.VectorResult{Chunk: &chunk, Score: score})
	}
	return out, rows.Err()
}

// GetChunks materializes chunk content by id, preserving input order.
func (s *Store) GetChunks(ctx context.Context, ids []string) ([]*graphstore.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, "SELECT id, title, content FROM chunks WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*graphstore.Chunk, len(ids))
	for rows.Next() {
		var chunk graphstore.Chunk
		if err := rows.Scan(&chunk.ID, &chunk.Title, &chunk.Content); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		byID[chunk.ID] = &chunk
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*graphstore.Chunk, 0, len(ids))
	for _, id := range ids {
		if chunk, ok := byID[id]; ok {
			out = append(out, chunk)
		}
	}
	return out, nil
}
