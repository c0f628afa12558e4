package pgx

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/moa/backend/pkg/graphstore"
)

// CalculatePageRankScores loads the adjacency of the graph (entity relations
// plus chunk mention links) and runs the shared propagation routine, then
// keeps only the nodes carrying the target label.
func (s *Store) CalculatePageRankScores(ctx context.Context, targetLabel string, startNodes []graphstore.StartNode) (map[string]float64, error) {
	if len(startNodes) == 0 {
		return map[string]float64{}, nil
	}

	adjacency := make(map[string][]string)

	rows, err := s.conn.Query(ctx, "SELECT from_id, end_id FROM relations")
	if err != nil {
		return nil, fmt.Errorf("failed to load relation adjacency: %w", err)
	}
	for rows.Next() {
		var from, end string
		if err := rows.Scan(&from, &end); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan adjacency row: %w", err)
		}
		adjacency[from] = append(adjacency[from], end)
		adjacency[end] = append(adjacency[end], from)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.conn.Query(ctx, "SELECT chunk_id, entity_id FROM chunk_mentions")
	if err != nil {
		return nil, fmt.Errorf("failed to load mention adjacency: %w", err)
	}
	for rows.Next() {
		var chunkID, entityID string
		if err := rows.Scan(&chunkID, &entityID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan mention row: %w", err)
		}
		adjacency[chunkID] = append(adjacency[chunkID], entityID)
		adjacency[entityID] = append(adjacency[entityID], chunkID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	start := make(map[string]float64, len(startNodes))
	for _, n := range startNodes {
		start[n.ID] = 1
	}
	scores := graphstore.Propagate(adjacency, start)

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	labeled, err := s.filterIDsByLabel(ctx, targetLabel, ids)
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(labeled))
	for _, id := range labeled {
		out[id] = scores[id]
	}
	return out, nil
}

func (s *Store) filterIDsByLabel(ctx context.Context, label string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	sql := "SELECT id FROM entities WHERE type = $1 AND id = ANY($2)"
	args := []any{label, ids}
	if label == graphstore.ChunkLabel {
		sql = "SELECT id FROM chunks WHERE id = ANY($1)"
		args = []any{ids}
	}

	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to filter ids by label: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
