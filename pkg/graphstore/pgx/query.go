package pgx

import (
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/moa/backend/pkg/graphstore"
	"github.com/OFFIS-RIT/moa/backend/pkg/kg"
)

const relationSelect = `
SELECT r.from_id, r.end_id, r.from_type, r.end_type, r.type, r.type_zh, r.props, r.score,
       s.name, s.type_zh, s.description, s.score,
       o.name, o.type_zh, o.description, o.score
FROM relations r
JOIN entities s ON s.id = r.from_id
JOIN entities o ON o.id = r.end_id`

// ExecuteDSL runs a structured pattern query against the relations table.
func (s *Store) ExecuteDSL(ctx context.Context, query graphstore.DSLQuery) (*graphstore.TabularResult, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if query.Predicate != "" {
		conds = append(conds, "r.type = "+arg(query.Predicate))
	}
	if !query.AnyLabel {
		if len(query.SubjectLabels) > 0 {
			conds = append(conds, "r.from_type = ANY("+arg(query.SubjectLabels)+")")
		}
		if len(query.ObjectLabels) > 0 {
			conds = append(conds, "r.end_type = ANY("+arg(query.ObjectLabels)+")")
		}
	}
	if len(query.SubjectIDs) > 0 {
		conds = append(conds, "r.from_id = ANY("+arg(query.SubjectIDs)+")")
	}
	if len(query.ObjectIDs) > 0 {
		conds = append(conds, "r.end_id = ANY("+arg(query.ObjectIDs)+")")
	}

	sql := relationSelect
	if len(conds) > 0 {
		sql += "\nWHERE " + strings.Join(conds, " AND ")
	}
	if query.Limit > 0 {
		sql += "\nLIMIT " + arg(query.Limit)
	}

	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute dsl query: %w", err)
	}
	defer rows.Close()

	result := &graphstore.TabularResult{Header: []string{"s", "p", "o"}}
	for rows.Next() {
		rel, err := scanRelationRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relation row: %w", err)
		}
		result.Rows = append(result.Rows, []any{rel.FromEntity, rel, rel.EndEntity})
	}
	return result, rows.Err()
}

// GetEntityOneHop expands the direct neighborhood of an entity.
func (s *Store) GetEntityOneHop(ctx context.Context, entity *kg.EntityData) (*kg.OneHopGraphData, error) {
	hop := kg.NewOneHopGraphData(entity)

	rows, err := s.conn.Query(ctx, relationSelect+"\nWHERE r.from_id = $1 OR r.end_id = $1", entity.BizID)
	if err != nil {
		return nil, fmt.Errorf("failed to query one hop: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rel, err := scanRelationRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relation row: %w", err)
		}
		hop.AddRelation(rel, rel.FromID == entity.BizID)
	}
	return hop, rows.Err()
}

// GetNodes resolves entities by label and graph-native ids.
func (s *Store) GetNodes(ctx context.Context, label string, ids []string) ([]*kg.EntityData, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	sql := "SELECT " + entityColumns + " FROM entities WHERE id = ANY($1)"
	args := []any{ids}
	if label != "" {
		sql += " AND type = $2"
		args = append(args, label)
	}

	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var out []*kg.EntityData
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity row: %w", err)
		}
		out = append(out, entity)
	}
	return out, rows.Err()
}

type relationScanner interface {
	Scan(dest ...any) error
}

func scanRelationRow(row relationScanner) (*kg.RelationData, error) {
	var (
		rel      kg.RelationData
		relZH    *string
		rawProps []byte

		from kg.EntityData
		end  kg.EntityData

		fromZH, fromDesc *string
		endZH, endDesc   *string
	)
	err := row.Scan(
		&rel.FromID, &rel.EndID, &rel.FromType, &rel.EndType, &rel.Type, &relZH, &rawProps, &rel.Score,
		&from.Name, &fromZH, &fromDesc, &from.Score,
		&end.Name, &endZH, &endDesc, &end.Score,
	)
	if err != nil {
		return nil, err
	}

	if relZH != nil {
		rel.TypeZH = *relZH
	}
	rel.Prop = propsFromJSON(rawProps)

	from.BizID = rel.FromID
	from.Type = rel.FromType
	if fromZH != nil {
		from.TypeZH = *fromZH
	}
	if fromDesc != nil {
		from.Description = *fromDesc
	}
	end.BizID = rel.EndID
	end.Type = rel.EndType
	if endZH != nil {
		end.TypeZH = *endZH
	}
	if endDesc != nil {
		end.Description = *endDesc
	}

	rel.FromEntity = &from
	rel.EndEntity = &end
	return &rel, nil
}
