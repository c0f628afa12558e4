// Package pgx implements the graphstore contracts on PostgreSQL with
// pgvector for similarity search and tsvector for full text.
package pgx

import (
	"context"
	"encoding/json"

	"github.com/OFFIS-RIT/moa/backend/pkg/kg"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// Store implements graphstore.GraphStore and graphstore.SearchStore on a
// PostgreSQL connection or pool.
type Store struct {
	conn pgxIConn
}

// NewStore creates a Store using an existing database connection.
func NewStore(conn pgxIConn) *Store {
	return &Store{conn: conn}
}

const entityColumns = "id, name, type, type_zh, description, props, score"

func scanEntity(row pgxv5.Rows) (*kg.EntityData, error) {
	var (
		entity   kg.EntityData
		typeZH   *string
		desc     *string
		rawProps []byte
	)
	if err := row.Scan(&entity.BizID, &entity.Name, &entity.Type, &typeZH, &desc, &rawProps, &entity.Score); err != nil {
		return nil, err
	}
	if typeZH != nil {
		entity.TypeZH = *typeZH
	}
	if desc != nil {
		entity.Description = *desc
	}
	entity.Prop = propsFromJSON(rawProps)
	return &entity, nil
}

func propsFromJSON(raw []byte) *kg.Prop {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil || len(m) == 0 {
		return nil
	}
	prop := kg.NewProp()
	for k, v := range m {
		prop.SetOrigin(k, v)
	}
	return prop
}
