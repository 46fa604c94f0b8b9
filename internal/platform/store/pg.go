package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PG stores documents as JSONB rows in the documents table.
type PG struct {
	db querier
}

func NewPG(db querier) *PG {
	return &PG{db: db}
}

const docColumns = `id, data, created_at, updated_at`

const (
	sqlGet = `SELECT ` + docColumns + ` FROM documents WHERE collection = $1 AND id = $2`

	sqlUpsertMerge = `INSERT INTO documents (collection, id, data)
VALUES ($1, $2, jsonb_strip_nulls($3::jsonb))
ON CONFLICT (collection, id) DO UPDATE
SET data = jsonb_strip_nulls(documents.data || $3::jsonb), updated_at = NOW()
RETURNING ` + docColumns

	sqlUpsertReplace = `INSERT INTO documents (collection, id, data)
VALUES ($1, $2, jsonb_strip_nulls($3::jsonb))
ON CONFLICT (collection, id) DO UPDATE
SET data = EXCLUDED.data, updated_at = NOW()
RETURNING ` + docColumns

	sqlDelete = `DELETE FROM documents WHERE collection = $1 AND id = $2`
)

func (s *PG) Get(ctx context.Context, collection, id string) (*Document, error) {
	doc, err := scanDoc(collection, s.db.QueryRow(ctx, sqlGet, collection, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (s *PG) Query(ctx context.Context, q Query) ([]*Document, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if q.emptyIn() {
		return []*Document{}, nil
	}
	sql, args, err := buildQuery(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	defer rows.Close()

	out := []*Document{}
	for rows.Next() {
		doc, err := scanDoc(q.Collection, rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Collection, err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", q.Collection, err)
	}
	return out, nil
}

func (s *PG) Upsert(ctx context.Context, collection, id string, fields Fields, merge bool) (*Document, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	if id == "" {
		id = NewID()
	}
	body, err := json.Marshal(prepareFields(fields, merge))
	if err != nil {
		return nil, fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}

	sql := sqlUpsertReplace
	if merge {
		sql = sqlUpsertMerge
	}
	doc, err := scanDoc(collection, s.db.QueryRow(ctx, sql, collection, id, string(body)))
	if err != nil {
		return nil, fmt.Errorf("upsert %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (s *PG) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.Exec(ctx, sqlDelete, collection, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// buildQuery renders q as SQL. Field names are always bound as parameters of
// the ->> operator, never interpolated.
func buildQuery(q Query) (string, []any, error) {
	var b strings.Builder
	args := []any{q.Collection}
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	b.WriteString(`SELECT ` + docColumns + ` FROM documents WHERE collection = $1`)
	for _, f := range q.Where {
		switch f.Op {
		case OpEqual:
			contains, err := json.Marshal(map[string]any{f.Field: f.Value})
			if err != nil {
				return "", nil, fmt.Errorf("encode filter %s: %w", f.Field, err)
			}
			b.WriteString(" AND data @> " + next(string(contains)) + "::jsonb")
		case OpIn:
			b.WriteString(" AND data->>" + next(f.Field) + " = ANY(" + next(f.Value) + "::text[])")
		}
	}

	if q.OrderBy != "" {
		dir := " ASC NULLS LAST"
		if q.Descending {
			dir = " DESC NULLS FIRST"
		}
		b.WriteString(" ORDER BY data->>" + next(q.OrderBy) + dir + ", id")
	} else {
		b.WriteString(" ORDER BY id")
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT " + strconv.Itoa(q.Limit))
	}
	return b.String(), args, nil
}

func scanDoc(collection string, row pgx.Row) (*Document, error) {
	var (
		doc  = &Document{Collection: collection}
		data []byte
		c, u time.Time
	)
	if err := row.Scan(&doc.ID, &data, &c, &u); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &doc.Fields); err != nil {
		return nil, fmt.Errorf("decode document body: %w", err)
	}
	if doc.Fields == nil {
		doc.Fields = Fields{}
	}
	doc.CreateTime, doc.UpdateTime = c.UTC(), u.UTC()
	return doc, nil
}
