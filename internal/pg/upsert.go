package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dotastats/ingest/internal/dota"
)

// ErrNoColumns is returned when a row has no writable columns left after
// schema filtering. Attempting the statement anyway would produce
// malformed SQL, so the failure is made explicit instead.
var ErrNoColumns = errors.New("pg: no writable columns after schema filter")

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// sanitizeRow returns a copy of row holding only keys present in cols.
func sanitizeRow(cols map[string]struct{}, row dota.Row) dota.Row {
	out := make(dota.Row, len(row))
	for k, v := range row {
		if _, ok := cols[k]; ok {
			out[k] = v
		}
	}
	return out
}

// buildUpsert renders an idempotent insert-or-update statement: insert
// the row's columns, and on conflict over the given key columns rewrite
// every incoming column from EXCLUDED. Values are always parameterized;
// column names come from the sanitized row, so they are known schema
// identifiers. Column order is sorted for deterministic statements.
func buildUpsert(table string, row dota.Row, conflict []string) (string, []any, error) {
	if len(row) == 0 {
		return "", nil, ErrNoColumns
	}
	if len(conflict) == 0 {
		return "", nil, fmt.Errorf("pg: upsert %s: no conflict columns", table)
	}
	cols := make([]string, 0, len(row))
	for k := range row {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	args := make([]any, 0, len(cols))
	placeholders := make([]string, 0, len(cols))
	updates := make([]string, 0, len(cols))
	for i, c := range cols {
		args = append(args, normalizeArg(row[c]))
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		updates = append(updates, fmt.Sprintf("%s=EXCLUDED.%s", c, c))
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table,
		strings.Join(cols, ","),
		strings.Join(placeholders, ","),
		strings.Join(conflict, ","),
		strings.Join(updates, ","))
	return q, args, nil
}

// buildInsert renders a plain insert for append-only tables.
func buildInsert(table string, row dota.Row) (string, []any, error) {
	if len(row) == 0 {
		return "", nil, ErrNoColumns
	}
	cols := make([]string, 0, len(row))
	for k := range row {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	args := make([]any, 0, len(cols))
	placeholders := make([]string, 0, len(cols))
	for i, c := range cols {
		args = append(args, normalizeArg(row[c]))
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ","), strings.Join(placeholders, ","))
	return q, args, nil
}

// normalizeArg flattens values the driver cannot bind directly.
// Composite values (arrays of objects and the like) are stored in json
// columns, so they travel as serialized JSON.
func normalizeArg(v any) any {
	switch v.(type) {
	case nil, string, []byte, bool,
		int, int32, int64, uint64, float32, float64:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return v
		}
		return string(raw)
	}
}

// Upsert sanitizes row against the live schema for table and writes it
// with insert-or-update semantics keyed by the conflict columns. Store
// errors propagate verbatim; there is no retry at this layer.
func (r *Repository) Upsert(ctx context.Context, table string, row dota.Row, conflict []string) error {
	return r.upsertOn(ctx, r.db, table, row, conflict)
}

func (r *Repository) upsertOn(ctx context.Context, ex execer, table string, row dota.Row, conflict []string) error {
	cols, err := r.columnsFor(ctx, table)
	if err != nil {
		return err
	}
	q, args, err := buildUpsert(table, sanitizeRow(cols, row), conflict)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	if _, err := ex.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return nil
}

// Insert sanitizes row against the live schema and appends it without
// conflict handling.
func (r *Repository) Insert(ctx context.Context, table string, row dota.Row) error {
	cols, err := r.columnsFor(ctx, table)
	if err != nil {
		return err
	}
	q, args, err := buildInsert(table, sanitizeRow(cols, row))
	if err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}
