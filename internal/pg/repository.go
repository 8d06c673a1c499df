package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/dotastats/ingest/internal/dota"
)

// Repository wraps the Postgres pool plus a process-lifetime cache of
// each table's live column set. Column sets are fetched at most once per
// table and treated as immutable afterwards; online schema changes are
// not handled.
type Repository struct {
	db *sql.DB

	mu      sync.RWMutex
	columns map[string]map[string]struct{}
}

// Option adjusts a Repository at construction time.
type Option func(*Repository)

// WithSchema seeds the column set for a table so it is never
// introspected. Used for startup-time schema descriptors and tests.
func WithSchema(table string, cols ...string) Option {
	return func(r *Repository) {
		set := make(map[string]struct{}, len(cols))
		for _, c := range cols {
			set[c] = struct{}{}
		}
		r.columns[table] = set
	}
}

// WithPool overrides the connection pool limits.
func WithPool(maxOpen, maxIdle int) Option {
	return func(r *Repository) {
		if maxOpen > 0 {
			r.db.SetMaxOpenConns(maxOpen)
		}
		if maxIdle > 0 {
			r.db.SetMaxIdleConns(maxIdle)
		}
	}
}

func NewRepository(databaseURL string, opts ...Option) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	r := &Repository{db: db, columns: make(map[string]map[string]struct{})}
	for _, o := range opts {
		o(r)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Columns returns the live column list for a table, fetching it on
// first use.
func (r *Repository) Columns(ctx context.Context, table string) ([]string, error) {
	set, err := r.columnsFor(ctx, table)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out, nil
}

// columnsFor returns the memoized column set for table, populating it
// from information_schema on first use. Concurrent first-time callers
// may introspect twice; both land the same result.
func (r *Repository) columnsFor(ctx context.Context, table string) (map[string]struct{}, error) {
	r.mu.RLock()
	set, ok := r.columns[table]
	r.mu.RUnlock()
	if ok {
		return set, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1`,
		table)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", table, err)
	}
	defer rows.Close()
	set = make(map[string]struct{})
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, fmt.Errorf("schema %s: %w", table, err)
		}
		set[col] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schema %s: %w", table, err)
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("schema %s: table not found", table)
	}

	r.mu.Lock()
	if existing, ok := r.columns[table]; ok {
		set = existing // another caller won the race
	} else {
		r.columns[table] = set
	}
	r.mu.Unlock()
	return set, nil
}

// GetPlayer fetches one players row by account id; nil when absent.
func (r *Repository) GetPlayer(ctx context.Context, accountID int64) (dota.Row, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT * FROM players WHERE account_id = $1`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	values := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	row := make(dota.Row, len(names))
	for i, name := range names {
		if b, ok := values[i].([]byte); ok {
			row[name] = string(b)
			continue
		}
		row[name] = values[i]
	}
	return row, rows.Err()
}
