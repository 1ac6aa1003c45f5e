package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// Store handles all database operations
type Store struct {
	db *sql.DB
}

// ListOptions controls paging and ordering of direct store listings
type ListOptions struct {
	Page    int
	PerPage int
	SortBy  string // One of the sortable columns of the entity, defaults to id
	Desc    bool
}

// offset saturates instead of overflowing, so absurd pages are simply empty
func (o ListOptions) offset() int64 {
	if o.Page <= 1 || o.PerPage < 1 {
		return 0
	}
	if int64(o.Page-1) > math.MaxInt64/int64(o.PerPage) {
		return math.MaxInt64
	}
	return int64(o.Page-1) * int64(o.PerPage)
}

// New creates a new Store with SQLite
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs database migrations
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS item_types (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			code TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			item_type_id INTEGER NOT NULL REFERENCES item_types(id),
			rarity TEXT NOT NULL DEFAULT '',
			requires_attunement INTEGER NOT NULL DEFAULT 0,
			is_magic INTEGER NOT NULL DEFAULT 0,
			cost_cp INTEGER,
			weight REAL,
			description TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_type ON items(item_type_id)`,
		`CREATE INDEX IF NOT EXISTS idx_items_name ON items(name)`,
		`CREATE TABLE IF NOT EXISTS races (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			size_code TEXT NOT NULL DEFAULT '',
			speed INTEGER NOT NULL DEFAULT 30,
			parent_race_id INTEGER REFERENCES races(id),
			description TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_races_parent ON races(parent_race_id)`,
		`CREATE INDEX IF NOT EXISTS idx_races_name ON races(name)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// orderClause builds an ORDER BY clause from a whitelist of sortable columns.
// Missing values sort last in both directions and ties are always broken by
// primary key so pages are stable.
func orderClause(columns map[string]string, pk string, opts ListOptions) (string, error) {
	sortBy := opts.SortBy
	if sortBy == "" {
		sortBy = "id"
	}
	col, ok := columns[sortBy]
	if !ok {
		return "", fmt.Errorf("unsupported sort column %q", sortBy)
	}
	dir := "ASC"
	if opts.Desc {
		dir = "DESC"
	}
	if col == pk {
		return fmt.Sprintf("ORDER BY %s %s", col, dir), nil
	}
	return fmt.Sprintf("ORDER BY %s %s NULLS LAST, %s ASC", col, dir, pk), nil
}

// placeholders returns "?, ?, ?" for n arguments
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func (s *Store) exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullID(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
