package storage

import (
	"database/sql"
	"strings"
	"time"
)

// Store is the SQL-backed implementation of every persistence port the synthesis
// pipeline consumes: tenants, source documents, transformers, jobs and artifacts.
type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// NewStore wraps an open database handle. driver selects SQL dialect details for upserts.
func NewStore(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: strings.ToLower(driver), now: func() time.Time { return time.Now().UTC() }}
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) isMySQL() bool {
	return s.driver == "mysql"
}

// upsert renders the dialect-specific conflict clause for the given key and update columns.
func (s *Store) upsert(conflictCols []string, updateCols []string) string {
	sets := make([]string, 0, len(updateCols))
	if s.isMySQL() {
		for _, c := range updateCols {
			sets = append(sets, c+" = VALUES("+c+")")
		}
		return " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	for _, c := range updateCols {
		sets = append(sets, c+" = excluded."+c)
	}
	return " ON CONFLICT(" + strings.Join(conflictCols, ", ") + ") DO UPDATE SET " + strings.Join(sets, ", ")
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
