// Package store is the relational side of an aggregation run: it reads raw
// conditions, calls and evidence, and persists aggregated conditions,
// relations and calls inside the writer's transaction.
package store

import (
	"context"
	"database/sql"

	"github.com/teranos/globalcalls/db"
	"github.com/teranos/globalcalls/errors"
)

// Querier is satisfied by *sql.DB and *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store handles reads and writes of expression data
type Store struct {
	db     *sql.DB
	driver string
}

// NewStore creates a store over an open database. driver selects the
// placeholder style (db.DriverSQLite or db.DriverPostgres).
func NewStore(conn *sql.DB, driver string) *Store {
	if driver == "" {
		driver = db.DriverSQLite
	}
	return &Store{db: conn, driver: driver}
}

// DB returns the underlying connection pool
func (s *Store) DB() *sql.DB { return s.db }

// Driver returns the database driver name
func (s *Store) Driver() string { return s.driver }

func (s *Store) q(query string) string { return db.Rebind(s.driver, query) }

// inClause returns "(?, ?, ...)" and args for an IN filter
func inClause(ids []int64) (string, []interface{}) {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return db.Placeholders(1, len(ids)), args
}

func (s *Store) maxID(ctx context.Context, query string) (int64, error) {
	var max sql.NullInt64
	if err := s.db.QueryRowContext(ctx, query).Scan(&max); err != nil {
		if db.IsDatabaseClosed(err) {
			return 0, errors.Mark(err, db.ErrDatabaseClosed)
		}
		return 0, err
	}
	return max.Int64, nil
}

// MaxGlobalConditionID returns the largest persisted aggregated condition id, 0 if none
func (s *Store) MaxGlobalConditionID(ctx context.Context) (int64, error) {
	id, err := s.maxID(ctx, "SELECT MAX(global_condition_id) FROM global_cond")
	if err != nil {
		return 0, errors.Wrap(err, "failed to read max global condition id")
	}
	return id, nil
}

// MaxGlobalExpressionID returns the largest persisted aggregated call id, 0 if none
func (s *Store) MaxGlobalExpressionID(ctx context.Context) (int64, error) {
	id, err := s.maxID(ctx, "SELECT MAX(global_expression_id) FROM global_expression")
	if err != nil {
		return 0, errors.Wrap(err, "failed to read max global expression id")
	}
	return id, nil
}
