package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/globalcalls/errors"
)

// Driver names registered with database/sql
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// SQLite connection tuning
const (
	SQLiteBusyTimeoutMS = 5000
	pingTimeout         = 10 * time.Second
)

// Open opens the evidence database for the given driver. For sqlite3 the
// source is a file path, for pgx a connection string.
// If logger is provided, logs database operations; otherwise operates silently.
func Open(driver, source string, logger *zap.SugaredLogger) (*sql.DB, error) {
	switch driver {
	case DriverSQLite, "":
		return openSQLite(source, logger)
	case DriverPostgres:
		return openPostgres(source, logger)
	default:
		return nil, errors.NewInvalidRequestError("unsupported database driver %q", driver)
	}
}

// openSQLite opens a SQLite database at the specified path with settings that
// let pipeline workers read while the writer transaction is open.
func openSQLite(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	if logger != nil {
		logger.Debugw("Opening database", "driver", DriverSQLite, "path", path)
	}
	// Per-connection pragmas go in the DSN so every pooled connection gets them
	dsn := fmt.Sprintf("%s?_busy_timeout=%d&_foreign_keys=on", path, SQLiteBusyTimeoutMS)
	db, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// Enable WAL mode for concurrent reads during writes
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable WAL mode")
	}

	if logger != nil {
		logger.Infow("Database opened successfully",
			"driver", DriverSQLite,
			"path", path,
			"wal_mode", true,
			"foreign_keys", true,
		)
	}

	return db, nil
}

func openPostgres(dsn string, logger *zap.SugaredLogger) (*sql.DB, error) {
	if logger != nil {
		logger.Debugw("Opening database", "driver", DriverPostgres)
	}
	db, err := sql.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to reach postgres")
	}

	if logger != nil {
		logger.Infow("Database opened successfully", "driver", DriverPostgres)
	}
	return db, nil
}

// OpenWithMigrations opens the database and applies pending migrations
func OpenWithMigrations(driver, source string, logger *zap.SugaredLogger) (*sql.DB, error) {
	db, err := Open(driver, source, logger)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db, driver, logger); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}
	return db, nil
}
