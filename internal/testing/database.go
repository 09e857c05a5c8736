package testing

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/teranos/globalcalls/db"
)

// CreateTestDB creates a migrated SQLite database in a temp file.
// A file (not :memory:) with WAL lets pipeline workers read on their own
// connections while the writer transaction is open.
// Automatically registers cleanup via t.Cleanup().
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.OpenWithMigrations(db.DriverSQLite, filepath.Join(t.TempDir(), "globalcalls.db"), nil)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
	})

	return conn
}

// CountRows returns the number of rows of table, failing the test on error
func CountRows(t *testing.T, conn *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := conn.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("Failed to count %s: %v", table, err)
	}
	return n
}
