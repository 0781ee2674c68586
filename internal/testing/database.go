// Package testing provides shared test helpers. Import it with an alias
// (conventionally trellistest) to avoid clashing with the standard
// library's testing package.
package testing

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/candelahq/trellis/db"
)

// CreateTestDB creates an in-memory SQLite database with foreign keys
// enabled and all schema migrations applied. Cleanup is registered via
// t.Cleanup().
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	// Every pooled connection to ":memory:" is its own database, so the
	// pool must stay at one connection or tables vanish mid-test.
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() {
		conn.Close()
	})

	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}

	if err := db.Migrate(conn, nil); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return conn
}
