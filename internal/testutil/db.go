package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/ehtbanton/exammer/internal/storage"
)

// TestDB holds a migrated in-memory database. The held connection keeps the
// shared-cache database alive: SQLite drops an in-memory database when its
// last connection closes.
type TestDB struct {
	DB  *sqlx.DB
	DSN string
}

var dbSeq atomic.Int64

// SetupTestDB opens a fresh named in-memory SQLite database and applies all
// migrations. Each call gets its own database, so tests never share state.
// Stores opened later with the same DSN attach to the same memory database
// through the shared cache.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", dbSeq.Add(1))
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("Failed to open test DB: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to ping test DB: %v", err)
	}

	// Run migrations
	if err := storage.Migrate(db.DB, "file://../../migrations"); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	return &TestDB{DB: db, DSN: dsn}
}

// Teardown closes the held connection, dropping the in-memory database.
func (td *TestDB) Teardown(t *testing.T) {
	if err := td.DB.Close(); err != nil {
		t.Errorf("Failed to close DB connection: %v", err)
	}
}

// Reset empties every table, children before parents so foreign keys hold.
func (td *TestDB) Reset(t *testing.T) {
	t.Helper()
	for _, table := range []string{"questions", "topics", "subjects", "sessions", "accounts", "users"} {
		if _, err := td.DB.Exec("DELETE FROM " + table); err != nil {
			t.Fatalf("Failed to reset table %s: %v", table, err)
		}
	}
}
