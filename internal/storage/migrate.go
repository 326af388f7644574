package storage

import (
	"database/sql"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migrate applies all pending migrations from sourceURL (e.g.
// "file://migrations") to the given connection. Already-applied migrations
// are not an error.
func Migrate(db *sql.DB, sourceURL string) error {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithDatabaseInstance(sourceURL, "sqlite", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// NewMigrator opens the database file at dbPath on a dedicated connection
// and returns a migrator for it. Closing the migrator closes the
// connection.
func NewMigrator(dbPath, sourceURL string) (*migrate.Migrate, error) {
	db, err := sql.Open("sqlite", FileDSN(dbPath))
	if err != nil {
		return nil, err
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		db.Close()
		return nil, err
	}
	m, err := migrate.NewWithDatabaseInstance(sourceURL, "sqlite", driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

// MigrateFile opens the database file at dbPath on a dedicated connection and
// applies migrations from sourceURL.
func MigrateFile(dbPath, sourceURL string) error {
	m, err := NewMigrator(dbPath, sourceURL)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}
