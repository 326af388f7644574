package storage

// InitStore opens the SQLite database file at dbPath with the standard
// pragmas applied.
func InitStore(dbPath string) (*SQLiteStore, error) {
	store, err := NewSQLiteStore(FileDSN(dbPath))
	if err != nil {
		return nil, err
	}
	return store, nil
}
