package storage

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var sqliteDialect = dialect{
	name: "sqlite",
	isDuplicate: func(err error) bool {
		var sqlErr *sqlite.Error
		if errors.As(err, &sqlErr) {
			return sqlErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || sqlErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
		}
		return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
	},
}

// NewSQLite opens the database file at path, creating parent directories as
// needed. Use ":memory:" for a throwaway database.
func NewSQLite(path string) (*SQL, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one connection serializes writers and keeps an in-memory database alive
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, err
	}

	s, err := newSQL(db, sqliteDialect, sqliteMigration)
	if err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}
