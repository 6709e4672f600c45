package registry

import (
	"context"
	"errors"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/nedpals/umbral-nfc/registry/migrations"
)

var sqliteDialect = dialect{
	name:       DriverSQLite,
	goose:      "sqlite3",
	migrations: migrations.SQLite,
	dir:        "sqlite",
	maxConns:   1, // :memory: databases are per connection
	isConflict: isSQLiteConflict,
}

// OpenSQLite opens dsn with the pure-Go modernc driver and migrates it.
// ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, dsn string) (*SQLRegistry, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := openSQL(ctx, "sqlite", dsn, sqliteDialect)
	if err != nil {
		return nil, err
	}
	return &SQLRegistry{db: db, closer: db.Close, dialect: sqliteDialect}, nil
}

func isSQLiteConflict(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
