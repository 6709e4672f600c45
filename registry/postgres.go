package registry

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nedpals/umbral-nfc/registry/migrations"
)

const pgUniqueViolation = "23505"

var postgresDialect = dialect{
	name:       DriverPostgres,
	goose:      "postgres",
	migrations: migrations.Postgres,
	dir:        "postgres",
	numbered:   true,
	isConflict: isPostgresConflict,
}

// OpenPostgres connects through the pgx stdlib driver and migrates the
// database.
func OpenPostgres(ctx context.Context, dsn string) (*SQLRegistry, error) {
	db, err := openSQL(ctx, "pgx", dsn, postgresDialect)
	if err != nil {
		return nil, err
	}
	return &SQLRegistry{db: db, closer: db.Close, dialect: postgresDialect}, nil
}

func isPostgresConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
