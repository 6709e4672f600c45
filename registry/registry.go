// Package registry provides the tag registry backends: an in-memory map and
// a database/sql store for SQLite and PostgreSQL with embedded goose
// migrations.
package registry

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/nedpals/umbral-nfc/nfc"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store is a Registry that owns resources.
type Store interface {
	nfc.Registry
	io.Closer
}

// Open returns the store for driver. The memory driver ignores dsn.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch strings.ToLower(driver) {
	case DriverMemory, "":
		return NewMemoryRegistry(), nil
	case DriverSQLite:
		r, err := OpenSQLite(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return r, nil
	case DriverPostgres:
		r, err := OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown registry driver %q", driver)
	}
}

func validate(tag nfc.RegisteredTag) error {
	if tag.ID == "" || tag.UID == "" {
		return fmt.Errorf("registered tag needs an id and uid")
	}
	return nil
}
