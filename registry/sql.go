package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/nedpals/umbral-nfc/internal/syncutil"
	"github.com/nedpals/umbral-nfc/nfc"
)

// DBTX is the subset of database/sql used by SQLRegistry. Both *sql.DB and
// *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// dialect holds what differs between SQLite and PostgreSQL.
type dialect struct {
	name       string
	goose      string
	migrations fs.FS
	dir        string
	numbered   bool // $1, $2 placeholders instead of ?
	maxConns   int
	isConflict func(error) bool
}

// rebind rewrites ? placeholders for dialects with numbered parameters.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// goose keeps its base FS and dialect in package state.
var gooseMu syncutil.Mutex

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

func runMigrations(ctx context.Context, db *sql.DB, d dialect) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(d.migrations)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect(d.goose); err != nil {
		return fmt.Errorf("goose dialect %s: %w", d.goose, err)
	}
	if err := gooseUpContext(ctx, db, d.dir); err != nil {
		return fmt.Errorf("migrate %s: %w", d.name, err)
	}
	return nil
}

// SQLRegistry stores tags in the tags table. Timestamps are unix
// milliseconds.
type SQLRegistry struct {
	db      DBTX
	closer  func() error
	dialect dialect
}

func openSQL(ctx context.Context, driver, dsn string, d dialect) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}
	if d.maxConns > 0 {
		db.SetMaxOpenConns(d.maxConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.name, err)
	}
	if err := runMigrations(ctx, db, d); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

const tagColumns = `id, uid, name, location, profile_id, created_at, last_used_at, use_count`

func (r *SQLRegistry) queryRow(ctx context.Context, where string, arg any) (*nfc.RegisteredTag, error) {
	query := r.dialect.rebind(`SELECT ` + tagColumns + ` FROM tags WHERE ` + where)
	tag, err := scanTag(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nfc.ErrTagNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return tag, nil
}

func (r *SQLRegistry) FindByUID(ctx context.Context, uid string) (*nfc.RegisteredTag, error) {
	return r.queryRow(ctx, `uid = ?`, uid)
}

func (r *SQLRegistry) FindByID(ctx context.Context, id string) (*nfc.RegisteredTag, error) {
	return r.queryRow(ctx, `id = ?`, id)
}

func (r *SQLRegistry) RecordUsage(ctx context.Context, uid string, at time.Time) error {
	query := r.dialect.rebind(`UPDATE tags SET use_count = use_count + 1, last_used_at = ? WHERE uid = ?`)
	res, err := r.db.ExecContext(ctx, query, at.UnixMilli(), uid)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func (r *SQLRegistry) Insert(ctx context.Context, tag nfc.RegisteredTag) error {
	if err := validate(tag); err != nil {
		return err
	}
	query := r.dialect.rebind(`INSERT INTO tags (` + tagColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query,
		tag.ID, tag.UID, tag.Name, tag.Location, tag.ProfileID,
		tag.CreatedAt.UnixMilli(), nullMillis(tag.LastUsedAt), tag.UseCount)
	if err != nil {
		if r.dialect.isConflict(err) {
			return nfc.ErrTagAlreadyRegistered
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLRegistry) Update(ctx context.Context, tag nfc.RegisteredTag) error {
	if err := validate(tag); err != nil {
		return err
	}
	query := r.dialect.rebind(`UPDATE tags SET uid = ?, name = ?, location = ?, profile_id = ?, last_used_at = ?, use_count = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query,
		tag.UID, tag.Name, tag.Location, tag.ProfileID,
		nullMillis(tag.LastUsedAt), tag.UseCount, tag.ID)
	if err != nil {
		if r.dialect.isConflict(err) {
			return nfc.ErrTagAlreadyRegistered
		}
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func (r *SQLRegistry) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.dialect.rebind(`DELETE FROM tags WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func (r *SQLRegistry) List(ctx context.Context) ([]nfc.RegisteredTag, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+tagColumns+` FROM tags ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	tags := []nfc.RegisteredTag{}
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		tags = append(tags, *tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return tags, nil
}

func (r *SQLRegistry) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTag(s scanner) (*nfc.RegisteredTag, error) {
	var (
		tag       nfc.RegisteredTag
		createdAt int64
		lastUsed  sql.NullInt64
	)
	err := s.Scan(&tag.ID, &tag.UID, &tag.Name, &tag.Location, &tag.ProfileID,
		&createdAt, &lastUsed, &tag.UseCount)
	if err != nil {
		return nil, err
	}
	tag.CreatedAt = time.UnixMilli(createdAt).UTC()
	if lastUsed.Valid {
		at := time.UnixMilli(lastUsed.Int64).UTC()
		tag.LastUsedAt = &at
	}
	return &tag, nil
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return nfc.ErrTagNotFound
	}
	return nil
}
