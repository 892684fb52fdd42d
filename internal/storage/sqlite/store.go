// Package sqlite provides a SQLite-backed region store repository.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/nlhi-service/internal/domain"
	"github.com/couchcryptid/nlhi-service/internal/storage"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const schema = `
CREATE TABLE IF NOT EXISTS regions (
	name TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS records (
	region TEXT NOT NULL REFERENCES regions(name) ON DELETE CASCADE,
	date   TEXT NOT NULL,
	nlhi   REAL NOT NULL,
	body   TEXT NOT NULL,
	PRIMARY KEY (region, date)
);`

// Store persists regions and records in SQLite. Record bodies are stored in
// the same JSON shape as the file backend.
type Store struct {
	sqlDB *sql.DB
}

// Open opens (creating if needed) a SQLite database and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Load reads every region and record into a new RegionStore.
func (s *Store) Load(ctx context.Context) (*domain.RegionStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	store := domain.NewRegionStore()

	rows, err := s.sqlDB.QueryContext(ctx, `SELECT name FROM regions`)
	if err != nil {
		return nil, fmt.Errorf("query regions: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan region: %w", err)
		}
		_, _, _ = store.RegisterRegion(name)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("iterate regions: %w", err)
	}

	rows, err = s.sqlDB.QueryContext(ctx, `SELECT region, date, body FROM records`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	for rows.Next() {
		var region, date, body string
		if err := rows.Scan(&region, &date, &body); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan record: %w", err)
		}
		store.Put(region, date, domain.DecodeRecord([]byte(body)))
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return store, nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	return rows.Close()
}

// Save applies a single change inside a transaction.
func (s *Store) Save(ctx context.Context, store *domain.RegionStore, change storage.Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	switch change.Kind {
	case storage.ChangeRegion:
		err = insertRegion(ctx, tx, change.Region)
	case storage.ChangeRecord:
		err = upsertRecord(ctx, tx, store, change.Region, change.Date)
	case storage.ChangeDeleteRegion:
		_, err = tx.ExecContext(ctx, `DELETE FROM regions WHERE name = ?`, change.Region)
	default:
		err = fmt.Errorf("unsupported change kind %s", change.Kind)
	}
	if err != nil {
		return fmt.Errorf("save %s change: %w", change.Kind, err)
	}
	return tx.Commit()
}

func insertRegion(ctx context.Context, tx *sql.Tx, region string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO regions (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, region)
	return err
}

func upsertRecord(ctx context.Context, tx *sql.Tx, store *domain.RegionStore, region, date string) error {
	rec, ok := store.Record(region, date)
	if !ok {
		return fmt.Errorf("record %s/%s: %w", region, date, domain.ErrRecordNotFound)
	}
	body, err := rec.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := insertRegion(ctx, tx, region); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (region, date, nlhi, body) VALUES (?, ?, ?, ?)
		ON CONFLICT(region, date) DO UPDATE SET nlhi = excluded.nlhi, body = excluded.body`,
		region, date, rec.NLHI, string(body))
	return err
}
