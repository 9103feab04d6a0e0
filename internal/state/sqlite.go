package state

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tidemark-io/tidemark/internal/model"

	// CGO-free SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const listPageSize = 256

// SQLiteStore is the durable Store backend. Per-resource atomicity comes
// from single-row statements; the optimistic version check is expressed as a
// guarded UPDATE so two racing runs cannot both win.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) the state database at path and
// runs pending schema migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("state database path is required")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping state database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, resourceID string) (*model.RecordedState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT resource_id, kind, provider, attributes, provider_handle, version, applied_at, dependencies
		FROM resources WHERE resource_id = ?`, resourceID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteStore) Put(ctx context.Context, rec *model.RecordedState) error {
	attrs, deps, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	appliedAt := rec.AppliedAt
	if appliedAt.IsZero() {
		appliedAt = time.Now().UTC()
	}

	// Upsert with an in-statement version bump keeps the write atomic per
	// resource without a surrounding transaction.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO resources (resource_id, kind, provider, attributes, provider_handle, version, applied_at, dependencies)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(resource_id) DO UPDATE SET
			kind = excluded.kind,
			provider = excluded.provider,
			attributes = excluded.attributes,
			provider_handle = excluded.provider_handle,
			version = resources.version + 1,
			applied_at = excluded.applied_at,
			dependencies = excluded.dependencies`,
		rec.ResourceID, rec.Kind, rec.Provider, attrs, rec.ProviderHandle, appliedAt.Format(time.RFC3339Nano), deps)
	if err != nil {
		return fmt.Errorf("failed to put record %q: %w", rec.ResourceID, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, resourceID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE resource_id = ?`, resourceID); err != nil {
		return fmt.Errorf("failed to delete record %q: %w", resourceID, err)
	}
	return nil
}

func (s *SQLiteStore) CompareAndSwap(ctx context.Context, expectedVersion int64, rec *model.RecordedState) error {
	attrs, deps, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	appliedAt := rec.AppliedAt
	if appliedAt.IsZero() {
		appliedAt = time.Now().UTC()
	}

	var res sql.Result
	if expectedVersion == model.VersionNone {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO resources (resource_id, kind, provider, attributes, provider_handle, version, applied_at, dependencies)
			VALUES (?, ?, ?, ?, ?, 0, ?, ?)
			ON CONFLICT(resource_id) DO NOTHING`,
			rec.ResourceID, rec.Kind, rec.Provider, attrs, rec.ProviderHandle, appliedAt.Format(time.RFC3339Nano), deps)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE resources SET
				kind = ?, provider = ?, attributes = ?, provider_handle = ?,
				version = version + 1, applied_at = ?, dependencies = ?
			WHERE resource_id = ? AND version = ?`,
			rec.Kind, rec.Provider, attrs, rec.ProviderHandle, appliedAt.Format(time.RFC3339Nano), deps,
			rec.ResourceID, expectedVersion)
	}
	if err != nil {
		return fmt.Errorf("failed to swap record %q: %w", rec.ResourceID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read swap outcome for %q: %w", rec.ResourceID, err)
	}
	if affected == 0 {
		actual := model.VersionNone
		if current, err := s.Get(ctx, rec.ResourceID); err == nil && current != nil {
			actual = current.Version
		}
		return &ConflictError{
			ResourceID:      rec.ResourceID,
			ExpectedVersion: expectedVersion,
			ActualVersion:   actual,
		}
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, fn func(*model.RecordedState) error) error {
	after := ""
	for {
		rows, err := s.db.QueryContext(ctx, `
			SELECT resource_id, kind, provider, attributes, provider_handle, version, applied_at, dependencies
			FROM resources WHERE resource_id > ?
			ORDER BY resource_id LIMIT ?`, after, listPageSize)
		if err != nil {
			return fmt.Errorf("failed to list records: %w", err)
		}

		n := 0
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				rows.Close()
				return err
			}
			if err := fn(rec); err != nil {
				rows.Close()
				return err
			}
			after = rec.ResourceID
			n++
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("failed to iterate records: %w", err)
		}
		rows.Close()

		if n < listPageSize {
			return nil
		}
	}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.RecordedState, error) {
	var rec model.RecordedState
	var attrs, deps, appliedAt string
	if err := row.Scan(&rec.ResourceID, &rec.Kind, &rec.Provider, &attrs, &rec.ProviderHandle, &rec.Version, &appliedAt, &deps); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(attrs), &rec.LastApplied); err != nil {
		return nil, fmt.Errorf("corrupt attributes for %q: %w", rec.ResourceID, err)
	}
	if err := json.Unmarshal([]byte(deps), &rec.Dependencies); err != nil {
		return nil, fmt.Errorf("corrupt dependencies for %q: %w", rec.ResourceID, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, appliedAt)
	if err != nil {
		return nil, fmt.Errorf("corrupt applied_at for %q: %w", rec.ResourceID, err)
	}
	rec.AppliedAt = ts
	return &rec, nil
}

func encodeRecord(rec *model.RecordedState) (attrs, deps string, err error) {
	a, err := json.Marshal(rec.LastApplied)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal attributes for %q: %w", rec.ResourceID, err)
	}
	if rec.Dependencies == nil {
		return string(a), "[]", nil
	}
	d, err := json.Marshal(rec.Dependencies)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal dependencies for %q: %w", rec.ResourceID, err)
	}
	return string(a), string(d), nil
}
