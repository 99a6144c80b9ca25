// Package sqlite provides a SQLite-backed registry.Store implementation,
// the default persisted form of the append-only revision log (spec §4.1,
// §6 "Persisted state").
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cooklang/cooklang-sync/internal/registry"
)

const timeFormat = time.RFC3339Nano

// Store is a SQLite-based registry.Store. A single connection is used
// (SetMaxOpenConns(1)): the registry's own concurrency story (spec §5)
// serializes writers at the call-site; SQLite itself does not support
// concurrent writers from multiple connections without WAL-mode
// contention we'd rather avoid in a client-side process.
type Store struct {
	db *sql.DB
}

var _ registry.Store = (*Store)(nil)

// Open opens (creating if necessary) a SQLite database at path and runs
// migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create registry directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal_mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set foreign_keys: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Create implements registry.Store.
func (s *Store) Create(ctx context.Context, rows []registry.NewRow) ([]registry.FileRevision, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO file_revisions (jid, tenant, path, deleted, size, modified_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare create: %w", err)
	}
	defer stmt.Close()

	out := make([]registry.FileRevision, 0, len(rows))
	for _, nr := range rows {
		var jid sql.NullInt64
		if nr.Jid != nil {
			jid = sql.NullInt64{Int64: *nr.Jid, Valid: true}
		}
		res, err := stmt.ExecContext(ctx, jid, nr.Tenant, nr.Path, nr.Deleted, nr.Size, nr.ModifiedAt.Format(timeFormat))
		if err != nil {
			return nil, fmt.Errorf("insert revision for %s: %w", nr.Path, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("get inserted id for %s: %w", nr.Path, err)
		}
		out = append(out, registry.FileRevision{
			ID:         id,
			Jid:        nr.Jid,
			Tenant:     nr.Tenant,
			Path:       nr.Path,
			Deleted:    nr.Deleted,
			Size:       nr.Size,
			ModifiedAt: nr.ModifiedAt,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create: %w", err)
	}
	return out, nil
}

// AttachJid implements registry.Store.
func (s *Store) AttachJid(ctx context.Context, rowID int64, jid int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attach jid: %w", err)
	}
	defer tx.Rollback()

	var existing sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT jid FROM file_revisions WHERE id = ?`, rowID).Scan(&existing)
	if err == sql.ErrNoRows {
		return registry.ErrRowNotFound
	}
	if err != nil {
		return fmt.Errorf("query existing jid: %w", err)
	}

	if existing.Valid {
		if existing.Int64 == jid {
			return nil
		}
		return registry.ErrJidAlreadyAttached
	}

	if _, err := tx.ExecContext(ctx, `UPDATE file_revisions SET jid = ? WHERE id = ?`, jid, rowID); err != nil {
		return fmt.Errorf("attach jid: %w", err)
	}

	return tx.Commit()
}

// LatestPerPath implements registry.Store.
func (s *Store) LatestPerPath(ctx context.Context, tenant string) ([]registry.FileRevision, error) {
	const q = `
		SELECT r.id, r.jid, r.tenant, r.path, r.deleted, r.size, r.modified_at
		FROM file_revisions r
		JOIN (
			SELECT path, MAX(id) AS max_id
			FROM file_revisions
			WHERE tenant = ?
			GROUP BY path
		) latest ON latest.path = r.path AND latest.max_id = r.id
		WHERE r.tenant = ? AND r.deleted = 0
		ORDER BY r.id ASC`

	return s.query(ctx, q, tenant, tenant)
}

// PendingUploads implements registry.Store.
func (s *Store) PendingUploads(ctx context.Context, tenant string) ([]registry.FileRevision, error) {
	const q = `
		SELECT r.id, r.jid, r.tenant, r.path, r.deleted, r.size, r.modified_at
		FROM file_revisions r
		JOIN (
			SELECT path, MAX(id) AS max_id
			FROM file_revisions
			WHERE tenant = ?
			GROUP BY path
		) latest ON latest.path = r.path AND latest.max_id = r.id
		WHERE r.tenant = ? AND r.jid IS NULL
		ORDER BY r.id ASC`

	return s.query(ctx, q, tenant, tenant)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]registry.FileRevision, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query revisions: %w", err)
	}
	defer rows.Close()

	var out []registry.FileRevision
	for rows.Next() {
		var (
			rev      registry.FileRevision
			jid      sql.NullInt64
			modified string
		)
		if err := rows.Scan(&rev.ID, &jid, &rev.Tenant, &rev.Path, &rev.Deleted, &rev.Size, &modified); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		if jid.Valid {
			j := jid.Int64
			rev.Jid = &j
		}
		t, err := time.Parse(timeFormat, modified)
		if err != nil {
			return nil, fmt.Errorf("parse modified_at %q: %w", modified, err)
		}
		rev.ModifiedAt = t
		out = append(out, rev)
	}
	return out, rows.Err()
}

// LatestJid implements registry.Store.
func (s *Store) LatestJid(ctx context.Context, tenant string) (int64, error) {
	var jid sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(jid) FROM file_revisions WHERE tenant = ?`, tenant).Scan(&jid)
	if err != nil {
		return 0, fmt.Errorf("query latest jid: %w", err)
	}
	if !jid.Valid {
		return 0, nil
	}
	return jid.Int64, nil
}

// Close implements registry.Store.
func (s *Store) Close() error {
	return s.db.Close()
}
