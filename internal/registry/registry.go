// Package registry implements component C3: the local, append-only log of
// file revisions keyed by (tenant, path) (spec §4.1). The registry is the
// single source of truth the indexer writes to and the syncer reads from;
// it never edits a row in place except to attach a remote-assigned
// journal id (jid) to a row that was previously local-only.
package registry

import (
	"context"
	"errors"
	"time"
)

// ErrJidAlreadyAttached is returned by AttachJid when the row already
// carries a different jid than the one being attached. Attaching the same
// jid twice is idempotent and not an error (spec §4.1).
var ErrJidAlreadyAttached = errors.New("registry: row already has a different jid attached")

// ErrRowNotFound is returned when an operation references a row id that
// does not exist.
var ErrRowNotFound = errors.New("registry: row not found")

// FileRevision is one row of the append-only log (spec §3).
type FileRevision struct {
	// ID is the locally assigned dense integer primary key.
	ID int64

	// Jid is the remote-assigned revision id. Nil until a commit
	// succeeds for this row.
	Jid *int64

	Tenant     string
	Path       string
	Deleted    bool
	Size       int64
	ModifiedAt time.Time
}

// Committed reports whether this revision has a remote-assigned jid.
func (r FileRevision) Committed() bool {
	return r.Jid != nil
}

// NewRow is the set of fields supplied when creating a revision; ID is
// assigned by the store. Jid is nil for locally originated rows (the
// common case, awaiting a future AttachJid); the download loop sets it
// directly so a row reconstructed from a remote record is born already
// committed (spec §4.5 "this row is born already committed").
type NewRow struct {
	Tenant     string
	Path       string
	Deleted    bool
	Size       int64
	ModifiedAt time.Time
	Jid        *int64
}

// Store is the append-only revision log. All operations are tenant-scoped;
// implementations must never leak rows across tenants.
type Store interface {
	// Create inserts one or more rows, returning them with their
	// assigned IDs in the same order.
	Create(ctx context.Context, rows []NewRow) ([]FileRevision, error)

	// AttachJid is the only permitted in-place mutation: it sets Jid on
	// the row with the given ID. Idempotent when jid already equals the
	// stored value; returns ErrJidAlreadyAttached if the row already
	// carries a different, non-nil jid.
	AttachJid(ctx context.Context, rowID int64, jid int64) error

	// LatestPerPath returns, for each (tenant, path), the row with the
	// greatest ID, filtered to Deleted == false, ordered by ID.
	LatestPerPath(ctx context.Context, tenant string) ([]FileRevision, error)

	// PendingUploads returns rows with Jid == nil that are the latest
	// row for their (tenant, path), ordered by ID ascending.
	PendingUploads(ctx context.Context, tenant string) ([]FileRevision, error)

	// LatestJid returns the largest Jid over all rows for tenant, or 0
	// if none exist.
	LatestJid(ctx context.Context, tenant string) (int64, error)

	// Close releases any resources held by the store.
	Close() error
}
