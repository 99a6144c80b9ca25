// Package memory provides an in-memory registry.Store, used in tests and
// wherever persistence across restarts is not required.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/cooklang/cooklang-sync/internal/registry"
)

// Store is an in-memory registry.Store. Safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	rows   []registry.FileRevision
	nextID int64
}

// New creates an empty Store.
func New() *Store {
	return &Store{nextID: 1}
}

var _ registry.Store = (*Store)(nil)

// Create implements registry.Store.
func (s *Store) Create(_ context.Context, newRows []registry.NewRow) ([]registry.FileRevision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]registry.FileRevision, 0, len(newRows))
	for _, nr := range newRows {
		row := registry.FileRevision{
			ID:         s.nextID,
			Jid:        nr.Jid,
			Tenant:     nr.Tenant,
			Path:       nr.Path,
			Deleted:    nr.Deleted,
			Size:       nr.Size,
			ModifiedAt: nr.ModifiedAt,
		}
		s.nextID++
		s.rows = append(s.rows, row)
		out = append(out, row)
	}
	return out, nil
}

// AttachJid implements registry.Store.
func (s *Store) AttachJid(_ context.Context, rowID int64, jid int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.rows {
		if s.rows[i].ID != rowID {
			continue
		}
		if s.rows[i].Jid != nil {
			if *s.rows[i].Jid == jid {
				return nil
			}
			return registry.ErrJidAlreadyAttached
		}
		j := jid
		s.rows[i].Jid = &j
		return nil
	}
	return registry.ErrRowNotFound
}

// LatestPerPath implements registry.Store.
func (s *Store) LatestPerPath(_ context.Context, tenant string) ([]registry.FileRevision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := latestByPath(s.rows, tenant)
	out := make([]registry.FileRevision, 0, len(latest))
	for _, row := range latest {
		if !row.Deleted {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PendingUploads implements registry.Store.
func (s *Store) PendingUploads(_ context.Context, tenant string) ([]registry.FileRevision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := latestByPath(s.rows, tenant)
	out := make([]registry.FileRevision, 0, len(latest))
	for _, row := range latest {
		if row.Jid == nil {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// LatestJid implements registry.Store.
func (s *Store) LatestJid(_ context.Context, tenant string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var max int64
	for _, row := range s.rows {
		if row.Tenant != tenant || row.Jid == nil {
			continue
		}
		if *row.Jid > max {
			max = *row.Jid
		}
	}
	return max, nil
}

// Close implements registry.Store.
func (s *Store) Close() error { return nil }

// latestByPath returns, for each path under tenant, the row with the
// greatest ID.
func latestByPath(rows []registry.FileRevision, tenant string) map[string]registry.FileRevision {
	latest := make(map[string]registry.FileRevision)
	for _, row := range rows {
		if row.Tenant != tenant {
			continue
		}
		if cur, ok := latest[row.Path]; !ok || row.ID > cur.ID {
			latest[row.Path] = row
		}
	}
	return latest
}
