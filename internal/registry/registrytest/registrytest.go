// Package registrytest provides a conformance suite run against every
// registry.Store implementation, mirroring the teacher's config/storetest
// pattern.
package registrytest

import (
	"context"
	"testing"
	"time"

	"github.com/cooklang/cooklang-sync/internal/registry"
)

// TestStore runs the shared registry.Store conformance suite against a
// freshly constructed store from newStore.
func TestStore(t *testing.T, newStore func(t *testing.T) registry.Store) {
	t.Helper()

	t.Run("CreateAssignsIDs", func(t *testing.T) {
		s := newStore(t)
		rows, err := s.Create(context.Background(), []registry.NewRow{
			{Tenant: "t1", Path: "a.cook", Size: 3, ModifiedAt: time.Now()},
			{Tenant: "t1", Path: "b.cook", Size: 4, ModifiedAt: time.Now()},
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if len(rows) != 2 || rows[0].ID == rows[1].ID || rows[0].ID == 0 {
			t.Fatalf("expected two distinct non-zero IDs, got %+v", rows)
		}
	})

	t.Run("LatestPerPathOrderedByID", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, _ = s.Create(ctx, []registry.NewRow{{Tenant: "t1", Path: "b.cook", ModifiedAt: time.Now()}})
		_, _ = s.Create(ctx, []registry.NewRow{{Tenant: "t1", Path: "a.cook", ModifiedAt: time.Now()}})

		latest, err := s.LatestPerPath(ctx, "t1")
		if err != nil {
			t.Fatalf("LatestPerPath: %v", err)
		}
		if len(latest) != 2 {
			t.Fatalf("got %d rows, want 2", len(latest))
		}
		if latest[0].ID >= latest[1].ID {
			t.Fatalf("expected rows ordered by ascending ID, got %+v", latest)
		}
	})

	t.Run("TombstoneExcludedFromLatest", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, _ = s.Create(ctx, []registry.NewRow{{Tenant: "t1", Path: "a.cook", ModifiedAt: time.Now()}})
		_, _ = s.Create(ctx, []registry.NewRow{{Tenant: "t1", Path: "a.cook", Deleted: true, ModifiedAt: time.Now()}})

		latest, err := s.LatestPerPath(ctx, "t1")
		if err != nil {
			t.Fatalf("LatestPerPath: %v", err)
		}
		if len(latest) != 0 {
			t.Fatalf("got %+v, want no rows", latest)
		}
	})

	t.Run("PendingUploadsAndAttachJid", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rows, err := s.Create(ctx, []registry.NewRow{{Tenant: "t1", Path: "a.cook", ModifiedAt: time.Now()}})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}

		pending, err := s.PendingUploads(ctx, "t1")
		if err != nil {
			t.Fatalf("PendingUploads: %v", err)
		}
		if len(pending) != 1 {
			t.Fatalf("got %d pending, want 1", len(pending))
		}

		if err := s.AttachJid(ctx, rows[0].ID, 42); err != nil {
			t.Fatalf("AttachJid: %v", err)
		}

		pending, err = s.PendingUploads(ctx, "t1")
		if err != nil {
			t.Fatalf("PendingUploads after commit: %v", err)
		}
		if len(pending) != 0 {
			t.Fatalf("got %d pending after commit, want 0", len(pending))
		}

		jid, err := s.LatestJid(ctx, "t1")
		if err != nil {
			t.Fatalf("LatestJid: %v", err)
		}
		if jid != 42 {
			t.Fatalf("LatestJid = %d, want 42", jid)
		}
	})

	t.Run("AttachJidRejectsConflict", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rows, _ := s.Create(ctx, []registry.NewRow{{Tenant: "t1", Path: "a.cook", ModifiedAt: time.Now()}})

		if err := s.AttachJid(ctx, rows[0].ID, 1); err != nil {
			t.Fatalf("AttachJid: %v", err)
		}
		if err := s.AttachJid(ctx, rows[0].ID, 1); err != nil {
			t.Fatalf("idempotent AttachJid should not error: %v", err)
		}
		if err := s.AttachJid(ctx, rows[0].ID, 2); err != registry.ErrJidAlreadyAttached {
			t.Fatalf("AttachJid conflict: got %v, want ErrJidAlreadyAttached", err)
		}
	})

	t.Run("LatestJidDefaultsToZero", func(t *testing.T) {
		s := newStore(t)
		jid, err := s.LatestJid(context.Background(), "unknown-tenant")
		if err != nil {
			t.Fatalf("LatestJid: %v", err)
		}
		if jid != 0 {
			t.Fatalf("LatestJid = %d, want 0", jid)
		}
	})

	t.Run("CreateWithJidIsBornCommitted", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		jid := int64(9)
		rows, err := s.Create(ctx, []registry.NewRow{{Tenant: "t1", Path: "a.cook", Jid: &jid, ModifiedAt: time.Now()}})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if !rows[0].Committed() {
			t.Fatalf("expected row created with a jid to be committed")
		}

		pending, err := s.PendingUploads(ctx, "t1")
		if err != nil {
			t.Fatalf("PendingUploads: %v", err)
		}
		if len(pending) != 0 {
			t.Fatalf("a born-committed row must not appear in PendingUploads, got %+v", pending)
		}
	})

	t.Run("TenantScoping", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, _ = s.Create(ctx, []registry.NewRow{{Tenant: "t1", Path: "a.cook", ModifiedAt: time.Now()}})
		_, _ = s.Create(ctx, []registry.NewRow{{Tenant: "t2", Path: "a.cook", ModifiedAt: time.Now()}})

		latest, err := s.LatestPerPath(ctx, "t1")
		if err != nil {
			t.Fatalf("LatestPerPath: %v", err)
		}
		if len(latest) != 1 {
			t.Fatalf("cross-tenant leak: got %d rows, want 1", len(latest))
		}
	})
}
