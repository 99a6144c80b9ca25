package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cooklang/cooklang-sync/internal/registry"
	"github.com/cooklang/cooklang-sync/internal/registry/registrytest"
	"github.com/cooklang/cooklang-sync/internal/registry/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.db")
	s, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	registrytest.TestStore(t, func(t *testing.T) registry.Store {
		return newTestStore(t)
	})
}

func TestReopenPreservesRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")

	s1, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s1.Create(context.Background(), []registry.NewRow{{Tenant: "t1", Path: "a.cook"}}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	rows, err := s2.LatestPerPath(context.Background(), "t1")
	if err != nil {
		t.Fatalf("LatestPerPath: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows after reopen, want 1", len(rows))
	}
}
