package syncer_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cooklang/cooklang-sync/internal/chunkcache"
	"github.com/cooklang/cooklang-sync/internal/chunker"
	"github.com/cooklang/cooklang-sync/internal/indexer"
	"github.com/cooklang/cooklang-sync/internal/registry"
	"github.com/cooklang/cooklang-sync/internal/registry/memory"
	"github.com/cooklang/cooklang-sync/internal/syncer"
)

// These tests exercise the indexer and syncer together against the same
// fakeRemote defined in syncer_test.go, one per end-to-end scenario.

func TestEndToEndFreshUpload(t *testing.T) {
	remote := newFakeRemote()
	srv := remote.server()
	defer srv.Close()

	root := t.TempDir()
	mustMkdirAll(t, filepath.Join(root, "recipes"))
	mustWriteFile(t, filepath.Join(root, "recipes", "a.cook"), "eggs\nbacon\n")

	cache, err := chunkcache.New(100, 1<<20)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	ck := chunker.New(chunker.Config{Root: root, Cache: cache})
	reg := memory.New()

	ix := indexer.New(indexer.Config{Root: root, Tenant: "default", Registry: reg})
	if err := ix.Scan(context.Background()); err != nil {
		t.Fatalf("indexer scan: %v", err)
	}

	rows, err := reg.PendingUploads(context.Background(), "default")
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected one pending row after scan, got %v (err=%v)", rows, err)
	}

	s := syncer.New(syncer.Config{
		Tenant:             "default",
		Registry:           reg,
		Remote:             newClient(t, srv.URL),
		Chunker:            ck,
		Cache:              cache,
		InitialUploadDelay: time.Millisecond,
		UploadIdleWait:     20 * time.Millisecond,
		PollSeconds:        1,
		RetrySleep:         20 * time.Millisecond,
	})

	runUntilPendingEmpty(t, s, reg, "default")

	remote.mu.Lock()
	defer remote.mu.Unlock()
	if len(remote.journal) != 1 {
		t.Fatalf("expected exactly one committed row, got %d", len(remote.journal))
	}
	got := remote.journal[0]
	if got.Jid != 1 {
		t.Errorf("jid = %d, want 1", got.Jid)
	}
	if got.Path != "recipes/a.cook" {
		t.Errorf("path = %q, want recipes/a.cook", got.Path)
	}
	wantChunks := "e9c3c1c06f,10da16ba98"
	if got.Chunks != wantChunks {
		t.Errorf("chunks = %q, want %q", got.Chunks, wantChunks)
	}
}

func TestEndToEndDeletePropagationOutbound(t *testing.T) {
	remote := newFakeRemote()
	srv := remote.server()
	defer srv.Close()

	root := t.TempDir()
	path := filepath.Join(root, "a.cook")
	mustWriteFile(t, path, "eggs\n")

	cache, err := chunkcache.New(100, 1<<20)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	ck := chunker.New(chunker.Config{Root: root, Cache: cache})
	reg := memory.New()
	ix := indexer.New(indexer.Config{Root: root, Tenant: "default", Registry: reg})

	client := newClient(t, srv.URL)
	newTestSyncer := func() *syncer.Syncer {
		return syncer.New(syncer.Config{
			Tenant:             "default",
			Registry:           reg,
			Remote:             client,
			Chunker:            ck,
			Cache:              cache,
			InitialUploadDelay: time.Millisecond,
			UploadIdleWait:     20 * time.Millisecond,
			PollSeconds:        1,
			RetrySleep:         20 * time.Millisecond,
		})
	}

	if err := ix.Scan(context.Background()); err != nil {
		t.Fatalf("indexer scan (create): %v", err)
	}
	runUntilPendingEmpty(t, newTestSyncer(), reg, "default")

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove file: %v", err)
	}
	if err := ix.Scan(context.Background()); err != nil {
		t.Fatalf("indexer scan (delete): %v", err)
	}
	runUntilPendingEmpty(t, newTestSyncer(), reg, "default")

	remote.mu.Lock()
	defer remote.mu.Unlock()
	if len(remote.journal) != 2 {
		t.Fatalf("expected 2 journal rows (create + tombstone), got %d", len(remote.journal))
	}
	tomb := remote.journal[1]
	if !tomb.Deleted {
		t.Error("second row should be a tombstone")
	}
	if tomb.Chunks != "" {
		t.Errorf("tombstone chunks = %q, want empty", tomb.Chunks)
	}
	if tomb.Jid != 2 {
		t.Errorf("tombstone jid = %d, want 2", tomb.Jid)
	}
}

func TestEndToEndDeletePropagationInbound(t *testing.T) {
	remote := newFakeRemote()
	remote.nextJid = 9
	remote.journal = []journalRow{{Jid: 9, Path: "x.cook", Deleted: true}}
	srv := remote.server()
	defer srv.Close()

	destRoot := t.TempDir()
	cache, err := chunkcache.New(100, 1<<20)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	ck := chunker.New(chunker.Config{Root: destRoot, Cache: cache})
	reg := memory.New()

	s := syncer.New(syncer.Config{
		Tenant:         "default",
		Registry:       reg,
		Remote:         newClient(t, srv.URL),
		Chunker:        ck,
		Cache:          cache,
		UploadDisabled: true,
		PollSeconds:    1,
		RetrySleep:     20 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	deadline := time.After(150 * time.Millisecond)
	for {
		jid, err := reg.LatestJid(context.Background(), "default")
		if err != nil {
			t.Fatalf("latest jid: %v", err)
		}
		if jid == 9 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("tombstone never landed in registry")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(destRoot, "x.cook")); !os.IsNotExist(err) {
		t.Errorf("x.cook should not exist on disk, stat err = %v", err)
	}
}

func runUntilPendingEmpty(t *testing.T, s *syncer.Syncer, reg registry.Store, tenant string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	deadline := time.After(400 * time.Millisecond)
	for {
		rows, err := reg.PendingUploads(context.Background(), tenant)
		if err != nil {
			t.Fatalf("pending uploads: %v", err)
		}
		if len(rows) == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("rows never committed; still pending: %+v", rows)
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func mustMkdirAll(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
