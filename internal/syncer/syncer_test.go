package syncer_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cooklang/cooklang-sync/internal/chunkcache"
	"github.com/cooklang/cooklang-sync/internal/chunker"
	"github.com/cooklang/cooklang-sync/internal/registry"
	"github.com/cooklang/cooklang-sync/internal/registry/memory"
	"github.com/cooklang/cooklang-sync/internal/syncclient"
	"github.com/cooklang/cooklang-sync/internal/syncer"
)

// fakeRemote is a minimal in-memory stand-in for the wire protocol
// described in spec §4.3/§6, just enough to exercise a full upload and
// download round trip.
type fakeRemote struct {
	mu      sync.Mutex
	chunks  map[string][]byte
	journal []journalRow
	nextJid int64
}

type journalRow struct {
	Jid     int64  `json:"jid"`
	Path    string `json:"path"`
	Deleted bool   `json:"deleted"`
	Chunks  string `json:"chunks"`
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{chunks: make(map[string][]byte)}
}

func (f *fakeRemote) server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/chunks/upload", f.handleUploadBatch)
	mux.HandleFunc("/chunks/download", f.handleDownloadBatch)
	mux.HandleFunc("/chunks/", f.handleSingleChunk)
	mux.HandleFunc("/metadata/list", f.handleList)
	mux.HandleFunc("/metadata/commit", f.handleCommit)
	mux.HandleFunc("/metadata/poll", f.handlePoll)
	return httptest.NewServer(mux)
}

func (f *fakeRemote) handleSingleChunk(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/chunks/")
	switch r.Method {
	case http.MethodPost:
		data, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.chunks[id] = data
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	case http.MethodGet:
		f.mu.Lock()
		data, ok := f.chunks[id]
		f.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	}
}

func (f *fakeRemote) handleUploadBatch(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(part)
		f.chunks[part.FormName()] = data
	}
	w.WriteHeader(http.StatusOK)
}

func (f *fakeRemote) handleDownloadBatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ids := r.PostForm["chunk_ids[]"]

	mw := multipart.NewWriter(w)
	w.Header().Set("Content-Type", mw.FormDataContentType())

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		data, ok := f.chunks[id]
		if !ok {
			continue
		}
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q`, id))
		hdr.Set("X-Chunk-ID", id)
		part, err := mw.CreatePart(hdr)
		if err != nil {
			continue
		}
		part.Write(data)
	}
	mw.Close()
}

func (f *fakeRemote) handleList(w http.ResponseWriter, r *http.Request) {
	since, _ := strconv.ParseInt(r.URL.Query().Get("jid"), 10, 64)

	f.mu.Lock()
	var out []journalRow
	for _, row := range f.journal {
		if row.Jid > since {
			out = append(out, row)
		}
	}
	f.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Jid < out[j].Jid })
	json.NewEncoder(w).Encode(out)
}

func (f *fakeRemote) handleCommit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	path := r.PostForm.Get("path")
	deleted := r.PostForm.Get("deleted") == "true"
	chunkIDs := r.PostForm.Get("chunk_ids")

	f.mu.Lock()
	defer f.mu.Unlock()

	var missing []string
	for _, id := range strings.Split(chunkIDs, ",") {
		if id == "" {
			continue
		}
		if _, ok := f.chunks[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		json.NewEncoder(w).Encode(map[string]any{
			"status": "need_chunks",
			"chunks": strings.Join(missing, ","),
		})
		return
	}

	f.nextJid++
	row := journalRow{Jid: f.nextJid, Path: path, Deleted: deleted, Chunks: chunkIDs}
	f.journal = append(f.journal, row)

	json.NewEncoder(w).Encode(map[string]any{
		"status": "success",
		"jid":    f.nextJid,
	})
}

func (f *fakeRemote) handlePoll(w http.ResponseWriter, r *http.Request) {
	time.Sleep(5 * time.Millisecond)
	w.WriteHeader(http.StatusOK)
}

func newClient(t *testing.T, baseURL string) *syncclient.Client {
	t.Helper()
	return syncclient.New(syncclient.Config{BaseURL: baseURL, Token: "test-token"})
}

func TestUploadLoopCommitsPendingRowAndUploadsChunks(t *testing.T) {
	remote := newFakeRemote()
	srv := remote.server()
	defer srv.Close()

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "recipe.cook"), []byte("step one\nstep two\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cache, err := chunkcache.New(100, 1<<20)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	ck := chunker.New(chunker.Config{Root: root, Cache: cache})

	reg := memory.New()
	if _, err := reg.Create(context.Background(), []registry.NewRow{{
		Tenant: "default",
		Path:   "recipe.cook",
		Size:   18,
	}}); err != nil {
		t.Fatalf("seed registry: %v", err)
	}

	client := newClient(t, srv.URL)
	s := syncer.New(syncer.Config{
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

	var statuses []syncer.Status
	var statusMu sync.Mutex
	s.SetStatusListener(func(st syncer.Status) {
		statusMu.Lock()
		statuses = append(statuses, st)
		statusMu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	deadline := time.After(250 * time.Millisecond)
	for {
		rows, err := reg.PendingUploads(context.Background(), "default")
		if err != nil {
			t.Fatalf("pending uploads: %v", err)
		}
		if len(rows) == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("row never committed; still pending: %+v", rows)
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	remote.mu.Lock()
	journalLen := len(remote.journal)
	remote.mu.Unlock()
	if journalLen != 1 {
		t.Fatalf("expected 1 committed journal row, got %d", journalLen)
	}

	statusMu.Lock()
	defer statusMu.Unlock()
	sawUploading := false
	for _, st := range statuses {
		if st == syncer.StatusUploading {
			sawUploading = true
		}
	}
	if !sawUploading {
		t.Errorf("expected to observe StatusUploading at least once, got %v", statuses)
	}
}

func TestDownloadLoopReconstructsRemoteFile(t *testing.T) {
	remote := newFakeRemote()

	content := []byte("line one\nline two\n")
	chunkSrcRoot := t.TempDir()
	srcCache, err := chunkcache.New(100, 1<<20)
	if err != nil {
		t.Fatalf("new src cache: %v", err)
	}
	srcChunker := chunker.New(chunker.Config{Root: chunkSrcRoot, Cache: srcCache})
	if err := os.WriteFile(filepath.Join(chunkSrcRoot, "recipe.cook"), content, 0o644); err != nil {
		t.Fatalf("write src fixture: %v", err)
	}
	ids, err := srcChunker.Hashify("recipe.cook")
	if err != nil {
		t.Fatalf("hashify: %v", err)
	}

	var idStrs []string
	for _, id := range ids {
		data, _ := srcCache.Get(id)
		remote.chunks[string(id)] = data
		idStrs = append(idStrs, string(id))
	}
	remote.nextJid = 1
	remote.journal = []journalRow{{
		Jid:    1,
		Path:   "recipe.cook",
		Chunks: strings.Join(idStrs, ","),
	}}

	srv := remote.server()
	defer srv.Close()

	destRoot := t.TempDir()
	destCache, err := chunkcache.New(100, 1<<20)
	if err != nil {
		t.Fatalf("new dest cache: %v", err)
	}
	destChunker := chunker.New(chunker.Config{Root: destRoot, Cache: destCache})
	destReg := memory.New()

	client := newClient(t, srv.URL)
	s := syncer.New(syncer.Config{
		Tenant:         "default",
		Registry:       destReg,
		Remote:         client,
		Chunker:        destChunker,
		Cache:          destCache,
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
		if _, err := os.Stat(filepath.Join(destRoot, "recipe.cook")); err == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("file was never reconstructed on disk")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(destRoot, "recipe.cook"))
	if err != nil {
		t.Fatalf("read reconstructed file: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("reconstructed content = %q, want %q", got, content)
	}

	jid, err := destReg.LatestJid(context.Background(), "default")
	if err != nil {
		t.Fatalf("latest jid: %v", err)
	}
	if jid != 1 {
		t.Fatalf("latest jid = %d, want 1", jid)
	}
}
