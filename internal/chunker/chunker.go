// Package chunker implements component C2: splitting files into chunks,
// computing their chunk ids, warming the chunk cache, and reassembling
// files from an ordered chunk id list (spec §4.2).
package chunker

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cooklang/cooklang-sync/internal/chunkcache"
	"github.com/cooklang/cooklang-sync/internal/chunkid"
	"github.com/cooklang/cooklang-sync/internal/logging"
)

// binaryBlockSize is the fixed block size used for binary chunking (spec
// §4.2 "Binary chunking"): exactly 1 MiB, last block may be shorter.
const binaryBlockSize = 1 << 20

// ErrChunkNotCached is a hard error returned by Save when a referenced
// chunk id is not present in the cache. The caller should treat this as a
// GetFromCache-class failure (spec §7).
var ErrChunkNotCached = errors.New("chunker: referenced chunk not in cache")

// Chunker splits and reassembles files rooted at a storage directory,
// using a shared Classifier to decide text vs. binary treatment and a
// shared Cache to hold chunk bytes in memory.
type Chunker struct {
	root       string
	cache      *chunkcache.Cache
	classifier *chunkid.Classifier
	logger     *slog.Logger
}

// Config configures a Chunker.
type Config struct {
	// Root is the storage directory all paths are relative to.
	Root string

	// Cache backs Hashify/Save; required.
	Cache *chunkcache.Cache

	// Classifier decides text vs. binary treatment; defaults to
	// chunkid.DefaultClassifier() if nil.
	Classifier *chunkid.Classifier

	// Logger for structured logging; optional.
	Logger *slog.Logger
}

// New creates a Chunker.
func New(cfg Config) *Chunker {
	classifier := cfg.Classifier
	if classifier == nil {
		classifier = chunkid.DefaultClassifier()
	}
	return &Chunker{
		root:       cfg.Root,
		cache:      cfg.Cache,
		classifier: classifier,
		logger:     logging.Default(cfg.Logger).With("component", "chunker"),
	}
}

func (c *Chunker) fullPath(path string) string {
	return filepath.Join(c.root, filepath.FromSlash(path))
}

// Hashify reads the file at path once, inserts each chunk's bytes into
// the cache under its id, and returns the ordered list of ids in
// reconstruction order.
func (c *Chunker) Hashify(path string) ([]chunkid.ID, error) {
	class := c.classifier.Classify(path)
	if class == chunkid.Unlisted {
		return nil, fmt.Errorf("%w: %s", chunkid.ErrUnlistedFileFormat, path)
	}

	f, err := os.Open(c.fullPath(path))
	if err != nil {
		return nil, fmt.Errorf("chunker: open %s: %w", path, err)
	}
	defer f.Close()

	switch class {
	case chunkid.Text:
		return c.hashifyText(f)
	default:
		return c.hashifyBinary(f)
	}
}

// hashifyText emits one chunk per newline-terminated record. The
// terminating '\n' is part of the hashed bytes; a trailing segment
// without a terminator forms its own chunk if non-empty.
func (c *Chunker) hashifyText(f *os.File) ([]chunkid.ID, error) {
	reader := bufio.NewReader(f)
	var ids []chunkid.ID

	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			id := chunkid.Sum(line, chunkid.TextLength)
			c.cache.Set(id, append([]byte(nil), line...))
			ids = append(ids, id)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("chunker: read text chunk: %w", err)
		}
	}

	return ids, nil
}

// hashifyBinary splits the file into fixed 1 MiB blocks; the last block
// may be shorter.
func (c *Chunker) hashifyBinary(f *os.File) ([]chunkid.ID, error) {
	var ids []chunkid.ID
	buf := make([]byte, binaryBlockSize)

	for {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			block := append([]byte(nil), buf[:n]...)
			id := chunkid.Sum(block, chunkid.BinaryLength)
			c.cache.Set(id, block)
			ids = append(ids, id)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, fmt.Errorf("chunker: read binary block: %w", err)
		}
	}

	return ids, nil
}

// Save writes the concatenation of the referenced chunks' bytes to path,
// creating parent directories as needed. All referenced chunks must
// already be in the cache; a missing chunk is a hard error. Save writes
// to a temporary file and renames it into place so a failed or
// interrupted write never leaves a corrupt file at path.
func (c *Chunker) Save(path string, ids []chunkid.ID) error {
	full := c.fullPath(path)
	if dir := filepath.Dir(full); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("chunker: mkdir %s: %w", dir, err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".sync-*.tmp")
	if err != nil {
		return fmt.Errorf("chunker: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := c.writeChunks(tmp, ids); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chunker: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, full); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chunker: rename into place: %w", err)
	}
	return nil
}

func (c *Chunker) writeChunks(w io.Writer, ids []chunkid.ID) error {
	bw := bufio.NewWriter(w)
	for _, id := range ids {
		data, err := c.cache.Get(id)
		if err != nil {
			return fmt.Errorf("chunker: %w: %s", ErrChunkNotCached, id)
		}
		if _, err := bw.Write(data); err != nil {
			return fmt.Errorf("chunker: write chunk %s: %w", id, err)
		}
	}
	return bw.Flush()
}

// Exists reports whether path is present on disk.
func (c *Chunker) Exists(path string) bool {
	_, err := os.Stat(c.fullPath(path))
	return err == nil
}

// Stat returns the on-disk size and modification time of path, as used
// by the syncer to populate a registry row right after Save.
func (c *Chunker) Stat(path string) (size int64, modifiedAt time.Time, err error) {
	info, err := os.Stat(c.fullPath(path))
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("chunker: stat %s: %w", path, err)
	}
	return info.Size(), info.ModTime(), nil
}

// Delete removes the file at path. Empty parent directories are not
// pruned.
func (c *Chunker) Delete(path string) error {
	if err := os.Remove(c.fullPath(path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("chunker: delete %s: %w", path, err)
	}
	return nil
}

// CheckChunk reports whether id is available for reconstruction: the null
// chunk is always available; otherwise the cache is consulted.
func (c *Chunker) CheckChunk(id chunkid.ID) bool {
	return c.cache.Contains(id)
}
