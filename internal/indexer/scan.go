package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cooklang/cooklang-sync/internal/registry"
)

// candidate is the filesystem-derived state of one eligible path,
// compared against the registry's latest row for that path.
type candidate struct {
	size       int64
	modifiedAt time.Time
}

// Scan implements spec §4.4's algorithm: build FromDB, walk the
// storage root for the current on-disk state, diff the two, and apply
// any inserts/tombstones as a single registry batch. It is exported so
// callers that manage their own scheduling (and tests) can trigger a
// scan directly instead of going through Run's loop.
func (ix *Indexer) Scan(ctx context.Context) error {
	fromDB, err := ix.registry.LatestPerPath(ctx, ix.tenant)
	if err != nil {
		return fmt.Errorf("load latest revisions: %w", err)
	}
	dbByPath := make(map[string]registry.FileRevision, len(fromDB))
	for _, rev := range fromDB {
		dbByPath[rev.Path] = rev
	}

	disk, err := ix.walkDisk()
	if err != nil {
		return fmt.Errorf("walk storage root: %w", err)
	}

	var rows []registry.NewRow

	for path, rev := range dbByPath {
		cand, stillPresent := disk[path]
		switch {
		case !stillPresent:
			rows = append(rows, registry.NewRow{
				Tenant:     ix.tenant,
				Path:       path,
				Deleted:    true,
				Size:       rev.Size,
				ModifiedAt: rev.ModifiedAt,
			})
		case cand.size != rev.Size || !cand.modifiedAt.Equal(rev.ModifiedAt):
			rows = append(rows, registry.NewRow{
				Tenant:     ix.tenant,
				Path:       path,
				Deleted:    false,
				Size:       cand.size,
				ModifiedAt: cand.modifiedAt,
			})
		}
	}

	for path, cand := range disk {
		if _, known := dbByPath[path]; known {
			continue
		}
		rows = append(rows, registry.NewRow{
			Tenant:     ix.tenant,
			Path:       path,
			Deleted:    false,
			Size:       cand.size,
			ModifiedAt: cand.modifiedAt,
		})
	}

	if len(rows) == 0 {
		return nil
	}

	if _, err := ix.registry.Create(ctx, rows); err != nil {
		return fmt.Errorf("apply scan batch: %w", err)
	}
	ix.updated.Notify()
	return nil
}

// walkDisk returns the eligible, tenant-relative, slash-separated paths
// found under the storage root and their (size, modified_at). A
// failure reading one entry is logged and skipped so the scan as a
// whole still completes (spec §4.4 "Failure semantics").
func (ix *Indexer) walkDisk() (map[string]candidate, error) {
	disk := make(map[string]candidate)

	err := filepath.WalkDir(ix.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			ix.logger.Warn("walk error", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(ix.root, path)
		if err != nil {
			ix.logger.Warn("relativize path", "path", path, "error", err)
			return nil
		}
		relSlash := filepath.ToSlash(rel)
		if !ix.classifier.Eligible(relSlash) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			ix.logger.Warn("stat during scan", "path", path, "error", err)
			return nil
		}

		disk[relSlash] = candidate{size: info.Size(), modifiedAt: info.ModTime()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return disk, nil
}
