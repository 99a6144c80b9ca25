package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cooklang/cooklang-sync/internal/chunkid"
	"github.com/cooklang/cooklang-sync/internal/registry"
	"github.com/cooklang/cooklang-sync/internal/syncclient"
)

// runDownloadLoop implements spec §4.5's download loop.
func (s *Syncer) runDownloadLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		s.status.Set(StatusDownloading)
		if err := s.downloadPass(ctx); err != nil {
			if errors.Is(err, syncclient.ErrUnauthorized) {
				return err
			}
			s.logger.Warn("download pass failed, retrying after sleep", "error", err)
			if !s.sleepOrDone(ctx, s.retrySleep) {
				return nil
			}
			continue
		}

		s.status.Set(StatusIdle)
		if err := s.remote.Poll(ctx, s.pollSeconds); err != nil {
			if errors.Is(err, syncclient.ErrUnauthorized) {
				return err
			}
			s.logger.Warn("poll failed, retrying after sleep", "error", err)
			if !s.sleepOrDone(ctx, s.retrySleep) {
				return nil
			}
		}
	}
}

func (s *Syncer) sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// downloadPass implements spec §4.5 download loop steps (a)-(d).
func (s *Syncer) downloadPass(ctx context.Context) error {
	jid, err := s.registry.LatestJid(ctx, s.tenant)
	if err != nil {
		return fmt.Errorf("read latest jid: %w", err)
	}

	records, err := s.remote.List(ctx, jid)
	if err != nil {
		return fmt.Errorf("list since jid %d: %w", jid, err)
	}
	if len(records) == 0 {
		return nil
	}

	if err := s.warmAndDownloadMissing(ctx, records); err != nil {
		return err
	}

	for _, rec := range records {
		if err := s.applyRecord(ctx, rec); err != nil {
			return fmt.Errorf("apply record for %s: %w", rec.Path, err)
		}
	}
	return nil
}

// warmAndDownloadMissing warms the cache from any existing local copy of
// each non-deleted record's file, then fetches whatever chunks remain
// missing from the cache in one batch.
func (s *Syncer) warmAndDownloadMissing(ctx context.Context, records []syncclient.RemoteRecord) error {
	seen := make(map[chunkid.ID]struct{})
	var missing []chunkid.ID

	for _, rec := range records {
		if rec.Deleted {
			continue
		}
		if s.chunker.Exists(rec.Path) {
			if _, err := s.chunker.Hashify(rec.Path); err != nil {
				s.logger.Warn("cache warm-up failed", "path", rec.Path, "error", err)
			}
		}
		for _, id := range rec.ChunkIDs() {
			if id.IsNull() || s.cache.Contains(id) {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			missing = append(missing, id)
		}
	}

	if len(missing) == 0 {
		return nil
	}

	out := make(chan syncclient.DownloadedChunk, len(missing))
	batchErr := s.remote.DownloadBatch(ctx, missing, out)
	close(out)
	for dc := range out {
		s.cache.Set(dc.ID, dc.Data)
	}
	if batchErr != nil {
		return fmt.Errorf("download batch: %w", batchErr)
	}
	return nil
}

// applyRecord reconstructs or tombstones one record, then writes the
// corresponding registry row, already committed with the remote's jid
// (spec §4.5 "this row is born already committed").
func (s *Syncer) applyRecord(ctx context.Context, rec syncclient.RemoteRecord) error {
	jid := rec.Jid

	if rec.Deleted {
		if err := s.chunker.Delete(rec.Path); err != nil {
			return fmt.Errorf("delete local file: %w", err)
		}
		_, err := s.registry.Create(ctx, []registry.NewRow{{
			Tenant:     s.tenant,
			Path:       rec.Path,
			Deleted:    true,
			ModifiedAt: time.Now(),
			Jid:        &jid,
		}})
		return err
	}

	ids := rec.ChunkIDs()
	if err := s.chunker.Save(rec.Path, ids); err != nil {
		return fmt.Errorf("save reconstructed file: %w", err)
	}

	size, modifiedAt, err := s.chunker.Stat(rec.Path)
	if err != nil {
		return fmt.Errorf("stat reconstructed file: %w", err)
	}

	_, err = s.registry.Create(ctx, []registry.NewRow{{
		Tenant:     s.tenant,
		Path:       rec.Path,
		Deleted:    false,
		Size:       size,
		ModifiedAt: modifiedAt,
		Jid:        &jid,
	}})
	return err
}
