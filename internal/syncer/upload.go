package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/cooklang/cooklang-sync/internal/chunkid"
	"github.com/cooklang/cooklang-sync/internal/registry"
	"github.com/cooklang/cooklang-sync/internal/syncclient"
)

// runUploadLoop implements spec §4.5's upload loop.
func (s *Syncer) runUploadLoop(ctx context.Context) error {
	select {
	case <-time.After(s.initialUploadDelay):
	case <-ctx.Done():
		return nil
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		s.status.Set(StatusUploading)
		pendingWasEmpty, allCommitted, err := s.uploadPass(ctx)
		if err != nil {
			return fmt.Errorf("upload pass: %w", err)
		}

		if !(allCommitted && pendingWasEmpty) {
			continue
		}

		s.status.Set(StatusIdle)
		select {
		case <-time.After(s.uploadIdleWait):
		case <-s.updated.C():
		case <-ctx.Done():
			return nil
		}
	}
}

type needChunks struct {
	ids []chunkid.ID
}

// uploadPass runs one iteration: commit every pending row, and push any
// chunks the remote reported missing. It returns whether to_upload was
// empty and whether every row ended the pass committed.
func (s *Syncer) uploadPass(ctx context.Context) (pendingWasEmpty, allCommitted bool, err error) {
	rows, err := s.registry.PendingUploads(ctx, s.tenant)
	if err != nil {
		return false, false, fmt.Errorf("list pending uploads: %w", err)
	}
	pendingWasEmpty = len(rows) == 0
	allCommitted = true

	var needed []needChunks
	for _, row := range rows {
		chunkIDs, err := s.chunkIDsForRow(row)
		if err != nil {
			return pendingWasEmpty, allCommitted, fmt.Errorf("hashify %s: %w", row.Path, err)
		}

		result, err := s.remote.Commit(ctx, row.Path, row.Deleted, chunkIDs)
		if err != nil {
			return pendingWasEmpty, allCommitted, err
		}

		switch result.Outcome {
		case syncclient.CommitSuccess:
			if err := s.registry.AttachJid(ctx, row.ID, result.Jid); err != nil {
				return pendingWasEmpty, allCommitted, fmt.Errorf("attach jid to %s: %w", row.Path, err)
			}
		case syncclient.CommitNeedChunks:
			allCommitted = false
			needed = append(needed, needChunks{ids: result.NeedChunks})
		}
	}

	if err := s.uploadMissingChunks(ctx, needed); err != nil {
		return pendingWasEmpty, allCommitted, err
	}

	return pendingWasEmpty, allCommitted, nil
}

func (s *Syncer) chunkIDsForRow(row registry.FileRevision) ([]chunkid.ID, error) {
	if row.Deleted {
		return []chunkid.ID{chunkid.Null}, nil
	}
	return s.chunker.Hashify(row.Path)
}

// uploadMissingChunks batches the chunks the remote asked for, in
// emission order, and uploads each batch once its aggregate size would
// exceed syncclient.BatchByteCap (spec §4.5 step b/c).
func (s *Syncer) uploadMissingChunks(ctx context.Context, needed []needChunks) error {
	var batch []syncclient.Chunk
	var batchSize int

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.remote.UploadBatch(ctx, batch); err != nil {
			return fmt.Errorf("upload batch: %w", err)
		}
		batch = nil
		batchSize = 0
		return nil
	}

	for _, nc := range needed {
		for _, id := range nc.ids {
			if id.IsNull() {
				continue
			}
			data, err := s.cache.Get(id)
			if err != nil {
				return fmt.Errorf("chunk %s requested by remote is no longer cached: %w", id, err)
			}
			if batchSize+len(data) > syncclient.BatchByteCap && len(batch) > 0 {
				if err := flush(); err != nil {
					return err
				}
			}
			batch = append(batch, syncclient.Chunk{ID: id, Data: data})
			batchSize += len(data)
		}
	}

	return flush()
}
