package syncclient

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/cooklang/cooklang-sync/internal/chunkid"
)

// BatchByteCap bounds the total payload size of one UploadBatch request
// that callers should assemble (spec §4.5: "the syncer caps each batch
// at ~3 MB"). Enforcing the cap is the caller's job; UploadBatch itself
// accepts whatever batch it is handed.
const BatchByteCap = 3 << 20

// Upload stores a single chunk's content under its content-addressed ID
// (spec §4.3, §6: "POST /chunks/<id>", raw body). The null chunk never
// needs uploading and Upload returns nil immediately for it.
func (c *Client) Upload(ctx context.Context, id chunkid.ID, data []byte) error {
	if id.IsNull() {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chunks/"+string(id), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Chunk pairs a content-addressed ID with its bytes for batch transfer.
type Chunk struct {
	ID   chunkid.ID
	Data []byte
}

// UploadBatch uploads multiple chunks in a single multipart/form-data
// request to /chunks/upload, where each part's *name* is the chunk ID
// and the part body is the chunk's raw bytes (spec §4.3, §6). Callers
// are expected to keep the aggregate payload under BatchByteCap;
// UploadBatch does not split oversized batches itself.
func (c *Client) UploadBatch(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, ch := range chunks {
		if ch.ID.IsNull() {
			continue
		}
		part, err := mw.CreateFormField(string(ch.ID))
		if err != nil {
			return fmt.Errorf("create part for %s: %w", ch.ID, err)
		}
		if _, err := part.Write(ch.Data); err != nil {
			return fmt.Errorf("write part for %s: %w", ch.ID, err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chunks/upload", &body)
	if err != nil {
		return fmt.Errorf("build batch upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
