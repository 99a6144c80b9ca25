package syncclient

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/cooklang/cooklang-sync/internal/chunkid"
)

// Download fetches a single chunk's content by ID. The null chunk is
// always empty and never round-trips to the remote.
func (c *Client) Download(ctx context.Context, id chunkid.ID) ([]byte, error) {
	if id.IsNull() {
		return []byte{}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/chunks/"+string(id), nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBodyExtract, err)
	}
	return data, nil
}

// DownloadedChunk is one part of a streamed batch download.
type DownloadedChunk struct {
	ID   chunkid.ID
	Data []byte
}

// DownloadBatch fetches multiple chunks in one request, streaming each
// part to out as it is parsed off the wire rather than buffering the
// whole response (spec §4.3 "download_batch" and §9 "streamed
// incrementally"). mime/multipart.Reader already parses parts lazily
// against the underlying response body, reading only as much as one
// part needs before yielding it — which gives the required streaming
// behavior without a hand-rolled buffer scanner.
//
// DownloadBatch blocks until every part of the response has been sent to
// out or an error occurs. It returns nil at the end of the multipart
// stream without checking that every requested id arrived; on error it
// returns a *BatchDownloadError noting
// how many chunks were delivered before the failure. Null chunk IDs in
// ids are filtered out before the request and never appear in out.
func (c *Client) DownloadBatch(ctx context.Context, ids []chunkid.ID, out chan<- DownloadedChunk) error {
	wanted := make([]chunkid.ID, 0, len(ids))
	for _, id := range ids {
		if !id.IsNull() {
			wanted = append(wanted, id)
		}
	}
	if len(wanted) == 0 {
		return nil
	}

	req, err := c.newBatchDownloadRequest(ctx, wanted)
	if err != nil {
		return &BatchDownloadError{Err: err}
	}

	resp, err := c.do(req)
	if err != nil {
		return &BatchDownloadError{Err: err}
	}
	defer resp.Body.Close()

	boundary, err := batchBoundary(resp.Header.Get("Content-Type"))
	if err != nil {
		return &BatchDownloadError{Err: fmt.Errorf("%w: %v", ErrBodyExtract, err)}
	}

	mr := multipart.NewReader(resp.Body, boundary)
	delivered := 0
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &BatchDownloadError{ChunksDelivered: delivered, Err: err}
		}

		id := chunkid.ID(part.Header.Get("X-Chunk-ID"))
		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return &BatchDownloadError{ChunksDelivered: delivered, Err: fmt.Errorf("%w: %v", ErrBodyExtract, err)}
		}

		select {
		case out <- DownloadedChunk{ID: id, Data: data}:
			delivered++
		case <-ctx.Done():
			return &BatchDownloadError{ChunksDelivered: delivered, Err: ctx.Err()}
		}
	}
}

// newBatchDownloadRequest builds the POST /chunks/download request, form
// encoding the requested ids as repeated chunk_ids[] fields (spec §6).
func (c *Client) newBatchDownloadRequest(ctx context.Context, ids []chunkid.ID) (*http.Request, error) {
	form := url.Values{}
	for _, id := range ids {
		form.Add("chunk_ids[]", string(id))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chunks/download", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build batch download request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

func batchBoundary(contentType string) (string, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("parse batch content-type %q: %w", contentType, err)
	}
	boundary, ok := params["boundary"]
	if !ok {
		return "", fmt.Errorf("batch response missing multipart boundary")
	}
	return boundary, nil
}
