package syncclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/cooklang/cooklang-sync/internal/chunkid"
)

// RemoteRecord is one row of the remote journal, as returned by List
// (spec §4.1, §6 "remote journal").
type RemoteRecord struct {
	Jid     int64  `json:"jid"`
	Path    string `json:"path"`
	Deleted bool   `json:"deleted"`
	Chunks  string `json:"chunks"`
}

// ChunkIDs parses the record's comma-separated chunk list. An empty
// field yields a single null chunk ID, matching a zero-length file.
func (r RemoteRecord) ChunkIDs() []chunkid.ID {
	if r.Chunks == "" {
		return []chunkid.ID{chunkid.Null}
	}
	parts := strings.Split(r.Chunks, ",")
	ids := make([]chunkid.ID, len(parts))
	for i, p := range parts {
		ids[i] = chunkid.ID(p)
	}
	return ids
}

// List returns every journal record with jid > sinceJid, deduplicated to
// the latest row per path (spec §4.3, §6: "GET /metadata/list?jid=<n>").
func (c *Client) List(ctx context.Context, sinceJid int64) ([]RemoteRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/metadata/list", nil)
	if err != nil {
		return nil, fmt.Errorf("build list request: %w", err)
	}
	q := req.URL.Query()
	q.Set("jid", strconv.FormatInt(sinceJid, 10))
	req.URL.RawQuery = q.Encode()

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var records []RemoteRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBodyExtract, err)
	}
	return records, nil
}
