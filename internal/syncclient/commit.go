package syncclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cooklang/cooklang-sync/internal/chunkid"
)

// CommitOutcome tags which arm of the commit tagged union the remote
// returned (spec §4.3 "commit").
type CommitOutcome int

const (
	// CommitSuccess means the remote accepted the revision and assigned
	// it a jid.
	CommitSuccess CommitOutcome = iota
	// CommitNeedChunks means the remote is missing one or more chunks
	// referenced by the revision; the caller must upload them and retry.
	CommitNeedChunks
)

// CommitResult is the outcome of Commit: exactly one of Jid (on
// CommitSuccess) or NeedChunks (on CommitNeedChunks) is meaningful.
type CommitResult struct {
	Outcome    CommitOutcome
	Jid        int64
	NeedChunks []chunkid.ID
}

type commitResponse struct {
	Status string `json:"status"`
	Jid    int64  `json:"jid"`
	Chunks string `json:"chunks"`
}

// Commit proposes a new revision of path. chunkIDs lists the file's
// chunks in order (a single chunkid.Null for an empty or deleted file).
// The remote either assigns a jid (CommitSuccess) or reports the subset
// of chunkIDs it does not yet have (CommitNeedChunks), in which case the
// caller uploads them and commits again (spec §4.3, §6: "POST
// /metadata/commit?uuid=<cuuid>", form body path/deleted/chunk_ids).
//
// Every commit carries the client's session UUID in the query string so
// the remote can suppress echoing this client's own write back to it
// over poll/list (spec §9 "echo suppression").
func (c *Client) Commit(ctx context.Context, path string, deleted bool, chunkIDs []chunkid.ID) (CommitResult, error) {
	strs := make([]string, len(chunkIDs))
	for i, id := range chunkIDs {
		strs[i] = string(id)
	}

	form := url.Values{}
	form.Set("path", normalizeSlashPath(path))
	form.Set("deleted", strconv.FormatBool(deleted))
	form.Set("chunk_ids", strings.Join(strs, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/metadata/commit", strings.NewReader(form.Encode()))
	if err != nil {
		return CommitResult{}, fmt.Errorf("build commit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	q := req.URL.Query()
	q.Set("uuid", c.clientID.String())
	req.URL.RawQuery = q.Encode()

	resp, err := c.do(req)
	if err != nil {
		return CommitResult{}, err
	}
	defer resp.Body.Close()

	var cr commitResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return CommitResult{}, fmt.Errorf("%w: %v", ErrBodyExtract, err)
	}

	switch cr.Status {
	case "success":
		return CommitResult{Outcome: CommitSuccess, Jid: cr.Jid}, nil
	case "need_chunks":
		var needed []chunkid.ID
		if cr.Chunks != "" {
			for _, s := range strings.Split(cr.Chunks, ",") {
				needed = append(needed, chunkid.ID(s))
			}
		}
		return CommitResult{Outcome: CommitNeedChunks, NeedChunks: needed}, nil
	default:
		return CommitResult{}, fmt.Errorf("%w: unrecognized commit status %q", ErrBodyExtract, cr.Status)
	}
}

// normalizeSlashPath rewrites host path separators to forward slashes
// (spec §4.3: "path is normalized to forward-slash form regardless of
// host separator").
func normalizeSlashPath(path string) string {
	return strings.ReplaceAll(path, "\\", "/")
}
