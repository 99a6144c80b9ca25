package syncclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Poll performs one long-poll request asking the remote to hold the
// connection open until new journal activity arrives or seconds
// elapses, then returns. A transport timeout is ordinary "no news" and
// is reported to the caller as a nil error so the sync loop simply
// polls again (spec §4.3 "poll", §9 "long-poll").
//
// The client's own session UUID is sent so the remote can, if it
// chooses, avoid waking this poll for journal entries this same client
// just committed.
func (c *Client) Poll(ctx context.Context, seconds int) error {
	pollCtx, cancel := context.WithTimeout(ctx, requestTimeout+pollExtra)
	defer cancel()

	req, err := http.NewRequestWithContext(pollCtx, http.MethodGet, c.baseURL+"/metadata/poll", nil)
	if err != nil {
		return fmt.Errorf("build poll request: %w", err)
	}
	q := url.Values{}
	q.Set("seconds", strconv.Itoa(seconds))
	q.Set("uuid", c.clientID.String())
	req.URL.RawQuery = q.Encode()

	resp, err := c.do(req)
	if err != nil {
		if isTimeout(err) {
			return nil
		}
		return err
	}
	resp.Body.Close()
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
