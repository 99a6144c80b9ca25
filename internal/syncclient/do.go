package syncclient

import (
	"io"
	"net/http"
)

// do executes req, applying the bearer token, and classifies the
// response status into the shared error taxonomy. On success the
// caller owns resp.Body and must close it.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return resp, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		defer resp.Body.Close()
		return nil, ErrUnauthorized
	default:
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &UnknownError{StatusCode: resp.StatusCode, Body: string(body)}
	}
}
