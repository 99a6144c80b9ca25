package syncclient

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when the remote rejects the bearer token
// (HTTP 401/403).
var ErrUnauthorized = errors.New("syncclient: unauthorized")

// ErrBodyExtract is returned when a response body could not be read or
// decoded in the shape the endpoint promises.
var ErrBodyExtract = errors.New("syncclient: could not extract response body")

// UnknownError wraps an unexpected HTTP status from the remote, carrying
// enough detail for logging. Callers that need to recognize it use
// errors.As with a *UnknownError target; there is no sentinel for it.
type UnknownError struct {
	StatusCode int
	Body       string
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("syncclient: unexpected status %d: %s", e.StatusCode, e.Body)
}

// BatchDownloadError reports a failure partway through a streamed
// multipart batch download: the caller may already have received and
// processed zero or more chunks for ChunksDelivered before Err occurred.
type BatchDownloadError struct {
	ChunksDelivered int
	Err             error
}

func (e *BatchDownloadError) Error() string {
	return fmt.Sprintf("syncclient: batch download failed after %d chunks: %v", e.ChunksDelivered, e.Err)
}

func (e *BatchDownloadError) Unwrap() error {
	return e.Err
}
