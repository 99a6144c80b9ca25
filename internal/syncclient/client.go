// Package syncclient implements component C4: the wire-protocol client to
// the remote object store and journal (spec §4.3, §6). A single Client is
// stateless across calls and holds only the base URL, bearer token, and a
// stable per-process client UUID used by the server to suppress echoes of
// this client's own commits (spec §9 "Echo suppression").
package syncclient

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cooklang/cooklang-sync/internal/logging"
)

// requestTimeout is the base of Poll's local context deadline
// (requestTimeout + pollExtra). It is not applied to any other call:
// Upload, UploadBatch, Download, DownloadBatch, List and Commit set no
// deadline of their own and are bounded only by the caller's context.
const requestTimeout = 60 * time.Second

// pollExtra is added to requestTimeout to derive the local context
// deadline Poll enforces while waiting (spec §4.3 "poll"). The seconds
// value sent to the server is Poll's own argument, not this sum.
const pollExtra = 10 * time.Second

// Client is a stateless wire-protocol client for one sync session.
type Client struct {
	baseURL  string
	token    string
	clientID uuid.UUID
	http     *http.Client
	logger   *slog.Logger
}

// Config configures a Client.
type Config struct {
	// BaseURL is the remote object store's base URL, e.g.
	// "https://sync.example.com".
	BaseURL string

	// Token is the bearer token sent with every request.
	Token string

	// Logger for structured logging; optional.
	Logger *slog.Logger
}

// New constructs a Client with a freshly generated client UUID and an
// HTTP transport that accepts gzip-encoded responses (net/http's default
// Transport negotiates and transparently decodes gzip as long as the
// caller does not set its own Accept-Encoding header, which this client
// never does).
func New(cfg Config) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.Token,
		clientID: uuid.New(),
		http: &http.Client{
			// No client-wide Timeout: Poll sets its own context
			// deadline; every other call is bounded only by the
			// caller's context.
			Transport: &http.Transport{
				DisableCompression: false,
			},
		},
		logger: logging.Default(cfg.Logger).With("component", "syncclient"),
	}
}

// ClientID returns the stable per-session UUID used for commit/poll echo
// suppression.
func (c *Client) ClientID() uuid.UUID {
	return c.clientID
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
}
