// Package syncer implements component C5: the two cooperating upload
// and download loops that keep the registry, the remote journal, and
// local file content converged (spec §4.5).
package syncer

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cooklang/cooklang-sync/internal/chunkcache"
	"github.com/cooklang/cooklang-sync/internal/chunker"
	"github.com/cooklang/cooklang-sync/internal/logging"
	"github.com/cooklang/cooklang-sync/internal/notify"
	"github.com/cooklang/cooklang-sync/internal/registry"
	"github.com/cooklang/cooklang-sync/internal/syncclient"
)

const (
	defaultInitialUploadDelay = 5 * time.Second
	defaultUploadIdleWait     = 47 * time.Second
	defaultPollSeconds        = 60
	defaultRetrySleep         = 61 * time.Second
)

// Config configures a Syncer.
type Config struct {
	Tenant   string
	Registry registry.Store
	Remote   *syncclient.Client
	Chunker  *chunker.Chunker
	Cache    *chunkcache.Cache
	Updated  *notify.Signal

	// UploadDisabled runs the syncer in download-only mode (spec §4.5
	// "Upload loop (disabled in download-only mode)").
	UploadDisabled bool

	// Overridable timings; zero means use the spec default. Tests set
	// these to keep the suite fast.
	InitialUploadDelay time.Duration
	UploadIdleWait     time.Duration
	PollSeconds        int
	RetrySleep         time.Duration

	Logger *slog.Logger
}

// Syncer runs the upload and download loops and reports their combined
// high-level status.
type Syncer struct {
	tenant   string
	registry registry.Store
	remote   *syncclient.Client
	chunker  *chunker.Chunker
	cache    *chunkcache.Cache
	updated  *notify.Signal

	uploadDisabled bool

	initialUploadDelay time.Duration
	uploadIdleWait     time.Duration
	pollSeconds        int
	retrySleep         time.Duration

	status *statusBoard
	logger *slog.Logger
}

// New constructs a Syncer from cfg.
func New(cfg Config) *Syncer {
	logger := logging.Default(cfg.Logger).With("component", "syncer")

	initialDelay := cfg.InitialUploadDelay
	if initialDelay <= 0 {
		initialDelay = defaultInitialUploadDelay
	}
	idleWait := cfg.UploadIdleWait
	if idleWait <= 0 {
		idleWait = defaultUploadIdleWait
	}
	pollSeconds := cfg.PollSeconds
	if pollSeconds <= 0 {
		pollSeconds = defaultPollSeconds
	}
	retrySleep := cfg.RetrySleep
	if retrySleep <= 0 {
		retrySleep = defaultRetrySleep
	}
	updated := cfg.Updated
	if updated == nil {
		updated = notify.NewSignal()
	}

	return &Syncer{
		tenant:             cfg.Tenant,
		registry:           cfg.Registry,
		remote:             cfg.Remote,
		chunker:            cfg.Chunker,
		cache:              cfg.Cache,
		updated:            updated,
		uploadDisabled:     cfg.UploadDisabled,
		initialUploadDelay: initialDelay,
		uploadIdleWait:     idleWait,
		pollSeconds:        pollSeconds,
		retrySleep:         retrySleep,
		status:             newStatusBoard(logger),
		logger:             logger,
	}
}

// SetStatusListener installs fn to receive every Status transition.
// Passing nil stops delivery.
func (s *Syncer) SetStatusListener(fn func(Status)) {
	s.status.SetListener(fn)
}

// Status returns the most recently reported Status.
func (s *Syncer) Status() Status {
	return s.status.Current()
}

// Run drives the upload and download loops until ctx is canceled or
// either loop returns a fatal error. The two loops are try-joined: the
// first to fail cancels its sibling, and both must succeed for Run to
// return nil (spec §4.5, §5).
func (s *Syncer) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if !s.uploadDisabled {
		g.Go(func() error {
			return s.runUploadLoop(gctx)
		})
	}
	g.Go(func() error {
		return s.runDownloadLoop(gctx)
	})

	if err := g.Wait(); err != nil {
		s.status.Set(StatusError)
		return err
	}
	s.status.Set(StatusIdle)
	return nil
}
