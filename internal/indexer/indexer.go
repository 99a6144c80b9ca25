// Package indexer implements the filesystem scan loop that keeps the
// local revision registry in sync with the storage root on disk (spec
// §4.4). It runs one "scan" both periodically and on every debounced
// filesystem-watcher event, whichever trigger fires first.
package indexer

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cooklang/cooklang-sync/internal/chunkid"
	"github.com/cooklang/cooklang-sync/internal/logging"
	"github.com/cooklang/cooklang-sync/internal/notify"
	"github.com/cooklang/cooklang-sync/internal/registry"
)

// defaultScanInterval is the periodic scan cadence (spec §4.4).
const defaultScanInterval = 61 * time.Second

// defaultDebounceWindow coalesces bursts of filesystem events before
// triggering a scan (spec §5 "debounce window 2 s").
const defaultDebounceWindow = 2 * time.Second

// watchQueueCapacity bounds the debounce trigger channel; the watcher
// callback never blocks on a full queue (spec §5).
const watchQueueCapacity = 1000

// Config configures an Indexer.
type Config struct {
	Root       string
	Tenant     string
	Registry   registry.Store
	Classifier *chunkid.Classifier
	Updated    *notify.Signal

	// ScanInterval overrides defaultScanInterval when non-zero.
	ScanInterval time.Duration
	// DebounceWindow overrides defaultDebounceWindow when non-zero.
	DebounceWindow time.Duration

	Logger *slog.Logger
}

// Indexer walks Root, diffs it against the registry, and applies the
// result as a batch of inserts and tombstones.
type Indexer struct {
	root       string
	tenant     string
	registry   registry.Store
	classifier *chunkid.Classifier
	updated    *notify.Signal

	scanInterval   time.Duration
	debounceWindow time.Duration

	logger *slog.Logger
}

// New constructs an Indexer from cfg.
func New(cfg Config) *Indexer {
	interval := cfg.ScanInterval
	if interval <= 0 {
		interval = defaultScanInterval
	}
	debounce := cfg.DebounceWindow
	if debounce <= 0 {
		debounce = defaultDebounceWindow
	}
	classifier := cfg.Classifier
	if classifier == nil {
		classifier = chunkid.DefaultClassifier()
	}
	updated := cfg.Updated
	if updated == nil {
		updated = notify.NewSignal()
	}

	return &Indexer{
		root:           cfg.Root,
		tenant:         cfg.Tenant,
		registry:       cfg.Registry,
		classifier:     classifier,
		updated:        updated,
		scanInterval:   interval,
		debounceWindow: debounce,
		logger:         logging.Default(cfg.Logger).With("component", "indexer"),
	}
}

// Run scans once immediately, then continues scanning on every periodic
// tick or debounced filesystem event until ctx is canceled. Run returns
// nil on cancellation; it returns an error only if the filesystem
// watcher itself cannot be established.
func (ix *Indexer) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := ix.watchTree(watcher, ix.root); err != nil {
		ix.logger.Warn("failed to watch storage root", "root", ix.root, "error", err)
	}

	ticker := time.NewTicker(ix.scanInterval)
	defer ticker.Stop()

	trigger := make(chan struct{}, watchQueueCapacity)
	var debounceTimer *time.Timer

	ix.runScan(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			ix.runScan(ctx)

		case <-trigger:
			ix.runScan(ctx)

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			ix.handleEvent(watcher, event)
			if debounceTimer == nil {
				debounceTimer = time.AfterFunc(ix.debounceWindow, func() {
					select {
					case trigger <- struct{}{}:
					default:
					}
				})
			} else {
				debounceTimer.Reset(ix.debounceWindow)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			ix.logger.Warn("fsnotify error", "error", err)
		}
	}
}

// handleEvent keeps the watch set current: a newly created directory is
// added (and its own subtree, for directories created with content
// already inside them).
func (ix *Indexer) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) {
		return
	}
	info, err := os.Lstat(event.Name)
	if err != nil || info.Mode()&os.ModeSymlink != 0 || !info.IsDir() {
		return
	}
	if err := ix.watchTree(watcher, event.Name); err != nil {
		ix.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
	}
}

// watchTree adds dir and every non-symlink subdirectory to watcher.
// fsnotify does not watch recursively on its own.
func (ix *Indexer) watchTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			ix.logger.Warn("walk error while installing watches", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			ix.logger.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (ix *Indexer) runScan(ctx context.Context) {
	if err := ix.Scan(ctx); err != nil {
		ix.logger.Error("scan failed", "error", err)
	}
}
