// Command cooklang-sync keeps a local directory of recipe files converged
// with a remote object store and journal.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
//   - Components scope loggers with their own attributes
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cooklang/cooklang-sync/internal/chunkcache"
	"github.com/cooklang/cooklang-sync/internal/chunker"
	"github.com/cooklang/cooklang-sync/internal/config"
	"github.com/cooklang/cooklang-sync/internal/indexer"
	"github.com/cooklang/cooklang-sync/internal/logging"
	"github.com/cooklang/cooklang-sync/internal/notify"
	"github.com/cooklang/cooklang-sync/internal/registry"
	"github.com/cooklang/cooklang-sync/internal/registry/memory"
	"github.com/cooklang/cooklang-sync/internal/registry/sqlite"
	"github.com/cooklang/cooklang-sync/internal/syncclient"
	"github.com/cooklang/cooklang-sync/internal/syncer"
)

var version = "dev"

func main() {
	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	filterHandler := logging.NewComponentFilterHandler(baseHandler, slog.LevelInfo)
	logger := slog.New(filterHandler)

	rootCmd := &cobra.Command{
		Use:   "cooklang-sync",
		Short: "Keep a local recipe directory in sync with a remote store",
	}
	rootCmd.PersistentFlags().String("config", "cooklang-sync.yaml", "path to the session config file")
	rootCmd.PersistentFlags().String("debug-component", "", "log one component (e.g. syncer) at debug level")

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Run the indexer and syncer until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			debugComponent, _ := cmd.Flags().GetString("debug-component")
			if debugComponent != "" {
				filterHandler.SetLevel(debugComponent, slog.LevelDebug)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			return run(ctx, logger, configPath)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(syncCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// run loads cfg, builds every component, and drives the indexer and
// syncer until ctx is canceled.
func run(ctx context.Context, logger *slog.Logger, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	reg, err := openRegistry(cfg)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer func() {
		if err := reg.Close(); err != nil {
			logger.Error("close registry", "error", err)
		}
	}()

	cache, err := chunkcache.New(cfg.CacheMaxEntries, cfg.CacheMaxWeight)
	if err != nil {
		return fmt.Errorf("create chunk cache: %w", err)
	}

	classifier := cfg.Classifier()
	ck := chunker.New(chunker.Config{
		Root:       cfg.StorageRoot,
		Cache:      cache,
		Classifier: classifier,
		Logger:     logger,
	})

	remote := syncclient.New(syncclient.Config{
		BaseURL: cfg.RemoteBaseURL,
		Token:   cfg.Token,
		Logger:  logger,
	})

	updated := notify.NewSignal()

	ix := indexer.New(indexer.Config{
		Root:           cfg.StorageRoot,
		Tenant:         cfg.Tenant,
		Registry:       reg,
		Classifier:     classifier,
		Updated:        updated,
		ScanInterval:   cfg.ScanInterval,
		DebounceWindow: cfg.DebounceWindow,
		Logger:         logger,
	})

	sy := syncer.New(syncer.Config{
		Tenant:         cfg.Tenant,
		Registry:       reg,
		Remote:         remote,
		Chunker:        ck,
		Cache:          cache,
		Updated:        updated,
		UploadDisabled: cfg.UploadDisabled,
		PollSeconds:    cfg.PollSeconds,
		Logger:         logger,
	})
	sy.SetStatusListener(func(s syncer.Status) {
		logger.Info("syncer status", "status", s.String())
	})

	logger.Info("starting cooklang-sync",
		"tenant", cfg.Tenant,
		"storage_root", cfg.StorageRoot,
		"remote", cfg.RemoteBaseURL,
		"upload_disabled", cfg.UploadDisabled)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ix.Run(gctx) })
	g.Go(func() error { return sy.Run(gctx) })

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func openRegistry(cfg *config.Config) (registry.Store, error) {
	if cfg.RegistryPath == "" {
		return memory.New(), nil
	}
	return sqlite.Open(cfg.RegistryPath)
}
