package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethpandaops/resultoor/pkg/config"
	"github.com/ethpandaops/resultoor/pkg/fsutil"
	"github.com/ethpandaops/resultoor/pkg/history"
	"github.com/ethpandaops/resultoor/pkg/publish"
	"github.com/ethpandaops/resultoor/pkg/retention"
)

// loadConfig loads and validates the configuration from --config files and
// the environment. Unlike a long-running service, every command works
// without a config file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFiles...)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return cfg, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}

	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// openStore builds the history store selected by store.driver. The returned
// close function must always be called.
func openStore(ctx context.Context, cfg *config.Config) (history.Store, func(), error) {
	noop := func() {}

	switch cfg.Store.Driver {
	case "local":
		owner, err := fsutil.ParseOwner(cfg.Global.FileOwner)
		if err != nil {
			return nil, noop, fmt.Errorf("parsing global.file_owner: %w", err)
		}

		return history.NewLocalStore(cfg.Aggregate.ResolvedRunsDir(), owner), noop, nil
	case "s3":
		return history.NewS3Store(log, &cfg.Store.S3), noop, nil
	case "sql":
		store := history.NewSQLStore(log, &cfg.Store.Database)
		if err := store.Start(ctx); err != nil {
			return nil, noop, fmt.Errorf("starting sql store: %w", err)
		}

		return store, func() {
			if err := store.Stop(); err != nil {
				log.WithError(err).Warn("Failed to stop sql store")
			}
		}, nil
	default:
		return nil, noop, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// openSite builds the local site handle from the aggregate settings.
func openSite(cfg *config.Config) (*publish.Site, error) {
	owner, err := fsutil.ParseOwner(cfg.Global.FileOwner)
	if err != nil {
		return nil, fmt.Errorf("parsing global.file_owner: %w", err)
	}

	return publish.NewSite(cfg.Aggregate.SiteDir, cfg.Aggregate.HistoricalPath,
		cfg.Aggregate.TablePath, owner)
}

// referenceTime returns aggregate.now when set, otherwise the wall clock.
func referenceTime(cfg *config.Config) (time.Time, error) {
	if cfg.Aggregate.Now == "" {
		return time.Now().UTC(), nil
	}

	t, err := history.ParseTimestamp(cfg.Aggregate.Now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing aggregate.now: %w", err)
	}

	return t, nil
}

func retentionWindow(cfg *config.Config) time.Duration {
	return retention.Days(cfg.Aggregate.RetentionDays)
}
