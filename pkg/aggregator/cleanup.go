package aggregator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/resultoor/pkg/history"
	"github.com/ethpandaops/resultoor/pkg/result"
)

// CleanupOptions configure a standalone store cleanup.
type CleanupOptions struct {
	Window          time.Duration
	Now             time.Time
	ReadConcurrency int
	DryRun          bool
}

// CleanupResult lists what a cleanup found and removed.
type CleanupResult struct {
	Candidates []string
	Removed    []string
	Failures   int
	Warnings   []result.ParseWarning
}

// Cleanup removes expired and superseded run files from the store without
// aggregating a new run. Corrupt files are reported but never deleted.
func (a *Aggregator) Cleanup(ctx context.Context, opts CleanupOptions) (*CleanupResult, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	hist, err := history.NewReader(a.log, a.store, opts.ReadConcurrency).Load(ctx)
	if err != nil {
		return nil, err
	}

	res := &CleanupResult{
		Candidates: PruneCandidates(now.UTC(), opts.Window, hist.Runs),
		Warnings:   hist.Warnings,
	}

	a.log.WithFields(logrus.Fields{
		"store":      a.store.Location(),
		"candidates": len(res.Candidates),
		"dry_run":    opts.DryRun,
	}).Info("Cleanup scan complete")

	if opts.DryRun || len(res.Candidates) == 0 {
		return res, nil
	}

	res.Removed, res.Failures = a.deleteFiles(ctx, res.Candidates)

	return res, nil
}
