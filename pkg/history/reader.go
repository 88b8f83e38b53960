package history

import (
	"context"
	"fmt"

	"github.com/ethpandaops/resultoor/pkg/result"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultReadConcurrency bounds parallel Get calls against the store.
const DefaultReadConcurrency = 4

// StoredRun is a run decoded from the store together with its file name.
type StoredRun struct {
	Name string
	Run  *result.Run
}

// LoadResult is the outcome of reading the historical store.
type LoadResult struct {
	Runs      []StoredRun
	Warnings  []result.ParseWarning
	FilesSeen int
}

// RunsOnly returns the decoded runs in file-name order.
func (r *LoadResult) RunsOnly() []*result.Run {
	runs := make([]*result.Run, 0, len(r.Runs))
	for i := range r.Runs {
		runs = append(runs, r.Runs[i].Run)
	}

	return runs
}

// Reader loads previously persisted runs. It never mutates the store.
type Reader struct {
	log         logrus.FieldLogger
	store       Store
	concurrency int
}

// NewReader creates a Reader over store. A non-positive concurrency falls
// back to DefaultReadConcurrency.
func NewReader(log logrus.FieldLogger, store Store, concurrency int) *Reader {
	if concurrency <= 0 {
		concurrency = DefaultReadConcurrency
	}

	return &Reader{
		log:         log.WithField("component", "history-reader"),
		store:       store,
		concurrency: concurrency,
	}
}

// Load reads every conventionally named run file. Files that cannot be read
// or decoded are skipped with a warning. Failing to list the store at all is
// a *result.LoadFailure.
func (r *Reader) Load(ctx context.Context) (*LoadResult, error) {
	names, err := r.store.List(ctx)
	if err != nil {
		return nil, &result.LoadFailure{
			Op: "listing historical store", Path: r.store.Location(), Err: err,
		}
	}

	runNames := make([]string, 0, len(names))

	for _, name := range names {
		if IsRunFile(name) {
			runNames = append(runNames, name)
		}
	}

	type slot struct {
		run *result.Run
		err error
	}

	slots := make([]slot, len(runNames))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, name := range runNames {
		g.Go(func() error {
			data, err := r.store.Get(gctx, name)
			if err != nil {
				slots[i].err = fmt.Errorf("reading: %w", err)

				return nil
			}

			run, err := Decode(data)
			if err != nil {
				slots[i].err = err

				return nil
			}

			slots[i].run = run

			return nil
		})
	}

	// Per-file failures are recorded in slots; only cancellation surfaces here.
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &LoadResult{
		Runs:      make([]StoredRun, 0, len(runNames)),
		Warnings:  make([]result.ParseWarning, 0),
		FilesSeen: len(runNames),
	}

	for i, name := range runNames {
		if slots[i].err != nil {
			w := result.ParseWarning{Path: name, Reason: slots[i].err.Error()}
			out.Warnings = append(out.Warnings, w)

			r.log.WithError(slots[i].err).WithField("file", name).Warn("Skipping corrupt run file")

			continue
		}

		out.Runs = append(out.Runs, StoredRun{Name: name, Run: slots[i].run})
	}

	r.log.WithFields(logrus.Fields{
		"store":   r.store.Location(),
		"files":   out.FilesSeen,
		"loaded":  len(out.Runs),
		"skipped": len(out.Warnings),
	}).Info("Loaded historical runs")

	return out, nil
}
