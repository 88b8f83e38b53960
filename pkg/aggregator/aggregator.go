// Package aggregator runs one aggregation cycle: it loads the current run's
// artifacts, merges them with retained history, persists the run and renders
// the report.
package aggregator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/resultoor/pkg/artifact"
	"github.com/ethpandaops/resultoor/pkg/history"
	"github.com/ethpandaops/resultoor/pkg/merge"
	"github.com/ethpandaops/resultoor/pkg/report"
	"github.com/ethpandaops/resultoor/pkg/result"
	"github.com/ethpandaops/resultoor/pkg/retention"
)

// localRunPrefix marks run identifiers generated outside CI.
const localRunPrefix = "local-"

// Options configure one cycle.
type Options struct {
	ArtifactsDir    string
	ArtifactPattern string
	Mode            report.Mode

	// Window is the retention window. Non-positive keeps all history.
	Window time.Duration

	// Now is the reference instant. Zero means the wall clock.
	Now time.Time

	// RunID and RunNumber identify the current CI execution. An empty RunID
	// is replaced with a generated local identifier.
	RunID     string
	RunNumber int64

	// Prune deletes expired and superseded run files after the new run is
	// persisted.
	Prune bool

	ReadConcurrency int

	// Report carries the rendering options. Its Mode and RetentionWindow
	// are overwritten from this struct.
	Report report.Options
}

// Stats summarize a cycle.
type Stats struct {
	ArtifactsSeen    int
	ArtifactsLoaded  int
	ArtifactsSkipped int
	HistorySeen      int
	HistoryLoaded    int
	HistorySkipped   int
	Retained         int
	Pruned           int
	PruneFailures    int
	Collisions       int
	Degradations     int
	Runs             int
	Environments     int
	Counts           result.StatusCounts
}

// Outcome is everything a cycle produced.
type Outcome struct {
	Run        *result.Run
	RunFile    string
	Collision  *result.WriteCollision
	Warnings   []result.ParseWarning
	Pruned     []string
	PrunedRuns map[string]string
	Collection *result.Collection
	Document   *report.Document
	Markdown   string
	Stats      Stats
}

// Aggregator executes aggregation cycles against a history store.
type Aggregator struct {
	log   logrus.FieldLogger
	store history.Store
}

// New creates an Aggregator. store may be nil when only table mode is used.
func New(log logrus.FieldLogger, store history.Store) *Aggregator {
	return &Aggregator{
		log:   log.WithField("component", "aggregator"),
		store: store,
	}
}

// Run executes one cycle. Any failure to read artifacts or to read or write
// the store aborts the cycle before anything is rendered.
func (a *Aggregator) Run(ctx context.Context, opts Options) (*Outcome, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	now = now.UTC()

	loaded, err := artifact.NewLoader(a.log, opts.ArtifactPattern).Load(ctx, opts.ArtifactsDir)
	if err != nil {
		return nil, err
	}

	current := &result.Run{
		ID:        opts.RunID,
		Number:    opts.RunNumber,
		Timestamp: now.Truncate(time.Second),
		Results:   loaded.Results,
	}

	if current.ID == "" {
		current.ID = localRunPrefix + uuid.NewString()
	}

	out := &Outcome{
		Run:      current,
		Warnings: append([]result.ParseWarning(nil), loaded.Warnings...),
		Stats: Stats{
			ArtifactsSeen:    loaded.FilesSeen,
			ArtifactsLoaded:  len(loaded.Results),
			ArtifactsSkipped: len(loaded.Warnings),
		},
	}

	if len(loaded.Results) == 0 {
		a.log.WithField("dir", opts.ArtifactsDir).Warn("No results found for current run")
	}

	switch opts.Mode {
	case report.ModeTable:
		out.Collection = merge.Single(current)
	case report.ModeHistorical:
		if err := a.runHistorical(ctx, opts, now, out); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported mode %s", opts.Mode)
	}

	renderOpts := opts.Report
	renderOpts.Mode = opts.Mode
	renderOpts.RetentionWindow = opts.Window

	renderer, err := report.NewRenderer(a.log, renderOpts)
	if err != nil {
		return nil, err
	}

	out.Document, err = renderer.Render(out.Collection)
	if err != nil {
		return nil, err
	}

	out.Markdown = report.Markdown(out.Collection, renderOpts.BaseURL, opts.Window)

	out.Stats.Degradations = len(out.Document.Degradations)
	out.Stats.Runs = len(out.Collection.Runs)
	out.Stats.Environments = out.Collection.EnvironmentCount()
	out.Stats.Counts = out.Collection.StatusCounts()

	a.log.WithFields(logrus.Fields{
		"mode":         opts.Mode.String(),
		"run_id":       current.ID,
		"runs":         out.Stats.Runs,
		"environments": out.Stats.Environments,
		"skipped":      out.Stats.ArtifactsSkipped + out.Stats.HistorySkipped,
		"pruned":       out.Stats.Pruned,
		"placeholders": out.Stats.Degradations,
	}).Info("Aggregation cycle complete")

	return out, nil
}

func (a *Aggregator) runHistorical(ctx context.Context, opts Options, now time.Time, out *Outcome) error {
	if a.store == nil {
		return fmt.Errorf("historical mode requires a history store")
	}

	hist, err := history.NewReader(a.log, a.store, opts.ReadConcurrency).Load(ctx)
	if err != nil {
		return err
	}

	retained := retention.FilterStored(now, opts.Window, hist.Runs)

	out.Warnings = append(out.Warnings, hist.Warnings...)
	out.Stats.HistorySeen = hist.FilesSeen
	out.Stats.HistoryLoaded = len(hist.Runs)
	out.Stats.HistorySkipped = len(hist.Warnings)
	out.Stats.Retained = len(retained)

	historical := make([]*result.Run, 0, len(retained))
	for i := range retained {
		historical = append(historical, retained[i].Run)
	}

	out.Collection = merge.Merge(out.Run, historical)

	name, collision, err := history.NewWriter(a.log, a.store).Save(ctx, out.Run)
	if err != nil {
		return err
	}

	out.RunFile = name
	out.Collision = collision

	if collision != nil {
		out.Stats.Collisions = 1
	}

	if !opts.Prune {
		return nil
	}

	stale := PruneCandidates(now, opts.Window, hist.Runs, out.Run.ID)
	out.Pruned, out.Stats.PruneFailures = a.deleteFiles(ctx, stale)
	out.Stats.Pruned = len(out.Pruned)
	out.PrunedRuns = prunedRuns(hist.Runs, out.Pruned)

	return nil
}

// prunedRuns maps each removed file to the run ID it held, so that remote
// copies are only removed while they hold the same run.
func prunedRuns(stored []history.StoredRun, removed []string) map[string]string {
	ids := make(map[string]string, len(removed))

	for _, name := range removed {
		ids[name] = ""
	}

	for _, sr := range stored {
		if _, ok := ids[sr.Name]; ok {
			ids[sr.Name] = sr.Run.ID
		}
	}

	return ids
}

// PruneCandidates returns the stored files that fall outside the window, plus
// the files superseded by a later copy of the same run. Files of replacing
// runs are superseded in full.
func PruneCandidates(
	now time.Time,
	window time.Duration,
	stored []history.StoredRun,
	replacing ...string,
) []string {
	set := make(map[string]struct{}, len(stored))

	for _, name := range retention.Expired(now, window, stored) {
		set[name] = struct{}{}
	}

	for _, name := range retention.Superseded(stored, replacing...) {
		set[name] = struct{}{}
	}

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// deleteFiles removes names from the store. Individual failures are logged
// and counted; they do not fail the cycle because the run is already
// persisted.
func (a *Aggregator) deleteFiles(ctx context.Context, names []string) ([]string, int) {
	deleted := make([]string, 0, len(names))
	failures := 0

	for _, name := range names {
		if err := a.store.Delete(ctx, name); err != nil {
			a.log.WithError(err).WithField("file", name).Warn("Failed to remove run file")

			failures++

			continue
		}

		a.log.WithField("file", name).Info("Removed run file")

		deleted = append(deleted, name)
	}

	return deleted, failures
}
