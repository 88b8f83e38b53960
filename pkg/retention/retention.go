// Package retention decides which historical runs stay visible and which
// stored run files may be cleaned up.
package retention

import (
	"sort"
	"time"

	"github.com/ethpandaops/resultoor/pkg/history"
	"github.com/ethpandaops/resultoor/pkg/result"
)

// DefaultWindow is the retention window used when none is configured.
const DefaultWindow = 14 * 24 * time.Hour

// Unlimited is the window that keeps every run. Any negative window behaves
// the same.
const Unlimited time.Duration = -1

// Days converts a retention period in days into a window. A negative count
// means Unlimited.
func Days(days int) time.Duration {
	if days < 0 {
		return Unlimited
	}

	return time.Duration(days) * 24 * time.Hour
}

// Cutoff returns the oldest timestamp still retained. It is inclusive.
func Cutoff(now time.Time, window time.Duration) time.Time {
	return now.UTC().Add(-window)
}

// Keep reports whether a run taken at ts survives the window, that is
// ts >= now - window. A zero window keeps only runs at or after now; a
// negative one keeps everything.
func Keep(now time.Time, window time.Duration, ts time.Time) bool {
	if window < 0 {
		return true
	}

	return !ts.UTC().Before(Cutoff(now, window))
}

// Filter returns the runs whose timestamp is at or after now - window, in
// their original order. It does not modify its input.
func Filter(now time.Time, window time.Duration, runs []*result.Run) []*result.Run {
	kept := make([]*result.Run, 0, len(runs))

	for _, run := range runs {
		if Keep(now, window, run.Timestamp) {
			kept = append(kept, run)
		}
	}

	return kept
}

// FilterStored is Filter for runs read from a store, keeping file names
// attached.
func FilterStored(now time.Time, window time.Duration, runs []history.StoredRun) []history.StoredRun {
	kept := make([]history.StoredRun, 0, len(runs))

	for _, sr := range runs {
		if Keep(now, window, sr.Run.Timestamp) {
			kept = append(kept, sr)
		}
	}

	return kept
}

// Expired returns the names of stored runs that fall outside the window.
func Expired(now time.Time, window time.Duration, runs []history.StoredRun) []string {
	var names []string

	for _, sr := range runs {
		if !Keep(now, window, sr.Run.Timestamp) {
			names = append(names, sr.Name)
		}
	}

	return names
}

// Superseded returns the names of stored runs whose identifier was persisted
// again later. For each identifier only the newest file (by timestamp, then
// name) is kept. Identifiers listed in also are treated as superseded in
// full, which is how a re-run of the current CI execution replaces its
// earlier files.
func Superseded(runs []history.StoredRun, also ...string) []string {
	replaced := make(map[string]struct{}, len(also))
	for _, id := range also {
		replaced[id] = struct{}{}
	}

	newest := make(map[string]int, len(runs))

	for i, sr := range runs {
		if _, ok := replaced[sr.Run.ID]; ok {
			continue
		}

		j, ok := newest[sr.Run.ID]
		if !ok || newer(sr, runs[j]) {
			newest[sr.Run.ID] = i
		}
	}

	var names []string

	for i, sr := range runs {
		if j, ok := newest[sr.Run.ID]; ok && j == i {
			continue
		}

		names = append(names, sr.Name)
	}

	sort.Strings(names)

	return names
}

func newer(a, b history.StoredRun) bool {
	if !a.Run.Timestamp.Equal(b.Run.Timestamp) {
		return a.Run.Timestamp.After(b.Run.Timestamp)
	}

	return a.Name > b.Name
}
