// Package merge combines the current run with retained history into the
// ordered Collection that reports are rendered from.
package merge

import (
	"sort"

	"github.com/ethpandaops/resultoor/pkg/result"
)

// Merge deduplicates runs by identifier and orders them newest first.
//
// The current run always replaces any historical run with the same
// identifier. Among historical duplicates the newest wins. Runs are ordered by
// timestamp descending, then run number descending, then identifier, so the
// result does not depend on input order. Index 0 is marked latest and
// anchors are assigned positionally.
//
// current may be nil, in which case only history is merged.
func Merge(current *result.Run, historical []*result.Run) *result.Collection {
	byID := make(map[string]*result.Run, len(historical)+1)

	for _, run := range historical {
		if run == nil {
			continue
		}

		if prev, ok := byID[run.ID]; ok && !after(run, prev) {
			continue
		}

		byID[run.ID] = run
	}

	if current != nil {
		byID[current.ID] = current
	}

	runs := make([]*result.Run, 0, len(byID))
	for _, run := range byID {
		runs = append(runs, run)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return after(runs[i], runs[j])
	})

	return assign(runs)
}

// Single builds the collection for table mode: the current run alone, with
// no history merged in.
func Single(current *result.Run) *result.Collection {
	if current == nil {
		return &result.Collection{}
	}

	return assign([]*result.Run{current})
}

// after reports whether a orders before b in a newest-first collection.
func after(a, b *result.Run) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}

	if a.Number != b.Number {
		return a.Number > b.Number
	}

	return a.ID < b.ID
}

func assign(runs []*result.Run) *result.Collection {
	c := &result.Collection{Runs: make([]result.RunView, 0, len(runs))}

	for i, run := range runs {
		view := result.RunView{
			Run:          run,
			Index:        i,
			Latest:       i == 0,
			Environments: make([]result.EnvView, 0, len(run.Results)),
		}

		for j := range run.Results {
			view.Environments = append(view.Environments, result.EnvView{
				Result: &run.Results[j],
				Anchor: result.Anchor{RunIndex: i, EnvIndex: j},
			})
		}

		c.Runs = append(c.Runs, view)
	}

	return c
}
