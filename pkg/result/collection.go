package result

import "fmt"

// Anchor addresses a run, or an environment within a run, in a rendered
// report. Indices are positional within one Collection.
type Anchor struct {
	RunIndex int
	EnvIndex int
}

// RunAnchor returns the anchor identifier of the run section.
func (a Anchor) RunAnchor() string {
	return fmt.Sprintf("run-%d", a.RunIndex)
}

// EnvAnchor returns the anchor identifier of the environment card.
func (a Anchor) EnvAnchor() string {
	return fmt.Sprintf("env-%d-%d", a.RunIndex, a.EnvIndex)
}

// EnvView is an environment result with its assigned anchor.
type EnvView struct {
	Result *EnvironmentResult
	Anchor Anchor
}

// RunView is a run positioned within a Collection.
type RunView struct {
	Run          *Run
	Index        int
	Latest       bool
	Environments []EnvView
}

// Anchor returns the anchor identifier of the run section.
func (v *RunView) Anchor() string {
	return Anchor{RunIndex: v.Index}.RunAnchor()
}

// Collection is the ordered, newest-first set of runs visible to one
// rendering pass.
type Collection struct {
	Runs []RunView
}

// Latest returns the run marked latest, or nil for an empty collection.
func (c *Collection) Latest() *RunView {
	if len(c.Runs) == 0 {
		return nil
	}

	return &c.Runs[0]
}

// EnvironmentCount returns the number of environment results across all runs.
func (c *Collection) EnvironmentCount() int {
	n := 0
	for i := range c.Runs {
		n += len(c.Runs[i].Environments)
	}

	return n
}

// StatusCounts tallies results by status across all runs.
func (c *Collection) StatusCounts() StatusCounts {
	var counts StatusCounts
	for i := range c.Runs {
		counts.Add(c.Runs[i].Run.StatusCounts())
	}

	return counts
}
