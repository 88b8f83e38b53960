package result

import (
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Details holds the open-ended part of an environment result. Keys keep the
// order in which they appeared in the source artifact.
type Details = orderedmap.OrderedMap[string, any]

// NewDetails returns an empty Details map.
func NewDetails() *Details {
	return orderedmap.New[string, any]()
}

// EnvironmentResult is the outcome of testing one environment within a run.
type EnvironmentResult struct {
	Environment string   `json:"environment"`
	Status      Status   `json:"status"`
	Source      string   `json:"source,omitempty"`
	Details     *Details `json:"details,omitempty"`
}

// Detail returns the detail value stored under key.
func (r *EnvironmentResult) Detail(key string) (any, bool) {
	if r.Details == nil {
		return nil, false
	}

	return r.Details.Get(key)
}

// Run is one aggregation cycle's collection of environment results.
type Run struct {
	ID        string              `json:"run_id"`
	Number    int64               `json:"run_number"`
	Timestamp time.Time           `json:"timestamp"`
	Results   []EnvironmentResult `json:"results"`
}

// StatusCounts is a per-status tally of a run's results.
type StatusCounts struct {
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
}

// Total returns the number of results counted.
func (c StatusCounts) Total() int {
	return c.Passed + c.Failed + c.Errored
}

// Add merges other into c.
func (c *StatusCounts) Add(other StatusCounts) {
	c.Passed += other.Passed
	c.Failed += other.Failed
	c.Errored += other.Errored
}

// StatusCounts tallies the results of the run by status.
func (r *Run) StatusCounts() StatusCounts {
	var counts StatusCounts

	for i := range r.Results {
		switch r.Results[i].Status {
		case StatusPassed:
			counts.Passed++
		case StatusFailed:
			counts.Failed++
		default:
			counts.Errored++
		}
	}

	return counts
}
