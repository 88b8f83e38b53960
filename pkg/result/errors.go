package result

import "fmt"

// LoadFailure reports that an input directory or store could not be read at
// all. It aborts the aggregation cycle.
type LoadFailure struct {
	Op   string
	Path string
	Err  error
}

func (e *LoadFailure) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LoadFailure) Unwrap() error {
	return e.Err
}

// ParseWarning records a single input that was skipped because it could not
// be parsed or lacked required fields.
type ParseWarning struct {
	Path   string
	Reason string
}

func (w ParseWarning) String() string {
	return fmt.Sprintf("%s: %s", w.Path, w.Reason)
}

// WriteCollision records that a run's preferred filename was taken and the
// run was stored under a disambiguated name instead.
type WriteCollision struct {
	RunID     string
	Preferred string
	Actual    string
}

func (c WriteCollision) String() string {
	return fmt.Sprintf("run %s: %s exists, stored as %s", c.RunID, c.Preferred, c.Actual)
}

// RenderDegradation records a field that was rendered with a placeholder.
type RenderDegradation struct {
	Anchor string
	Field  string
}
