package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethpandaops/resultoor/pkg/result"
)

// runFile is the on-disk layout of a persisted run.
type runFile struct {
	RunID     string                     `json:"run_id"`
	RunNumber runNumber                  `json:"run_number"`
	Timestamp string                     `json:"timestamp"`
	Results   []result.EnvironmentResult `json:"results"`
}

// runNumber accepts both JSON numbers and numeric strings, since CI
// systems export run numbers as environment strings.
type runNumber int64

func (n *runNumber) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if raw == "" || raw == "null" {
		*n = 0

		return nil
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid run_number %q", raw)
	}

	*n = runNumber(v)

	return nil
}

// naiveLayouts are accepted for timestamps without a zone, read as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses an RFC 3339 timestamp, or a zone-less one which is
// interpreted as UTC. The result is always in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}

	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Encode serializes a run into the run-file format. Timestamps are written
// in UTC at second precision.
func Encode(run *result.Run) ([]byte, error) {
	results := run.Results
	if results == nil {
		results = []result.EnvironmentResult{}
	}

	data, err := json.MarshalIndent(&runFile{
		RunID:     run.ID,
		RunNumber: runNumber(run.Number),
		Timestamp: run.Timestamp.UTC().Format(time.RFC3339),
		Results:   results,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling run: %w", err)
	}

	return data, nil
}

// Decode parses a run file.
func Decode(data []byte) (*result.Run, error) {
	var f runFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing run file: %w", err)
	}

	if strings.TrimSpace(f.RunID) == "" {
		return nil, fmt.Errorf("missing run_id")
	}

	if f.Timestamp == "" {
		return nil, fmt.Errorf("missing timestamp")
	}

	ts, err := ParseTimestamp(f.Timestamp)
	if err != nil {
		return nil, err
	}

	for i := range f.Results {
		if strings.TrimSpace(f.Results[i].Environment) == "" {
			return nil, fmt.Errorf("result %d: missing environment", i)
		}

		// An absent status key never reaches Status.UnmarshalJSON.
		f.Results[i].Status = result.ParseStatus(string(f.Results[i].Status))
	}

	return &result.Run{
		ID:        f.RunID,
		Number:    int64(f.RunNumber),
		Timestamp: ts,
		Results:   f.Results,
	}, nil
}
