package result

import (
	"encoding/json"
	"strings"
)

// Status is the outcome of a single environment result.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusErrored Status = "errored"
)

var statusAliases = map[string]Status{
	"passed":  StatusPassed,
	"pass":    StatusPassed,
	"success": StatusPassed,
	"ok":      StatusPassed,
	"failed":  StatusFailed,
	"fail":    StatusFailed,
	"failure": StatusFailed,
	"errored": StatusErrored,
	"error":   StatusErrored,
}

// ParseStatus normalizes a raw status string. Unrecognized values map to
// StatusErrored.
func ParseStatus(raw string) Status {
	if s, ok := statusAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}

	return StatusErrored
}

// StatusFromValue normalizes a decoded JSON value. Anything that is not a
// string is treated as unrecognized.
func StatusFromValue(v any) Status {
	s, ok := v.(string)
	if !ok {
		return StatusErrored
	}

	return ParseStatus(s)
}

// UnmarshalJSON accepts any JSON value and normalizes it.
func (s *Status) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	*s = StatusFromValue(v)

	return nil
}

// String returns the status as a string.
func (s Status) String() string {
	return string(s)
}
