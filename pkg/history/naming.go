package history

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// fileLayout is the timestamp part of a run filename. It sorts
// lexicographically in chronological order.
const fileLayout = "20060102T150405Z"

// MaxSequence bounds the collision suffix.
const MaxSequence = 999

// runFileRe matches "20261018T150405Z.json" and the disambiguated
// "20261018T150405Z_001.json". The "_" suffix sorts after ".json", so
// collided files stay after the original in listing order.
var runFileRe = regexp.MustCompile(`^(\d{8}T\d{6}Z)(?:_(\d{3}))?\.json$`)

// FileName returns the run filename for ts with the given collision
// sequence (0 for the preferred name).
func FileName(ts time.Time, seq int) string {
	base := ts.UTC().Format(fileLayout)
	if seq == 0 {
		return base + ".json"
	}

	return fmt.Sprintf("%s_%03d.json", base, seq)
}

// IsRunFile reports whether name follows the run filename convention.
func IsRunFile(name string) bool {
	_, _, ok := ParseFileName(name)

	return ok
}

// ParseFileName extracts the timestamp and collision sequence from a run
// filename.
func ParseFileName(name string) (time.Time, int, bool) {
	m := runFileRe.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, 0, false
	}

	ts, err := time.ParseInLocation(fileLayout, m[1], time.UTC)
	if err != nil {
		return time.Time{}, 0, false
	}

	seq := 0
	if m[2] != "" {
		seq, err = strconv.Atoi(m[2])
		if err != nil {
			return time.Time{}, 0, false
		}
	}

	return ts, seq, true
}
