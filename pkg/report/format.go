package report

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/docker/go-units"

	"github.com/ethpandaops/resultoor/pkg/result"
)

const (
	// Placeholder is rendered in place of a missing or empty detail value.
	Placeholder = "N/A"

	// maxDerivedColumns caps the detail columns picked automatically.
	maxDerivedColumns = 6

	timeLayout = "2006-01-02 15:04:05 UTC"
)

// formatTime renders a run timestamp.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return Placeholder
	}

	return t.UTC().Format(timeLayout)
}

// formatWindow describes a retention window for humans.
func formatWindow(window time.Duration) string {
	if window < 0 {
		return "all time"
	}

	if window == 0 {
		return "0 days"
	}

	return "the last " + strings.ToLower(units.HumanDuration(window))
}

// formatValue renders a detail value as text. The second return is false
// when the value is missing and the placeholder was used.
func formatValue(v any, ok bool) (string, bool) {
	if !ok || v == nil {
		return Placeholder, false
	}

	switch val := v.(type) {
	case string:
		if strings.TrimSpace(val) == "" {
			return Placeholder, false
		}

		return val, true
	case bool:
		return strconv.FormatBool(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case json.Number:
		return val.String(), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	default:
		// Nested objects and arrays are shown as compact JSON.
		data, err := json.Marshal(val)
		if err != nil {
			return Placeholder, false
		}

		return string(data), true
	}
}

// isScalar reports whether a detail value fits in a table cell.
func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, float64, json.Number, int, int64:
		return true
	default:
		return false
	}
}

// humanizeKey turns "python_version" into "Python Version".
func humanizeKey(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	})

	for i, p := range parts {
		r := []rune(p)
		r[0] = unicode.ToUpper(r[0])
		parts[i] = string(r)
	}

	if len(parts) == 0 {
		return key
	}

	return strings.Join(parts, " ")
}

// deriveColumns picks the first scalar detail keys of the latest run, in
// discovery order.
func deriveColumns(c *result.Collection) []string {
	latest := c.Latest()
	if latest == nil {
		return nil
	}

	seen := make(map[string]struct{}, maxDerivedColumns)
	cols := make([]string, 0, maxDerivedColumns)

	for _, env := range latest.Environments {
		if env.Result.Details == nil {
			continue
		}

		for pair := env.Result.Details.Oldest(); pair != nil; pair = pair.Next() {
			if _, dup := seen[pair.Key]; dup || !isScalar(pair.Value) {
				continue
			}

			seen[pair.Key] = struct{}{}
			cols = append(cols, pair.Key)

			if len(cols) == maxDerivedColumns {
				return cols
			}
		}
	}

	return cols
}
