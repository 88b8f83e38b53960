package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"
	"github.com/ethpandaops/resultoor/pkg/result"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	// DefaultPattern matches candidate artifact files by basename.
	DefaultPattern = "*.json"

	fieldEnvironment = "environment"
	fieldStatus      = "status"
)

// LoadResult is the outcome of scanning an artifacts directory.
type LoadResult struct {
	Results   []result.EnvironmentResult
	Warnings  []result.ParseWarning
	FilesSeen int
}

// Loader reads per-environment result artifacts from a local directory.
type Loader struct {
	log     logrus.FieldLogger
	pattern string
}

// NewLoader creates a Loader matching files against pattern. An empty
// pattern falls back to DefaultPattern.
func NewLoader(log logrus.FieldLogger, pattern string) *Loader {
	if pattern == "" {
		pattern = DefaultPattern
	}

	return &Loader{
		log:     log.WithField("component", "artifact-loader"),
		pattern: pattern,
	}
}

// Load walks dir in lexical order and parses every matching file into an
// environment result. Malformed files are skipped and reported as warnings.
// A missing or unreadable dir is a *result.LoadFailure.
func (l *Loader) Load(ctx context.Context, dir string) (*LoadResult, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &result.LoadFailure{Op: "reading artifacts directory", Path: dir, Err: err}
	}

	if !info.IsDir() {
		return nil, &result.LoadFailure{
			Op: "reading artifacts directory", Path: dir, Err: fmt.Errorf("not a directory"),
		}
	}

	if _, err := os.ReadDir(dir); err != nil {
		return nil, &result.LoadFailure{Op: "reading artifacts directory", Path: dir, Err: err}
	}

	out := &LoadResult{
		Results:  make([]result.EnvironmentResult, 0, 8),
		Warnings: make([]result.ParseWarning, 0),
	}

	seen := make(map[string]string, 8)

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = path
		}

		if walkErr != nil {
			if path == dir {
				return walkErr
			}

			l.warn(out, rel, fmt.Sprintf("unreadable: %v", walkErr))

			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if d.IsDir() {
			return nil
		}

		if ok, _ := filepath.Match(l.pattern, d.Name()); !ok {
			return nil
		}

		out.FilesSeen++

		res, err := l.parseFile(path, rel)
		if err != nil {
			l.warn(out, rel, err.Error())

			return nil
		}

		if prev, dup := seen[res.Environment]; dup {
			l.warn(out, rel, fmt.Sprintf("duplicate environment %q (already loaded from %s)",
				res.Environment, prev))

			return nil
		}

		seen[res.Environment] = rel
		out.Results = append(out.Results, *res)

		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, &result.LoadFailure{Op: "walking artifacts directory", Path: dir, Err: err}
	}

	l.log.WithFields(logrus.Fields{
		"dir":     dir,
		"files":   out.FilesSeen,
		"loaded":  len(out.Results),
		"skipped": len(out.Warnings),
	}).Info("Loaded result artifacts")

	return out, nil
}

func (l *Loader) warn(out *LoadResult, path, reason string) {
	out.Warnings = append(out.Warnings, result.ParseWarning{Path: path, Reason: reason})

	l.log.WithFields(logrus.Fields{
		"file":   path,
		"reason": reason,
	}).Warn("Skipping result artifact")
}

// parseFile decodes a single artifact file.
func (l *Loader) parseFile(path, rel string) (*result.EnvironmentResult, error) {
	data, err := os.ReadFile(path) //nolint:gosec // walked from the configured directory
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	l.log.WithFields(logrus.Fields{
		"file": rel,
		"size": units.HumanSize(float64(len(data))),
	}).Debug("Parsing result artifact")

	res, err := Parse(data)
	if err != nil {
		return nil, err
	}

	res.Source = rel

	return res, nil
}

// Parse decodes one artifact document. The environment and status fields
// are required; every other top-level field becomes a detail entry in
// document order.
func Parse(data []byte) (*result.EnvironmentResult, error) {
	trimmed := strings.TrimSpace(string(data))
	if !strings.HasPrefix(trimmed, "{") {
		return nil, fmt.Errorf("parsing artifact: expected a JSON object")
	}

	if !json.Valid([]byte(trimmed)) {
		return nil, fmt.Errorf("parsing artifact: invalid JSON")
	}

	fields := orderedmap.New[string, any]()
	if err := fields.UnmarshalJSON([]byte(trimmed)); err != nil {
		return nil, fmt.Errorf("parsing artifact: %w", err)
	}

	rawEnv, ok := fields.Get(fieldEnvironment)
	if !ok {
		return nil, fmt.Errorf("missing required field %q", fieldEnvironment)
	}

	env, ok := rawEnv.(string)
	if !ok || strings.TrimSpace(env) == "" {
		return nil, fmt.Errorf("field %q must be a non-empty string", fieldEnvironment)
	}

	rawStatus, ok := fields.Get(fieldStatus)
	if !ok || rawStatus == nil {
		return nil, fmt.Errorf("missing required field %q", fieldStatus)
	}

	if s, isString := rawStatus.(string); isString && strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("missing required field %q", fieldStatus)
	}

	fields.Delete(fieldEnvironment)
	fields.Delete(fieldStatus)

	return &result.EnvironmentResult{
		Environment: strings.TrimSpace(env),
		Status:      result.StatusFromValue(rawStatus),
		Details:     fields,
	}, nil
}
