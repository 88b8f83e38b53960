package artifact_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/resultoor/pkg/artifact"
	"github.com/ethpandaops/resultoor/pkg/result"
)

func newTestLoader(pattern string) *artifact.Loader {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return artifact.NewLoader(log, pattern)
}

func writeArtifact(t *testing.T, dir, rel, content string) {
	t.Helper()

	p := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestLoader_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("loads well-formed files in listing order", func(t *testing.T) {
		dir := t.TempDir()
		writeArtifact(t, dir, "result-ubuntu-3.12/result.json",
			`{"environment":"ubuntu-3.12","status":"passed","platform":"Linux","duration":1.5}`)
		writeArtifact(t, dir, "result-macos-3.11/result.json",
			`{"environment":"macos-3.11","status":"FAIL","platform":"Darwin"}`)

		res, err := newTestLoader("").Load(ctx, dir)
		require.NoError(t, err)

		require.Len(t, res.Results, 2)
		assert.Equal(t, 2, res.FilesSeen)
		assert.Empty(t, res.Warnings)

		// "result-macos" sorts before "result-ubuntu".
		assert.Equal(t, "macos-3.11", res.Results[0].Environment)
		assert.Equal(t, result.StatusFailed, res.Results[0].Status)
		assert.Equal(t, filepath.Join("result-macos-3.11", "result.json"), res.Results[0].Source)

		assert.Equal(t, "ubuntu-3.12", res.Results[1].Environment)
		assert.Equal(t, result.StatusPassed, res.Results[1].Status)

		platform, ok := res.Results[1].Detail("platform")
		require.True(t, ok)
		assert.Equal(t, "Linux", platform)

		_, ok = res.Results[1].Detail("environment")
		assert.False(t, ok, "required fields are not duplicated into details")
	})

	t.Run("skips malformed files with warnings", func(t *testing.T) {
		dir := t.TempDir()
		writeArtifact(t, dir, "a.json", `{"environment":"ok","status":"passed"}`)
		writeArtifact(t, dir, "b.json", `{not json`)
		writeArtifact(t, dir, "c.json", `{"status":"passed"}`)
		writeArtifact(t, dir, "d.json", `{"environment":"no-status"}`)
		writeArtifact(t, dir, "e.json", `["environment","status"]`)
		writeArtifact(t, dir, "f.json", `{"environment":"","status":"passed"}`)
		writeArtifact(t, dir, "notes.txt", `ignored`)

		res, err := newTestLoader("").Load(ctx, dir)
		require.NoError(t, err)

		require.Len(t, res.Results, 1)
		assert.Equal(t, "ok", res.Results[0].Environment)
		assert.Equal(t, 6, res.FilesSeen)
		assert.Len(t, res.Warnings, 5)
	})

	t.Run("unrecognized status is normalized to errored", func(t *testing.T) {
		dir := t.TempDir()
		writeArtifact(t, dir, "a.json", `{"environment":"x","status":"skipped"}`)
		writeArtifact(t, dir, "b.json", `{"environment":"y","status":7}`)

		res, err := newTestLoader("").Load(ctx, dir)
		require.NoError(t, err)
		require.Len(t, res.Results, 2)

		for _, r := range res.Results {
			assert.Equal(t, result.StatusErrored, r.Status)
		}
	})

	t.Run("duplicate environment labels keep the first", func(t *testing.T) {
		dir := t.TempDir()
		writeArtifact(t, dir, "1/result.json", `{"environment":"linux","status":"passed"}`)
		writeArtifact(t, dir, "2/result.json", `{"environment":"linux","status":"failed"}`)

		res, err := newTestLoader("").Load(ctx, dir)
		require.NoError(t, err)
		require.Len(t, res.Results, 1)
		assert.Equal(t, result.StatusPassed, res.Results[0].Status)
		assert.Len(t, res.Warnings, 1)
	})

	t.Run("pattern restricts candidate files", func(t *testing.T) {
		dir := t.TempDir()
		writeArtifact(t, dir, "x/result.json", `{"environment":"a","status":"passed"}`)
		writeArtifact(t, dir, "x/other.json", `{"environment":"b","status":"passed"}`)

		res, err := newTestLoader("result.json").Load(ctx, dir)
		require.NoError(t, err)
		require.Len(t, res.Results, 1)
		assert.Equal(t, "a", res.Results[0].Environment)
	})

	t.Run("empty directory yields empty run", func(t *testing.T) {
		res, err := newTestLoader("").Load(ctx, t.TempDir())
		require.NoError(t, err)
		assert.Empty(t, res.Results)
		assert.Zero(t, res.FilesSeen)
	})

	t.Run("missing directory is a load failure", func(t *testing.T) {
		_, err := newTestLoader("").Load(ctx, filepath.Join(t.TempDir(), "missing"))
		require.Error(t, err)

		var lf *result.LoadFailure
		assert.True(t, errors.As(err, &lf))
	})
}

func TestParse(t *testing.T) {
	res, err := artifact.Parse([]byte(`{"environment":" win-3.9 ","machine":"AMD64","status":"ok","arch":"64bit"}`))
	require.NoError(t, err)

	assert.Equal(t, "win-3.9", res.Environment)
	assert.Equal(t, result.StatusPassed, res.Status)

	keys := make([]string, 0, res.Details.Len())
	for pair := res.Details.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}

	assert.Equal(t, []string{"machine", "arch"}, keys)
}
