package publish

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/resultoor/pkg/config"
	"github.com/ethpandaops/resultoor/pkg/history"
	"github.com/ethpandaops/resultoor/pkg/result"
)

var syncBase = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

// newSyncPublisher returns a publisher whose remote run directory is the
// given in-memory store.
func newSyncPublisher(remote history.Store) *s3Publisher {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return &s3Publisher{
		log:  log,
		cfg:  &config.S3Config{Bucket: "results"},
		runs: remote,
	}
}

func encodeRun(t *testing.T, id string, ts time.Time) []byte {
	t.Helper()

	data, err := history.Encode(&result.Run{
		ID:        id,
		Timestamp: ts,
		Results: []result.EnvironmentResult{
			{Environment: "ubuntu", Status: result.StatusPassed},
		},
	})
	require.NoError(t, err)

	return data
}

func writeLocalRun(t *testing.T, dir, name, id string, ts time.Time) {
	t.Helper()

	require.NoError(t, os.WriteFile(filepath.Join(dir, name), encodeRun(t, id, ts), 0o600))
}

func remoteRunID(t *testing.T, store history.Store, name string) string {
	t.Helper()

	data, err := store.Get(context.Background(), name)
	require.NoError(t, err)

	run, err := history.Decode(data)
	require.NoError(t, err)

	return run.ID
}

func TestSyncRuns_RekeysWhenRemoteNameHoldsAnotherRun(t *testing.T) {
	ctx := context.Background()
	name := history.FileName(syncBase, 0)

	remote := history.NewMemoryStore()
	remote.Put(name, encodeRun(t, "cycle-a", syncBase))

	dir := t.TempDir()
	writeLocalRun(t, dir, name, "cycle-b", syncBase)

	p := newSyncPublisher(remote)
	res := &Result{}
	require.NoError(t, p.syncRuns(ctx, Request{RunsDir: dir}, res))

	rekeyed := history.FileName(syncBase, 1)

	assert.Equal(t, []string{rekeyed}, res.Uploaded)
	assert.Equal(t, []result.WriteCollision{
		{RunID: "cycle-b", Preferred: name, Actual: rekeyed},
	}, res.Collisions)
	assert.Equal(t, "cycle-a", remoteRunID(t, remote, name))
	assert.Equal(t, "cycle-b", remoteRunID(t, remote, rekeyed))

	// A second publish of the same checkout finds cycle-b already placed.
	again := &Result{}
	require.NoError(t, p.syncRuns(ctx, Request{RunsDir: dir}, again))

	assert.Empty(t, again.Uploaded)
	assert.Len(t, again.Collisions, 1)

	names, err := remote.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{name, rekeyed}, names)
}

func TestSyncRuns_SameRunIsNotUploadedAgain(t *testing.T) {
	ctx := context.Background()
	name := history.FileName(syncBase, 0)

	remote := history.NewMemoryStore()
	remote.Put(name, encodeRun(t, "cycle-a", syncBase))

	dir := t.TempDir()
	writeLocalRun(t, dir, name, "cycle-a", syncBase)

	res := &Result{}
	require.NoError(t, newSyncPublisher(remote).syncRuns(ctx, Request{RunsDir: dir}, res))

	assert.Empty(t, res.Uploaded)
	assert.Empty(t, res.Collisions)
	assert.Empty(t, res.Deleted)
}

func TestSyncRuns_CorruptRemoteIsNotOverwritten(t *testing.T) {
	ctx := context.Background()
	name := history.FileName(syncBase, 0)

	remote := history.NewMemoryStore()
	remote.Put(name, []byte("{not json"))

	dir := t.TempDir()
	writeLocalRun(t, dir, name, "cycle-b", syncBase)

	res := &Result{}
	require.NoError(t, newSyncPublisher(remote).syncRuns(ctx, Request{RunsDir: dir}, res))

	data, err := remote.Get(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data))
	assert.Equal(t, "cycle-b", remoteRunID(t, remote, history.FileName(syncBase, 1)))
	require.Len(t, res.Collisions, 1)
}

func TestSyncRuns_KeepsRemoteRunsMissingLocally(t *testing.T) {
	ctx := context.Background()

	// Written by another checkout; this one never saw it.
	other := history.FileName(syncBase.Add(-time.Hour), 0)

	remote := history.NewMemoryStore()
	remote.Put(other, encodeRun(t, "other-checkout", syncBase.Add(-time.Hour)))

	dir := t.TempDir()
	local := history.FileName(syncBase, 0)
	writeLocalRun(t, dir, local, "cycle-b", syncBase)

	res := &Result{}
	require.NoError(t, newSyncPublisher(remote).syncRuns(ctx, Request{
		RunsDir:      dir,
		ExpireBefore: syncBase.Add(-24 * time.Hour),
	}, res))

	assert.Empty(t, res.Deleted)
	assert.Equal(t, []string{local}, res.Uploaded)

	names, err := remote.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{other, local}, names)
}

func TestSyncRuns_DeletesPrunedAndExpired(t *testing.T) {
	ctx := context.Background()

	expired := history.FileName(syncBase.Add(-30*24*time.Hour), 0)
	pruned := history.FileName(syncBase.Add(-2*time.Hour), 0)
	prunedRekeyed := history.FileName(syncBase.Add(-2*time.Hour), 1)
	reused := history.FileName(syncBase.Add(-3*time.Hour), 0)

	remote := history.NewMemoryStore()
	remote.Put(expired, encodeRun(t, "ancient", syncBase.Add(-30*24*time.Hour)))
	remote.Put(pruned, encodeRun(t, "someone-else", syncBase.Add(-2*time.Hour)))
	remote.Put(prunedRekeyed, encodeRun(t, "superseded", syncBase.Add(-2*time.Hour)))
	remote.Put(reused, encodeRun(t, "kept", syncBase.Add(-3*time.Hour)))

	res := &Result{}
	require.NoError(t, newSyncPublisher(remote).syncRuns(ctx, Request{
		RunsDir: t.TempDir(),
		Pruned: map[string]string{
			pruned: "superseded",
			reused: "gone-already",
		},
		ExpireBefore: syncBase.Add(-14 * 24 * time.Hour),
	}, res))

	assert.Equal(t, []string{expired, prunedRekeyed}, res.Deleted)

	names, err := remote.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{reused, pruned}, names)
}

func TestSyncRuns_MissingRunsDir(t *testing.T) {
	remote := history.NewMemoryStore()
	remote.Put(history.FileName(syncBase, 0), encodeRun(t, "cycle-a", syncBase))

	res := &Result{}
	require.NoError(t, newSyncPublisher(remote).syncRuns(context.Background(), Request{
		RunsDir:      filepath.Join(t.TempDir(), "absent"),
		ExpireBefore: syncBase.Add(time.Hour),
	}, res))

	assert.Empty(t, res.Deleted)

	names, err := remote.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, names, 1)
}
