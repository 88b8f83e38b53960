package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/resultoor/pkg/config"
	"github.com/ethpandaops/resultoor/pkg/result"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func sampleRun(id string, number int64, ts time.Time) *result.Run {
	details := result.NewDetails()
	details.Set("platform", "Linux")
	details.Set("duration", 1.5)

	return &result.Run{
		ID:        id,
		Number:    number,
		Timestamp: ts,
		Results: []result.EnvironmentResult{
			{Environment: "ubuntu-3.12", Status: result.StatusPassed, Details: details},
			{Environment: "macos-3.11", Status: result.StatusFailed},
		},
	}
}

// storeFactories returns every backend that can run without external
// services.
func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()

	return map[string]func(t *testing.T) Store{
		"local": func(t *testing.T) Store {
			return NewLocalStore(filepath.Join(t.TempDir(), "runs"), nil)
		},
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"sqlite": func(t *testing.T) Store {
			s := NewSQLStore(testLogger(), &config.DatabaseConfig{
				Driver: "sqlite",
				SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
			})
			require.NoError(t, s.Start(context.Background()))
			t.Cleanup(func() { _ = s.Stop() })

			return s
		},
	}
}

func TestFileName(t *testing.T) {
	ts := time.Date(2026, 10, 18, 15, 4, 5, 999_000_000, time.FixedZone("CEST", 2*3600))

	assert.Equal(t, "20261018T130405Z.json", FileName(ts, 0))
	assert.Equal(t, "20261018T130405Z_001.json", FileName(ts, 1))
	assert.Equal(t, "20261018T130405Z_042.json", FileName(ts, 42))

	// Collided names sort after the original.
	assert.Less(t, FileName(ts, 0), FileName(ts, 1))
	assert.Less(t, FileName(ts, 1), FileName(ts.Add(time.Second), 0))
}

func TestParseFileName(t *testing.T) {
	tests := []struct {
		name    string
		wantOK  bool
		wantSeq int
	}{
		{name: "20261018T130405Z.json", wantOK: true},
		{name: "20261018T130405Z_003.json", wantOK: true, wantSeq: 3},
		{name: "20261018T130405Z_3.json"},
		{name: "2026-10-18T13:04:05Z.json"},
		{name: "notes.txt"},
		{name: "20261018T130405Z.json.bak"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, seq, ok := ParseFileName(tt.name)
			assert.Equal(t, tt.wantOK, ok)

			if !tt.wantOK {
				return
			}

			assert.Equal(t, time.Date(2026, 10, 18, 13, 4, 5, 0, time.UTC), ts)
			assert.Equal(t, tt.wantSeq, seq)
			assert.True(t, IsRunFile(tt.name))
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2026, 10, 18, 13, 4, 5, 0, time.UTC)

	tests := []struct {
		input string
		want  time.Time
	}{
		{input: "2026-10-18T13:04:05Z", want: want},
		{input: "2026-10-18T15:04:05+02:00", want: want},
		{input: "2026-10-18T13:04:05", want: want},
		{input: "2026-10-18 13:04:05", want: want},
		{input: "2026-10-18T13:04:05.250", want: want.Add(250 * time.Millisecond)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got))
			assert.Equal(t, time.UTC, got.Location())
		})
	}

	_, err := ParseTimestamp("yesterday")
	require.Error(t, err)
}

func TestDecode(t *testing.T) {
	t.Run("string run number", func(t *testing.T) {
		run, err := Decode([]byte(`{"run_id":"123","run_number":"7","timestamp":"2026-10-18T13:04:05","results":[]}`))
		require.NoError(t, err)
		assert.Equal(t, int64(7), run.Number)
		assert.Equal(t, time.UTC, run.Timestamp.Location())
	})

	t.Run("unknown status normalized", func(t *testing.T) {
		run, err := Decode([]byte(`{"run_id":"1","timestamp":"2026-10-18T13:04:05Z",` +
			`"results":[{"environment":"a","status":"weird"}]}`))
		require.NoError(t, err)
		require.Len(t, run.Results, 1)
		assert.Equal(t, result.StatusErrored, run.Results[0].Status)
	})

	t.Run("missing status is errored", func(t *testing.T) {
		run, err := Decode([]byte(`{"run_id":"old","timestamp":"2026-10-18T13:04:05Z",` +
			`"results":[{"environment":"y"},{"environment":"z","status":null}]}`))
		require.NoError(t, err)
		require.Len(t, run.Results, 2)
		assert.Equal(t, result.StatusErrored, run.Results[0].Status)
		assert.Equal(t, result.StatusErrored, run.Results[1].Status)
		assert.Equal(t, result.StatusCounts{Errored: 2}, run.StatusCounts())
	})

	errCases := map[string]string{
		"not json":            `{{`,
		"missing run_id":      `{"timestamp":"2026-10-18T13:04:05Z"}`,
		"missing timestamp":   `{"run_id":"1"}`,
		"bad timestamp":       `{"run_id":"1","timestamp":"soon"}`,
		"bad run number":      `{"run_id":"1","run_number":"seven","timestamp":"2026-10-18T13:04:05Z"}`,
		"missing environment": `{"run_id":"1","timestamp":"2026-10-18T13:04:05Z","results":[{"status":"passed"}]}`,
	}

	for name, input := range errCases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(input))
			require.Error(t, err)
		})
	}
}

func TestStores_CreateNeverOverwrites(t *testing.T) {
	ctx := context.Background()

	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)

			names, err := store.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, names)

			require.NoError(t, store.Create(ctx, "b.json", []byte("first")))
			require.NoError(t, store.Create(ctx, "a.json", []byte("other")))

			err = store.Create(ctx, "b.json", []byte("second"))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrExists))

			data, err := store.Get(ctx, "b.json")
			require.NoError(t, err)
			assert.Equal(t, "first", string(data))

			names, err = store.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"a.json", "b.json"}, names)

			require.NoError(t, store.Delete(ctx, "a.json"))
			require.NoError(t, store.Delete(ctx, "a.json"))

			names, err = store.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"b.json"}, names)
		})
	}
}

func TestLocalStore_RejectsPaths(t *testing.T) {
	store := NewLocalStore(t.TempDir(), nil)

	for _, name := range []string{"", "..", "../escape.json", "sub/file.json"} {
		require.Error(t, store.Create(context.Background(), name, []byte("x")), name)
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2026, 10, 18, 13, 4, 5, 123_000_000, time.UTC)

	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			run := sampleRun("run-1", 42, ts)

			file, collision, err := NewWriter(testLogger(), store).Save(ctx, run)
			require.NoError(t, err)
			assert.Nil(t, collision)
			assert.Equal(t, "20261018T130405Z.json", file)

			loaded, err := NewReader(testLogger(), store, 2).Load(ctx)
			require.NoError(t, err)
			require.Len(t, loaded.Runs, 1)
			assert.Empty(t, loaded.Warnings)

			got := loaded.Runs[0].Run
			assert.Equal(t, run.ID, got.ID)
			assert.Equal(t, run.Number, got.Number)
			assert.True(t, ts.Truncate(time.Second).Equal(got.Timestamp))
			require.Len(t, got.Results, 2)

			for i := range run.Results {
				assert.Equal(t, run.Results[i].Environment, got.Results[i].Environment)
				assert.Equal(t, run.Results[i].Status, got.Results[i].Status)
			}

			v, ok := got.Results[0].Detail("platform")
			require.True(t, ok)
			assert.Equal(t, "Linux", v)
			assert.Nil(t, got.Results[1].Details)
		})
	}
}

func TestWriter_CollisionSameSecond(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir(), nil)
	writer := NewWriter(testLogger(), store)

	ts := time.Date(2026, 10, 18, 13, 4, 5, 0, time.UTC)

	first, collision, err := writer.Save(ctx, sampleRun("run-a", 1, ts))
	require.NoError(t, err)
	assert.Nil(t, collision)

	second, collision, err := writer.Save(ctx, sampleRun("run-b", 2, ts.Add(400*time.Millisecond)))
	require.NoError(t, err)
	require.NotNil(t, collision)

	assert.Equal(t, "20261018T130405Z.json", first)
	assert.Equal(t, "20261018T130405Z_001.json", second)
	assert.Equal(t, result.WriteCollision{
		RunID:     "run-b",
		Preferred: "20261018T130405Z.json",
		Actual:    "20261018T130405Z_001.json",
	}, *collision)

	loaded, err := NewReader(testLogger(), store, 0).Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Runs, 2)
	assert.Equal(t, "run-a", loaded.Runs[0].Run.ID)
	assert.Equal(t, "run-b", loaded.Runs[1].Run.ID)
}

func TestReader_SkipsCorruptAndForeignFiles(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	data, err := Encode(sampleRun("good", 3, time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	store.Put("20261017T000000Z.json", data)
	store.Put("20261016T000000Z.json", []byte("{not json"))
	store.Put("20261015T000000Z.json", []byte(`{"run_id":"x"}`))
	store.Put("README.md", []byte("# runs"))

	loaded, err := NewReader(testLogger(), store, 1).Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, loaded.FilesSeen)
	require.Len(t, loaded.Runs, 1)
	assert.Equal(t, "good", loaded.Runs[0].Run.ID)
	assert.Equal(t, "20261017T000000Z.json", loaded.Runs[0].Name)
	require.Len(t, loaded.Warnings, 2)
	assert.Equal(t, "20261015T000000Z.json", loaded.Warnings[0].Path)
	assert.Equal(t, "20261016T000000Z.json", loaded.Warnings[1].Path)
	assert.Len(t, loaded.RunsOnly(), 1)
}

func TestReader_DoesNotMutate(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewLocalStore(dir, nil)

	_, _, err := NewWriter(testLogger(), store).Save(ctx, sampleRun("r", 1, time.Now()))
	require.NoError(t, err)

	before, err := os.ReadDir(dir)
	require.NoError(t, err)

	_, err = NewReader(testLogger(), store, 0).Load(ctx)
	require.NoError(t, err)

	after, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))
}

type failingStore struct{ *MemoryStore }

func (failingStore) List(context.Context) ([]string, error) {
	return nil, errors.New("permission denied")
}

func TestReader_ListFailureIsLoadFailure(t *testing.T) {
	_, err := NewReader(testLogger(), failingStore{NewMemoryStore()}, 0).Load(context.Background())
	require.Error(t, err)

	var lf *result.LoadFailure
	require.True(t, errors.As(err, &lf))
	assert.Equal(t, "memory", lf.Path)
}
