package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/resultoor/pkg/aggregator"
	"github.com/ethpandaops/resultoor/pkg/result"
)

func TestWriteTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resultoor.prom")

	stats := aggregator.Stats{
		ArtifactsSeen:    3,
		ArtifactsLoaded:  2,
		ArtifactsSkipped: 1,
		HistoryLoaded:    4,
		Retained:         3,
		Pruned:           1,
		Runs:             4,
		Environments:     9,
		Degradations:     2,
		Counts:           result.StatusCounts{Passed: 7, Failed: 1, Errored: 1},
	}

	finished := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	require.NoError(t, WriteTextfile(path, "historical", "5001", stats, finished))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	out := string(data)

	for _, line := range []string{
		`resultoor_cycle_artifact_files{outcome="loaded"} 2`,
		`resultoor_cycle_artifact_files{outcome="skipped"} 1`,
		`resultoor_cycle_history_files{outcome="loaded"} 4`,
		`resultoor_report_environment_results{status="passed"} 7`,
		`resultoor_report_runs 4`,
		`resultoor_cycle_retained_runs 3`,
		`resultoor_cycle_pruned_files 1`,
		`resultoor_report_degradations 2`,
		`resultoor_cycle_last_success_timestamp_seconds 1.7923248e+09`,
		`resultoor_cycle_info{mode="historical",run_id="5001"} 1`,
		`# TYPE resultoor_report_environments gauge`,
	} {
		assert.Contains(t, out, line)
	}
}

func TestObserveReplacesInfo(t *testing.T) {
	c := NewCollector()
	c.Observe("historical", "1", aggregator.Stats{}, time.Unix(0, 0))
	c.Observe("table", "2", aggregator.Stats{}, time.Unix(0, 0))

	path := filepath.Join(t.TempDir(), "m.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.NotContains(t, string(data), `run_id="1"`)
	assert.Contains(t, string(data), `resultoor_cycle_info{mode="table",run_id="2"} 1`)
}

func TestWriteTextfile_BadPath(t *testing.T) {
	err := WriteTextfile(filepath.Join(t.TempDir(), "missing", "m.prom"), "table", "", aggregator.Stats{}, time.Now())
	require.Error(t, err)
}
