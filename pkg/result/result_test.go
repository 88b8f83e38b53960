package result

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{raw: "passed", want: StatusPassed},
		{raw: "PASS", want: StatusPassed},
		{raw: " success ", want: StatusPassed},
		{raw: "failed", want: StatusFailed},
		{raw: "Failure", want: StatusFailed},
		{raw: "errored", want: StatusErrored},
		{raw: "skipped", want: StatusErrored},
		{raw: "", want: StatusErrored},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStatus(tt.raw))
		})
	}
}

func TestStatus_UnmarshalJSON(t *testing.T) {
	var s Status

	require.NoError(t, json.Unmarshal([]byte(`"Passed"`), &s))
	assert.Equal(t, StatusPassed, s)

	require.NoError(t, json.Unmarshal([]byte(`42`), &s))
	assert.Equal(t, StatusErrored, s)

	require.NoError(t, json.Unmarshal([]byte(`"flaky"`), &s))
	assert.Equal(t, StatusErrored, s)
}

func TestEnvironmentResult_DetailsKeepOrder(t *testing.T) {
	input := `{"environment":"linux-3.12","status":"passed","details":{"zeta":1,"alpha":"a","mid":{"x":true}}}`

	var r EnvironmentResult
	require.NoError(t, json.Unmarshal([]byte(input), &r))

	keys := make([]string, 0, r.Details.Len())
	for pair := r.Details.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, keys)

	out, err := json.Marshal(&r)
	require.NoError(t, err)
	assert.JSONEq(t, input, string(out))
	assert.Contains(t, string(out), `"zeta":1,"alpha":"a"`)

	v, ok := r.Detail("alpha")
	require.True(t, ok)
	assert.Equal(t, "a", v)

	_, ok = (&EnvironmentResult{}).Detail("alpha")
	assert.False(t, ok)
}

func TestRun_StatusCounts(t *testing.T) {
	run := &Run{Results: []EnvironmentResult{
		{Environment: "a", Status: StatusPassed},
		{Environment: "b", Status: StatusFailed},
		{Environment: "c", Status: StatusPassed},
		{Environment: "d", Status: StatusErrored},
	}}

	counts := run.StatusCounts()
	assert.Equal(t, StatusCounts{Passed: 2, Failed: 1, Errored: 1}, counts)
	assert.Equal(t, 4, counts.Total())
}

func TestAnchor(t *testing.T) {
	a := Anchor{RunIndex: 3, EnvIndex: 0}

	assert.Equal(t, "run-3", a.RunAnchor())
	assert.Equal(t, "env-3-0", a.EnvAnchor())
}
