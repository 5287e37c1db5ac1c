// internal/reporting/reporter_test.go
package reporting_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/formsmith/api/schemas"
	"github.com/xkilldash9x/formsmith/internal/reporting"
)

// bufferCloser records whether Close was called.
type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

func sampleResults() []schemas.AccountResult {
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return []schemas.AccountResult{
		{
			RunID: "run-1", SessionID: "s1", Email: "a@example.test", Country: "France",
			Anomaly: schemas.AnomalyCleared, StartedAt: started, Duration: 1500 * time.Millisecond,
			Outcome: &schemas.FormOutcome{
				State: schemas.StateDone,
				Results: map[schemas.FieldIntent]schemas.ResolutionResult{
					schemas.IntentCity:       schemas.Matched(schemas.StrategyGroupRow, nil),
					schemas.IntentPostalCode: schemas.Matched(schemas.StrategySelectorProbe, nil),
				},
			},
		},
		{
			RunID: "run-1", SessionID: "s2", Email: "b@example.test", Country: "Canada",
			StartedAt: started, Duration: time.Second,
			Outcome: &schemas.FormOutcome{
				State:  schemas.StateUnrecoverable,
				Failed: []schemas.FieldIntent{schemas.IntentCity, schemas.IntentPostalCode},
			},
		},
		{RunID: "run-1", Email: "c@example.test", Error: "failed to load form: timeout", StartedAt: started},
	}
}

func TestNew_UnsupportedFormat(t *testing.T) {
	r, err := reporting.New("sarif", "stdout")
	assert.Nil(t, r)
	assert.ErrorContains(t, err, "unsupported output format: sarif")

	path := filepath.Join(t.TempDir(), "out.txt")
	_, err = reporting.New("xml", path)
	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "no file should be created for an unknown format")
}

func TestNew_Stdout(t *testing.T) {
	for _, path := range []string{"", "stdout"} {
		r, err := reporting.New("jsonl", path)
		require.NoError(t, err)
		assert.NoError(t, r.Close())
	}
}

func TestNew_FileCreationFails(t *testing.T) {
	_, err := reporting.New("json", filepath.Join(t.TempDir(), "missing", "out.json"))
	assert.ErrorContains(t, err, "failed to create output file")
}

func TestJSONLines(t *testing.T) {
	out := &bufferCloser{}
	r, err := reporting.NewWriter("jsonl", out)
	require.NoError(t, err)
	for _, res := range sampleResults() {
		require.NoError(t, r.Write(res))
	}
	require.NoError(t, r.Close())
	assert.True(t, out.closed)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)

	var first schemas.AccountResult
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "a@example.test", first.Email)
	require.NotNil(t, first.Outcome)
	assert.Equal(t, schemas.StrategyGroupRow, first.Outcome.Results[schemas.IntentCity].Strategy)
	assert.Contains(t, lines[2], `"error":"failed to load form: timeout"`)
}

func TestJSONArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	r, err := reporting.New("JSON", path)
	require.NoError(t, err)
	for _, res := range sampleResults() {
		require.NoError(t, r.Write(res))
	}
	require.NoError(t, r.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got []schemas.AccountResult
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 3)
	assert.Equal(t, []schemas.FieldIntent{schemas.IntentCity, schemas.IntentPostalCode}, got[1].Outcome.Failed)
}

func TestJSONArray_Empty(t *testing.T) {
	out := &bufferCloser{}
	r, err := reporting.NewWriter("json", out)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "[]\n", out.String())
}

func TestText(t *testing.T) {
	out := &bufferCloser{}
	r, err := reporting.NewWriter("text", out)
	require.NoError(t, err)
	for _, res := range sampleResults() {
		require.NoError(t, r.Write(res))
	}
	require.NoError(t, r.Close())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "EMAIL"))
	assert.Regexp(t, `^a@example\.test\s+France\s+done\s+cleared\s+city=group_row,postalCode=selector_probe\s+-\s+1\.5s$`, lines[1])
	assert.Regexp(t, `^b@example\.test\s+Canada\s+unrecoverable\s+-\s+-\s+city,postalCode\s+1s$`, lines[2])
	assert.Regexp(t, `^c@example\.test\s+-\s+error\s+-\s+-\s+failed to load form: timeout\s+0s$`, lines[3])
}
