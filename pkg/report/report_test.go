package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twharvest/twharvest/pkg/events"
)

func sampleResult() *events.JobResult {
	return &events.JobResult{
		TotalUsers:     2,
		SucceededUsers: 1,
		FailedUsers:    1,
		TotalMedia:     3,
		Downloaded:     2,
		Failed:         1,
		Skipped:        0,
		FailureDetails: []events.FailureDetail{
			{
				Scope:     events.ScopeMedia,
				Username:  "alice",
				Message:   `bad, "quoted" response`,
				Code:      "HTTP_500",
				Attempts:  2,
				Timestamp: "2026-08-03T00:00:00.000Z",
				Media:     &events.MediaRef{TweetID: "1", MediaID: "1_m0", URL: "https://cdn.example.com/a.jpg"},
			},
		},
	}
}

func TestBuildJSONMatchesSummary(t *testing.T) {
	r := sampleResult()
	doc := BuildJSON(r, "2026-08-03T01:00:00.000Z")

	assert.Equal(t, "2026-08-03T01:00:00.000Z", doc.GeneratedAt)
	assert.Equal(t, 2, doc.Summary.TotalUsers)
	assert.Equal(t, 1, doc.Summary.FailureDetailsCount)
	require.Len(t, doc.Failures, 1)
	assert.Equal(t, "alice", doc.Failures[0].Username)
}

func TestWriteJSONRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleResult()))

	var decoded JSONReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 3, decoded.Summary.TotalMedia)
	assert.Equal(t, "HTTP_500", decoded.Failures[0].Code)
}

func TestWriteCSVHasOneSummaryAndOneFailureRow(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleResult()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3) // header + summary + 1 failure

	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "summary", rows[1][0])
	assert.Equal(t, "2", rows[1][2]) // total_users
	assert.Equal(t, "failure", rows[2][0])
	assert.Equal(t, "alice", rows[2][11]) // username column
	assert.Contains(t, rows[2][18], `bad, "quoted" response`)
}

func TestWriteFailuresJSONFileWritesOnlyFailures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failures.json")
	require.NoError(t, WriteFailuresJSONFile(path, sampleResult()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded []events.FailureDetail
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "alice", decoded[0].Username)
}

func TestWriteCSVEmptyFailuresIsJustSummary(t *testing.T) {
	var buf bytes.Buffer
	r := &events.JobResult{TotalUsers: 1, SucceededUsers: 1}
	require.NoError(t, WriteCSV(&buf, r))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 2)
}
