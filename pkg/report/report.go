// Package report renders a JobResult into the JSON and CSV report
// shapes a batch download produces.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/twharvest/twharvest/pkg/events"
	"github.com/twharvest/twharvest/pkg/timeutil"
)

// Summary is the aggregate block both report shapes embed.
type Summary struct {
	TotalUsers          int `json:"totalUsers"`
	SucceededUsers      int `json:"succeededUsers"`
	FailedUsers         int `json:"failedUsers"`
	TotalMedia          int `json:"totalMedia"`
	Downloaded          int `json:"downloaded"`
	Failed              int `json:"failed"`
	Skipped             int `json:"skipped"`
	FailureDetailsCount int `json:"failureDetailsCount"`
}

// JSONReport is the top-level shape written by WriteJSON.
type JSONReport struct {
	GeneratedAt string                 `json:"generatedAt"`
	Summary     Summary                `json:"summary"`
	Failures    []events.FailureDetail `json:"failures"`
}

func summarize(r *events.JobResult) Summary {
	return Summary{
		TotalUsers:          r.TotalUsers,
		SucceededUsers:      r.SucceededUsers,
		FailedUsers:         r.FailedUsers,
		TotalMedia:          r.TotalMedia,
		Downloaded:          r.Downloaded,
		Failed:              r.Failed,
		Skipped:             r.Skipped,
		FailureDetailsCount: len(r.FailureDetails),
	}
}

// BuildJSON assembles the JSONReport for r, stamped with the current
// time unless generatedAt is supplied (tests pass a fixed value).
func BuildJSON(r *events.JobResult, generatedAt string) JSONReport {
	if generatedAt == "" {
		generatedAt = timeutil.NowISO8601()
	}
	failures := r.FailureDetails
	if failures == nil {
		failures = []events.FailureDetail{}
	}
	return JSONReport{
		GeneratedAt: generatedAt,
		Summary:     summarize(r),
		Failures:    failures,
	}
}

// WriteJSONFile writes the pretty-printed JSON report for r to path.
func WriteJSONFile(path string, r *events.JobResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create json report: %w", err)
	}
	defer f.Close()
	return WriteJSON(f, r)
}

// WriteJSON writes the pretty-printed JSON report for r to w.
func WriteJSON(w io.Writer, r *events.JobResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(BuildJSON(r, ""))
}

// csvHeader is the exact column order the CSV report uses for both
// its one summary row and its per-failure rows.
var csvHeader = []string{
	"record_type", "generated_at", "total_users", "succeeded_users",
	"failed_users", "total_media", "downloaded", "failed", "skipped",
	"failure_details_count", "scope", "username", "code", "attempts",
	"tweet_id", "media_id", "url", "target_path", "message", "timestamp",
}

// WriteCSVFile writes the summary-plus-failures CSV report for r to path.
func WriteCSVFile(path string, r *events.JobResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv report: %w", err)
	}
	defer f.Close()
	return WriteCSV(f, r)
}

// WriteCSV writes one "summary" row followed by one "failure" row per
// FailureDetail in r, using encoding/csv's standard quoting rules
// (comma, quote, CR, or LF triggers double-quoting with doubled `"`).
func WriteCSV(w io.Writer, r *events.JobResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	generatedAt := timeutil.NowISO8601()
	s := summarize(r)
	summaryCols := []string{
		"summary", generatedAt,
		itoa(s.TotalUsers), itoa(s.SucceededUsers), itoa(s.FailedUsers),
		itoa(s.TotalMedia), itoa(s.Downloaded), itoa(s.Failed), itoa(s.Skipped),
		itoa(s.FailureDetailsCount),
		"", "", "", "", "", "", "", "", "", "",
	}
	if err := cw.Write(summaryCols); err != nil {
		return err
	}

	for _, fd := range r.FailureDetails {
		tweetID, mediaID, url, targetPath := "", "", "", ""
		if fd.Media != nil {
			tweetID, mediaID, url, targetPath = fd.Media.TweetID, fd.Media.MediaID, fd.Media.URL, fd.Media.TargetPath
		}
		row := []string{
			"failure", generatedAt,
			"", "", "", "", "", "", "", "",
			string(fd.Scope), fd.Username, fd.Code, itoa(fd.Attempts),
			tweetID, mediaID, url, targetPath, fd.Message, fd.Timestamp,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteFailuresJSONFile writes just r's FailureDetail list (no
// summary block) to path, for callers that only want the failures.
func WriteFailuresJSONFile(path string, r *events.JobResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create failures report: %w", err)
	}
	defer f.Close()
	failures := r.FailureDetails
	if failures == nil {
		failures = []events.FailureDetail{}
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(failures)
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}
