// Package events defines the typed records that flow out of a batch
// job: the media items a scraper discovers, the failures the
// orchestrator accumulates, the progress events it emits, and the
// final aggregate result.
package events

// MediaKind is one of the three media shapes the engine downloads.
type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
	KindGif   MediaKind = "gif"
)

// MediaItem is a single piece of media resolved by a scraper.
// ID is unique within TweetID and, after (TweetID, Kind, URL)
// de-duplication, unique within a scraper's returned list.
type MediaItem struct {
	ID           string    `json:"id"`
	TweetID      string    `json:"tweetId"`
	Username     string    `json:"username"`
	Kind         MediaKind `json:"kind"`
	URL          string    `json:"url"`
	CreatedAt    string    `json:"createdAt,omitempty"`
	FilenameHint string    `json:"filenameHint,omitempty"`
}

// FailureScope distinguishes a user-level failure (the scrape itself
// failed) from a media-level failure (one item failed to download).
type FailureScope string

const (
	ScopeUser  FailureScope = "user"
	ScopeMedia FailureScope = "media"
)

// MediaRef identifies the specific media item a FailureDetail is about.
type MediaRef struct {
	TweetID    string `json:"tweetId"`
	MediaID    string `json:"mediaId"`
	URL        string `json:"url"`
	TargetPath string `json:"targetPath,omitempty"`
}

// FailureDetail records one failed attempt at either scope. A single
// user or media operation may contribute more than one FailureDetail
// across its retries.
type FailureDetail struct {
	Scope     FailureScope `json:"scope"`
	Username  string       `json:"username"`
	Message   string       `json:"message"`
	Code      string       `json:"code,omitempty"`
	Media     *MediaRef    `json:"media,omitempty"`
	Attempts  int          `json:"attempts,omitempty"`
	Timestamp string       `json:"timestamp"`
}

// EventType is the tag of a JobEvent.
type EventType string

const (
	JobStarted       EventType = "job_started"
	UserStarted      EventType = "user_started"
	MediaFound       EventType = "media_found"
	DownloadProgress EventType = "download_progress"
	UserFinished     EventType = "user_finished"
	JobFinished      EventType = "job_finished"
	Warning          EventType = "warning"
	ErrorEvent       EventType = "error"
)

// Progress carries the downloader's four conserved counters.
type Progress struct {
	Total      int `json:"total"`
	Downloaded int `json:"downloaded"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// JobEvent is one entry in the job's ordered, finite, single-pass
// event sequence.
type JobEvent struct {
	JobID     string    `json:"jobId"`
	Type      EventType `json:"type"`
	Message   string    `json:"message"`
	Timestamp string    `json:"timestamp"`
	Username  string    `json:"username,omitempty"`
	Progress  *Progress `json:"progress,omitempty"`
}

// JobResult is the aggregate returned when the event sequence
// terminates normally.
type JobResult struct {
	JobID          string          `json:"jobId"`
	TotalUsers     int             `json:"totalUsers"`
	SucceededUsers int             `json:"succeededUsers"`
	FailedUsers    int             `json:"failedUsers"`
	TotalMedia     int             `json:"totalMedia"`
	Downloaded     int             `json:"downloaded"`
	Failed         int             `json:"failed"`
	Skipped        int             `json:"skipped"`
	FailureDetails []FailureDetail `json:"failureDetails"`
}

// HasFinalFailures reports whether the job should be treated as a
// partial success by the driver (exit code 4) rather than a clean
// success (exit code 0).
func HasFinalFailures(r *JobResult) bool {
	return r.FailedUsers > 0 || r.Failed > 0
}

// DownloadOutcome is the conserved result of one downloadMediaBatch
// call: total = downloaded + failed + skipped, and
// len(FailureDetails) == failed.
type DownloadOutcome struct {
	Total          int
	Downloaded     int
	Failed         int
	Skipped        int
	FailureDetails []FailureDetail
}

// Message is the discriminated union carried on a job's event
// channel: exactly one of Event or Result is non-nil. A Result
// message is always the last value sent before the channel is
// closed, modeling the design's "EventMsg | FinalResult | Done"
// union as a single Go channel type.
type Message struct {
	Event  *JobEvent
	Result *JobResult
}
