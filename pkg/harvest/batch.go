package harvest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/twharvest/twharvest/internal/downloader"
	"github.com/twharvest/twharvest/pkg/events"
	"github.com/twharvest/twharvest/pkg/session"
	"github.com/twharvest/twharvest/pkg/timeutil"
)

// JobOptions parameterizes one runBatchJob call.
type JobOptions struct {
	Store             *session.Store
	Users             []string
	OutputDir         string
	MediaKinds        []events.MediaKind
	MaxTweetsPerUser  int
	Concurrency       int
	RetryCount        int
	UserRetryCount    int
	UserDelayMs       int
	PerRequestDelayMs int

	// Scraper is the already-constructed engine (pkg/xclient or
	// pkg/browserscrape) this job drives. Callers pick the concrete
	// engine; this package only knows the Scraper interface, to avoid
	// an import cycle with the engines that assert conformance to it.
	Scraper Scraper
}

func (o JobOptions) withDefaults() JobOptions {
	if o.UserRetryCount < 0 {
		o.UserRetryCount = 0
	}
	return o
}

// RunBatchJob loads the persisted session (or falls back to an
// anonymous one), initializes the configured scraper, and walks
// opts.Users in order, emitting a finite, ordered sequence of
// JobEvents on the returned channel. The channel's final value always
// carries a JobResult and the channel is closed immediately after.
func RunBatchJob(ctx context.Context, opts JobOptions) <-chan events.Message {
	opts = opts.withDefaults()
	out := make(chan events.Message)
	jobID := uuid.NewString()
	go func() {
		defer close(out)
		runBatchJob(ctx, opts, jobID, out)
	}()
	return out
}

func runBatchJob(ctx context.Context, opts JobOptions, jobID string, out chan<- events.Message) {
	if opts.Scraper == nil {
		emit(out, jobID, events.ErrorEvent, "", "no scraper configured")
		send(out, &events.JobResult{JobID: jobID, TotalUsers: len(opts.Users), FailedUsers: len(opts.Users)})
		return
	}
	scraper := opts.Scraper

	sess, err := loadSession(opts.Store)
	if err != nil {
		emit(out, jobID, events.ErrorEvent, "", fmt.Sprintf("load session: %v", err))
		send(out, &events.JobResult{JobID: jobID, TotalUsers: len(opts.Users), FailedUsers: len(opts.Users)})
		return
	}

	if err := scraper.Initialize(sess); err != nil {
		emit(out, jobID, events.ErrorEvent, "", fmt.Sprintf("initialize scraper: %v", err))
		send(out, &events.JobResult{JobID: jobID, TotalUsers: len(opts.Users), FailedUsers: len(opts.Users)})
		return
	}
	defer scraper.Close()

	result := &events.JobResult{JobID: jobID}
	emit(out, jobID, events.JobStarted, "", fmt.Sprintf("starting batch job for %d user(s)", len(opts.Users)))

	for _, raw := range opts.Users {
		handle := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "@"))
		if handle == "" {
			emit(out, jobID, events.Warning, "", fmt.Sprintf("skipping empty handle (raw input %q)", raw))
			continue
		}
		result.TotalUsers++

		if processUser(ctx, scraper, opts, jobID, handle, result, out) {
			result.SucceededUsers++
		} else {
			result.FailedUsers++
		}

		if opts.UserDelayMs > 0 {
			_ = timeutil.Sleep(ctx, time.Duration(opts.UserDelayMs)*time.Millisecond)
		}
	}

	emit(out, jobID, events.JobFinished, "", "batch job finished", withProgress(result))
	send(out, result)
}

// processUser runs the attempt loop for one handle: fetch media, then
// download it, retrying the whole fetch+download unit up to
// opts.UserRetryCount+1 times on any error. It returns true if the
// user ultimately succeeded.
func processUser(ctx context.Context, scraper Scraper, opts JobOptions, jobID, handle string, result *events.JobResult, out chan<- events.Message) bool {
	emit(out, jobID, events.UserStarted, handle, fmt.Sprintf("fetching media for %s", handle))

	maxAttempts := opts.UserRetryCount + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		items, err := scraper.FetchUserMedia(ctx, handle, FetchOptions{
			MaxTweets: opts.MaxTweetsPerUser,
			Kinds:     opts.MediaKinds,
		})
		if err == nil {
			for i := range items {
				items[i].Username = handle
			}
			emit(out, jobID, events.MediaFound, handle, fmt.Sprintf("found %d media item(s) for %s", len(items), handle))

			outcome := downloader.DownloadMediaBatch(ctx, downloader.NewHTTPFetcher(), downloader.Options{
				Items:             items,
				OutputDir:         opts.OutputDir,
				Concurrency:       opts.Concurrency,
				RetryCount:        opts.RetryCount,
				Username:          handle,
				PerRequestDelayMs: opts.PerRequestDelayMs,
			})

			result.TotalMedia += outcome.Total
			result.Downloaded += outcome.Downloaded
			result.Failed += outcome.Failed
			result.Skipped += outcome.Skipped
			result.FailureDetails = append(result.FailureDetails, outcome.FailureDetails...)

			emit(out, jobID, events.DownloadProgress, handle, fmt.Sprintf("downloaded %d/%d for %s", outcome.Downloaded, outcome.Total, handle), &events.Progress{
				Total:      outcome.Total,
				Downloaded: outcome.Downloaded,
				Failed:     outcome.Failed,
				Skipped:    outcome.Skipped,
			})
			emit(out, jobID, events.UserFinished, handle, fmt.Sprintf("finished %s", handle))
			return true
		}

		result.FailureDetails = append(result.FailureDetails, events.FailureDetail{
			Scope:     events.ScopeUser,
			Username:  handle,
			Message:   err.Error(),
			Attempts:  attempt,
			Timestamp: timeutil.NowISO8601(),
		})

		if attempt < maxAttempts {
			emit(out, jobID, events.Warning, handle, fmt.Sprintf("attempt %d/%d for %s failed: %v; retrying", attempt, maxAttempts, handle, err))
			_ = timeutil.Sleep(ctx, timeutil.UserBackoff(attempt))
			continue
		}

		emit(out, jobID, events.ErrorEvent, handle, fmt.Sprintf("%s failed after %d attempt(s): %v", handle, attempt, err))
		return false
	}
	return false
}

func loadSession(store *session.Store) (session.Session, error) {
	if store == nil {
		return session.Anonymous(), nil
	}
	sess, err := store.Load()
	if err != nil {
		return session.Session{}, err
	}
	if sess == nil {
		return session.Anonymous(), nil
	}
	return *sess, nil
}

func emit(out chan<- events.Message, jobID string, typ events.EventType, username, message string, progress ...*events.Progress) {
	ev := &events.JobEvent{
		JobID:     jobID,
		Type:      typ,
		Message:   message,
		Timestamp: timeutil.NowISO8601(),
		Username:  username,
	}
	if len(progress) > 0 {
		ev.Progress = progress[0]
	}
	out <- events.Message{Event: ev}
}

func withProgress(r *events.JobResult) *events.Progress {
	return &events.Progress{
		Total:      r.TotalMedia,
		Downloaded: r.Downloaded,
		Failed:     r.Failed,
		Skipped:    r.Skipped,
	}
}

func send(out chan<- events.Message, result *events.JobResult) {
	out <- events.Message{Result: result}
}
