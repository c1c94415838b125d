// Package downloader implements the bounded-concurrency media
// downloader: it takes a media list, dedups it against an on-disk
// ledger, fetches what remains with retry/backoff, and writes the
// ledger back atomically once every worker has stopped.
package downloader

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/twharvest/twharvest/pkg/errors"
	"github.com/twharvest/twharvest/pkg/events"
	"github.com/twharvest/twharvest/pkg/logger"
	"github.com/twharvest/twharvest/pkg/metadata"
	"github.com/twharvest/twharvest/pkg/pathutil"
	"github.com/twharvest/twharvest/pkg/ratelimit"
	"github.com/twharvest/twharvest/pkg/timeutil"
)

// Options parameterizes one downloadMediaBatch call.
type Options struct {
	Items             []events.MediaItem
	OutputDir         string
	Concurrency       int
	RetryCount        int
	Username          string
	PerRequestDelayMs int

	// Limiter paces every worker's fetch attempts against a single
	// shared budget. When nil and PerRequestDelayMs > 0,
	// DownloadMediaBatch builds one token bucket admitting one fetch
	// per PerRequestDelayMs, shared across all workers so concurrency
	// doesn't multiply the effective request rate.
	Limiter ratelimit.Limiter
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.Username == "" {
		o.Username = "unknown"
	}
	return o
}

// aggregate is the mutex-guarded coordinator every worker reports its
// per-item outcome back to, so the conserved-counters invariant
// (downloaded + failed + skipped = total) holds regardless of how
// many workers ran concurrently.
type aggregate struct {
	mu             sync.Mutex
	downloaded     int
	failed         int
	skipped        int
	failureDetails []events.FailureDetail
	ledgerKeys     map[string]bool
	saved          []events.MediaItem
}

func (a *aggregate) recordDownloaded(key string, item events.MediaItem) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.downloaded++
	a.ledgerKeys[key] = true
	a.saved = append(a.saved, item)
}

func (a *aggregate) recordSkipped(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.skipped++
	a.ledgerKeys[key] = true
}

func (a *aggregate) recordFailed(detail events.FailureDetail) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failed++
	a.failureDetails = append(a.failureDetails, detail)
}

// DownloadMediaBatch fetches opts.Items into opts.OutputDir with
// bounded concurrency, skipping anything already recorded in the
// outDir's ledger or already present on disk, and returns the
// conserved outcome counters plus per-item failure details.
func DownloadMediaBatch(ctx context.Context, fetcher Fetcher, opts Options) *events.DownloadOutcome {
	opts = opts.withDefaults()
	if opts.Limiter == nil && opts.PerRequestDelayMs > 0 {
		opts.Limiter = ratelimit.NewTokenBucket(1, time.Duration(opts.PerRequestDelayMs)*time.Millisecond)
	}
	log := logger.GetLogger().WithFields(map[string]interface{}{
		"component": "downloader",
		"username":  opts.Username,
	})

	ledger := loadLedger(opts.OutputDir)
	agg := &aggregate{ledgerKeys: make(map[string]bool, len(ledger))}
	for k := range ledger {
		agg.ledgerKeys[k] = true
	}

	queue := make(chan events.MediaItem, len(opts.Items))
	for _, item := range opts.Items {
		queue <- item
	}
	close(queue)

	numWorkers := opts.Concurrency
	if numWorkers > len(opts.Items) {
		numWorkers = len(opts.Items)
	}

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.ErrorWithFields("download worker panicked", map[string]interface{}{
						"worker_id": workerID,
						"panic":     r,
					})
				}
			}()
			for item := range queue {
				processItem(ctx, fetcher, opts, item, ledger, agg, log)
			}
		}(i)
	}
	wg.Wait()

	if err := saveLedger(opts.OutputDir, agg.ledgerKeys); err != nil {
		log.WithError(err).Warn("failed to write downloaded-media ledger")
	}
	if len(agg.saved) > 0 {
		accountDir := filepath.Join(opts.OutputDir, pathutil.Sanitize(opts.Username))
		if err := metadata.Write(accountDir, opts.Username, agg.saved); err != nil {
			log.WithError(err).Warn("failed to write account metadata sidecar")
		}
	}

	return &events.DownloadOutcome{
		Total:          len(opts.Items),
		Downloaded:     agg.downloaded,
		Failed:         agg.failed,
		Skipped:        agg.skipped,
		FailureDetails: agg.failureDetails,
	}
}

func processItem(
	ctx context.Context,
	fetcher Fetcher,
	opts Options,
	item events.MediaItem,
	ledger map[string]bool,
	agg *aggregate,
	log logger.Logger,
) {
	key := MediaKey(opts.Username, item)
	if ledger[key] {
		agg.recordSkipped(key)
		return
	}

	dir := filepath.Join(opts.OutputDir, pathutil.Sanitize(opts.Username))
	if err := os.MkdirAll(dir, 0755); err != nil {
		agg.recordFailed(failureFor(item, 0, 1, err))
		return
	}
	targetPath := filepath.Join(dir, pathutil.BuildFilename(item))

	if _, err := os.Stat(targetPath); err == nil {
		agg.recordSkipped(key)
		return
	}

	attempts, statusCode, err := downloadWithRetry(ctx, fetcher, item.URL, targetPath, opts.RetryCount, opts.Limiter)
	if err != nil {
		log.WithError(err).WithFields(map[string]interface{}{
			"tweet_id": item.TweetID,
			"media_id": item.ID,
			"attempts": attempts,
		}).Warn("media download failed")
		detail := failureFor(item, statusCode, attempts, err)
		detail.Media.TargetPath = targetPath
		agg.recordFailed(detail)
		return
	}

	agg.recordDownloaded(key, item)
}

func failureFor(item events.MediaItem, statusCode, attempts int, err error) events.FailureDetail {
	code := ""
	if statusCode != 0 {
		code = "HTTP_" + strconv.Itoa(statusCode)
	}
	return events.FailureDetail{
		Scope:    events.ScopeMedia,
		Username: item.Username,
		Message:  err.Error(),
		Code:     code,
		Media: &events.MediaRef{
			TweetID: item.TweetID,
			MediaID: item.ID,
			URL:     item.URL,
		},
		Attempts:  attempts,
		Timestamp: timeutil.NowISO8601(),
	}
}

// downloadWithRetry performs up to retryCount+1 attempts, waiting on
// limiter (if set) before each and sleeping 500*2^attempt between
// failed attempts, retrying only transport errors, 429, and 5xx.
func downloadWithRetry(ctx context.Context, fetcher Fetcher, url, targetPath string, retryCount int, limiter ratelimit.Limiter) (attempts int, statusCode int, err error) {
	for {
		attempts++
		if limiter != nil {
			limiter.Wait()
		}

		body, status, fetchErr := fetcher.Fetch(ctx, url)
		if fetchErr == nil {
			if writeErr := os.WriteFile(targetPath, body, 0644); writeErr != nil {
				return attempts, status, writeErr
			}
			return attempts, status, nil
		}

		retryable := false
		if status != 0 {
			retryable = errors.IsRetryableStatusCode(status)
		} else {
			retryable = errors.IsRetryableMessage(fetchErr.Error())
		}

		if attempts > retryCount || !retryable {
			return attempts, status, fetchErr
		}

		if sleepErr := timeutil.Sleep(ctx, timeutil.MediaBackoff(attempts)); sleepErr != nil {
			return attempts, status, sleepErr
		}
	}
}
