// Package timeutil provides the monotonic sleep and timestamp helpers
// shared by the scraper, downloader, and orchestrator.
package timeutil

import (
	"context"
	"time"

	"github.com/twharvest/twharvest/pkg/retry"
)

// Sleep blocks for d, honoring ctx cancellation. It returns ctx.Err()
// if the context is done before d elapses, nil otherwise.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NowISO8601 returns the current UTC time formatted as RFC3339 with
// millisecond precision, the ISO-8601 variant used throughout the
// session file, ledger, and JSON report.
func NowISO8601() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

// mediaBackoffStrategy and userBackoffStrategy are unjittered
// exponential backoffs: deterministic delays keep the orchestrator's
// and downloader's retry timing predictable for callers and tests.
var mediaBackoffStrategy = &retry.ExponentialBackoff{
	BaseDelay:  500 * time.Millisecond,
	MaxDelay:   60 * time.Second,
	Multiplier: 2.0,
}

var userBackoffStrategy = &retry.ExponentialBackoff{
	BaseDelay:  500 * time.Millisecond,
	MaxDelay:   60 * time.Second,
	Multiplier: 2.0,
}

// MediaBackoff returns the inter-attempt delay for the downloader's
// per-media retry loop: 500 * 2^attempt milliseconds.
func MediaBackoff(attempt int) time.Duration {
	return mediaBackoffStrategy.NextDelay(attempt + 1)
}

// UserBackoff returns the inter-attempt delay for the orchestrator's
// per-user retry loop: max(500, 500 * 2^(attempt-1)) milliseconds.
func UserBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return userBackoffStrategy.NextDelay(attempt)
}
