package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twharvest/twharvest/pkg/events"
)

type stubFetcher struct {
	mu        sync.Mutex
	calls     int32
	responses map[string][]stubResponse
}

type stubResponse struct {
	status int
	err    error
	body   []byte
}

func (f *stubFetcher) Fetch(_ context.Context, url string) ([]byte, int, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	queue := f.responses[url]
	if len(queue) == 0 {
		return []byte("X"), 200, nil
	}
	resp := queue[0]
	f.responses[url] = queue[1:]
	if resp.err != nil {
		return nil, resp.status, resp.err
	}
	if resp.status < 200 || resp.status >= 300 {
		return nil, resp.status, fmt.Errorf("unexpected status %d", resp.status)
	}
	return resp.body, resp.status, nil
}

func items(alice ...events.MediaItem) []events.MediaItem { return alice }

func TestDownloadMediaBatchHappyPath(t *testing.T) {
	dir := t.TempDir()
	fetcher := &stubFetcher{responses: map[string][]stubResponse{}}

	list := items(
		events.MediaItem{ID: "t1_m1", TweetID: "t1", Kind: events.KindImage, URL: "https://example.com/t1m1.jpg"},
		events.MediaItem{ID: "t1_m2", TweetID: "t1", Kind: events.KindImage, URL: "https://example.com/t1m2.jpg"},
		events.MediaItem{ID: "t2_m3", TweetID: "t2", Kind: events.KindVideo, URL: "https://example.com/t2m3.mp4"},
	)

	outcome := DownloadMediaBatch(context.Background(), fetcher, Options{
		Items: list, OutputDir: dir, Concurrency: 3, RetryCount: 2, Username: "alice",
	})

	require.Equal(t, 3, outcome.Total)
	assert.Equal(t, 3, outcome.Downloaded)
	assert.Equal(t, 0, outcome.Failed)
	assert.Equal(t, 0, outcome.Skipped)
	assert.Empty(t, outcome.FailureDetails)

	for _, name := range []string{"t1_m1.jpg", "t1_m2.jpg", "t2_m3.mp4"} {
		_, err := os.Stat(filepath.Join(dir, "alice", name))
		assert.NoError(t, err, "expected %s to exist", name)
	}
}

func TestDownloadMediaBatchSkipsOnRerun(t *testing.T) {
	dir := t.TempDir()
	fetcher := &stubFetcher{responses: map[string][]stubResponse{}}
	list := items(
		events.MediaItem{ID: "t1_m1", TweetID: "t1", Kind: events.KindImage, URL: "https://example.com/t1m1.jpg"},
	)

	first := DownloadMediaBatch(context.Background(), fetcher, Options{Items: list, OutputDir: dir, Username: "alice"})
	require.Equal(t, 1, first.Downloaded)

	callsBefore := atomic.LoadInt32(&fetcher.calls)
	second := DownloadMediaBatch(context.Background(), fetcher, Options{Items: list, OutputDir: dir, Username: "alice"})
	assert.Equal(t, 0, second.Downloaded)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, callsBefore, atomic.LoadInt32(&fetcher.calls), "no HTTP calls should be issued for ledgered items")
}

func TestDownloadMediaBatchRetriesTransientFailure(t *testing.T) {
	dir := t.TempDir()
	url := "https://example.com/t1m1.jpg"
	fetcher := &stubFetcher{responses: map[string][]stubResponse{
		url: {
			{status: 500},
			{status: 500},
			{status: 200, body: []byte("X")},
		},
	}}
	list := items(events.MediaItem{ID: "t1_m1", TweetID: "t1", Kind: events.KindImage, URL: url})

	outcome := DownloadMediaBatch(context.Background(), fetcher, Options{Items: list, OutputDir: dir, RetryCount: 2, Username: "alice"})

	assert.Equal(t, 1, outcome.Downloaded)
	assert.Equal(t, 0, outcome.Failed)
	assert.Empty(t, outcome.FailureDetails)
}

func TestDownloadMediaBatchReportsPermanentFailure(t *testing.T) {
	dir := t.TempDir()
	url := "https://example.com/t2m3.mp4"
	fetcher := &stubFetcher{responses: map[string][]stubResponse{
		url: {{status: 404}, {status: 404}, {status: 404}},
	}}
	list := items(events.MediaItem{ID: "t2_m3", TweetID: "t2", Kind: events.KindVideo, URL: url})

	outcome := DownloadMediaBatch(context.Background(), fetcher, Options{Items: list, OutputDir: dir, RetryCount: 2, Username: "alice"})

	require.Len(t, outcome.FailureDetails, 1)
	detail := outcome.FailureDetails[0]
	assert.Equal(t, events.ScopeMedia, detail.Scope)
	assert.Equal(t, "HTTP_404", detail.Code)
	assert.Equal(t, 1, detail.Attempts)
	assert.Equal(t, 1, outcome.Failed)
}

type countingLimiter struct {
	mu   sync.Mutex
	hits int
}

func (l *countingLimiter) Allow() bool { return true }
func (l *countingLimiter) Wait() {
	l.mu.Lock()
	l.hits++
	l.mu.Unlock()
}
func (l *countingLimiter) Reset() {}

func TestDownloadMediaBatchConsultsExplicitLimiterPerAttempt(t *testing.T) {
	dir := t.TempDir()
	fetcher := &stubFetcher{responses: map[string][]stubResponse{}}
	list := items(
		events.MediaItem{ID: "t1_m1", TweetID: "t1", Kind: events.KindImage, URL: "https://example.com/t1m1.jpg"},
		events.MediaItem{ID: "t2_m3", TweetID: "t2", Kind: events.KindVideo, URL: "https://example.com/t2m3.mp4"},
	)
	lim := &countingLimiter{}

	outcome := DownloadMediaBatch(context.Background(), fetcher, Options{
		Items: list, OutputDir: dir, Concurrency: 2, Username: "alice", Limiter: lim,
	})

	assert.Equal(t, 2, outcome.Downloaded)
	lim.mu.Lock()
	defer lim.mu.Unlock()
	assert.Equal(t, 2, lim.hits, "one limiter wait per successful attempt")
}

func TestMediaKeyNormalizesURL(t *testing.T) {
	item := events.MediaItem{TweetID: "t1", Kind: events.KindImage, URL: "https://example.com/img.jpg?name=orig&x=1#frag"}
	key := MediaKey("Alice", item)
	assert.Equal(t, "alice|t1|image|https://example.com/img.jpg", key)
}
