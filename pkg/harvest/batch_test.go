package harvest

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twharvest/twharvest/pkg/events"
	"github.com/twharvest/twharvest/pkg/session"
)

// fakeScraper is a scripted Scraper: each call to FetchUserMedia pops
// the next scripted (items, error) pair for that handle.
type fakeScraper struct {
	script        map[string][]fakeCall
	initErr       error
	closeCalled   bool
	initializedAs session.Session
}

type fakeCall struct {
	items []events.MediaItem
	err   error
}

func (f *fakeScraper) Initialize(sess session.Session) error {
	f.initializedAs = sess
	return f.initErr
}

func (f *fakeScraper) FetchUserMedia(ctx context.Context, handle string, opts FetchOptions) ([]events.MediaItem, error) {
	calls := f.script[handle]
	if len(calls) == 0 {
		return nil, fmt.Errorf("no more scripted calls for %s", handle)
	}
	next := calls[0]
	f.script[handle] = calls[1:]
	return next.items, next.err
}

func (f *fakeScraper) Close() error {
	f.closeCalled = true
	return nil
}

func drain(t *testing.T, ch <-chan events.Message) ([]*events.JobEvent, *events.JobResult) {
	var evs []*events.JobEvent
	var result *events.JobResult
	for msg := range ch {
		if msg.Event != nil {
			evs = append(evs, msg.Event)
		}
		if msg.Result != nil {
			require.Nil(t, result, "only one Result message expected")
			result = msg.Result
		}
	}
	require.NotNil(t, result, "channel must terminate with a Result")
	return evs, result
}

func TestRunBatchJobSingleUserSuccess(t *testing.T) {
	dir := t.TempDir()
	scraper := &fakeScraper{script: map[string][]fakeCall{
		"alice": {{items: nil}},
	}}

	ch := RunBatchJob(context.Background(), JobOptions{
		Users:     []string{"@alice"},
		OutputDir: dir,
		Scraper:   scraper,
	})
	evs, result := drain(t, ch)

	assert.Equal(t, 1, result.TotalUsers)
	assert.Equal(t, 1, result.SucceededUsers)
	assert.Equal(t, 0, result.FailedUsers)
	assert.True(t, scraper.closeCalled)
	assert.Equal(t, events.JobStarted, evs[0].Type)
	assert.Equal(t, events.JobFinished, evs[len(evs)-1].Type)

	require.NotEmpty(t, result.JobID)
	for _, e := range evs {
		assert.Equal(t, result.JobID, e.JobID, "every event should carry the job's id")
	}
}

func TestRunBatchJobStripsAtAndSkipsEmptyHandles(t *testing.T) {
	dir := t.TempDir()
	scraper := &fakeScraper{script: map[string][]fakeCall{
		"bob": {{items: nil}},
	}}

	ch := RunBatchJob(context.Background(), JobOptions{
		Users:     []string{"  @bob  ", "   ", "@"},
		OutputDir: dir,
		Scraper:   scraper,
	})
	evs, result := drain(t, ch)

	assert.Equal(t, 1, result.TotalUsers)
	assert.Equal(t, 1, result.SucceededUsers)

	var warnings int
	for _, e := range evs {
		if e.Type == events.Warning {
			warnings++
		}
	}
	assert.Equal(t, 2, warnings, "both blank handles should warn and be skipped")
}

func TestRunBatchJobRetriesThenSucceeds(t *testing.T) {
	dir := t.TempDir()
	scraper := &fakeScraper{script: map[string][]fakeCall{
		"alice": {
			{err: fmt.Errorf("transient failure")},
			{items: nil},
		},
	}}

	ch := RunBatchJob(context.Background(), JobOptions{
		Users:          []string{"alice"},
		OutputDir:      dir,
		UserRetryCount: 1,
		Scraper:        scraper,
	})
	_, result := drain(t, ch)

	assert.Equal(t, 1, result.SucceededUsers)
	assert.Equal(t, 0, result.FailedUsers)
	require.Len(t, result.FailureDetails, 1)
	assert.Equal(t, events.ScopeUser, result.FailureDetails[0].Scope)
	assert.Equal(t, 1, result.FailureDetails[0].Attempts)
}

func TestRunBatchJobExhaustsRetriesAndFails(t *testing.T) {
	dir := t.TempDir()
	scraper := &fakeScraper{script: map[string][]fakeCall{
		"alice": {
			{err: fmt.Errorf("boom 1")},
			{err: fmt.Errorf("boom 2")},
		},
	}}

	ch := RunBatchJob(context.Background(), JobOptions{
		Users:          []string{"alice"},
		OutputDir:      dir,
		UserRetryCount: 1,
		Scraper:        scraper,
	})
	evs, result := drain(t, ch)

	assert.Equal(t, 0, result.SucceededUsers)
	assert.Equal(t, 1, result.FailedUsers)
	require.Len(t, result.FailureDetails, 1)
	assert.Equal(t, events.ScopeUser, result.FailureDetails[0].Scope)
	assert.Equal(t, 2, result.FailureDetails[0].Attempts)
	assert.True(t, events.HasFinalFailures(result))

	var errEvents int
	for _, e := range evs {
		if e.Type == events.ErrorEvent {
			errEvents++
		}
	}
	assert.Equal(t, 1, errEvents)
}

func TestRunBatchJobNoScraperConfigured(t *testing.T) {
	ch := RunBatchJob(context.Background(), JobOptions{Users: []string{"alice"}})
	evs, result := drain(t, ch)

	assert.Equal(t, 1, result.FailedUsers)
	assert.Equal(t, events.ErrorEvent, evs[0].Type)
}

func TestRunBatchJobUsesAnonymousSessionWhenStoreEmpty(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := t.TempDir()

	scraper := &fakeScraper{script: map[string][]fakeCall{
		"alice": {{items: nil}},
	}}
	store := session.New("twharvest-test", nil)
	_, err := os.Stat(home)
	require.NoError(t, err)

	ch := RunBatchJob(context.Background(), JobOptions{
		Users:     []string{"alice"},
		OutputDir: dir,
		Store:     store,
		Scraper:   scraper,
	})
	_, result := drain(t, ch)

	assert.Equal(t, 1, result.SucceededUsers)
	assert.False(t, scraper.initializedAs.Valid)
}
