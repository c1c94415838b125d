package harvest

import (
	"context"

	"github.com/twharvest/twharvest/pkg/events"
	"github.com/twharvest/twharvest/pkg/session"
)

// FetchOptions bounds and filters one scraper.FetchUserMedia call.
type FetchOptions struct {
	MaxTweets int
	Kinds     []events.MediaKind
}

// Scraper resolves a handle to a media inventory. The structured-API
// client (pkg/xclient) and the headless-browser client
// (pkg/browserscrape) both implement it.
type Scraper interface {
	Initialize(sess session.Session) error
	FetchUserMedia(ctx context.Context, handle string, opts FetchOptions) ([]events.MediaItem, error)
	Close() error
}
