// Package engine selects and constructs the configured scraping
// engine. It exists to break the import cycle that would otherwise
// result from pkg/harvest depending on pkg/xclient and
// pkg/browserscrape, both of which depend on pkg/harvest for the
// Scraper interface they implement.
package engine

import (
	"fmt"
	"time"

	"github.com/twharvest/twharvest/pkg/browserscrape"
	"github.com/twharvest/twharvest/pkg/config"
	"github.com/twharvest/twharvest/pkg/harvest"
	"github.com/twharvest/twharvest/pkg/logger"
	"github.com/twharvest/twharvest/pkg/ratelimit"
	"github.com/twharvest/twharvest/pkg/xclient"
)

// New returns the scraper named by cfg.Engine.Name: "graphql" for the
// structured-API client, "playwright" for the headless-browser
// client. Unknown names fall back to "graphql". The graphql client
// has cfg.RateLimit wired in as a token-bucket pace on every GraphQL
// and legacy-timeline request; the browser engine paces itself via
// chromedp's own navigation timing and needs no limiter.
func New(cfg *config.Config, log logger.Logger) harvest.Scraper {
	switch cfg.Engine.Name {
	case "playwright":
		return browserscrape.New(log)
	default:
		client := xclient.New(cfg.Engine, log)
		client.SetRateLimiter(rateLimiterFrom(cfg.RateLimit))
		return client
	}
}

// rateLimiterFrom builds the token bucket a graphql Client paces its
// requests through: rl.BurstSize tokens, refilled to full every
// minute at the configured requests-per-minute rate.
func rateLimiterFrom(rl config.RateLimitConfig) ratelimit.Limiter {
	capacity := rl.RequestsPerMinute
	if capacity <= 0 {
		capacity = 60
	}
	return ratelimit.NewTokenBucket(capacity, time.Minute)
}

// Names lists the engines New accepts, for flag validation and help text.
func Names() []string { return []string{"graphql", "playwright"} }

// Validate reports an error if name is not one New recognizes.
func Validate(name string) error {
	for _, n := range Names() {
		if n == name {
			return nil
		}
	}
	return fmt.Errorf("unknown engine %q (want one of %v)", name, Names())
}
