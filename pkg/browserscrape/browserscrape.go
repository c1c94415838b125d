// Package browserscrape implements the headless-browser scraper: it
// drives a real browser engine to the platform's media timeline,
// scrolls to trigger lazy-loaded content, and extracts media URLs
// straight out of the rendered DOM. Used as the alternative engine
// to pkg/xclient when the structured API is unavailable or blocked.
package browserscrape

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/twharvest/twharvest/pkg/cookies"
	"github.com/twharvest/twharvest/pkg/events"
	"github.com/twharvest/twharvest/pkg/harvest"
	"github.com/twharvest/twharvest/pkg/logger"
	"github.com/twharvest/twharvest/pkg/session"
)

const (
	maxScrollRounds         = 14
	maxConsecutiveEmpty     = 3
	defaultOperationTimeout = 30 * time.Second
	scrollSettleDelay       = 900 * time.Millisecond
)

var _ harvest.Scraper = (*Client)(nil)

// Client is the headless-browser scraper.
type Client struct {
	logger logger.Logger

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	closeOnce sync.Once
}

// New returns a Client. The browser process is not started until
// Initialize is called.
func New(log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Client{logger: log.WithField("component", "browserscrape")}
}

// Initialize launches a headless browser instance and injects sess's
// cookies across both platform domains.
func (c *Client) Initialize(sess session.Session) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(desktopUserAgent),
	)
	c.allocCtx, c.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	c.browserCtx, c.browserCancel = chromedp.NewContext(c.allocCtx)

	if err := chromedp.Run(c.browserCtx, network.Enable()); err != nil {
		c.Close()
		return fmt.Errorf("enable network domain: %w", err)
	}

	if err := c.injectCookies(sess); err != nil {
		c.logger.WithError(err).Warn("failed to inject session cookies; continuing unauthenticated")
	}
	return nil
}

const desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0 Safari/537.36"

// injectCookies sets every one of sess's normalized cookies on both
// platform domains via the CDP Network domain, matching the cookie
// normalizer's own cross-domain-expansion behavior.
func (c *Client) injectCookies(sess session.Session) error {
	if len(sess.Cookies) == 0 {
		return nil
	}
	return chromedp.Run(c.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, ck := range sess.Cookies {
			domain := strings.TrimPrefix(ck.Domain, ".")
			if domain == "" {
				continue
			}
			if err := network.SetCookie(ck.Name, ck.Value).
				WithDomain(domain).
				WithPath("/").
				WithSecure(true).
				Do(ctx); err != nil {
				return fmt.Errorf("set cookie %s on %s: %w", ck.Name, domain, err)
			}
		}
		return nil
	}))
}

// Close shuts down the browser process. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.browserCancel != nil {
			c.browserCancel()
		}
		if c.allocCancel != nil {
			c.allocCancel()
		}
	})
	return nil
}

// mediaHostPaths are tried in order: the canonical media tab, then a
// search URL filtered to media-only results, on each platform host.
func mediaHostPaths(handle string) []string {
	var urls []string
	for _, host := range cookies.PlatformDomains {
		host := strings.TrimPrefix(host, ".")
		urls = append(urls,
			fmt.Sprintf("https://%s/%s/media", host, handle),
			fmt.Sprintf("https://%s/search?q=from%%3A%s%%20filter%%3Amedia&f=live", host, handle),
		)
	}
	return urls
}

// FetchUserMedia navigates to handle's media timeline and scrolls to
// trigger lazy-loaded content, extracting media straight from the
// rendered DOM until maxScrollRounds is reached or
// maxConsecutiveEmpty consecutive rounds add nothing new.
func (c *Client) FetchUserMedia(ctx context.Context, handle string, opts harvest.FetchOptions) ([]events.MediaItem, error) {
	if c.browserCtx == nil {
		return nil, fmt.Errorf("browserscrape: Initialize was not called")
	}

	var lastErr error
	for _, pageURL := range mediaHostPaths(handle) {
		items, err := c.scrapeURL(ctx, pageURL, handle, opts)
		if err == nil {
			return items, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("browserscrape: all candidate urls failed for %q: %w", handle, lastErr)
}

func (c *Client) scrapeURL(ctx context.Context, pageURL, handle string, opts harvest.FetchOptions) ([]events.MediaItem, error) {
	navCtx, cancel := context.WithTimeout(c.browserCtx, defaultOperationTimeout)
	defer cancel()
	if err := chromedp.Run(navCtx, chromedp.Navigate(pageURL)); err != nil {
		return nil, fmt.Errorf("navigate to %s: %w", pageURL, err)
	}

	seen := make(map[string]bool)
	var out []events.MediaItem
	consecutiveEmpty := 0

	for round := 0; round < maxScrollRounds; round++ {
		extracted, err := c.extractRound(ctx)
		if err != nil {
			return nil, fmt.Errorf("extract round %d: %w", round, err)
		}

		added := 0
		for _, ex := range extracted {
			if !kindAllowed(ex.kind, opts.Kinds) {
				continue
			}
			key := ex.tweetID + "|" + string(ex.kind) + "|" + ex.url
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, events.MediaItem{
				ID:      fmt.Sprintf("%s_%d", ex.tweetID, len(out)),
				TweetID: ex.tweetID,
				Kind:    ex.kind,
				URL:     ex.url,
			})
			added++
			if opts.MaxTweets > 0 && len(out) >= opts.MaxTweets {
				return out, nil
			}
		}

		if added == 0 {
			consecutiveEmpty++
			if consecutiveEmpty >= maxConsecutiveEmpty {
				break
			}
		} else {
			consecutiveEmpty = 0
		}

		if err := c.scrollToBottom(ctx); err != nil {
			return nil, fmt.Errorf("scroll round %d: %w", round, err)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no media found for %q at %s", handle, pageURL)
	}
	return out, nil
}

func (c *Client) scrollToBottom(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(c.browserCtx, defaultOperationTimeout)
	defer cancel()
	return chromedp.Run(opCtx,
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(scrollSettleDelay),
	)
}

type extractedMedia struct {
	tweetID string
	kind    events.MediaKind
	url     string
}

// extractionScript walks every status-link-bearing article currently
// in the DOM and collects its image/video/gif media. It runs
// entirely client-side so one round trip covers the whole page.
const extractionScript = `
(() => {
  const out = [];
  document.querySelectorAll('article').forEach(article => {
    const link = article.querySelector('a[href*="/status/"]');
    if (!link) return;
    const m = link.href.match(/status\/(\d+)/);
    if (!m) return;
    const tweetId = m[1];
    article.querySelectorAll('img[src*="format=jpg"],img[src*="format=png"],img[src*="format=webp"]').forEach(img => {
      out.push({tweetId: tweetId, kind: "image", url: img.src});
    });
    article.querySelectorAll('video').forEach(video => {
      const source = video.querySelector('source');
      const url = source ? source.src : video.src;
      if (!url) return;
      const path = url.split('?')[0];
      const kind = (path.includes('/tweet_video/') || path.toLowerCase().endsWith('.gif')) ? "gif" : "video";
      out.push({tweetId: tweetId, kind: kind, url: url});
    });
  });
  return JSON.stringify(out);
})()
`

func (c *Client) extractRound(ctx context.Context) ([]extractedMedia, error) {
	opCtx, cancel := context.WithTimeout(c.browserCtx, defaultOperationTimeout)
	defer cancel()

	var raw string
	if err := chromedp.Run(opCtx, chromedp.Evaluate(extractionScript, &raw)); err != nil {
		return nil, err
	}
	return decodeExtraction(raw)
}

// decodeExtraction parses the JSON array extractionScript returns
// into Go values, split out from extractRound so it can be tested
// without a running browser.
func decodeExtraction(raw string) ([]extractedMedia, error) {
	var decoded []struct {
		TweetID string `json:"tweetId"`
		Kind    string `json:"kind"`
		URL     string `json:"url"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("decode DOM extraction result: %w", err)
	}

	out := make([]extractedMedia, 0, len(decoded))
	for _, d := range decoded {
		out = append(out, extractedMedia{tweetID: d.TweetID, kind: events.MediaKind(d.Kind), url: d.URL})
	}
	return out, nil
}

func kindAllowed(kind events.MediaKind, allowed []events.MediaKind) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, k := range allowed {
		if k == kind {
			return true
		}
	}
	return false
}
