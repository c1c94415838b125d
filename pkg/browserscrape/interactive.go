package browserscrape

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/twharvest/twharvest/pkg/cookies"
)

// pollInterval and maxWait bound InteractiveLogin's wait for the
// required cookies to appear after the user signs in by hand.
const (
	pollInterval = 2 * time.Second
	maxWait      = 5 * time.Minute
)

// InteractiveLogin opens a visible (non-headless) browser at the
// platform's login page, waits until the user has signed in and the
// required auth cookies are present, then returns the harvested
// cookie set. Ctx cancellation stops the wait and closes the browser.
func InteractiveLogin(ctx context.Context) ([]cookies.Cookie, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", false),
		chromedp.UserAgent(desktopUserAgent),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	loginURL := fmt.Sprintf("https://%s/login", cookies.PlatformDomains[0])
	if err := chromedp.Run(browserCtx, network.Enable(), chromedp.Navigate(loginURL)); err != nil {
		return nil, fmt.Errorf("open login page: %w", err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	deadline := time.After(maxWait)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, fmt.Errorf("timed out waiting for interactive login after %s", maxWait)
		case <-ticker.C:
			found, ok, err := pollRequiredCookies(browserCtx)
			if err != nil {
				return nil, err
			}
			if ok {
				return found, nil
			}
		}
	}
}

func pollRequiredCookies(browserCtx context.Context) ([]cookies.Cookie, bool, error) {
	var raw []*network.Cookie
	err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var urls []string
		for _, host := range cookies.PlatformDomains {
			urls = append(urls, "https://"+host)
		}
		got, err := network.GetCookies().WithUrls(urls).Do(ctx)
		if err != nil {
			return err
		}
		raw = got
		return nil
	}))
	if err != nil {
		return nil, false, fmt.Errorf("poll cookies: %w", err)
	}

	var out []cookies.Cookie
	for _, c := range raw {
		out = append(out, cookies.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		})
	}
	if len(cookies.ValidateRequired(out, cookies.RequiredCookieNames)) == 0 {
		return out, true, nil
	}
	return nil, false, nil
}
