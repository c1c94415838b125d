// Package xclient implements the structured-API scraper: it resolves
// a handle to a user id and paginates that user's media timeline
// through the platform's GraphQL surface, rotating auth triples and
// bearer tokens and discovering operation ids and feature flags at
// runtime, with a legacy-timeline fallback.
package xclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/twharvest/twharvest/pkg/config"
	"github.com/twharvest/twharvest/pkg/errors"
	"github.com/twharvest/twharvest/pkg/events"
	"github.com/twharvest/twharvest/pkg/harvest"
	"github.com/twharvest/twharvest/pkg/logger"
	"github.com/twharvest/twharvest/pkg/ratelimit"
	"github.com/twharvest/twharvest/pkg/session"
)

var _ harvest.Scraper = (*Client)(nil)

// Client is the structured-API scraper. One instance is created per
// job and disposed at job end.
type Client struct {
	httpClient *http.Client
	logger     logger.Logger
	state      *rotationState
	session    session.Session
	limiter    ratelimit.Limiter

	// baseURLs and homeURLOverride let tests point the client at an
	// httptest server instead of the real platform hosts.
	baseURLs        []string
	homeURLOverride string
}

// New returns a Client configured from cfg. The bearer token
// defaults to the built-in constant unless cfg.BearerToken (itself
// overridable via config.BearerTokenEnvVar) is set.
func New(cfg config.EngineConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	bearer := cfg.BearerToken
	if bearer == "" {
		bearer = defaultBearerToken
	}
	return &Client{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		logger:     log.WithField("component", "xclient"),
		state:      newRotationState(nil, bearer),
	}
}

// SetRateLimiter installs lim to pace every outgoing GraphQL/legacy
// request through doRequest. A nil Client field (the default) applies
// no pacing.
func (c *Client) SetRateLimiter(lim ratelimit.Limiter) {
	c.limiter = lim
}

// Initialize extracts the auth triples available from sess and
// resets rotation state. It is safe to call once per job.
func (c *Client) Initialize(sess session.Session) error {
	c.session = sess
	triples := session.ExtractAuthTriples(sess)
	c.state.triples = triples
	c.state.tripleIdx = 0
	c.state.bearerIdx = 0
	return nil
}

// Close releases no resources; xclient owns nothing beyond an
// *http.Client, but implements Scraper's lifecycle for symmetry with
// the browser scraper.
func (c *Client) Close() error { return nil }

// FetchUserMedia resolves handle to a user id, paginates its media
// timeline via GraphQL, falls back to the legacy timeline API if
// GraphQL is exhausted, and returns a de-duplicated, kind-filtered
// list of at most opts.MaxTweets worth of media.
func (c *Client) FetchUserMedia(ctx context.Context, handle string, opts harvest.FetchOptions) ([]events.MediaItem, error) {
	userID, err := c.resolveUserID(ctx, handle)
	if err != nil {
		items, legacyErr := c.fetchLegacyTimeline(ctx, handle, opts)
		if legacyErr != nil {
			return nil, errors.Wrap(errors.Internal, fmt.Errorf("resolve user %q: %w; legacy fallback: %w", handle, err, legacyErr))
		}
		return items, nil
	}

	items, err := c.fetchGraphQLTimeline(ctx, handle, userID, opts)
	if err != nil {
		legacyItems, legacyErr := c.fetchLegacyTimeline(ctx, handle, opts)
		if legacyErr != nil {
			return nil, errors.Wrap(errors.Internal, fmt.Errorf("graphql timeline: %w; legacy fallback: %w", err, legacyErr))
		}
		return legacyItems, nil
	}
	return items, nil
}

func (c *Client) currentHeaders() (map[string]string, error) {
	triple, ok := c.state.currentTriple()
	if !ok {
		// Guest/anonymous session: no auth_token/ct0 pair available.
		triple = session.AuthTriple{}
	}
	bearer, ok := c.state.currentBearer()
	if !ok {
		return nil, fmt.Errorf("no bearer token candidates remain")
	}

	cookie := fmt.Sprintf("auth_token=%s; ct0=%s", triple.AuthToken, triple.CT0)
	if rest := session.FirstPairCookieHeader(c.session); rest != "" {
		cookie = cookie + "; " + rest
	}

	headers := map[string]string{
		"Authorization":             "Bearer " + bearer,
		"x-csrf-token":              triple.CT0,
		"x-twitter-auth-type":       "OAuth2Session",
		"x-twitter-active-user":     "yes",
		"x-twitter-client-language": "en",
		"Referer":                   c.homeURL(),
		"Origin":                    strings.TrimSuffix(c.homeURL(), "/"),
		"User-Agent":                desktopUserAgent,
		"Cookie":                    cookie,
	}
	if triple.GuestToken != "" {
		headers["x-guest-token"] = triple.GuestToken
	}
	return headers, nil
}

const desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0 Safari/537.36"

// doRequest issues one GET with the current rotation-state headers
// and returns the raw status and body.
func (c *Client) doRequest(ctx context.Context, rawURL string) (int, []byte, error) {
	if c.limiter != nil {
		c.limiter.Wait()
	}
	headers, err := c.currentHeaders()
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}
	if !strings.Contains(contentType, "application/json") && resp.StatusCode/100 == 2 {
		return resp.StatusCode, body, fmt.Errorf("non-JSON response (content-type %q)", contentType)
	}
	return resp.StatusCode, body, nil
}

// isAuthFailure reports whether a response signals an authentication
// problem the three-step recovery sequence might fix: HTTP 401 with
// error code 32, or an "authenticate" mention, or HTTP 404 with a
// not-found body.
func isAuthFailure(status int, body []byte) bool {
	lower := strings.ToLower(string(body))
	if status == 401 {
		if strings.Contains(string(body), `"code":32`) || strings.Contains(lower, "authenticate") {
			return true
		}
	}
	if status == 404 {
		if strings.Contains(lower, "not found") || strings.Contains(lower, "page does not exist") {
			return true
		}
	}
	return false
}

// extractMissingFeatures parses a GraphQL error body of the shape
// `features cannot be null: <names>` and returns the named flags.
func extractMissingFeatures(parsed map[string]interface{}) []string {
	errs, ok := parsed["errors"].([]interface{})
	if !ok {
		return nil
	}
	var missing []string
	for _, e := range errs {
		em, ok := e.(map[string]interface{})
		if !ok {
			continue
		}
		msg, _ := em["message"].(string)
		const marker = "features cannot be null:"
		idx := strings.Index(msg, marker)
		if idx < 0 {
			continue
		}
		rest := strings.TrimSpace(msg[idx+len(marker):])
		for _, name := range strings.Split(rest, ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				missing = append(missing, name)
			}
		}
	}
	return missing
}

// attemptOutcome classifies a single GraphQL attempt so the caller
// can decide whether to retry auth recovery, a metadata refresh, or
// simply move on to the next URL base.
type attemptOutcome int

const (
	outcomeSuccess attemptOutcome = iota
	outcomeAuthFailure
	outcomeOtherFailure
)

func (c *Client) attemptOnce(ctx context.Context, base, opName, opID string, variables map[string]interface{}) (map[string]interface{}, attemptOutcome, error) {
	const maxFeatureIterations = 4
	for iter := 0; iter < maxFeatureIterations; iter++ {
		reqURL := buildGraphQLURL(base, opID, opName, variables, c.state.featuresSnapshot())
		status, body, err := c.doRequest(ctx, reqURL)
		if err != nil {
			return nil, outcomeOtherFailure, err
		}
		if status/100 != 2 {
			if isAuthFailure(status, body) {
				return nil, outcomeAuthFailure, fmt.Errorf("auth failure (status %d)", status)
			}
			return nil, outcomeOtherFailure, fmt.Errorf("http %d", status)
		}

		var parsed map[string]interface{}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, outcomeOtherFailure, fmt.Errorf("decode response: %w", err)
		}
		if missing := extractMissingFeatures(parsed); len(missing) > 0 {
			c.state.disableFeatures(missing)
			continue
		}
		return parsed, outcomeSuccess, nil
	}
	return nil, outcomeOtherFailure, fmt.Errorf("feature flag negotiation did not converge after %d attempts", maxFeatureIterations)
}

// tryRecoverAuth performs the three-step recovery sequence: advance
// to the next auth triple, attempt a ct0 refresh from the home page,
// then advance to the next bearer candidate. It returns true if any
// step produced a change worth retrying with.
func (c *Client) tryRecoverAuth(ctx context.Context) bool {
	if c.state.advanceTriple() {
		return true
	}
	if newCT0, err := c.refreshCT0(ctx); err == nil && newCT0 != "" {
		c.state.refreshCT0(newCT0)
		return true
	}
	return c.state.advanceBearer()
}

// refreshCT0 GETs the platform home page with just the current
// auth_token and harvests a new ct0 from Set-Cookie.
func (c *Client) refreshCT0(ctx context.Context) (string, error) {
	triple, ok := c.state.currentTriple()
	if !ok {
		return "", fmt.Errorf("no current auth triple")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.homeURL(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Cookie", "auth_token="+triple.AuthToken)
	req.Header.Set("User-Agent", desktopUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	for _, cookie := range resp.Cookies() {
		if strings.EqualFold(cookie.Name, "ct0") {
			return cookie.Value, nil
		}
	}
	return "", fmt.Errorf("no ct0 cookie in response")
}

// tryOperation runs the four-url-base fan-out, with auth recovery and
// a bounded metadata-refresh pass, for one operation id.
func (c *Client) tryOperation(ctx context.Context, opName, opID string, variables map[string]interface{}) (map[string]interface{}, error) {
	metadataRefreshed := false
	var lastErr error

	for _, base := range c.urlBases() {
		result, outcome, err := c.attemptOnce(ctx, base, opName, opID, variables)
		if outcome == outcomeSuccess {
			return result, nil
		}
		lastErr = err

		if outcome != outcomeAuthFailure {
			continue
		}

		if c.tryRecoverAuth(ctx) {
			if result, outcome, err := c.attemptOnce(ctx, base, opName, opID, variables); outcome == outcomeSuccess {
				return result, nil
			} else {
				lastErr = err
			}
		}

		if !metadataRefreshed {
			metadataRefreshed = true
			if refreshErr := c.metadataRefreshPass(ctx); refreshErr == nil {
				if result, outcome, err := c.attemptOnce(ctx, base, opName, opID, variables); outcome == outcomeSuccess {
					return result, nil
				} else {
					lastErr = err
				}
			}
		}
	}
	return nil, fmt.Errorf("%s/%s: %w", opName, opID, lastErr)
}

// doGraphQL tries every known operation id for opName until one
// succeeds, aggregating failures into a single error when all fail.
func (c *Client) doGraphQL(ctx context.Context, opName string, variables map[string]interface{}) (map[string]interface{}, error) {
	var failures []string
	for _, opID := range c.state.opIDs[opName] {
		result, err := c.tryOperation(ctx, opName, opID, variables)
		if err == nil {
			return result, nil
		}
		failures = append(failures, err.Error())
	}
	return nil, fmt.Errorf("all bases/operation ids exhausted for %s: %s", opName, strings.Join(failures, "; "))
}
