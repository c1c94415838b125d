package xclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
)

// bundleScriptPattern finds <script src="...main.<hash>.js"> tags in
// the platform's server-rendered home page markup.
var bundleScriptPattern = regexp.MustCompile(`src="(https://[^"]*main\.[0-9a-f]+\.js)"`)

// bearerTokenPattern finds bearer token literals embedded in the JS
// bundle, of the platform's usual "AAAAAAAAAAAAAAAAAAAAA..." shape.
var bearerTokenPattern = regexp.MustCompile(`AAAAAAAAAAAAAAAAAAAAA[A-Za-z0-9%]{30,}`)

// operationIDPattern finds GraphQL operation id/name pairs the
// platform's bundle embeds as queryId/operationName literals, in
// either field order.
var operationIDPattern = regexp.MustCompile(`queryId:"([A-Za-z0-9_-]+)"[^}]{0,80}?operationName:"([A-Za-z0-9_]+)"|operationName:"([A-Za-z0-9_]+)"[^}]{0,80}?queryId:"([A-Za-z0-9_-]+)"`)

// metadataRefreshPass fetches the platform home page, locates its
// main JS bundle, and scans it for fresh bearer tokens and GraphQL
// operation ids, merging anything discovered into the rotation
// state. It is run at most once per failing operation attempt.
func (c *Client) metadataRefreshPass(ctx context.Context) error {
	homeBody, err := c.getRaw(ctx, c.homeURL())
	if err != nil {
		return fmt.Errorf("fetch home page: %w", err)
	}

	match := bundleScriptPattern.FindStringSubmatch(string(homeBody))
	if match == nil {
		return fmt.Errorf("no main.js bundle found in home page markup")
	}
	bundleBody, err := c.getRaw(ctx, match[1])
	if err != nil {
		return fmt.Errorf("fetch bundle %s: %w", match[1], err)
	}
	bundle := string(bundleBody)

	if tokens := bearerTokenPattern.FindAllString(bundle, -1); len(tokens) > 0 {
		c.state.mergeBearers(tokens)
	}

	discovered := map[string][]string{}
	for _, m := range operationIDPattern.FindAllStringSubmatch(bundle, -1) {
		queryID, opName := m[1], m[2]
		if queryID == "" {
			queryID, opName = m[4], m[3]
		}
		if queryID == "" || opName == "" {
			continue
		}
		discovered[opName] = append(discovered[opName], queryID)
	}
	for opName, ids := range discovered {
		c.state.mergeOperationIDs(opName, ids)
	}
	return nil
}

// getRaw performs a plain, unauthenticated GET, used for the home
// page and bundle fetches where no Cookie/Authorization header is
// appropriate.
func (c *Client) getRaw(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", desktopUserAgent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
