package xclient

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// buildGraphQLURL assembles a GraphQL GET request URL from a url
// base, operation id/name, and the variables/features JSON blobs the
// platform's web client sends as query parameters.
func buildGraphQLURL(base, opID, opName string, variables map[string]interface{}, features map[string]bool) string {
	varsJSON, _ := json.Marshal(variables)
	featJSON, _ := json.Marshal(features)
	return fmt.Sprintf("%s/graphql/%s/%s?variables=%s&features=%s",
		base, opID, opName, url.QueryEscape(string(varsJSON)), url.QueryEscape(string(featJSON)))
}

// buildLegacyURL assembles a legacy statuses/user_timeline.json
// request URL, the fallback used when GraphQL is exhausted.
func buildLegacyURL(base, screenName string, count int, maxID string) string {
	v := url.Values{}
	v.Set("screen_name", screenName)
	v.Set("count", fmt.Sprintf("%d", count))
	v.Set("include_rts", "false")
	v.Set("exclude_replies", "true")
	v.Set("tweet_mode", "extended")
	v.Set("include_ext_alt_text", "true")
	if maxID != "" {
		v.Set("max_id", maxID)
	}
	return base + "/1.1/statuses/user_timeline.json?" + v.Encode()
}
