package xclient

// defaultBearerToken is the desktop web client's bearer token,
// embedded in the platform's own JS bundle rather than a secret the
// caller must supply. Overridable via config.BearerTokenEnvVar.
const defaultBearerToken = "AAAAAAAAAAAAAAAAAAAAAMHCAAAAAAAA%2FxbcXXXXXXXXXXXXXXXXXXXXXXXXX"

// PlatformHosts are the two logically equivalent hostnames tried in
// sequence for every request.
var PlatformHosts = []string{"twitter-like.tld", "x-like.tld"}

var apiPathPrefixes = []string{"/i/api", "/api"}

// defaultURLBases returns the four URL bases tried in sequence for
// one logical request: each of the two hostnames paired with each of
// the two api path prefixes.
func defaultURLBases() []string {
	bases := make([]string, 0, len(PlatformHosts)*len(apiPathPrefixes))
	for _, host := range PlatformHosts {
		for _, prefix := range apiPathPrefixes {
			bases = append(bases, "https://"+host+prefix)
		}
	}
	return bases
}

// defaultHomeURL is the platform home page used for ct0 refresh and
// for discovering the client's JS bundles.
func defaultHomeURL() string {
	return "https://" + PlatformHosts[1] + "/"
}

// urlBases returns c.baseURLs if a test has overridden it, otherwise
// the real platform URL bases.
func (c *Client) urlBases() []string {
	if len(c.baseURLs) > 0 {
		return c.baseURLs
	}
	return defaultURLBases()
}

// homeURL returns c.homeURLOverride if a test has set it, otherwise
// the real platform home page.
func (c *Client) homeURL() string {
	if c.homeURLOverride != "" {
		return c.homeURLOverride
	}
	return defaultHomeURL()
}

func defaultOperationIDs() map[string][]string {
	return map[string][]string{
		"UserByScreenName": {"G3KGOASz96M-Qu0nwmGXNg"},
		"UserMedia":        {"YqiE3JL1KNgo-MEKiSaJ0Q"},
		"UserTweets":       {"HuTPUEkPVtaEKu2eIfLBdA"},
	}
}

func defaultFeatures() map[string]bool {
	return map[string]bool{
		"responsive_web_graphql_timeline_navigation_enabled":                true,
		"responsive_web_graphql_skip_user_profile_image_extensions_enabled": false,
		"creator_subscriptions_tweet_preview_api_enabled":                   true,
		"tweetypie_unmention_optimization_enabled":                          true,
		"verified_phone_label_enabled":                                      false,
		"responsive_web_graphql_exclude_directive_enabled":                  true,
		"standardized_nudges_misinfo":                                       true,
		"longform_notetweets_consumption_enabled":                           true,
		"view_counts_everywhere_api_enabled":                                true,
	}
}
