package xclient

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/twharvest/twharvest/pkg/events"
	"github.com/twharvest/twharvest/pkg/harvest"
)

// fetchLegacyTimeline is the fallback used when GraphQL resolution or
// pagination is exhausted. It walks statuses/user_timeline.json,
// decrementing max_id by one (as a bigint, since tweet ids exceed
// int64 in string form only rarely but are treated as bigints for
// safety) after each page.
func (c *Client) fetchLegacyTimeline(ctx context.Context, handle string, opts harvest.FetchOptions) ([]events.MediaItem, error) {
	seen := make(map[string]bool)
	var out []events.MediaItem
	maxID := ""

	for round := 0; round < maxPaginationRounds; round++ {
		remaining := maxLegacyPageSize
		if opts.MaxTweets > 0 {
			if r := opts.MaxTweets - len(out); r < remaining {
				remaining = r
			}
		}
		tweets, err := c.fetchLegacyPage(ctx, handle, maxID, remaining)
		if err != nil {
			if round == 0 {
				return nil, err
			}
			break
		}
		if len(tweets) == 0 {
			break
		}

		smallestID := ""
		addedThisRound := 0
		for _, tweet := range tweets {
			idStr, _ := tweet["id_str"].(string)
			if idStr != "" && (smallestID == "" || bigIntLess(idStr, smallestID)) {
				smallestID = idStr
			}
			if isRetweetLegacy(tweet) {
				continue
			}
			author, _ := digString(tweet, "user", "screen_name")
			if author != "" && !strings.EqualFold(author, handle) {
				continue
			}
			mediaList, ok := digSlice(tweet, "extended_entities", "media")
			if !ok {
				continue
			}
			for i, mAny := range mediaList {
				m, ok := mAny.(map[string]interface{})
				if !ok {
					continue
				}
				item, ok := mapMediaEntity(idStr, i, m)
				if !ok {
					continue
				}
				if !kindAllowed(item.Kind, opts.Kinds) {
					continue
				}
				key := item.TweetID + "|" + item.URL
				if seen[key] {
					continue
				}
				seen[key] = true
				out = append(out, item)
				addedThisRound++
			}
			if opts.MaxTweets > 0 && len(out) >= opts.MaxTweets {
				return trimToMax(out, opts.MaxTweets), nil
			}
		}

		if smallestID == "" || smallestID == maxID || addedThisRound == 0 {
			break
		}
		maxID = decrementBigInt(smallestID)
	}
	return out, nil
}

// maxLegacyPageSize is the largest page size the legacy
// statuses/user_timeline.json endpoint accepts.
const maxLegacyPageSize = 200

func (c *Client) fetchLegacyPage(ctx context.Context, handle, maxID string, count int) ([]map[string]interface{}, error) {
	if count <= 0 || count > maxLegacyPageSize {
		count = maxLegacyPageSize
	}
	var lastErr error
	for _, base := range c.urlBases() {
		reqURL := buildLegacyURL(base, handle, count, maxID)
		status, body, err := c.doRequest(ctx, reqURL)
		if err != nil {
			lastErr = err
			continue
		}
		if status/100 != 2 {
			if isAuthFailure(status, body) && c.tryRecoverAuth(ctx) {
				status, body, err = c.doRequest(ctx, reqURL)
			}
			if err != nil || status/100 != 2 {
				lastErr = fmt.Errorf("legacy timeline http %d", status)
				continue
			}
		}
		var tweets []map[string]interface{}
		if err := json.Unmarshal(body, &tweets); err != nil {
			lastErr = fmt.Errorf("decode legacy timeline: %w", err)
			continue
		}
		return tweets, nil
	}
	return nil, lastErr
}

func isRetweetLegacy(tweet map[string]interface{}) bool {
	_, ok := tweet["retweeted_status"]
	return ok
}

// bigIntLess reports whether a < b, comparing equal-or-unequal-length
// decimal tweet id strings as arbitrary-precision integers.
func bigIntLess(a, b string) bool {
	ai, aok := new(big.Int).SetString(a, 10)
	bi, bok := new(big.Int).SetString(b, 10)
	if !aok || !bok {
		return a < b
	}
	return ai.Cmp(bi) < 0
}

// decrementBigInt subtracts one from a decimal tweet id string so
// the next page's max_id excludes the page boundary.
func decrementBigInt(id string) string {
	n, ok := new(big.Int).SetString(id, 10)
	if !ok {
		return id
	}
	return n.Sub(n, big.NewInt(1)).String()
}
