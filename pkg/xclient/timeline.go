package xclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/twharvest/twharvest/pkg/events"
	"github.com/twharvest/twharvest/pkg/harvest"
)

// maxPaginationRounds bounds GraphQL and legacy pagination so a
// misbehaving cursor (one that never advances) cannot loop forever.
const maxPaginationRounds = 30

func (c *Client) resolveUserID(ctx context.Context, handle string) (string, error) {
	variables := map[string]interface{}{
		"screen_name":              handle,
		"withSafetyModeUserFields": true,
	}
	result, err := c.doGraphQL(ctx, "UserByScreenName", variables)
	if err != nil {
		return "", err
	}
	restID, ok := digString(result, "data", "user", "result", "rest_id")
	if !ok || restID == "" {
		return "", fmt.Errorf("rest_id not found in UserByScreenName response for %q", handle)
	}
	return restID, nil
}

func (c *Client) fetchGraphQLTimeline(ctx context.Context, handle, userID string, opts harvest.FetchOptions) ([]events.MediaItem, error) {
	seen := make(map[string]bool)
	var out []events.MediaItem
	cursor := ""

	for round := 0; round < maxPaginationRounds; round++ {
		variables := map[string]interface{}{
			"userId":                 userID,
			"count":                  100,
			"includePromotedContent": false,
			"withClientEventToken":   false,
			"withBirdwatchNotes":     false,
			"withVoice":              true,
			"withV2Timeline":         true,
		}
		if cursor != "" {
			variables["cursor"] = cursor
		}

		result, err := c.doGraphQL(ctx, "UserMedia", variables)
		if err != nil {
			if round == 0 {
				return nil, err
			}
			break
		}

		entries := timelineEntries(result)
		if len(entries) == 0 {
			break
		}

		nextCursor := ""
		addedThisRound := 0
		for _, entry := range entries {
			if cur, bottom := cursorValue(entry); bottom != "" {
				if bottom == "bottom" {
					nextCursor = cur
				}
				continue
			}
			for _, item := range mediaFromEntry(entry, handle) {
				key := item.TweetID + "|" + item.URL
				if seen[key] {
					continue
				}
				if !kindAllowed(item.Kind, opts.Kinds) {
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

		if nextCursor == "" || nextCursor == cursor || addedThisRound == 0 {
			break
		}
		cursor = nextCursor
	}
	return out, nil
}

func trimToMax(items []events.MediaItem, max int) []events.MediaItem {
	if max <= 0 || len(items) <= max {
		return items
	}
	return items[:max]
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

// timelineEntries digs out the flat list of timeline entries from a
// UserMedia/UserTweets GraphQL response, across the "TimelineAddEntries"
// instructions the platform wraps them in.
func timelineEntries(result map[string]interface{}) []map[string]interface{} {
	instructions, ok := digSlice(result, "data", "user", "result", "timeline_v2", "timeline", "instructions")
	if !ok {
		instructions, ok = digSlice(result, "data", "user", "result", "timeline", "timeline", "instructions")
		if !ok {
			return nil
		}
	}
	var entries []map[string]interface{}
	for _, instrAny := range instructions {
		instr, ok := instrAny.(map[string]interface{})
		if !ok {
			continue
		}
		typ, _ := instr["type"].(string)
		if typ != "TimelineAddEntries" {
			continue
		}
		rawEntries, ok := instr["entries"].([]interface{})
		if !ok {
			continue
		}
		for _, e := range rawEntries {
			if em, ok := e.(map[string]interface{}); ok {
				entries = append(entries, em)
			}
		}
	}
	return entries
}

// cursorValue reports whether entry is a cursor entry and, if so, its
// value and position ("top"/"bottom").
func cursorValue(entry map[string]interface{}) (value, position string) {
	entryID, _ := entry["entryId"].(string)
	if !strings.HasPrefix(entryID, "cursor-") {
		return "", ""
	}
	v, _ := digString(entry, "content", "value")
	ct, _ := digString(entry, "content", "cursorType")
	return v, strings.ToLower(ct)
}

// mediaFromEntry extracts zero or more MediaItems from a single
// timeline entry, applying the retweet/wrong-author/no-media
// exclusion rules.
func mediaFromEntry(entry map[string]interface{}, handle string) []events.MediaItem {
	tweet, ok := digMap(entry, "content", "itemContent", "tweet_results", "result")
	if !ok {
		return nil
	}
	// TweetWithVisibilityResults wraps the real tweet one level deeper.
	if typ, _ := tweet["__typename"].(string); typ == "TweetWithVisibilityResults" {
		if inner, ok := digMap(tweet, "tweet"); ok {
			tweet = inner
		}
	}

	legacy, ok := digMap(tweet, "legacy")
	if !ok {
		return nil
	}
	if _, retweeted := legacy["retweeted_status_result"]; retweeted {
		return nil
	}
	authorScreenName, _ := digString(tweet, "core", "user_results", "result", "legacy", "screen_name")
	if authorScreenName != "" && !strings.EqualFold(authorScreenName, handle) {
		return nil
	}

	tweetID, _ := legacy["id_str"].(string)
	if tweetID == "" {
		tweetID, _ = tweet["rest_id"].(string)
	}

	mediaList, ok := digSlice(legacy, "extended_entities", "media")
	if !ok {
		mediaList, ok = digSlice(legacy, "entities", "media")
		if !ok {
			return nil
		}
	}

	var out []events.MediaItem
	for i, mAny := range mediaList {
		m, ok := mAny.(map[string]interface{})
		if !ok {
			continue
		}
		item, ok := mapMediaEntity(tweetID, i, m)
		if ok {
			out = append(out, item)
		}
	}
	return out
}

// mapMediaEntity maps one extended_entities.media[] object to a
// MediaItem, choosing the highest-bitrate MP4 variant for video/gif.
func mapMediaEntity(tweetID string, index int, m map[string]interface{}) (events.MediaItem, bool) {
	typ, _ := m["type"].(string)
	var kind events.MediaKind
	var mediaURL string

	switch typ {
	case "photo":
		kind = events.KindImage
		mediaURL, _ = m["media_url_https"].(string)
	case "video":
		kind = events.KindVideo
		mediaURL = bestVariant(m)
	case "animated_gif":
		kind = events.KindGif
		mediaURL = bestVariant(m)
	default:
		return events.MediaItem{}, false
	}
	if mediaURL == "" {
		return events.MediaItem{}, false
	}
	if isTweetVideoPath(mediaURL) {
		kind = events.KindGif
	}
	id := fmt.Sprintf("%s_m%d", tweetID, index)
	return events.MediaItem{ID: id, TweetID: tweetID, Kind: kind, URL: mediaURL}, true
}

// isTweetVideoPath reports whether a media URL's path identifies it as
// a platform-transcoded gif (served as an mp4 under /tweet_video/)
// rather than a genuine video, or as a raw .gif file.
func isTweetVideoPath(rawURL string) bool {
	path := rawURL
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	return strings.Contains(path, "/tweet_video/") || strings.HasSuffix(strings.ToLower(path), ".gif")
}

// bestVariant picks the highest-bitrate video/mp4 variant, falling
// back to the highest-bitrate variant of any content type when no mp4
// variant is present rather than dropping the media entirely.
func bestVariant(m map[string]interface{}) string {
	variants, ok := digSlice(m, "video_info", "variants")
	if !ok {
		return ""
	}
	bestMP4Bitrate, bestMP4URL := -1, ""
	bestAnyBitrate, bestAnyURL := -1, ""
	for _, vAny := range variants {
		v, ok := vAny.(map[string]interface{})
		if !ok {
			continue
		}
		contentType, _ := v["content_type"].(string)
		bitrate := 0
		if b, ok := v["bitrate"].(float64); ok {
			bitrate = int(b)
		}
		url, _ := v["url"].(string)
		if bitrate >= bestAnyBitrate {
			bestAnyBitrate = bitrate
			bestAnyURL = url
		}
		if contentType == "video/mp4" && bitrate >= bestMP4Bitrate {
			bestMP4Bitrate = bitrate
			bestMP4URL = url
		}
	}
	if bestMP4URL != "" {
		return bestMP4URL
	}
	return bestAnyURL
}

// digMap/digSlice/digString walk a chain of map keys through a
// decoded JSON document, returning ok=false at the first missing or
// mistyped step instead of panicking.
func digMap(m map[string]interface{}, keys ...string) (map[string]interface{}, bool) {
	cur := m
	for _, k := range keys {
		next, ok := cur[k]
		if !ok {
			return nil, false
		}
		cur, ok = next.(map[string]interface{})
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func digSlice(m map[string]interface{}, keys ...string) ([]interface{}, bool) {
	if len(keys) == 0 {
		return nil, false
	}
	parent, ok := digMap(m, keys[:len(keys)-1]...)
	if !ok {
		return nil, false
	}
	s, ok := parent[keys[len(keys)-1]].([]interface{})
	return s, ok
}

func digString(m map[string]interface{}, keys ...string) (string, bool) {
	if len(keys) == 0 {
		return "", false
	}
	parent, ok := digMap(m, keys[:len(keys)-1]...)
	if !ok {
		return "", false
	}
	s, ok := parent[keys[len(keys)-1]].(string)
	return s, ok
}
