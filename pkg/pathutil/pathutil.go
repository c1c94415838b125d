// Package pathutil builds the per-OS-safe directory and filename
// layout the downloader writes media into.
package pathutil

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/twharvest/twharvest/pkg/events"
)

var unsafeChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`)

// Sanitize replaces every character forbidden in a filename on any
// common filesystem with "_", trims surrounding whitespace, and
// falls back to "unknown" for an empty result.
func Sanitize(s string) string {
	s = unsafeChars.ReplaceAllString(s, "_")
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return s
}

var extFromFormat = regexp.MustCompile(`^[a-z0-9]+$`)

// Extension resolves the file extension for a MediaItem: it prefers
// a `?format=<e>` query parameter when e matches [a-z0-9]+, then the
// path suffix, then a kind-based default.
func Extension(item events.MediaItem) string {
	if u, err := url.Parse(item.URL); err == nil {
		if format := u.Query().Get("format"); extFromFormat.MatchString(format) {
			return format
		}
		if idx := strings.LastIndex(u.Path, "."); idx >= 0 && idx < len(u.Path)-1 {
			suffix := strings.ToLower(u.Path[idx+1:])
			if extFromFormat.MatchString(suffix) {
				return suffix
			}
		}
	}
	switch item.Kind {
	case events.KindGif:
		return "gif"
	case events.KindVideo:
		return "mp4"
	default:
		return "jpg"
	}
}

// BuildFilename returns "<sanitize(tweetId)>_<sanitize(mediaId)>.<ext>".
// mediaID is the item's ID with its tweetID prefix stripped when
// present, since MediaItem.ID is conventionally "<tweetId>_<mediaId>".
func BuildFilename(item events.MediaItem) string {
	mediaID := item.ID
	if prefix := item.TweetID + "_"; strings.HasPrefix(mediaID, prefix) {
		mediaID = mediaID[len(prefix):]
	}
	return fmt.Sprintf("%s_%s.%s", Sanitize(item.TweetID), Sanitize(mediaID), Extension(item))
}
