package downloader

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/twharvest/twharvest/pkg/events"
	"github.com/twharvest/twharvest/pkg/timeutil"
)

// ledgerFile is the on-disk shape of <outDir>/.engine-cache/downloaded-media.json.
type ledgerFile struct {
	Version   int      `json:"version"`
	UpdatedAt string   `json:"updatedAt"`
	MediaKeys []string `json:"mediaKeys"`
}

func ledgerPath(outputDir string) string {
	return filepath.Join(outputDir, ".engine-cache", "downloaded-media.json")
}

// loadLedger loads the ledger for outputDir as a set of keys. Any
// read or decode error — missing file, truncated JSON, wrong shape —
// degrades silently to an empty set, per the design's durability note.
func loadLedger(outputDir string) map[string]bool {
	keys := make(map[string]bool)
	data, err := os.ReadFile(ledgerPath(outputDir))
	if err != nil {
		return keys
	}
	var lf ledgerFile
	if err := json.Unmarshal(data, &lf); err != nil {
		return keys
	}
	for _, k := range lf.MediaKeys {
		keys[k] = true
	}
	return keys
}

// saveLedger writes the ledger atomically via write-to-temp-then-rename.
func saveLedger(outputDir string, keys map[string]bool) error {
	path := ledgerPath(outputDir)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	mediaKeys := make([]string, 0, len(keys))
	for k := range keys {
		mediaKeys = append(mediaKeys, k)
	}

	lf := ledgerFile{
		Version:   1,
		UpdatedAt: timeutil.NowISO8601(),
		MediaKeys: mediaKeys,
	}
	data, err := json.MarshalIndent(lf, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// MediaKey returns the ledger de-duplication key for one item:
// lower(username) | tweetId | kind | normalize-url-for-key(url).
func MediaKey(username string, item events.MediaItem) string {
	return strings.ToLower(username) + "|" + item.TweetID + "|" + string(item.Kind) + "|" + normalizeURLForKey(item.URL)
}

// normalizeURLForKey drops the query string and fragment.
func normalizeURLForKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
