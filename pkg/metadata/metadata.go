// Package metadata writes the best-effort per-account sidecar file
// that records what a batch run downloaded for one handle: one entry
// per media item, independent of and in addition to the downloader's
// own resume ledger.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/twharvest/twharvest/pkg/events"
)

const fileName = ".metadata.json"

// Entry is one item's worth of sidecar metadata.
type Entry struct {
	TweetID      string           `json:"tweetId"`
	MediaID      string           `json:"mediaId"`
	Kind         events.MediaKind `json:"kind"`
	URL          string           `json:"url"`
	CreatedAt    string           `json:"createdAt,omitempty"`
	FilenameHint string           `json:"filenameHint,omitempty"`
}

// accountMetadata is the on-disk shape of <outDir>/<handle>/.metadata.json.
type accountMetadata struct {
	Username  string    `json:"username"`
	UpdatedAt time.Time `json:"updatedAt"`
	Items     []Entry   `json:"items"`
}

func sidecarPath(accountDir string) string {
	return filepath.Join(accountDir, fileName)
}

// Write merges items into accountDir's sidecar file, keyed by
// (tweetId, mediaId), and writes it back atomically. Write never
// returns an error for a caller that wants to ignore it: a batch job
// that can't write its sidecar still counts every download as a
// success, matching the "don't fail the operation" policy the rest
// of the pipeline applies to its own bookkeeping.
func Write(accountDir, username string, items []events.MediaItem) error {
	if len(items) == 0 {
		return nil
	}

	existing, _ := Load(accountDir)
	merged := make(map[string]Entry, len(items))
	if existing != nil {
		for _, e := range existing.Items {
			merged[e.TweetID+"/"+e.MediaID] = e
		}
	}
	for _, item := range items {
		merged[item.TweetID+"/"+item.ID] = Entry{
			TweetID:      item.TweetID,
			MediaID:      item.ID,
			Kind:         item.Kind,
			URL:          item.URL,
			CreatedAt:    item.CreatedAt,
			FilenameHint: item.FilenameHint,
		}
	}

	out := accountMetadata{
		Username:  username,
		UpdatedAt: time.Now().UTC(),
		Items:     make([]Entry, 0, len(merged)),
	}
	for _, e := range merged {
		out.Items = append(out.Items, e)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal account metadata: %w", err)
	}

	if err := os.MkdirAll(accountDir, 0755); err != nil {
		return fmt.Errorf("create account directory: %w", err)
	}

	tmp := sidecarPath(accountDir) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write account metadata: %w", err)
	}
	if err := os.Rename(tmp, sidecarPath(accountDir)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename account metadata: %w", err)
	}
	return nil
}

// Load reads an account's sidecar file, if present.
func Load(accountDir string) (*accountMetadata, error) {
	data, err := os.ReadFile(sidecarPath(accountDir))
	if err != nil {
		return nil, err
	}
	var meta accountMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal account metadata: %w", err)
	}
	return &meta, nil
}
