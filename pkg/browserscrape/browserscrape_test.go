package browserscrape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twharvest/twharvest/pkg/events"
)

func TestMediaHostPathsCoversBothDomainsAndBothShapes(t *testing.T) {
	urls := mediaHostPaths("alice")
	require.Len(t, urls, 4)
	assert.Contains(t, urls[0], "x-like.tld/alice/media")
	assert.Contains(t, urls[1], "x-like.tld/search")
	assert.Contains(t, urls[2], "twitter-like.tld/alice/media")
	assert.Contains(t, urls[3], "twitter-like.tld/search")
}

func TestKindAllowed(t *testing.T) {
	assert.True(t, kindAllowed(events.KindImage, nil))
	assert.True(t, kindAllowed(events.KindVideo, []events.MediaKind{events.KindImage, events.KindVideo}))
	assert.False(t, kindAllowed(events.KindGif, []events.MediaKind{events.KindImage, events.KindVideo}))
}

func TestDecodeExtraction(t *testing.T) {
	raw := `[
		{"tweetId":"1","kind":"image","url":"https://cdn.example.com/a.jpg"},
		{"tweetId":"2","kind":"video","url":"https://cdn.example.com/b.mp4"},
		{"tweetId":"3","kind":"gif","url":"https://cdn.example.com/c.mp4"}
	]`

	items, err := decodeExtraction(raw)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, extractedMedia{tweetID: "1", kind: events.KindImage, url: "https://cdn.example.com/a.jpg"}, items[0])
	assert.Equal(t, events.KindVideo, items[1].kind)
	assert.Equal(t, events.KindGif, items[2].kind)
}

func TestDecodeExtractionEmptyArray(t *testing.T) {
	items, err := decodeExtraction(`[]`)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDecodeExtractionMalformedJSON(t *testing.T) {
	_, err := decodeExtraction(`not json`)
	assert.Error(t, err)
}

func TestCloseIsSafeWithoutInitialize(t *testing.T) {
	c := New(nil)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}
