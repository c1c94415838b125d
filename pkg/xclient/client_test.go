package xclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twharvest/twharvest/pkg/config"
	"github.com/twharvest/twharvest/pkg/events"
	"github.com/twharvest/twharvest/pkg/harvest"
	"github.com/twharvest/twharvest/pkg/logger"
)

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	c := New(config.EngineConfig{Name: "graphql"}, logger.GetLogger())
	c.baseURLs = []string{server.URL}
	c.homeURLOverride = server.URL + "/"
	t.Cleanup(server.Close)
	return c
}

// graphqlHandler builds a mux that serves UserByScreenName and
// UserMedia responses from in-memory fixtures, keyed by operation
// name extracted from the request path.
func graphqlHandler(t *testing.T, userByScreenName, userMediaPage1, userMediaPage2 map[string]interface{}) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/graphql/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/graphql/"), "/")
		require.Len(t, parts, 2)
		opName := parts[1]

		w.Header().Set("Content-Type", "application/json")
		switch opName {
		case "UserByScreenName":
			json.NewEncoder(w).Encode(userByScreenName)
		case "UserMedia":
			variablesRaw := r.URL.Query().Get("variables")
			var variables map[string]interface{}
			_ = json.Unmarshal([]byte(variablesRaw), &variables)
			if _, hasCursor := variables["cursor"]; hasCursor {
				json.NewEncoder(w).Encode(userMediaPage2)
			} else {
				json.NewEncoder(w).Encode(userMediaPage1)
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	return mux
}

func tweetEntry(entryID, tweetID, screenName string, media []map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"entryId": entryID,
		"content": map[string]interface{}{
			"itemContent": map[string]interface{}{
				"tweet_results": map[string]interface{}{
					"result": map[string]interface{}{
						"rest_id": tweetID,
						"core": map[string]interface{}{
							"user_results": map[string]interface{}{
								"result": map[string]interface{}{
									"legacy": map[string]interface{}{"screen_name": screenName},
								},
							},
						},
						"legacy": map[string]interface{}{
							"id_str": tweetID,
							"extended_entities": map[string]interface{}{
								"media": toInterfaceSlice(media),
							},
						},
					},
				},
			},
		},
	}
}

func cursorEntry(value, position string) map[string]interface{} {
	cursorType := "Bottom"
	if position == "top" {
		cursorType = "Top"
	}
	return map[string]interface{}{
		"entryId": "cursor-" + position + "-1",
		"content": map[string]interface{}{
			"value":      value,
			"cursorType": cursorType,
		},
	}
}

func toInterfaceSlice(media []map[string]interface{}) []interface{} {
	out := make([]interface{}, len(media))
	for i, m := range media {
		out[i] = m
	}
	return out
}

func timelineResponse(entries ...map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"data": map[string]interface{}{
			"user": map[string]interface{}{
				"result": map[string]interface{}{
					"timeline_v2": map[string]interface{}{
						"timeline": map[string]interface{}{
							"instructions": []interface{}{
								map[string]interface{}{
									"type":    "TimelineAddEntries",
									"entries": toInterfaceSlice(entries),
								},
							},
						},
					},
				},
			},
		},
	}
}

func TestFetchUserMediaResolvesAndPaginates(t *testing.T) {
	userByScreenName := map[string]interface{}{
		"data": map[string]interface{}{
			"user": map[string]interface{}{
				"result": map[string]interface{}{"rest_id": "999"},
			},
		},
	}
	page1 := timelineResponse(
		tweetEntry("tweet-1", "1", "alice", []map[string]interface{}{
			{"type": "photo", "media_url_https": "https://cdn.example.com/a.jpg"},
		}),
		cursorEntry("CURSOR-PAGE-2", "bottom"),
	)
	page2 := timelineResponse(
		tweetEntry("tweet-2", "2", "alice", []map[string]interface{}{
			{"type": "photo", "media_url_https": "https://cdn.example.com/b.jpg"},
		}),
		cursorEntry("CURSOR-PAGE-2", "bottom"),
	)

	server := httptest.NewServer(graphqlHandler(t, userByScreenName, page1, page2))
	c := newTestClient(t, server)

	items, err := c.FetchUserMedia(context.Background(), "alice", harvest.FetchOptions{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, events.KindImage, items[0].Kind)
	assert.Equal(t, "https://cdn.example.com/a.jpg", items[0].URL)
	assert.Equal(t, "https://cdn.example.com/b.jpg", items[1].URL)
}

func TestFetchUserMediaExcludesOtherAuthors(t *testing.T) {
	userByScreenName := map[string]interface{}{
		"data": map[string]interface{}{
			"user": map[string]interface{}{"result": map[string]interface{}{"rest_id": "1"}},
		},
	}
	page := timelineResponse(
		tweetEntry("tweet-1", "1", "alice", []map[string]interface{}{
			{"type": "photo", "media_url_https": "https://cdn.example.com/a.jpg"},
		}),
		tweetEntry("tweet-2", "2", "someone-else", []map[string]interface{}{
			{"type": "photo", "media_url_https": "https://cdn.example.com/x.jpg"},
		}),
	)
	server := httptest.NewServer(graphqlHandler(t, userByScreenName, page, page))
	c := newTestClient(t, server)

	items, err := c.FetchUserMedia(context.Background(), "alice", harvest.FetchOptions{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://cdn.example.com/a.jpg", items[0].URL)
}

func TestFetchUserMediaFiltersByKind(t *testing.T) {
	userByScreenName := map[string]interface{}{
		"data": map[string]interface{}{
			"user": map[string]interface{}{"result": map[string]interface{}{"rest_id": "1"}},
		},
	}
	page := timelineResponse(
		tweetEntry("tweet-1", "1", "alice", []map[string]interface{}{
			{"type": "photo", "media_url_https": "https://cdn.example.com/a.jpg"},
			{"type": "video", "video_info": map[string]interface{}{
				"variants": []interface{}{
					map[string]interface{}{"content_type": "video/mp4", "bitrate": float64(640000), "url": "https://cdn.example.com/a-low.mp4"},
					map[string]interface{}{"content_type": "video/mp4", "bitrate": float64(2176000), "url": "https://cdn.example.com/a-high.mp4"},
				},
			}},
		}),
	)
	server := httptest.NewServer(graphqlHandler(t, userByScreenName, page, page))
	c := newTestClient(t, server)

	items, err := c.FetchUserMedia(context.Background(), "alice", harvest.FetchOptions{Kinds: []events.MediaKind{events.KindVideo}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, events.KindVideo, items[0].Kind)
	assert.Equal(t, "https://cdn.example.com/a-high.mp4", items[0].URL, "should pick the highest-bitrate mp4 variant")
}

func TestFetchUserMediaReclassifiesTweetVideoPathAsGif(t *testing.T) {
	userByScreenName := map[string]interface{}{
		"data": map[string]interface{}{
			"user": map[string]interface{}{"result": map[string]interface{}{"rest_id": "1"}},
		},
	}
	page := timelineResponse(
		tweetEntry("tweet-1", "1", "alice", []map[string]interface{}{
			{"type": "animated_gif", "video_info": map[string]interface{}{
				"variants": []interface{}{
					map[string]interface{}{"content_type": "video/mp4", "bitrate": float64(0), "url": "https://video.example.com/tweet_video/abc.mp4"},
				},
			}},
		}),
	)
	server := httptest.NewServer(graphqlHandler(t, userByScreenName, page, page))
	c := newTestClient(t, server)

	items, err := c.FetchUserMedia(context.Background(), "alice", harvest.FetchOptions{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, events.KindGif, items[0].Kind)
}

func TestFetchUserMediaFallsBackToNonMP4VariantWithoutMP4(t *testing.T) {
	userByScreenName := map[string]interface{}{
		"data": map[string]interface{}{
			"user": map[string]interface{}{"result": map[string]interface{}{"rest_id": "1"}},
		},
	}
	page := timelineResponse(
		tweetEntry("tweet-1", "1", "alice", []map[string]interface{}{
			{"type": "video", "video_info": map[string]interface{}{
				"variants": []interface{}{
					map[string]interface{}{"content_type": "application/x-mpegURL", "bitrate": float64(0), "url": "https://cdn.example.com/a.m3u8"},
				},
			}},
		}),
	)
	server := httptest.NewServer(graphqlHandler(t, userByScreenName, page, page))
	c := newTestClient(t, server)

	items, err := c.FetchUserMedia(context.Background(), "alice", harvest.FetchOptions{})
	require.NoError(t, err)
	require.Len(t, items, 1, "a video with no mp4 variant should fall back instead of being dropped")
	assert.Equal(t, "https://cdn.example.com/a.m3u8", items[0].URL)
}

func TestBuildLegacyURLIncludesAltTextAndCappedCount(t *testing.T) {
	u := buildLegacyURL("https://api.example.com", "alice", 500, "999")
	assert.Contains(t, u, "include_ext_alt_text=true")
	assert.Contains(t, u, "count=500", "buildLegacyURL itself does not clamp; the caller is responsible for passing a capped count")
	assert.Contains(t, u, "max_id=999")
}

func TestResolveUserIDFallsBackToLegacyOnFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/graphql/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"errors":[{"message":"page does not exist"}]}`)
	})
	legacyTweet := map[string]interface{}{
		"id_str": "5",
		"user":   map[string]interface{}{"screen_name": "alice"},
		"extended_entities": map[string]interface{}{
			"media": []interface{}{
				map[string]interface{}{"type": "photo", "media_url_https": "https://cdn.example.com/legacy.jpg"},
			},
		},
	}
	mux.HandleFunc("/1.1/statuses/user_timeline.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]interface{}{legacyTweet})
	})

	server := httptest.NewServer(mux)
	c := newTestClient(t, server)

	items, err := c.FetchUserMedia(context.Background(), "alice", harvest.FetchOptions{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://cdn.example.com/legacy.jpg", items[0].URL)
}

func TestExtractMissingFeaturesParsesErrorMessage(t *testing.T) {
	parsed := map[string]interface{}{
		"errors": []interface{}{
			map[string]interface{}{"message": "features cannot be null: foo_enabled, bar_enabled"},
		},
	}
	assert.Equal(t, []string{"foo_enabled", "bar_enabled"}, extractMissingFeatures(parsed))
}

func TestIsAuthFailure(t *testing.T) {
	assert.True(t, isAuthFailure(401, []byte(`{"errors":[{"code":32,"message":"Could not authenticate you"}]}`)))
	assert.True(t, isAuthFailure(404, []byte(`{"errors":[{"message":"page does not exist"}]}`)))
	assert.False(t, isAuthFailure(500, []byte(`{"errors":[{"message":"internal error"}]}`)))
}

// exhaustibleLimiter lets the test count exactly how many times
// doRequest consulted the limiter, without real wall-clock pacing.
type exhaustibleLimiter struct {
	waits int
}

func (l *exhaustibleLimiter) Allow() bool { return true }
func (l *exhaustibleLimiter) Wait()       { l.waits++ }
func (l *exhaustibleLimiter) Reset()      { l.waits = 0 }

func TestDoRequestConsultsRateLimiterWhenSet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	c := newTestClient(t, server)
	lim := &exhaustibleLimiter{}
	c.SetRateLimiter(lim)

	_, _, err := c.doRequest(context.Background(), server.URL+"/anything")
	require.NoError(t, err)
	assert.Equal(t, 1, lim.waits)
}
