package controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubPublishDeliversToSubscribers(t *testing.T) {
	h := newHub()
	ch := h.subscribe()
	defer h.unsubscribe(ch)

	h.publish(sseEvent{name: "log", data: []byte(`{"line":"hi"}`)})

	select {
	case ev := <-ch:
		assert.Equal(t, "log", ev.name)
		assert.Equal(t, `{"line":"hi"}`, string(ev.data))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestHubPublishNeverBlocksOnFullClient(t *testing.T) {
	h := newHub()
	ch := h.subscribe()
	defer h.unsubscribe(ch)

	for i := 0; i < 64; i++ {
		h.publish(sseEvent{name: "log", data: []byte("x")})
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	h := newHub()
	ch := h.subscribe()
	h.unsubscribe(ch)

	_, ok := <-ch
	require.False(t, ok, "channel should be closed after unsubscribe")
}
