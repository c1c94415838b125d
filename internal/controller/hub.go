package controller

import "sync"

// sseEvent is one server-sent event: name is the SSE "event:" line,
// data is JSON-encoded and written as a single "data:" line.
type sseEvent struct {
	name string
	data []byte
}

// hub fans one event out to every currently-connected SSE client.
// Clients register and deregister their own delivery channel; a slow
// or disconnected client never blocks the broadcaster because
// publish drops the event for that client instead of waiting.
type hub struct {
	mu      sync.Mutex
	clients map[chan sseEvent]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[chan sseEvent]struct{})}
}

func (h *hub) subscribe() chan sseEvent {
	ch := make(chan sseEvent, 32)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *hub) unsubscribe(ch chan sseEvent) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *hub) publish(ev sseEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- ev:
		default:
		}
	}
}
