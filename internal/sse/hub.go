// Package sse delivers course lifecycle events to connected clients over
// server-sent events. Lesson bodies stream over plain chunked responses; this
// hub only carries small notifications (course created, edited, deleted,
// lesson completed).
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/SuperscriptSystems/Quillio/internal/logger"
)

// Event is one notification pushed to a user's clients.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type Client struct {
	ch chan Event
}

type Hub struct {
	log *logger.Logger

	mu            sync.RWMutex
	subscriptions map[string]map[*Client]bool
}

func NewHub(baseLog *logger.Logger) *Hub {
	return &Hub{
		log:           baseLog.With("service", "SSEHub"),
		subscriptions: make(map[string]map[*Client]bool),
	}
}

func (h *Hub) Subscribe(userID string) *Client {
	c := &Client{ch: make(chan Event, 16)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscriptions[userID] == nil {
		h.subscriptions[userID] = make(map[*Client]bool)
	}
	h.subscriptions[userID][c] = true
	return c
}

func (h *Hub) Unsubscribe(userID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subscriptions[userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subscriptions, userID)
		}
	}
}

// Broadcast sends the event to every client of the user. Slow clients are
// skipped rather than blocking the sender.
func (h *Hub) Broadcast(userID string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.subscriptions[userID] {
		select {
		case c.ch <- ev:
		default:
			h.log.Warn("dropping sse event for slow client", "user_id", userID, "type", ev.Type)
		}
	}
}

// Serve writes the event stream until the client disconnects. Heartbeats
// every 15s keep proxies from closing the connection.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := h.Subscribe(userID)
	defer h.Unsubscribe(userID, client)

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev := <-client.ch:
			raw, err := json.Marshal(ev)
			if err != nil {
				h.log.Error("marshal sse event", "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", raw)
			flusher.Flush()
		}
	}
}
