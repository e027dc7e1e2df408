// Copyright (C) 2019-2025, Ledgerd. All rights reserved.
// See the file LICENSE for licensing terms.

// Package eventsub fans out block-commit event batches to external
// subscribers over WebSocket connections, the concrete realization of
// the "external subscribers" named in spec.md §1(e)/§4.6. It is purely
// additive observation: nothing here ever feeds back into execution,
// the write-log, or consensus state.
package eventsub

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/ledgerd/shellcore/event"
)

// Batch is one block's worth of flushed events, broadcast verbatim to
// every connected subscriber.
type Batch struct {
	Height uint64        `json:"height"`
	Events []event.Event `json:"events"`
}

// wireEvent mirrors Event.Render's (type, attributes) pair, since
// subscribers are external consumers that should see the
// slash-path-stripped, domain-attribute form rather than the raw
// internal Event.
type wireEvent struct {
	Type       event.EventType   `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func renderBatch(b Batch) json.RawMessage {
	out := struct {
		Height uint64      `json:"height"`
		Events []wireEvent `json:"events"`
	}{Height: b.Height}
	for _, e := range b.Events {
		t, attrs := e.Render()
		out.Events = append(out.Events, wireEvent{Type: t, Attributes: attrs})
	}
	raw, err := json.Marshal(out)
	if err != nil {
		// Events carry only plain string attributes; this cannot fail.
		panic(err)
	}
	return raw
}

// Hub is a broadcast server: every accepted WebSocket connection
// receives every subsequent Publish call's payload, with no replay of
// history and no per-subscriber filtering.
type Hub struct {
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	conn *websocket.Conn
	send chan json.RawMessage
}

// NewHub returns an empty Hub. CheckOrigin accepts every origin (this
// is an operator-facing event feed, not a browser-facing API); Hub
// exposes no way to change it.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs: make(map[*subscriber]struct{}),
	}
}

// ServeHTTP upgrades the connection and registers it as a subscriber
// until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sub := &subscriber{conn: conn, send: make(chan json.RawMessage, 64)}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go h.writePump(sub)
	h.readPump(sub)
}

// readPump blocks until reading from the connection fails (the client
// disconnects or the connection breaks); any messages the client sends
// are read and discarded, since this feed is write-only from the
// server's perspective. On return it unregisters the subscriber.
func (h *Hub) readPump(sub *subscriber) {
	defer h.unregister(sub)
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(sub *subscriber) {
	defer sub.conn.Close()
	for msg := range sub.send {
		if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (h *Hub) unregister(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.send)
	}
}

// Publish broadcasts b to every currently-connected subscriber,
// dropping it for any subscriber whose send buffer is full rather than
// blocking the caller (the shell's commit path must never stall on a
// slow reader).
func (h *Hub) Publish(b Batch) {
	raw := renderBatch(b)
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.send <- raw:
		default:
		}
	}
}

// SubscriberCount reports how many connections are currently active.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
