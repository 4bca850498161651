// Package events pushes incident lifecycle events to dashboard
// websocket subscribers. Delivery is best-effort: a slow or dead
// subscriber is dropped, never waited on.
package events

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
)

// Event is one envelope pushed to subscribers.
type Event struct {
	Type       string    `json:"type"`
	IncidentID string    `json:"incident_id,omitempty"`
	TeamID     string    `json:"team_id,omitempty"`
	Payload    any       `json:"payload,omitempty"`
	At         time.Time `json:"at"`
}

type subscriber struct {
	ch     chan Event
	teamID string // empty subscribes to everything
}

// Hub fans events out to websocket subscribers.
type Hub struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	logger zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{subs: map[*subscriber]struct{}{}, logger: logger}
}

// Broadcast queues the event for every matching subscriber. Full
// subscriber buffers are skipped.
func (h *Hub) Broadcast(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if sub.teamID != "" && ev.TeamID != "" && sub.teamID != ev.TeamID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

func (h *Hub) add(teamID string) *subscriber {
	sub := &subscriber{ch: make(chan Event, 64), teamID: teamID}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

// ServeHTTP upgrades the connection and streams events until the
// client goes away. An optional ?team_id= filters to one team.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.CloseNow()

	sub := h.add(r.URL.Query().Get("team_id"))
	defer h.remove(sub)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev := <-sub.ch:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, ev)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// SubscriberCount is exposed for readiness reporting and tests.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
