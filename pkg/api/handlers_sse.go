package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/openintent-ai/openintent/pkg/eventlog"
	"github.com/openintent-ai/openintent/pkg/model"
)

// writeSSEEvent writes ev as one "id: <sequence>\nevent: <type>\ndata: <json>\n\n"
// frame; the id is what an EventSource client sends back as Last-Event-ID.
func writeSSEEvent(w http.ResponseWriter, ev *model.IntentEvent) {
	body, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Sequence, ev.EventType, body)
}

// streamSSE serves one long-lived SSE connection on channel, delivering
// only events sub.filter accepts until the client disconnects
// (spec.md §6 "SSE", §4.10 fan-out).
func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request, channel eventlog.Channel, filter func(*model.IntentEvent) bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteInternal(w, r, fmt.Errorf("api: response writer does not support flushing"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.hub.Subscribe(channel, filter)
	defer sub.Close()

	ctx := r.Context()
	ticker := time.NewTicker(eventlog.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub.Events():
			writeSSEEvent(w, ev)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

func (s *Server) handleSubscribeIntent(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	s.streamSSE(w, r, eventlog.ChannelIntents, func(ev *model.IntentEvent) bool {
		return ev.IntentID == id
	})
}

func (s *Server) handleSubscribePortfolio(w http.ResponseWriter, r *http.Request) {
	scope := "portfolio:" + pathVar(r, "id")
	s.streamSSE(w, r, eventlog.ChannelPortfolios, func(ev *model.IntentEvent) bool {
		return ev.IntentID == scope
	})
}

func (s *Server) handleSubscribeAgent(w http.ResponseWriter, r *http.Request) {
	agentID := pathVar(r, "id")
	s.streamSSE(w, r, eventlog.ChannelAgents, func(ev *model.IntentEvent) bool {
		actor, _ := ev.Payload["agent_id"].(string)
		return ev.Actor == agentID || actor == agentID
	})
}
