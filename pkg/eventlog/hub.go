// Package eventlog fans out IntentEvents to SSE subscribers. Delivery is
// best-effort: a subscriber with a full queue has the event dropped
// rather than stalling the broadcaster (spec.md §4.10).
package eventlog

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openintent-ai/openintent/pkg/model"
	"github.com/openintent-ai/openintent/pkg/telemetry"
)

// Channel names the three SSE broadcast channels spec.md §6 exposes.
type Channel string

const (
	ChannelIntents    Channel = "intents"
	ChannelPortfolios Channel = "portfolios"
	ChannelAgents     Channel = "agents"
)

// subscriberQueueSize bounds how many undelivered events a slow
// subscriber may accumulate before new events are dropped for it.
const subscriberQueueSize = 100

// KeepAliveInterval is how often idle subscribers receive a ping
// comment line to keep intermediate proxies from closing the connection.
const KeepAliveInterval = 30 * time.Second

// Subscriber is one open SSE connection's inbound queue.
type Subscriber struct {
	id      string
	channel Channel
	filter  func(*model.IntentEvent) bool
	queue   chan *model.IntentEvent
	hub     *Hub
}

// Events returns the channel to range over for delivery.
func (s *Subscriber) Events() <-chan *model.IntentEvent { return s.queue }

// Close unregisters the subscriber from its hub. Safe to call more than once.
func (s *Subscriber) Close() { s.hub.unsubscribe(s) }

// Hub is the process-local SSE fan-out registry. One Hub instance is
// shared by the whole server; each entry in subscribers is one open
// HTTP connection.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[Channel]map[string]*Subscriber
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[Channel]map[string]*Subscriber)}
}

// Subscribe registers a new subscriber on channel, optionally narrowed
// by filter (nil means "deliver everything"). The caller must Close the
// returned Subscriber when the connection ends.
func (h *Hub) Subscribe(channel Channel, filter func(*model.IntentEvent) bool) *Subscriber {
	id := uuid.NewString()
	h.mu.Lock()
	sub := &Subscriber{
		id:      id,
		channel: channel,
		filter:  filter,
		queue:   make(chan *model.IntentEvent, subscriberQueueSize),
		hub:     h,
	}
	if h.subscribers[channel] == nil {
		h.subscribers[channel] = make(map[string]*Subscriber)
	}
	h.subscribers[channel][id] = sub
	h.mu.Unlock()
	telemetry.SSESubscribers.WithLabelValues(string(channel)).Inc()
	return sub
}

func (h *Hub) unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	if m, ok := h.subscribers[sub.channel]; ok {
		if _, present := m[sub.id]; present {
			delete(m, sub.id)
			h.mu.Unlock()
			telemetry.SSESubscribers.WithLabelValues(string(sub.channel)).Dec()
			return
		}
	}
	h.mu.Unlock()
}

// Publish delivers ev to every matching subscriber on channel without
// blocking: a subscriber whose queue is full has the event dropped.
func (h *Hub) Publish(channel Channel, ev *model.IntentEvent) {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subscribers[channel]))
	for _, s := range h.subscribers[channel] {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		if s.filter != nil && !s.filter(ev) {
			continue
		}
		select {
		case s.queue <- ev:
		default:
			telemetry.SSEQueueDrops.WithLabelValues(string(channel)).Inc()
		}
	}
}

// SubscriberCount reports how many open subscribers a channel has, used
// by readiness/debug endpoints.
func (h *Hub) SubscriberCount(channel Channel) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[channel])
}

