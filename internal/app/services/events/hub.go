// Package events pushes live updates (generated titles, names, summaries) to
// connected browser sessions.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/seanotes/seanotes/internal/logging"
	"github.com/seanotes/seanotes/internal/metrics"
)

// Event types.
const (
	TypeConnected      = "connected"
	TypePing           = "ping"
	TypeNameUpdated    = "name_updated"
	TypeTitleUpdated   = "title_updated"
	TypeSummaryUpdated = "summary_updated"
)

const subscriberBuffer = 16

// Event is a message delivered to subscribers. Timestamp is in epoch milliseconds.
type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType string, data interface{}) Event {
	return Event{Type: eventType, Data: data, Timestamp: time.Now().UnixMilli()}
}

// Subscription receives events for one connection.
type Subscription struct {
	UserID string
	C      <-chan Event

	ch   chan Event
	once sync.Once
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

// Hub fans events out to every open connection of a user.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[*Subscription]struct{}
	closed  bool
	log     *logging.Logger
	metrics *metrics.Metrics
}

// NewHub creates an empty hub.
func NewHub(log *logging.Logger, m *metrics.Metrics) *Hub {
	if log == nil {
		log = logging.NewDefault("events")
	}
	return &Hub{
		subs:    make(map[string]map[*Subscription]struct{}),
		log:     log,
		metrics: m,
	}
}

// Subscribe registers a connection for userID. It returns nil after Close.
func (h *Hub) Subscribe(userID string) *Subscription {
	ch := make(chan Event, subscriberBuffer)
	sub := &Subscription{UserID: userID, C: ch, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[userID] = set
	}
	set[sub] = struct{}{}
	h.metrics.ConnectionOpened()
	return sub
}

// Unsubscribe removes sub and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sub.UserID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.UserID)
	}
	sub.close()
	h.metrics.ConnectionClosed()
}

// Publish delivers ev to every connection of userID and returns how many
// received it. Full buffers drop the event.
func (h *Hub) Publish(userID string, ev Event) int {
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.subs[userID] {
		select {
		case sub.ch <- ev:
			delivered++
		default:
			h.log.WithField("user_id", userID).WithField("type", ev.Type).Debug("dropping event for slow subscriber")
		}
	}
	return delivered
}

// Broadcast delivers ev to every connection.
func (h *Hub) Broadcast(ev Event) int {
	h.mu.RLock()
	users := make([]string, 0, len(h.subs))
	for userID := range h.subs {
		users = append(users, userID)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, userID := range users {
		delivered += h.Publish(userID, ev)
	}
	return delivered
}

// ConnectionCount returns the number of open subscriptions.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}

// HasConnection reports whether userID has at least one open subscription.
func (h *Hub) HasConnection(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID]) > 0
}

// Close ends every subscription. Later Subscribe calls return nil.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for userID, set := range h.subs {
		for sub := range set {
			sub.close()
			h.metrics.ConnectionClosed()
		}
		delete(h.subs, userID)
	}
}

// Name implements system.Service.
func (h *Hub) Name() string { return "events" }

// Start implements system.Service.
func (h *Hub) Start(context.Context) error { return nil }

// Stop implements system.Service.
func (h *Hub) Stop(context.Context) error {
	h.Close()
	return nil
}

// NameUpdated notifies the owner that an environment was renamed.
func (h *Hub) NameUpdated(userID, environmentID, name string) {
	h.Publish(userID, NewEvent(TypeNameUpdated, map[string]string{
		"environmentId": environmentID,
		"name":          name,
		"userId":        userID,
	}))
}

// TitleUpdated notifies the owner that a note received a generated title.
func (h *Hub) TitleUpdated(userID, noteID, title string) {
	h.Publish(userID, NewEvent(TypeTitleUpdated, map[string]string{
		"noteId": noteID,
		"title":  title,
		"userId": userID,
	}))
}

// SummaryUpdated notifies the owner that a note summary changed.
func (h *Hub) SummaryUpdated(userID, noteID, summary string) {
	h.Publish(userID, NewEvent(TypeSummaryUpdated, map[string]string{
		"noteId":  noteID,
		"summary": summary,
		"userId":  userID,
	}))
}
