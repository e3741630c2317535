package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultPingInterval keeps idle streams open through proxies.
const DefaultPingInterval = 30 * time.Second

const writeWait = 10 * time.Second

// Handler serves the SSE and WebSocket endpoints for a Hub.
type Handler struct {
	hub          *Hub
	pingInterval time.Duration
	upgrader     websocket.Upgrader
}

// NewHandler creates a handler. allowedOrigins restricts WebSocket upgrades;
// an empty list or "*" accepts any origin.
func NewHandler(hub *Hub, pingInterval time.Duration, allowedOrigins []string) *Handler {
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &Handler{
		hub:          hub,
		pingInterval: pingInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(origins) == 0 || origins["*"] || origins[origin]
			},
		},
	}
}

// ServeSSE streams events for userID as text/event-stream until the client disconnects.
func (h *Handler) ServeSSE(w http.ResponseWriter, r *http.Request, userID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	sub := h.hub.Subscribe(userID)
	if sub == nil {
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.hub.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	connected := NewEvent(TypeConnected, nil)
	connected.Message = "SSE connection established"
	if err := writeSSE(w, connected); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if err := writeSSE(w, NewEvent(TypePing, nil)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// ServeWebSocket upgrades the request and streams events for userID as JSON messages.
func (h *Handler) ServeWebSocket(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe(userID)
	if sub == nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		return
	}
	defer h.hub.Unsubscribe(sub)

	// Reads are only needed to observe the client closing the socket.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	connected := NewEvent(TypeConnected, nil)
	connected.Message = "WebSocket connection established"
	if err := h.writeWS(conn, connected); err != nil {
		return
	}

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(writeWait))
				return
			}
			if err := h.writeWS(conn, ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := h.writeWS(conn, NewEvent(TypePing, nil)); err != nil {
				return
			}
		}
	}
}

func (h *Handler) writeWS(conn *websocket.Conn, ev Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}
