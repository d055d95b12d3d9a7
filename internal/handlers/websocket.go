package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for local development
		return true
	},
}

// WSMessage is the envelope every websocket frame carries.
type WSMessage struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// WebSocketHandler broadcasts session events to connected UI clients. It is
// a fan-out hub: events arrive once from the event service and are written
// to every open connection.
type WebSocketHandler struct {
	eventService interfaces.EventService
	logger       arbor.ILogger

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]bool

	// progressThrottler caps session_progress broadcast frequency. Progress
	// events are UI feedback; dropping intermediate ones loses nothing.
	progressThrottler *rate.Limiter
}

// NewWebSocketHandler creates a new WebSocketHandler
func NewWebSocketHandler(eventService interfaces.EventService, config *common.Config, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		eventService: eventService,
		logger:       logger,
		clients:      make(map[*websocket.Conn]bool),
	}

	if throttle := common.ParseDurationOr(config.WebSocket.ProgressThrottle, 0); throttle > 0 {
		h.progressThrottler = rate.NewLimiter(rate.Every(throttle), 1)
	}

	return h
}

// SubscribeToSessionEvents wires the hub to the session event stream.
func (h *WebSocketHandler) SubscribeToSessionEvents() {
	for _, eventType := range []interfaces.EventType{
		interfaces.EventSessionStarted,
		interfaces.EventSessionProgress,
		interfaces.EventSessionComplete,
		interfaces.EventSessionError,
	} {
		et := eventType
		h.eventService.Subscribe(et, func(ctx context.Context, event interfaces.Event) error {
			h.broadcastEvent(event)
			return nil
		})
	}
}

func (h *WebSocketHandler) broadcastEvent(event interfaces.Event) {
	if event.Type == interfaces.EventSessionProgress && h.progressThrottler != nil {
		if !h.progressThrottler.Allow() {
			return
		}
	}

	h.Broadcast(WSMessage{
		Type:      string(event.Type),
		Payload:   event.Payload,
		Timestamp: time.Now(),
	})
}

// Broadcast writes a message to every connected client. Clients that fail
// the write are dropped.
func (h *WebSocketHandler) Broadcast(msg WSMessage) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for conn := range h.clients {
		if err := conn.WriteJSON(msg); err != nil {
			h.logger.Debug().Err(err).Msg("Dropping websocket client after failed write")
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHandler) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket handles GET /ws upgrade requests
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.clientsMu.Lock()
	h.clients[conn] = true
	count := len(h.clients)
	h.clientsMu.Unlock()

	h.logger.Debug().Int("clients", count).Msg("WebSocket client connected")

	// Reader loop. Clients do not send meaningful messages; this exists to
	// detect disconnects and honor close frames.
	go func() {
		defer func() {
			h.clientsMu.Lock()
			delete(h.clients, conn)
			h.clientsMu.Unlock()
			conn.Close()
			h.logger.Debug().Msg("WebSocket client disconnected")
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Close drops every connected client.
func (h *WebSocketHandler) Close() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}
