package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// StatusHandler handles HTTP requests for application status
type StatusHandler struct {
	sessionService interfaces.SessionService
	storage        interfaces.ProfileStorage
	wsHandler      *WebSocketHandler
	startedAt      time.Time
	logger         arbor.ILogger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(sessionService interfaces.SessionService, storage interfaces.ProfileStorage, wsHandler *WebSocketHandler, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		sessionService: sessionService,
		storage:        storage,
		wsHandler:      wsHandler,
		startedAt:      time.Now(),
		logger:         logger,
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	profileCount, _ := h.storage.Count()

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version":       common.Version,
		"build":         common.Build,
		"uptime":        time.Since(h.startedAt).Round(time.Second).String(),
		"session":       h.sessionService.Status(),
		"profile_count": profileCount,
		"ws_clients":    h.wsHandler.ClientCount(),
	})
}

// HealthHandler handles GET /api/health
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// VersionHandler handles GET /api/version
func (h *StatusHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.Version,
		"build":   common.Build,
		"commit":  common.GitCommit,
	})
}
