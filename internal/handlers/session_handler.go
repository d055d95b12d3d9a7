package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// SessionHandler handles HTTP requests for the collection session
type SessionHandler struct {
	sessionService interfaces.SessionService
	validate       *validator.Validate
	logger         arbor.ILogger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(sessionService interfaces.SessionService, logger arbor.ILogger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		validate:       validator.New(),
		logger:         logger,
	}
}

// StartSessionRequest is the body of POST /api/session/start.
type StartSessionRequest struct {
	TargetID string `json:"target_id" validate:"required,min=1,max=256"`
}

// StartSessionHandler handles POST /api/session/start
func (h *SessionHandler) StartSessionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "target_id is required")
		return
	}

	report, err := h.sessionService.Start(r.Context(), req.TargetID)
	if err != nil {
		if errors.Is(err, models.ErrSessionBusy) {
			WriteError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Warn().Err(err).Str("target_id", req.TargetID).Msg("Failed to start session")
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusAccepted, report)
}

// GetSessionStatusHandler handles GET /api/session/status
func (h *SessionHandler) GetSessionStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, h.sessionService.Status())
}
