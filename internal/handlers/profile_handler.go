package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// ProfileHandler handles HTTP requests for the collection history
type ProfileHandler struct {
	storage interfaces.ProfileStorage
	logger  arbor.ILogger
}

// NewProfileHandler creates a new ProfileHandler
func NewProfileHandler(storage interfaces.ProfileStorage, logger arbor.ILogger) *ProfileHandler {
	return &ProfileHandler{
		storage: storage,
		logger:  logger,
	}
}

// ListProfilesHandler handles GET /api/profiles
func (h *ProfileHandler) ListProfilesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 500 {
			limit = l
		}
	}

	records, err := h.storage.ListProfiles(limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list profile records")
		WriteError(w, http.StatusInternalServerError, "Failed to list profiles")
		return
	}

	count, _ := h.storage.Count()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"profiles": records,
		"count":    count,
	})
}

// ProfileRoutesHandler handles GET/DELETE /api/profiles/{id}
func (h *ProfileHandler) ProfileRoutesHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/profiles/")
	if id == "" || strings.Contains(id, "/") {
		WriteError(w, http.StatusNotFound, "Profile not found")
		return
	}

	switch r.Method {
	case "GET":
		record, err := h.storage.GetProfile(id)
		if err != nil {
			WriteError(w, http.StatusNotFound, "Profile not found")
			return
		}
		WriteJSON(w, http.StatusOK, record)

	case "DELETE":
		if err := h.storage.DeleteProfile(id); err != nil {
			h.logger.Error().Err(err).Str("id", id).Msg("Failed to delete profile record")
			WriteError(w, http.StatusInternalServerError, "Failed to delete profile")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "success"})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
