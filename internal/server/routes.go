package server

import "net/http"

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route (session event stream for UI clients)
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Collection session
	mux.HandleFunc("/api/session/start", s.app.SessionHandler.StartSessionHandler)      // POST - begin a collection run
	mux.HandleFunc("/api/session/status", s.app.SessionHandler.GetSessionStatusHandler) // GET - current session snapshot

	// API routes - Collection history
	mux.HandleFunc("/api/profiles", s.app.ProfileHandler.ListProfilesHandler)   // GET - list collected profiles
	mux.HandleFunc("/api/profiles/", s.app.ProfileHandler.ProfileRoutesHandler) // GET/DELETE /{id}

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)
	mux.HandleFunc("/api/version", s.app.StatusHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.StatusHandler.HealthHandler)

	return mux
}
