// internal/handlers/health.go
package handlers

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status       string `json:"status"`
	Uptime       string `json:"uptime"`
	Rooms        int    `json:"rooms"`
	Connections  int    `json:"connections"`
	LiveSessions int    `json:"liveSessions"`
	Storage      string `json:"storage"`
}

// Health handles GET /api/health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	storage := "memory"
	if s.StorageMode != nil {
		storage = s.StorageMode()
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:       "ok",
		Uptime:       time.Since(s.started).Round(time.Second).String(),
		Rooms:        s.registry.Count(),
		Connections:  s.tracker.Count(),
		LiveSessions: s.monitor.ActiveSessions(),
		Storage:      storage,
	})
}
