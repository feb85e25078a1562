// internal/handlers/ice.go
package handlers

import (
	"net/http"

	"github.com/webdarts/signaling-service/internal/ice"
)

type iceServersResponse struct {
	IceServers []ice.Server `json:"iceServers"`
}

// IceServers handles GET /api/ice-servers. The provider never fails; at
// worst the client gets the static STUN list.
func (s *Server) IceServers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, iceServersResponse{
		IceServers: s.ice.Servers(r.Context()),
	})
}
