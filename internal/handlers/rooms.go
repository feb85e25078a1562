// internal/handlers/rooms.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/webdarts/signaling-service/internal/models"
)

type createRoomRequest struct {
	Host         string          `json:"host"`
	GameSettings json.RawMessage `json:"gameSettings,omitempty"`
}

type joinRoomRequest struct {
	Username string `json:"username"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type endCallRequest struct {
	RoomCode string `json:"roomCode"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusForErr maps the core's sentinel errors onto response codes.
func statusForErr(err error) int {
	switch {
	case errors.Is(err, models.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrRoomFull),
		errors.Is(err, models.ErrSelfJoin),
		errors.Is(err, models.ErrGameInProgress),
		errors.Is(err, models.ErrMissingHost),
		errors.Is(err, models.ErrMissingUsername),
		errors.Is(err, models.ErrInvalidStatus):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusForErr(err), errorResponse{Error: err.Error()})
}

// withLive stamps the derived isLive flag from the lifecycle monitor onto a
// room snapshot before it goes out.
func (s *Server) withLive(room *models.Room) *models.Room {
	room.IsLive = s.monitor.IsLive(room.Code)
	return room
}

// CreateRoom handles POST /api/rooms.
func (s *Server) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	room, err := s.registry.Create(r.Context(), req.Host, req.GameSettings)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

// ListRooms handles GET /api/rooms.
func (s *Server) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms := s.registry.ListActive(r.Context(), s.cfg.RoomMaxAge)
	for _, room := range rooms {
		s.withLive(room)
	}
	writeJSON(w, http.StatusOK, rooms)
}

// GetRoom handles GET /api/rooms/{code}.
func (s *Server) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.registry.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.withLive(room))
}

// JoinRoom handles POST /api/rooms/{code}/join.
func (s *Server) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req joinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	room, err := s.registry.Join(r.Context(), chi.URLParam(r, "code"), req.Username)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.withLive(room))
}

// UpdateStatus handles PUT /api/rooms/{code}/status.
func (s *Server) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	room, err := s.registry.UpdateStatus(r.Context(), chi.URLParam(r, "code"), models.Status(req.Status))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.withLive(room))
}

// DeleteRoom handles DELETE /api/rooms/{code}.
func (s *Server) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := s.registry.Delete(r.Context(), code); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "room " + code + " deleted"})
}

// EndCall handles POST /api/rooms/end-call: a host-initiated teardown of the
// live session, notifying any remaining peers.
func (s *Server) EndCall(w http.ResponseWriter, r *http.Request) {
	var req endCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.RoomCode == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "roomCode is required"})
		return
	}

	s.monitor.OnExplicitEnd(r.Context(), req.RoomCode)
	writeJSON(w, http.StatusOK, messageResponse{Message: "call ended for room " + req.RoomCode})
}
