// internal/models/room.go
package models

import (
	"encoding/json"
	"time"
)

// Status is the closed set of states a room can be in.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusReady     Status = "ready"
	StatusPlaying   Status = "playing"
	StatusLive      Status = "live"
	StatusAbandoned Status = "abandoned"
	StatusEnded     Status = "ended"
)

// Valid reports whether s is one of the known status values.
func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusReady, StatusPlaying, StatusLive, StatusAbandoned, StatusEnded:
		return true
	}
	return false
}

// Room is a matchup record between a host and an optional opponent,
// identified by a short join code. GameSettings (starting score, legs/sets,
// double in/out) is carried opaquely; the server never interprets it.
type Room struct {
	Code         string          `json:"code"`
	Host         string          `json:"host"`
	HostID       string          `json:"hostId"`
	Opponent     string          `json:"opponent,omitempty"`
	OpponentID   string          `json:"opponentId,omitempty"`
	Players      int             `json:"players"`
	MaxPlayers   int             `json:"maxPlayers"`
	Status       Status          `json:"status"`
	GameSettings json.RawMessage `json:"gameSettings,omitempty"`
	Created      time.Time       `json:"created"`
	LastActivity time.Time       `json:"lastActivity"`
	IsLive       bool            `json:"isLive"`
}

// Clone returns a copy of the room safe to hand outside the registry.
func (r *Room) Clone() *Room {
	cp := *r
	if r.GameSettings != nil {
		cp.GameSettings = append(json.RawMessage(nil), r.GameSettings...)
	}
	return &cp
}
