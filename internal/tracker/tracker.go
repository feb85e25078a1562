// internal/tracker/tracker.go
package tracker

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Connection is one live signaling connection's membership in a room.
// Owned exclusively by the Tracker; callers only ever see copies.
type Connection struct {
	ID       string    `json:"connectionId"`
	RoomID   string    `json:"roomId"`
	Username string    `json:"username"`
	IsHost   bool      `json:"isHost"`
	JoinedAt time.Time `json:"joinedAt"`
}

// LeaveInfo describes the room a connection was removed from.
type LeaveInfo struct {
	RoomID    string
	Username  string
	Remaining int
}

// Tracker maps live connections to rooms. A connection belongs to at most
// one room at a time; joining a second room implicitly leaves the first.
type Tracker struct {
	mu     sync.Mutex
	conns  map[string]*Connection
	rooms  map[string][]string // roomID -> connection ids in join order
	logger *logrus.Logger
}

func New(logger *logrus.Logger) *Tracker {
	return &Tracker{
		conns:  make(map[string]*Connection),
		rooms:  make(map[string][]string),
		logger: logger,
	}
}

// RegisterJoin adds the connection to roomID's participant set. If the
// connection was tracked in a different room, it is removed from that room
// first and the implicit leave is returned so the caller can notify peers.
func (t *Tracker) RegisterJoin(connID, roomID, username string, isHost bool) *LeaveInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	var left *LeaveInfo
	if prev, ok := t.conns[connID]; ok {
		if prev.RoomID == roomID {
			// Re-join of the same room: refresh identity, keep position.
			prev.Username = username
			prev.IsHost = isHost
			return nil
		}
		t.removeFromRoom(connID, prev.RoomID)
		left = &LeaveInfo{
			RoomID:    prev.RoomID,
			Username:  prev.Username,
			Remaining: len(t.rooms[prev.RoomID]),
		}
		t.logger.WithFields(logrus.Fields{
			"connection": connID,
			"from":       prev.RoomID,
			"to":         roomID,
		}).Info("implicit leave on room switch")
	}

	t.conns[connID] = &Connection{
		ID:       connID,
		RoomID:   roomID,
		Username: username,
		IsHost:   isHost,
		JoinedAt: time.Now(),
	}
	t.rooms[roomID] = append(t.rooms[roomID], connID)
	return left
}

// Unregister removes the connection from its room. Idempotent: returns nil
// when the connection is not tracked.
func (t *Tracker) Unregister(connID string) *LeaveInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	conn, ok := t.conns[connID]
	if !ok {
		return nil
	}
	delete(t.conns, connID)
	t.removeFromRoom(connID, conn.RoomID)
	return &LeaveInfo{
		RoomID:    conn.RoomID,
		Username:  conn.Username,
		Remaining: len(t.rooms[conn.RoomID]),
	}
}

// removeFromRoom drops connID from a room's ordered id list. Caller must
// hold the lock.
func (t *Tracker) removeFromRoom(connID, roomID string) {
	ids := t.rooms[roomID]
	for i, id := range ids {
		if id == connID {
			t.rooms[roomID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(t.rooms[roomID]) == 0 {
		delete(t.rooms, roomID)
	}
}

// Participants lists a room's connections in join order, skipping the
// excluding id if non-empty.
func (t *Tracker) Participants(roomID, excluding string) []Connection {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := t.rooms[roomID]
	out := make([]Connection, 0, len(ids))
	for _, id := range ids {
		if excluding != "" && id == excluding {
			continue
		}
		if conn, ok := t.conns[id]; ok {
			out = append(out, *conn)
		}
	}
	return out
}

// RoomOf returns the room the connection is currently tracked in.
func (t *Tracker) RoomOf(connID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	conn, ok := t.conns[connID]
	if !ok {
		return "", false
	}
	return conn.RoomID, true
}

// Count returns the number of tracked connections.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}
