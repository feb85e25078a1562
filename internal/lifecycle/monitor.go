// internal/lifecycle/monitor.go
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/webdarts/signaling-service/internal/models"
	"github.com/webdarts/signaling-service/internal/relay"
)

// Rooms is the slice of the registry the monitor drives: lifecycle-driven
// deletes and player-count refreshes.
type Rooms interface {
	Remove(ctx context.Context, code string)
	SetPlayers(ctx context.Context, code string, players int)
	All() []*models.Room
}

// Broadcaster pushes an event to every tracked connection in a room.
type Broadcaster interface {
	Broadcast(roomID, from, kind string, payload relay.Message)
}

// session is the transient lifecycle record for one room's live video
// session. Independent of the persisted room: an entry can exist for a code
// the registry never saw, and a registry room may have no entry yet. Ended
// entries linger until the sweep reclaims them; a join in between revives
// the room with a fresh session.
type session struct {
	createdAt    time.Time
	lastActivity time.Time
	ended        bool
	participants map[string]struct{}
}

// Monitor tracks per-room activity, tears down rooms the moment they empty,
// and sweeps stale or aged-out rooms on an interval.
type Monitor struct {
	mu       sync.Mutex
	sessions map[string]*session

	rooms     Rooms
	broadcast Broadcaster
	logger    *logrus.Logger
	now       func() time.Time

	StaleTimeout  time.Duration
	RoomMaxAge    time.Duration
	SweepInterval time.Duration
}

func New(rooms Rooms, broadcast Broadcaster, logger *logrus.Logger) *Monitor {
	return &Monitor{
		sessions:      make(map[string]*session),
		rooms:         rooms,
		broadcast:     broadcast,
		logger:        logger,
		now:           time.Now,
		StaleTimeout:  30 * time.Minute,
		RoomMaxAge:    24 * time.Hour,
		SweepInterval: 5 * time.Minute,
	}
}

// SetClock overrides the monitor's clock. Tests only.
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
}

// OnJoin records a connection entering a room's video session, creating the
// session entry on first join, and refreshes the room's player count. The
// refresh happens under the lock: a join and a concurrent leave on the same
// room must not interleave their counts, or the stale one wins.
func (m *Monitor) OnJoin(ctx context.Context, roomID, connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[roomID]
	if !ok || s.ended {
		s = &session{
			createdAt:    m.now(),
			participants: make(map[string]struct{}),
		}
		m.sessions[roomID] = s
		m.logger.WithField("room", roomID).Info("video session started")
	}
	s.lastActivity = m.now()
	s.participants[connID] = struct{}{}

	m.rooms.SetPlayers(ctx, roomID, len(s.participants))
}

// OnLeave records a connection leaving. When the last participant leaves,
// the session ends and the room is torn down immediately; the ended entry
// stays in the table until the next sweep.
func (m *Monitor) OnLeave(ctx context.Context, roomID, connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[roomID]
	if !ok || s.ended {
		return
	}
	delete(s.participants, connID)
	s.lastActivity = m.now()

	if len(s.participants) == 0 {
		s.ended = true
		m.logger.WithField("room", roomID).Info("video session empty, tearing down room")
		m.rooms.Remove(ctx, roomID)
		return
	}
	m.rooms.SetPlayers(ctx, roomID, len(s.participants))
}

// OnExplicitEnd handles a host-initiated end call: remaining peers get a
// room-ended notice before the room is torn down.
func (m *Monitor) OnExplicitEnd(ctx context.Context, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[roomID]; ok {
		s.ended = true
	}
	m.broadcast.Broadcast(roomID, "", "room-ended", relay.Message{"roomId": roomID})
	m.rooms.Remove(ctx, roomID)
	m.logger.WithField("room", roomID).Info("room ended by host")
}

// IsLive reports whether the room's video session has at least one
// participant.
func (m *Monitor) IsLive(roomID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[roomID]
	return ok && !s.ended && len(s.participants) > 0
}

// ActiveSessions returns the number of video sessions that have not ended.
func (m *Monitor) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if !s.ended {
			n++
		}
	}
	return n
}

// Sweep reclaims ended session entries, removes stale sessions together with
// their rooms, and expires aged registry rooms whose video session never
// started. Ended sessions already tore their room down, so they are only
// dropped from the table here.
func (m *Monitor) Sweep(ctx context.Context, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for roomID, s := range m.sessions {
		if s.ended {
			delete(m.sessions, roomID)
			continue
		}
		if len(s.participants) == 0 && now.Sub(s.lastActivity) > m.StaleTimeout {
			delete(m.sessions, roomID)
			m.logger.WithField("room", roomID).Info("sweep removed stale session")
			m.rooms.Remove(ctx, roomID)
		}
	}

	for _, room := range m.rooms.All() {
		if s, ok := m.sessions[room.Code]; ok && !s.ended {
			continue
		}
		if now.Sub(room.Created) > m.RoomMaxAge {
			m.logger.WithField("room", room.Code).Info("sweep expired aged room")
			m.rooms.Remove(ctx, room.Code)
		}
	}
}

// Run executes the sweep on SweepInterval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx, m.now())
		}
	}
}
