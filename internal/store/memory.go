// internal/store/memory.go
package store

import (
	"context"
	"sync"

	"github.com/webdarts/signaling-service/internal/models"
)

// Memory is the transient in-process Store. It backs tests and serves as the
// degrade target when Postgres is unreachable.
type Memory struct {
	mu    sync.Mutex
	rooms map[string]*models.Room
}

func NewMemory() *Memory {
	return &Memory{rooms: make(map[string]*models.Room)}
}

func (m *Memory) Insert(_ context.Context, room *models.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[room.Code] = room.Clone()
	return nil
}

func (m *Memory) Update(_ context.Context, room *models.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[room.Code] = room.Clone()
	return nil
}

func (m *Memory) Delete(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, code)
	return nil
}

func (m *Memory) GetByCode(_ context.Context, code string) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[code]
	if !ok {
		return nil, models.ErrRoomNotFound
	}
	return room.Clone(), nil
}

func (m *Memory) ListActive(_ context.Context) ([]*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		if room.Status != models.StatusEnded {
			out = append(out, room.Clone())
		}
	}
	return out, nil
}
