// internal/registry/registry.go
package registry

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/webdarts/signaling-service/internal/models"
	"github.com/webdarts/signaling-service/internal/store"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 5
)

// Registry owns the active room table. The in-memory map is authoritative;
// every mutation is written through to the persistence store, and lookups
// fall back to the store so rooms survive a restart.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*models.Room
	store  store.Store
	logger *logrus.Logger
	now    func() time.Time
}

func New(st store.Store, logger *logrus.Logger) *Registry {
	return &Registry{
		rooms:  make(map[string]*models.Room),
		store:  st,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the registry's clock. Tests only.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// Create builds a new waiting room for the given host.
func (r *Registry) Create(ctx context.Context, host string, settings json.RawMessage) (*models.Room, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, models.ErrMissingHost
	}

	now := r.now()
	r.mu.Lock()
	code := r.uniqueCode(ctx)
	room := &models.Room{
		Code:         code,
		Host:         host,
		HostID:       uuid.NewString(),
		Players:      1,
		MaxPlayers:   2,
		Status:       models.StatusWaiting,
		GameSettings: settings,
		Created:      now,
		LastActivity: now,
	}
	r.rooms[code] = room
	snapshot := room.Clone()
	r.mu.Unlock()

	r.persist(ctx, "insert", func(ctx context.Context) error {
		return r.store.Insert(ctx, snapshot)
	})
	r.logger.WithFields(logrus.Fields{"code": code, "host": host}).Info("room created")
	return snapshot, nil
}

// uniqueCode draws random codes until one collides with neither an active
// room nor a persisted one from a previous run. Caller must hold the lock.
func (r *Registry) uniqueCode(ctx context.Context) string {
	buf := make([]byte, codeLength)
	for {
		for i := range buf {
			buf[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
		}
		code := string(buf)
		if _, exists := r.rooms[code]; exists {
			continue
		}
		if _, err := r.store.GetByCode(ctx, code); err == nil {
			continue
		}
		return code
	}
}

// Get returns a snapshot of the room with the given code.
func (r *Registry) Get(ctx context.Context, code string) (*models.Room, error) {
	room, err := r.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	return room, nil
}

// lookup finds a room in the local table, restoring it from the store on a
// miss. Returns a snapshot.
func (r *Registry) lookup(ctx context.Context, code string) (*models.Room, error) {
	r.mu.Lock()
	if room, ok := r.rooms[code]; ok {
		snapshot := room.Clone()
		r.mu.Unlock()
		return snapshot, nil
	}
	r.mu.Unlock()

	stored, err := r.store.GetByCode(ctx, code)
	if err != nil {
		return nil, models.ErrRoomNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[code]; ok {
		// Lost the race with a concurrent restore.
		return room.Clone(), nil
	}
	r.rooms[code] = stored.Clone()
	return stored, nil
}

// mutate applies fn to the room under the lock and writes the result through
// to the store. fn runs on the live record.
func (r *Registry) mutate(ctx context.Context, code string, fn func(*models.Room) error) (*models.Room, error) {
	if _, err := r.lookup(ctx, code); err != nil {
		return nil, err
	}

	r.mu.Lock()
	room, ok := r.rooms[code]
	if !ok {
		r.mu.Unlock()
		return nil, models.ErrRoomNotFound
	}
	if err := fn(room); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	room.LastActivity = r.now()
	snapshot := room.Clone()
	r.mu.Unlock()

	r.persist(ctx, "update", func(ctx context.Context) error {
		return r.store.Update(ctx, snapshot)
	})
	return snapshot, nil
}

// Join adds username as the opponent of the room with the given code.
func (r *Registry) Join(ctx context.Context, code, username string) (*models.Room, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, models.ErrMissingUsername
	}

	room, err := r.mutate(ctx, code, func(room *models.Room) error {
		if room.Players >= room.MaxPlayers {
			return models.ErrRoomFull
		}
		if username == room.Host {
			return models.ErrSelfJoin
		}
		if room.Status == models.StatusPlaying {
			return models.ErrGameInProgress
		}
		room.Opponent = username
		room.OpponentID = uuid.NewString()
		room.Players = 2
		room.Status = models.StatusReady
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.logger.WithFields(logrus.Fields{"code": code, "opponent": username}).Info("opponent joined room")
	return room, nil
}

// UpdateStatus overwrites the room's status. Any known status value is
// accepted; there is deliberately no transition graph here, the clients
// drive the waiting/ready/playing progression themselves.
func (r *Registry) UpdateStatus(ctx context.Context, code string, status models.Status) (*models.Room, error) {
	if !status.Valid() {
		return nil, models.ErrInvalidStatus
	}
	return r.mutate(ctx, code, func(room *models.Room) error {
		room.Status = status
		return nil
	})
}

// SetPlayers refreshes the live player count from the lifecycle monitor.
// No-op when the room does not exist (orphaned video session).
func (r *Registry) SetPlayers(ctx context.Context, code string, players int) {
	r.mu.Lock()
	room, ok := r.rooms[code]
	if !ok {
		r.mu.Unlock()
		return
	}
	room.Players = players
	room.IsLive = players > 0
	room.LastActivity = r.now()
	snapshot := room.Clone()
	r.mu.Unlock()

	r.persist(ctx, "update", func(ctx context.Context) error {
		return r.store.Update(ctx, snapshot)
	})
}

// Delete removes a room at a caller's explicit request. Like the read path,
// it restores from the store first so a room persisted by a previous run can
// still be deleted.
func (r *Registry) Delete(ctx context.Context, code string) error {
	if _, err := r.lookup(ctx, code); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.rooms, code)
	r.mu.Unlock()

	r.persist(ctx, "delete", func(ctx context.Context) error {
		return r.store.Delete(ctx, code)
	})
	r.logger.WithField("code", code).Info("room deleted")
	return nil
}

// Remove is the lifecycle-driven delete: idempotent, no error when the room
// is already gone.
func (r *Registry) Remove(ctx context.Context, code string) {
	r.mu.Lock()
	_, ok := r.rooms[code]
	delete(r.rooms, code)
	r.mu.Unlock()

	r.persist(ctx, "delete", func(ctx context.Context) error {
		return r.store.Delete(ctx, code)
	})
	if ok {
		r.logger.WithField("code", code).Info("room removed")
	}
}

// ListActive returns non-ended rooms younger than maxAge, newest first.
// Persisted rooms the local table has not seen since a restart are restored
// into it first so the listing is complete.
func (r *Registry) ListActive(ctx context.Context, maxAge time.Duration) []*models.Room {
	if stored, err := r.store.ListActive(ctx); err != nil {
		r.logger.WithError(err).Warn("listing persisted rooms failed")
	} else {
		r.mu.Lock()
		for _, room := range stored {
			if _, ok := r.rooms[room.Code]; !ok {
				r.rooms[room.Code] = room.Clone()
			}
		}
		r.mu.Unlock()
	}

	now := r.now()
	r.mu.Lock()
	out := make([]*models.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		if room.Status == models.StatusEnded {
			continue
		}
		if now.Sub(room.Created) >= maxAge {
			continue
		}
		out = append(out, room.Clone())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Created.After(out[j].Created)
	})
	return out
}

// All returns a snapshot of every tracked room. Used by the lifecycle sweep.
func (r *Registry) All() []*models.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room.Clone())
	}
	return out
}

// Count returns the number of tracked rooms.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// persist runs a store write and logs failures instead of propagating them:
// the in-memory table stays correct even when the store misbehaves.
func (r *Registry) persist(ctx context.Context, op string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		r.logger.WithFields(logrus.Fields{"op": op, "error": err}).Warn("room persistence failed")
	}
}
