// internal/store/fallback.go
package store

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/webdarts/signaling-service/internal/models"
)

// Fallback wraps a durable Store with a Memory fallback. When the primary
// fails, the operation is applied to the fallback instead and the error is
// swallowed after logging: room operations must never fail just because the
// durable backend is unreachable.
type Fallback struct {
	primary  Store
	fallback *Memory
	logger   *logrus.Logger
	degraded atomic.Bool
}

func NewFallback(primary Store, logger *logrus.Logger) *Fallback {
	return &Fallback{
		primary:  primary,
		fallback: NewMemory(),
		logger:   logger,
	}
}

// Degraded reports whether the last primary operation failed. Surfaced on
// the health endpoint.
func (f *Fallback) Degraded() bool {
	return f.degraded.Load()
}

func (f *Fallback) degrade(op string, err error) {
	f.degraded.Store(true)
	f.logger.WithFields(logrus.Fields{"op": op, "error": err}).
		Warn("durable store failed, using transient fallback")
}

func (f *Fallback) Insert(ctx context.Context, room *models.Room) error {
	if err := f.primary.Insert(ctx, room); err != nil {
		f.degrade("insert", err)
		return f.fallback.Insert(ctx, room)
	}
	f.degraded.Store(false)
	return nil
}

func (f *Fallback) Update(ctx context.Context, room *models.Room) error {
	if err := f.primary.Update(ctx, room); err != nil {
		f.degrade("update", err)
		return f.fallback.Update(ctx, room)
	}
	f.degraded.Store(false)
	return nil
}

func (f *Fallback) Delete(ctx context.Context, code string) error {
	// Deletes always hit both stores so a room written during an outage
	// cannot resurface from the fallback table.
	if err := f.primary.Delete(ctx, code); err != nil {
		f.degrade("delete", err)
	} else {
		f.degraded.Store(false)
	}
	return f.fallback.Delete(ctx, code)
}

func (f *Fallback) GetByCode(ctx context.Context, code string) (*models.Room, error) {
	room, err := f.primary.GetByCode(ctx, code)
	if err == nil {
		f.degraded.Store(false)
		return room, nil
	}
	if !errors.Is(err, models.ErrRoomNotFound) {
		f.degrade("get", err)
	}
	return f.fallback.GetByCode(ctx, code)
}

func (f *Fallback) ListActive(ctx context.Context) ([]*models.Room, error) {
	rooms, err := f.primary.ListActive(ctx)
	if err != nil {
		f.degrade("list", err)
		return f.fallback.ListActive(ctx)
	}
	f.degraded.Store(false)

	// Merge in rooms that only ever made it to the fallback table.
	seen := make(map[string]struct{}, len(rooms))
	for _, room := range rooms {
		seen[room.Code] = struct{}{}
	}
	extra, _ := f.fallback.ListActive(ctx)
	for _, room := range extra {
		if _, ok := seen[room.Code]; !ok {
			rooms = append(rooms, room)
		}
	}
	return rooms, nil
}
