// internal/store/store.go
package store

import (
	"context"

	"github.com/webdarts/signaling-service/internal/models"
)

// Store is the persistence facade for room records. The registry keeps the
// authoritative in-memory table and writes through to a Store, so
// implementations only need simple row-level operations.
type Store interface {
	Insert(ctx context.Context, room *models.Room) error
	Update(ctx context.Context, room *models.Room) error
	Delete(ctx context.Context, code string) error
	GetByCode(ctx context.Context, code string) (*models.Room, error)
	ListActive(ctx context.Context) ([]*models.Room, error)
}
