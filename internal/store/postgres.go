// internal/store/postgres.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webdarts/signaling-service/internal/models"
)

// Postgres is the durable Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// ConnectPostgres opens a pool against the given URL and pings it.
func ConnectPostgres(ctx context.Context, url string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) Insert(ctx context.Context, room *models.Room) error {
	q := `
	INSERT INTO rooms (
		code, host, host_id, opponent, opponent_id,
		players, max_players, status, game_settings,
		created, last_activity, is_live
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q,
			room.Code,
			room.Host,
			room.HostID,
			nullable(room.Opponent),
			nullable(room.OpponentID),
			room.Players,
			room.MaxPlayers,
			string(room.Status),
			[]byte(room.GameSettings),
			room.Created,
			room.LastActivity,
			room.IsLive,
		)
		return err
	})
}

func (p *Postgres) Update(ctx context.Context, room *models.Room) error {
	q := `
	UPDATE rooms SET
		host = $2, host_id = $3, opponent = $4, opponent_id = $5,
		players = $6, max_players = $7, status = $8, game_settings = $9,
		last_activity = $10, is_live = $11
	WHERE code = $1
	`
	return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q,
			room.Code,
			room.Host,
			room.HostID,
			nullable(room.Opponent),
			nullable(room.OpponentID),
			room.Players,
			room.MaxPlayers,
			string(room.Status),
			[]byte(room.GameSettings),
			room.LastActivity,
			room.IsLive,
		)
		return err
	})
}

func (p *Postgres) Delete(ctx context.Context, code string) error {
	return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM rooms WHERE code = $1`, code)
		return err
	})
}

func (p *Postgres) GetByCode(ctx context.Context, code string) (*models.Room, error) {
	q := `
	SELECT code, host, host_id, opponent, opponent_id,
	       players, max_players, status, game_settings,
	       created, last_activity, is_live
	FROM rooms
	WHERE code = $1
	`
	room, err := scanRoom(p.pool.QueryRow(ctx, q, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

func (p *Postgres) ListActive(ctx context.Context) ([]*models.Room, error) {
	q := `
	SELECT code, host, host_id, opponent, opponent_id,
	       players, max_players, status, game_settings,
	       created, last_activity, is_live
	FROM rooms
	WHERE status != 'ended'
	ORDER BY created DESC
	`
	rows, err := p.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []*models.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func scanRoom(row pgx.Row) (*models.Room, error) {
	var (
		room                 models.Room
		opponent, opponentID *string
		status               string
		settings             []byte
	)
	err := row.Scan(
		&room.Code,
		&room.Host,
		&room.HostID,
		&opponent,
		&opponentID,
		&room.Players,
		&room.MaxPlayers,
		&status,
		&settings,
		&room.Created,
		&room.LastActivity,
		&room.IsLive,
	)
	if err != nil {
		return nil, err
	}
	if opponent != nil {
		room.Opponent = *opponent
	}
	if opponentID != nil {
		room.OpponentID = *opponentID
	}
	room.Status = models.Status(status)
	room.GameSettings = settings
	return &room, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
