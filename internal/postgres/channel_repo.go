package postgres

import (
	"context"
	"errors"

	"github.com/cwrk-planet/realtime-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ChannelRepository struct {
	db *pgxpool.Pool
}

func NewChannelRepository(db *pgxpool.Pool) *ChannelRepository {
	return &ChannelRepository{db: db}
}

func (r *ChannelRepository) GetChannel(ctx context.Context, id string) (*domain.Channel, error) {
	var ch domain.Channel
	err := r.db.QueryRow(ctx,
		`SELECT id, server_id, name, type, created_at FROM channels WHERE id=$1`, id).
		Scan(&ch.ID, &ch.ServerID, &ch.Name, &ch.Type, &ch.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrChannelNotFound
		}
		return nil, err
	}
	return &ch, nil
}

func (r *ChannelRepository) CreateChannel(ctx context.Context, ch *domain.Channel) error {
	if ch.Type == "" {
		ch.Type = domain.ChannelText
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO channels (id, server_id, name, type)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		ch.ID, ch.ServerID, ch.Name, ch.Type).Scan(&ch.CreatedAt)
}
