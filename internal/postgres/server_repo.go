package postgres

import (
	"context"
	"errors"

	"github.com/cwrk-planet/realtime-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ServerRepository struct {
	db *pgxpool.Pool
}

func NewServerRepository(db *pgxpool.Pool) *ServerRepository {
	return &ServerRepository{db: db}
}

func (r *ServerRepository) GetServer(ctx context.Context, id string) (*domain.Server, error) {
	var s domain.Server
	err := r.db.QueryRow(ctx,
		`SELECT id, name, owner_id, created_at FROM servers WHERE id=$1`, id).
		Scan(&s.ID, &s.Name, &s.OwnerID, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrServerNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *ServerRepository) IsMember(ctx context.Context, serverID string, uid domain.UserID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM server_members WHERE server_id=$1 AND user_id=$2)`,
		serverID, uid).Scan(&exists)
	return exists, err
}

// CreateServer создаёт сервер и сразу добавляет владельца участником.
func (r *ServerRepository) CreateServer(ctx context.Context, s *domain.Server) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := tx.QueryRow(ctx, `
		INSERT INTO servers (id, name, owner_id)
		VALUES ($1, $2, $3)
		RETURNING created_at`,
		s.ID, s.Name, s.OwnerID).Scan(&s.CreatedAt); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO server_members (server_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`,
		s.ID, s.OwnerID, domain.RoleOwner); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *ServerRepository) AddMember(ctx context.Context, m domain.Membership) error {
	if m.Role == "" {
		m.Role = domain.RoleMember
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO server_members (server_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`,
		m.ServerID, m.UserID, m.Role)
	return err
}

func (r *ServerRepository) RemoveMember(ctx context.Context, serverID string, uid domain.UserID) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM server_members WHERE server_id=$1 AND user_id=$2`, serverID, uid)
	return err
}
