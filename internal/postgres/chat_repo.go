package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cwrk-planet/realtime-service/internal/domain"
	"github.com/cwrk-planet/realtime-service/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// SaveMessage пишет сообщение и выдаёт ему id и created_at.
// Строка канала блокируется на время вставки: параллельные отправки в один
// канал выстраиваются, и created_at в канале строго растёт.
func (r *MessageRepository) SaveMessage(ctx context.Context, m *domain.Message) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var one int
	if err := tx.QueryRow(ctx, `SELECT 1 FROM channels WHERE id=$1 FOR UPDATE`, m.ChannelID).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrChannelNotFound
		}
		return err
	}

	m.ID = uuid.NewString()
	if err := tx.QueryRow(ctx, `
		INSERT INTO messages (id, channel_id, user_id, author_name, author_avatar, content, attachment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, GREATEST(
			clock_timestamp(),
			(SELECT max(created_at) + interval '1 microsecond' FROM messages WHERE channel_id = $2)
		))
		RETURNING created_at`,
		m.ID, m.ChannelID, m.AuthorID, m.AuthorDisplayName, m.AuthorAvatar, m.Content, m.Attachment,
	).Scan(&m.CreatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// History возвращает историю канала с курсорной пагинацией (created_at,id DESC).
func (r *MessageRepository) History(ctx context.Context, channelID, after string, limit int) ([]domain.Message, string, error) {
	limit = storage.ClampLimit(limit)
	cur, err := storage.DecodeCursor(after)
	if err != nil {
		return nil, "", fmt.Errorf("decode cursor: %w", err)
	}

	const q = `
		SELECT id, channel_id, user_id, author_name, author_avatar, content, attachment, created_at
		FROM messages
		WHERE channel_id = $1
		  AND (
		    $2::timestamptz IS NULL
		    OR created_at < $2
		    OR (created_at = $2 AND id < $3)
		  )
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`

	var createdAt any
	var id any
	if cur != nil {
		createdAt = cur.CreatedAt
		id = cur.ID
	}

	rows, err := r.db.Query(ctx, q, channelID, createdAt, id, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	out := make([]domain.Message, 0, limit)
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(
			&m.ID,
			&m.ChannelID,
			&m.AuthorID,
			&m.AuthorDisplayName,
			&m.AuthorAvatar,
			&m.Content,
			&m.Attachment,
			&m.CreatedAt,
		); err != nil {
			return nil, "", err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	return out, storage.NextCursor(out, limit), nil
}
