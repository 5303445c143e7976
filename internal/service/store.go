package service

import (
	"context"

	"github.com/cwrk-planet/realtime-service/internal/domain"
)

// Хранилища, которые нужны сервисам. Реализации: internal/postgres, internal/sqlite.
// Отсутствующая запись: ошибка, оборачивающая domain.ErrNotFound.

type ChannelStore interface {
	GetChannel(ctx context.Context, id string) (*domain.Channel, error)
}

type ServerStore interface {
	GetServer(ctx context.Context, id string) (*domain.Server, error)
	IsMember(ctx context.Context, serverID string, uid domain.UserID) (bool, error)
}

type MessageStore interface {
	// SaveMessage заполняет ID и CreatedAt; CreatedAt строго растёт в пределах канала.
	SaveMessage(ctx context.Context, m *domain.Message) error
	History(ctx context.Context, channelID, after string, limit int) ([]domain.Message, string, error)
}

type UserStore interface {
	GetUser(ctx context.Context, id domain.UserID) (*domain.User, error)
}
