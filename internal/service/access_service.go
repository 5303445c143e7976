package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/cwrk-planet/realtime-service/internal/domain"
)

// AccessService отвечает на вопрос «может ли пользователь видеть канал/сервер».
// Ничего не кэширует: членство может измениться между двумя запросами.
type AccessService struct {
	channels ChannelStore
	servers  ServerStore
}

func NewAccessService(channels ChannelStore, servers ServerStore) *AccessService {
	return &AccessService{channels: channels, servers: servers}
}

func (s *AccessService) ChannelForUser(ctx context.Context, uid domain.UserID, channelID string) (*domain.Channel, error) {
	if channelID == "" {
		return nil, domain.ErrMissingChannel
	}
	ch, err := s.channels.GetChannel(ctx, channelID)
	if err != nil {
		return nil, storageErr("get channel", err)
	}
	if err := s.CheckServer(ctx, uid, ch.ServerID); err != nil {
		return nil, err
	}
	return ch, nil
}

// CheckServer: владелец сервера всегда считается участником.
func (s *AccessService) CheckServer(ctx context.Context, uid domain.UserID, serverID string) error {
	if serverID == "" {
		return domain.ErrMissingServer
	}
	srv, err := s.servers.GetServer(ctx, serverID)
	if err != nil {
		return storageErr("get server", err)
	}
	if srv.OwnerID == uid {
		return nil
	}

	ok, err := s.servers.IsMember(ctx, serverID, uid)
	if err != nil {
		return storageErr("check membership", err)
	}
	if !ok {
		return domain.ErrNotMember
	}
	return nil
}

// storageErr пропускает доменные ошибки как есть, остальное считается internal.
func storageErr(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidArgument) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrInternal, err)
}
