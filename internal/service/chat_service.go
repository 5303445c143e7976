package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/cwrk-planet/realtime-service/internal/domain"
	"github.com/cwrk-planet/realtime-service/internal/storage"
)

const DefaultMaxMessageLength = 4000

type ChatService struct {
	access   *AccessService
	messages MessageStore
	users    UserStore

	maxLen int
}

func NewChatService(access *AccessService, messages MessageStore, users UserStore, maxLen int) *ChatService {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}
	return &ChatService{
		access:   access,
		messages: messages,
		users:    users,
		maxLen:   maxLen,
	}
}

// Send проверяет сообщение и доступ, сохраняет и возвращает сохранённую копию.
// Доступ проверяется при каждой отправке, независимо от подписки на комнату.
func (s *ChatService) Send(ctx context.Context, author domain.Identity, channelID, content string, attachment *string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if attachment != nil && strings.TrimSpace(*attachment) == "" {
		attachment = nil
	}
	if content == "" && attachment == nil {
		return nil, domain.ErrEmptyMessage
	}
	if len([]rune(content)) > s.maxLen {
		return nil, domain.ErrMessageTooLong
	}

	ch, err := s.access.ChannelForUser(ctx, author.UserID, channelID)
	if err != nil {
		return nil, err
	}

	name, avatar := s.authorOf(ctx, author)
	m := &domain.Message{
		ChannelID:         ch.ID,
		AuthorID:          author.UserID,
		AuthorDisplayName: name,
		AuthorAvatar:      avatar,
		Content:           content,
		Attachment:        attachment,
	}
	if err := s.messages.SaveMessage(ctx, m); err != nil {
		return nil, storageErr("save message", err)
	}
	return m, nil
}

// authorOf берёт имя и аватар из профиля; гостей и неизвестных: из identity.
func (s *ChatService) authorOf(ctx context.Context, id domain.Identity) (string, *string) {
	if id.Guest || s.users == nil {
		return id.DisplayName, id.AvatarURL
	}
	u, err := s.users.GetUser(ctx, id.UserID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("author lookup failed", "user", id.UserID, "err", err)
		}
		return id.DisplayName, id.AvatarURL
	}

	name := u.Username
	if name == "" {
		name = id.DisplayName
	}
	avatar := u.AvatarURL
	if avatar == nil {
		avatar = id.AvatarURL
	}
	return name, avatar
}

// History: лента канала от новых к старым с курсорной пагинацией.
func (s *ChatService) History(ctx context.Context, who domain.Identity, channelID, after string, limit int) ([]domain.Message, string, error) {
	if _, err := s.access.ChannelForUser(ctx, who.UserID, channelID); err != nil {
		return nil, "", err
	}
	if _, err := storage.DecodeCursor(after); err != nil {
		return nil, "", err
	}

	msgs, next, err := s.messages.History(ctx, channelID, after, storage.ClampLimit(limit))
	if err != nil {
		return nil, "", storageErr("history", err)
	}
	return msgs, next, nil
}
