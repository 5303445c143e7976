package http

import (
	"time"

	"github.com/cwrk-planet/realtime-service/internal/domain"
)

type PostMessageRequest struct {
	Content    string  `json:"content"`
	Attachment *string `json:"attachment,omitempty"`
}

type MessageItem struct {
	ID         string        `json:"id"`
	ChannelID  string        `json:"channel_id"`
	UserID     domain.UserID `json:"user_id"`
	Username   string        `json:"username"`
	Avatar     *string       `json:"avatar,omitempty"`
	Content    string        `json:"content"`
	Attachment *string       `json:"attachment,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

type HistoryResponse struct {
	Items      []MessageItem `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type CallResponse struct {
	ChannelID    string          `json:"channel_id"`
	Participants []domain.UserID `json:"participants"`
}

type ErrorBody struct {
	Code    domain.Code `json:"code"`
	Message string      `json:"message"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func toMessageItem(m *domain.Message) MessageItem {
	return MessageItem{
		ID:         m.ID,
		ChannelID:  m.ChannelID,
		UserID:     m.AuthorID,
		Username:   m.AuthorDisplayName,
		Avatar:     m.AuthorAvatar,
		Content:    m.Content,
		Attachment: m.Attachment,
		CreatedAt:  m.CreatedAt,
	}
}
