package realtime

import (
	"encoding/json"
	"time"

	"github.com/cwrk-planet/realtime-service/internal/domain"
)

// Типы событий core → client
const (
	EventReady             = "ready"
	EventError             = "error"
	EventNewMessage        = "new_message"
	EventJoinedChannel     = "joined_channel"
	EventLeftChannel       = "left_channel"
	EventJoinedServer      = "joined_server"
	EventLeftServer        = "left_server"
	EventUserTyping        = "user_typing"
	EventUserStoppedTyping = "user_stopped_typing"
	EventUserJoinedCall    = "user-joined-call"
	EventUserLeftCall      = "user-left-call"
	EventCallJoined        = "call_joined"
	EventCallLeft          = "call_left"
	EventCallUsers         = "call_users"
	EventCallState         = "call_state"
	EventCallOffer         = "call_offer"
	EventCallAnswer        = "call_answer"
	EventIceCandidate      = "ice_candidate"
	EventPong              = "pong"
)

type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type ReadyPayload struct {
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
	ConnID   ConnID        `json:"connId"`
	Guest    bool          `json:"guest,omitempty"`
}

type ErrorPayload struct {
	Code    domain.Code `json:"code"`
	Message string      `json:"message"`
	Event   string      `json:"event,omitempty"`
}

// MessagePayload: поля названы так, как их ждёт веб-клиент.
type MessagePayload struct {
	ID         string        `json:"id"`
	ChannelID  string        `json:"channel_id"`
	UserID     domain.UserID `json:"user_id"`
	Username   string        `json:"username"`
	Avatar     *string       `json:"avatar,omitempty"`
	Content    string        `json:"content"`
	Attachment *string       `json:"attachment,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

func NewMessagePayload(m *domain.Message) MessagePayload {
	return MessagePayload{
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

type ChannelPayload struct {
	ChannelID string `json:"channelId"`
}

type ServerPayload struct {
	ServerID string `json:"serverId"`
}

type TypingPayload struct {
	UserID    domain.UserID `json:"userId"`
	Username  string        `json:"username,omitempty"`
	ChannelID string        `json:"channelId"`
}

type CallPresencePayload struct {
	UserID    domain.UserID `json:"userId"`
	Username  string        `json:"username,omitempty"`
	ChannelID string        `json:"channelId"`
}

type CallParticipantsPayload struct {
	ChannelID    string          `json:"channelId"`
	Participants []domain.UserID `json:"participants"`
}

type CallUsersPayload struct {
	ChannelID string          `json:"channelId"`
	Users     []domain.UserID `json:"users"`
}

// SignalPayload: то, что получает адресат offer/answer/candidate.
type SignalPayload struct {
	From      domain.UserID   `json:"from"`
	ChannelID string          `json:"channelId"`
	Payload   json.RawMessage `json:"payload"`
}
