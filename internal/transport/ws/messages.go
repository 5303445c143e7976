package ws

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/cwrk-planet/realtime-service/internal/domain"
)

// Типы событий client → core
const (
	TypeJoinChannel  = "join_channel"
	TypeLeaveChannel = "leave_channel"
	TypeJoinServer   = "join_server"
	TypeLeaveServer  = "leave_server"
	TypeSendMessage  = "send_message"
	TypeTypingStart  = "typing_start"
	TypeTypingStop   = "typing_stop"
	TypeStartCall    = "start_call"
	TypeJoinCall     = "join_call"
	TypeLeaveCall    = "leave_call"
	TypeGetCallUsers = "get_call_users"
	TypeCallOffer    = "call_offer"
	TypeCallAnswer   = "call_answer"
	TypeIceCandidate = "ice_candidate"
	TypePing         = "ping"
)

// inbound: конверт входящего кадра; payload разбирается по типу.
type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type channelRef struct {
	ChannelID string `json:"channelId"`
}

type serverRef struct {
	ServerID string `json:"serverId"`
}

type sendMessagePayload struct {
	ChannelID  string  `json:"channelId"`
	Content    string  `json:"content"`
	Attachment *string `json:"attachment,omitempty"`
}

type signalPayload struct {
	To        domain.UserID   `json:"to"`
	ChannelID string          `json:"channelId"`
	Payload   json.RawMessage `json:"payload"`
}

// decodeID принимает и голую строку ("42"), и объект ({"channelId":"42"}).
func decodeID(raw json.RawMessage, fromObject func([]byte) (string, error)) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", domain.ErrBadPayload
		}
		return strings.TrimSpace(s), nil
	}
	id, err := fromObject(raw)
	if err != nil {
		return "", domain.ErrBadPayload
	}
	return strings.TrimSpace(id), nil
}

func decodeChannelID(raw json.RawMessage) (string, error) {
	return decodeID(raw, func(b []byte) (string, error) {
		var ref channelRef
		err := json.Unmarshal(b, &ref)
		return ref.ChannelID, err
	})
}

func decodeServerID(raw json.RawMessage) (string, error) {
	return decodeID(raw, func(b []byte) (string, error) {
		var ref serverRef
		err := json.Unmarshal(b, &ref)
		return ref.ServerID, err
	})
}

func decodeObject(raw json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return domain.ErrBadPayload
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return domain.ErrBadPayload
	}
	return nil
}
