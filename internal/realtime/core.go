package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/cwrk-planet/realtime-service/internal/domain"
)

type ChatSvc interface {
	Send(ctx context.Context, author domain.Identity, channelID, content string, attachment *string) (*domain.Message, error)
}

type AccessSvc interface {
	// ChannelForUser возвращает канал, если пользователь состоит в его сервере.
	ChannelForUser(ctx context.Context, uid domain.UserID, channelID string) (*domain.Channel, error)
	CheckServer(ctx context.Context, uid domain.UserID, serverID string) error
}

type SignalKind string

const (
	SignalOffer        SignalKind = EventCallOffer
	SignalAnswer       SignalKind = EventCallAnswer
	SignalIceCandidate SignalKind = EventIceCandidate
)

// Core содержит операции сессионного ядра над реестрами.
// Все разделяемые данные живут в Hub, Directory и CallRegistry.
type Core struct {
	hub    *Hub
	dir    *Directory
	calls  *CallRegistry
	chat   ChatSvc
	access AccessSvc
}

func NewCore(chat ChatSvc, access AccessSvc) *Core {
	return &Core{
		hub:    NewHub(),
		dir:    NewDirectory(),
		calls:  NewCallRegistry(),
		chat:   chat,
		access: access,
	}
}

func (c *Core) Hub() *Hub             { return c.hub }
func (c *Core) Directory() *Directory { return c.dir }
func (c *Core) Calls() *CallRegistry  { return c.calls }

// Connect регистрирует аутентифицированное соединение и подписывает его
// на персональную комнату пользователя.
func (c *Core) Connect(conn Conn) {
	if !c.dir.Add(conn) {
		return
	}
	id := conn.Identity()
	c.hub.Join(conn, UserRoom(id.UserID))

	_ = conn.Send(Event{Type: EventReady, Payload: ReadyPayload{
		UserID:   id.UserID,
		Username: id.DisplayName,
		ConnID:   conn.ID(),
		Guest:    id.Guest,
	}})
}

// JoinChannel выполняет вход в комнату канала после проверки членства.
// Проверка выполняется при каждом входе, без кэша.
func (c *Core) JoinChannel(ctx context.Context, conn Conn, channelID string) error {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return domain.ErrMissingChannel
	}
	if _, err := c.access.ChannelForUser(ctx, conn.Identity().UserID, channelID); err != nil {
		return err
	}

	c.hub.Join(conn, ChannelRoom(channelID))
	_ = conn.Send(Event{Type: EventJoinedChannel, Payload: ChannelPayload{ChannelID: channelID}})

	return nil
}

func (c *Core) LeaveChannel(conn Conn, channelID string) error {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return domain.ErrMissingChannel
	}
	c.hub.Leave(conn, ChannelRoom(channelID))
	_ = conn.Send(Event{Type: EventLeftChannel, Payload: ChannelPayload{ChannelID: channelID}})

	return nil
}

func (c *Core) JoinServer(ctx context.Context, conn Conn, serverID string) error {
	serverID = strings.TrimSpace(serverID)
	if serverID == "" {
		return domain.ErrMissingServer
	}
	if err := c.access.CheckServer(ctx, conn.Identity().UserID, serverID); err != nil {
		return err
	}

	c.hub.Join(conn, ServerRoom(serverID))
	_ = conn.Send(Event{Type: EventJoinedServer, Payload: ServerPayload{ServerID: serverID}})

	return nil
}

func (c *Core) LeaveServer(conn Conn, serverID string) error {
	serverID = strings.TrimSpace(serverID)
	if serverID == "" {
		return domain.ErrMissingServer
	}
	c.hub.Leave(conn, ServerRoom(serverID))
	_ = conn.Send(Event{Type: EventLeftServer, Payload: ServerPayload{ServerID: serverID}})

	return nil
}

// SendMessage: проверка и запись делает ChatSvc, после успешной записи
// сообщение рассылается всей комнате канала, включая отправителя.
// При ошибке записи ничего не рассылается.
func (c *Core) SendMessage(ctx context.Context, conn Conn, channelID, content string, attachment *string) (*domain.Message, error) {
	return c.PostMessage(ctx, conn.Identity(), channelID, content, attachment)
}

// PostMessage: тот же конвейер без исходного соединения (REST).
func (c *Core) PostMessage(ctx context.Context, author domain.Identity, channelID, content string, attachment *string) (*domain.Message, error) {
	msg, err := c.chat.Send(ctx, author, channelID, content, attachment)
	if err != nil {
		return nil, err
	}

	n := c.hub.Multicast(ChannelRoom(msg.ChannelID), Event{
		Type:    EventNewMessage,
		Payload: NewMessagePayload(msg),
	}, "")
	slog.Debug("message relayed", "channel", msg.ChannelID, "msg", msg.ID, "delivered", n)

	return msg, nil
}

func (c *Core) StartTyping(conn Conn, channelID string) error {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return domain.ErrMissingChannel
	}
	id := conn.Identity()
	c.hub.Multicast(ChannelRoom(channelID), Event{
		Type: EventUserTyping,
		Payload: TypingPayload{
			UserID:    id.UserID,
			Username:  id.DisplayName,
			ChannelID: channelID,
		},
	}, conn.ID())

	return nil
}

func (c *Core) StopTyping(conn Conn, channelID string) error {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return domain.ErrMissingChannel
	}
	c.hub.Multicast(ChannelRoom(channelID), Event{
		Type: EventUserStoppedTyping,
		Payload: TypingPayload{
			UserID:    conn.Identity().UserID,
			ChannelID: channelID,
		},
	}, conn.ID())

	return nil
}

// JoinCall добавляет соединение в звонок канала и возвращает участников,
// которые были там до него: с ними клиент и договаривается.
func (c *Core) JoinCall(ctx context.Context, conn Conn, channelID string) ([]domain.UserID, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return nil, domain.ErrMissingChannel
	}
	id := conn.Identity()
	ch, err := c.access.ChannelForUser(ctx, id.UserID, channelID)
	if err != nil {
		return nil, err
	}

	prior := c.calls.Join(channelID, ch.ServerID, id.UserID, conn.ID())

	joined := Event{Type: EventCallJoined, Payload: CallParticipantsPayload{
		ChannelID:    channelID,
		Participants: prior,
	}}
	_ = conn.Send(joined)
	// остальные соединения того же пользователя узнают о звонке через его комнату
	c.hub.Multicast(UserRoom(id.UserID), joined, conn.ID())

	c.hub.Multicast(ChannelRoom(channelID), Event{
		Type: EventUserJoinedCall,
		Payload: CallPresencePayload{
			UserID:    id.UserID,
			Username:  id.DisplayName,
			ChannelID: channelID,
		},
	}, conn.ID())
	c.publishCallState(ch.ServerID, channelID)

	return prior, nil
}

func (c *Core) LeaveCall(conn Conn, channelID string) error {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return domain.ErrMissingChannel
	}
	if d, ok := c.calls.Leave(channelID, conn.Identity().UserID, conn.ID()); ok {
		c.announceDeparture(d)
	}
	_ = conn.Send(Event{Type: EventCallLeft, Payload: ChannelPayload{ChannelID: channelID}})

	return nil
}

func (c *Core) CallUsers(channelID string) []domain.UserID {
	return c.calls.Participants(strings.TrimSpace(channelID))
}

func (c *Core) announceDeparture(d Departure) {
	c.hub.Multicast(ChannelRoom(d.ChannelID), Event{
		Type: EventUserLeftCall,
		Payload: CallPresencePayload{
			UserID:    d.UserID,
			ChannelID: d.ChannelID,
		},
	}, "")
	c.publishCallState(d.ServerID, d.ChannelID)
}

func (c *Core) publishCallState(serverID, channelID string) {
	if serverID == "" {
		return
	}
	c.hub.Multicast(ServerRoom(serverID), Event{
		Type: EventCallState,
		Payload: CallParticipantsPayload{
			ChannelID:    channelID,
			Participants: c.calls.Participants(channelID),
		},
	}, "")
}

// Relay пересылает offer/answer/candidate всем соединениям адресата.
// Нет соединений: кадр молча отбрасывается. Payload не разбирается.
func (c *Core) Relay(conn Conn, kind SignalKind, to domain.UserID, channelID string, payload json.RawMessage) error {
	switch kind {
	case SignalOffer, SignalAnswer, SignalIceCandidate:
	default:
		return domain.ErrUnknownEvent
	}
	to = domain.UserID(strings.TrimSpace(string(to)))
	if to == "" {
		return domain.ErrMissingTarget
	}

	ev := Event{Type: string(kind), Payload: SignalPayload{
		From:      conn.Identity().UserID,
		ChannelID: channelID,
		Payload:   payload,
	}}
	for _, target := range c.dir.ConnsOf(to) {
		if err := target.Send(ev); err != nil {
			slog.Debug("signal relay: drop", "kind", kind, "to", to, "conn", target.ID(), "err", err)
		}
	}

	return nil
}

func (c *Core) RelayOffer(conn Conn, to domain.UserID, channelID string, payload json.RawMessage) error {
	return c.Relay(conn, SignalOffer, to, channelID, payload)
}

func (c *Core) RelayAnswer(conn Conn, to domain.UserID, channelID string, payload json.RawMessage) error {
	return c.Relay(conn, SignalAnswer, to, channelID, payload)
}

func (c *Core) RelayIceCandidate(conn Conn, to domain.UserID, channelID string, payload json.RawMessage) error {
	return c.Relay(conn, SignalIceCandidate, to, channelID, payload)
}

// Disconnect вызывается транспортом при закрытии соединения; повторный
// вызов ничего не делает. Сначала комнаты, потом звонки: уведомления об уходе
// не должны адресоваться самому закрытому соединению.
func (c *Core) Disconnect(conn Conn) {
	if !c.dir.Remove(conn) {
		return
	}
	rooms := c.hub.LeaveAll(conn)
	departures := c.calls.LeaveConn(conn.ID())
	for _, d := range departures {
		c.announceDeparture(d)
	}

	slog.Debug("conn disconnected",
		"conn", conn.ID(), "user", conn.Identity().UserID,
		"rooms", len(rooms), "calls_left", len(departures))
}
