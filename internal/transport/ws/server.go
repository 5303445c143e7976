package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cwrk-planet/realtime-service/internal/domain"
	"github.com/cwrk-planet/realtime-service/internal/realtime"
	"github.com/cwrk-planet/realtime-service/pkg/logger"

	"github.com/gorilla/websocket"
)

type Authenticator interface {
	Authenticate(credential string) (domain.Identity, error)
}

type Options struct {
	PingEvery      time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64
	SendBuffer     int
	AllowedOrigins []string // "*": любой origin
}

func (o Options) withDefaults() Options {
	if o.PingEvery <= 0 {
		o.PingEvery = 15 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 1 << 20
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	return o
}

type Server struct {
	upgrader websocket.Upgrader
	core     *realtime.Core
	auth     Authenticator
	opts     Options
}

func NewServer(core *realtime.Core, auth Authenticator, opts Options) *Server {
	opts = opts.withDefaults()
	s := &Server{
		core: core,
		auth: auth,
		opts: opts,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// credentialFrom: заголовок Authorization, затем access_token, затем token.
func credentialFrom(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
	}
	q := r.URL.Query()
	if t := strings.TrimSpace(q.Get("access_token")); t != "" {
		return t
	}
	return strings.TrimSpace(q.Get("token"))
}

// HandleWS: GET /ws. Аутентификация до upgrade: без валидного токена
// соединение не создаётся и в реестрах ничего не появляется.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	who, err := s.auth.Authenticate(credentialFrom(r))
	if err != nil {
		log.Info("ws handshake rejected", "err", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам отвечает клиенту
		log.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newWsConn(conn, who, s.opts.SendBuffer, log)
	ctx := logger.WithContext(r.Context(), c.log)

	go c.writePump(s.opts.PingEvery, s.opts.WriteTimeout)
	s.core.Connect(c)
	c.log.Info("ws connected", "guest", who.Guest)

	s.readLoop(ctx, c)

	s.core.Disconnect(c)
	if err := c.Close(); err != nil {
		c.log.Debug("ws close failed", "err", err)
	}
	c.log.Info("ws disconnected")
}

// readLoop обрабатывает кадры строго по очереди: порядок событий
// одного соединения сохраняется.
func (s *Server) readLoop(ctx context.Context, c *wsConn) {
	c.conn.SetReadLimit(s.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.opts.PingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.opts.PingEvery))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("ws read failed", "err", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.opts.PingEvery))

		var msg inbound
		if err := decodeObject(data, &msg); err != nil || msg.Type == "" {
			s.reply(ctx, c, "", domain.ErrBadPayload)
			continue
		}
		if err := s.dispatch(ctx, c, msg); err != nil {
			s.reply(ctx, c, msg.Type, err)
		}
	}
}

func (s *Server) dispatch(ctx context.Context, c *wsConn, msg inbound) error {
	switch msg.Type {
	case TypeJoinChannel, TypeLeaveChannel, TypeTypingStart, TypeTypingStop,
		TypeStartCall, TypeJoinCall, TypeLeaveCall, TypeGetCallUsers:
		channelID, err := decodeChannelID(msg.Payload)
		if err != nil {
			return err
		}
		return s.channelEvent(ctx, c, msg.Type, channelID)

	case TypeJoinServer, TypeLeaveServer:
		serverID, err := decodeServerID(msg.Payload)
		if err != nil {
			return err
		}
		if msg.Type == TypeJoinServer {
			return s.core.JoinServer(ctx, c, serverID)
		}
		return s.core.LeaveServer(c, serverID)

	case TypeSendMessage:
		var p sendMessagePayload
		if err := decodeObject(msg.Payload, &p); err != nil {
			return err
		}
		_, err := s.core.SendMessage(ctx, c, strings.TrimSpace(p.ChannelID), p.Content, p.Attachment)
		return err

	case TypeCallOffer, TypeCallAnswer, TypeIceCandidate:
		var p signalPayload
		if err := decodeObject(msg.Payload, &p); err != nil {
			return err
		}
		return s.core.Relay(c, realtime.SignalKind(msg.Type), p.To, p.ChannelID, p.Payload)

	case TypePing:
		return c.Send(realtime.Event{Type: realtime.EventPong})

	default:
		return domain.ErrUnknownEvent
	}
}

func (s *Server) channelEvent(ctx context.Context, c *wsConn, typ, channelID string) error {
	switch typ {
	case TypeJoinChannel:
		return s.core.JoinChannel(ctx, c, channelID)
	case TypeLeaveChannel:
		return s.core.LeaveChannel(c, channelID)
	case TypeTypingStart:
		return s.core.StartTyping(c, channelID)
	case TypeTypingStop:
		return s.core.StopTyping(c, channelID)
	case TypeStartCall, TypeJoinCall:
		_, err := s.core.JoinCall(ctx, c, channelID)
		return err
	case TypeLeaveCall:
		return s.core.LeaveCall(c, channelID)
	default: // TypeGetCallUsers
		if channelID == "" {
			return domain.ErrMissingChannel
		}
		return c.Send(realtime.Event{Type: realtime.EventCallUsers, Payload: realtime.CallUsersPayload{
			ChannelID: channelID,
			Users:     s.core.CallUsers(channelID),
		}})
	}
}

// reply: ошибка уходит только инициатору; соединение остаётся открытым.
func (s *Server) reply(ctx context.Context, c *wsConn, event string, err error) {
	code := domain.CodeOf(err)
	level := slog.LevelDebug
	if code == domain.CodeInternal {
		level = slog.LevelError
	}
	logger.FromContext(ctx).Log(ctx, level, "ws event failed", "event", event, "code", code, "err", err)

	_ = c.Send(realtime.Event{Type: realtime.EventError, Payload: realtime.ErrorPayload{
		Code:    code,
		Message: domain.PublicMessage(err),
		Event:   event,
	}})
}

// CloseAll закрывает все живые соединения; вызывается при остановке сервера,
// http.Server.Shutdown не трогает hijacked-соединения.
func (s *Server) CloseAll() {
	for _, c := range s.core.Directory().All() {
		if wc, ok := c.(*wsConn); ok {
			_ = wc.Close()
		}
	}
}
