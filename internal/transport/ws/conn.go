package ws

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cwrk-planet/realtime-service/internal/domain"
	"github.com/cwrk-planet/realtime-service/internal/realtime"

	"github.com/gorilla/websocket"
)

var errConnClosed = errors.New("connection closed")

// wsConn: realtime.Conn поверх gorilla/websocket.
// Пишет в сокет только writePump; Send лишь кладёт событие в очередь.
type wsConn struct {
	id   realtime.ConnID
	who  domain.Identity
	conn *websocket.Conn
	log  *slog.Logger

	send      chan realtime.Event
	closed    chan struct{}
	closeOnce sync.Once
}

func newWsConn(c *websocket.Conn, who domain.Identity, buf int, log *slog.Logger) *wsConn {
	id := realtime.NewConnID()
	return &wsConn{
		id:     id,
		who:    who,
		conn:   c,
		log:    log.With("conn", id, "user", who.UserID),
		send:   make(chan realtime.Event, buf),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) ID() realtime.ConnID       { return c.id }
func (c *wsConn) Identity() domain.Identity { return c.who }

// Send не блокируется: при заполненной очереди событие отбрасывается.
func (c *wsConn) Send(ev realtime.Event) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}

	select {
	case c.send <- ev:
		return nil
	case <-c.closed:
		return errConnClosed
	default:
		return realtime.ErrBackpressure
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

func (c *wsConn) writePump(pingEvery, writeTimeout time.Duration) {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()
	defer func() { _ = c.Close() }()

	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.log.Debug("ws write failed", "event", ev.Type, "err", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				c.log.Debug("ws ping failed", "err", err)
				return
			}
		case <-c.closed:
			return
		}
	}
}
