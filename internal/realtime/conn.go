package realtime

import (
	"errors"

	"github.com/cwrk-planet/realtime-service/internal/domain"

	"github.com/google/uuid"
)

// ConnID выдаётся при accept и не зависит от транспорта.
type ConnID string

func NewConnID() ConnID {
	return ConnID(uuid.NewString())
}

// ErrBackpressure: очередь отправки соединения переполнена, событие отброшено.
var ErrBackpressure = errors.New("send queue full")

// Conn: одно аутентифицированное соединение.
// Send не должен блокироваться на сетевом I/O.
type Conn interface {
	ID() ConnID
	Identity() domain.Identity
	Send(ev Event) error
}
