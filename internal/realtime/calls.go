package realtime

import (
	"sort"
	"sync"

	"github.com/cwrk-planet/realtime-service/internal/domain"
)

// Departure: пользователь полностью покинул звонок (ушло последнее его соединение).
type Departure struct {
	ChannelID string
	ServerID  string
	UserID    domain.UserID
	Remaining int
}

type callEntry struct {
	serverID string
	users    map[domain.UserID]map[ConnID]struct{}
}

// CallRegistry: кто сейчас в звонке каждого канала.
// Участие считается по соединениям: пользователь выходит из звонка только
// когда уходит его последнее соединение. Пустая запись канала удаляется сразу.
type CallRegistry struct {
	mu     sync.Mutex
	calls  map[string]*callEntry               // channelID -> entry
	byConn map[ConnID]map[string]domain.UserID // conn -> channelID -> user
}

func NewCallRegistry() *CallRegistry {
	return &CallRegistry{
		calls:  make(map[string]*callEntry),
		byConn: make(map[ConnID]map[string]domain.UserID),
	}
}

// Join добавляет соединение пользователя в звонок и возвращает участников,
// которые были в звонке до него (без самого пользователя).
func (r *CallRegistry) Join(channelID, serverID string, uid domain.UserID, conn ConnID) []domain.UserID {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.calls[channelID]
	if !ok {
		e = &callEntry{
			serverID: serverID,
			users:    make(map[domain.UserID]map[ConnID]struct{}),
		}
		r.calls[channelID] = e
	}

	prior := make([]domain.UserID, 0, len(e.users))
	for u := range e.users {
		if u != uid {
			prior = append(prior, u)
		}
	}
	sortUserIDs(prior)

	conns, ok := e.users[uid]
	if !ok {
		conns = make(map[ConnID]struct{})
		e.users[uid] = conns
	}
	conns[conn] = struct{}{}

	bc, ok := r.byConn[conn]
	if !ok {
		bc = make(map[string]domain.UserID)
		r.byConn[conn] = bc
	}
	bc[channelID] = uid

	return prior
}

// Leave снимает соединение со звонка. Второе значение true, только если
// пользователь ушёл из звонка целиком. Выход отсутствующего: no-op.
func (r *CallRegistry) Leave(channelID string, uid domain.UserID, conn ConnID) (Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.leaveLocked(channelID, uid, conn)
}

func (r *CallRegistry) leaveLocked(channelID string, uid domain.UserID, conn ConnID) (Departure, bool) {
	e, ok := r.calls[channelID]
	if !ok {
		return Departure{}, false
	}
	conns, ok := e.users[uid]
	if !ok {
		return Departure{}, false
	}
	if _, ok := conns[conn]; !ok {
		return Departure{}, false
	}

	delete(conns, conn)
	if bc, ok := r.byConn[conn]; ok {
		delete(bc, channelID)
		if len(bc) == 0 {
			delete(r.byConn, conn)
		}
	}
	if len(conns) > 0 {
		return Departure{}, false
	}

	delete(e.users, uid)
	if len(e.users) == 0 {
		delete(r.calls, channelID)
	}

	return Departure{
		ChannelID: channelID,
		ServerID:  e.serverID,
		UserID:    uid,
		Remaining: len(e.users),
	}, true
}

// LeaveConn снимает соединение со всех звонков; возвращает только те каналы,
// откуда пользователь ушёл целиком.
func (r *CallRegistry) LeaveConn(conn ConnID) []Departure {
	r.mu.Lock()
	defer r.mu.Unlock()

	bc := r.byConn[conn]
	channels := make([]string, 0, len(bc))
	for ch := range bc {
		channels = append(channels, ch)
	}
	sort.Strings(channels)

	var out []Departure
	for _, ch := range channels {
		if d, ok := r.leaveLocked(ch, bc[ch], conn); ok {
			out = append(out, d)
		}
	}

	return out
}

func (r *CallRegistry) Participants(channelID string) []domain.UserID {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.calls[channelID]
	if !ok {
		return []domain.UserID{}
	}
	out := make([]domain.UserID, 0, len(e.users))
	for u := range e.users {
		out = append(out, u)
	}
	sortUserIDs(out)

	return out
}

// Active сообщает, есть ли у канала запись звонка.
func (r *CallRegistry) Active(channelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.calls[channelID]
	return ok
}

func sortUserIDs(ids []domain.UserID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
