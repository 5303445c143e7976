package realtime

import (
	"log/slog"
	"sort"
	"sync"
)

// Hub: реестр комнат, roomKey -> множество соединений.
// Под мьютексом только копируем список участников, доставка идёт после unlock.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[ConnID]Conn     // roomKey -> conns
	joined map[ConnID]map[string]struct{} // conn -> roomKeys
}

func NewHub() *Hub {
	return &Hub{
		rooms:  make(map[string]map[ConnID]Conn),
		joined: make(map[ConnID]map[string]struct{}),
	}
}

// Join идемпотентен; возвращает true, если соединение вошло впервые.
func (h *Hub) Join(c Conn, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	rs, ok := h.rooms[room]
	if !ok {
		rs = make(map[ConnID]Conn)
		h.rooms[room] = rs
	}
	if _, ok := rs[c.ID()]; ok {
		return false
	}
	rs[c.ID()] = c

	js, ok := h.joined[c.ID()]
	if !ok {
		js = make(map[string]struct{})
		h.joined[c.ID()] = js
	}
	js[room] = struct{}{}

	return true
}

// Leave комнаты, в которую не входили, это no-op.
func (h *Hub) Leave(c Conn, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.leaveLocked(c.ID(), room)
}

func (h *Hub) leaveLocked(id ConnID, room string) bool {
	rs, ok := h.rooms[room]
	if !ok {
		return false
	}
	if _, ok := rs[id]; !ok {
		return false
	}
	delete(rs, id)
	if len(rs) == 0 {
		delete(h.rooms, room)
	}

	if js, ok := h.joined[id]; ok {
		delete(js, room)
		if len(js) == 0 {
			delete(h.joined, id)
		}
	}

	return true
}

// LeaveAll выводит соединение из всех комнат и возвращает их ключи.
func (h *Hub) LeaveAll(c Conn) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	js := h.joined[c.ID()]
	left := make([]string, 0, len(js))
	for room := range js {
		left = append(left, room)
	}
	for _, room := range left {
		h.leaveLocked(c.ID(), room)
	}
	sort.Strings(left)

	return left
}

// Multicast доставляет событие всем участникам комнаты, кроме exclude.
// Доставка best-effort: ошибка одного получателя не мешает остальным
// и не возвращается вызывающему. Возвращает число успешных доставок.
func (h *Hub) Multicast(room string, ev Event, exclude ConnID) int {
	targets := h.snapshot(room, exclude)

	delivered := 0
	for _, c := range targets {
		if err := c.Send(ev); err != nil {
			slog.Debug("hub multicast: drop",
				"room", room, "conn", c.ID(), "event", ev.Type, "err", err)
			continue
		}
		delivered++
	}

	return delivered
}

func (h *Hub) snapshot(room string, exclude ConnID) []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rs, ok := h.rooms[room]
	if !ok {
		return nil
	}
	out := make([]Conn, 0, len(rs))
	for id, c := range rs {
		if exclude != "" && id == exclude {
			continue
		}
		out = append(out, c)
	}

	return out
}

func (h *Hub) Members(room string) []ConnID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rs := h.rooms[room]
	out := make([]ConnID, 0, len(rs))
	for id := range rs {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

func (h *Hub) RoomsOf(id ConnID) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	js := h.joined[id]
	out := make([]string, 0, len(js))
	for room := range js {
		out = append(out, room)
	}
	sort.Strings(out)

	return out
}

func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.rooms)
}
