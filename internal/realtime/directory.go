package realtime

import (
	"sort"
	"sync"

	"github.com/cwrk-planet/realtime-service/internal/domain"
)

// Directory: живые соединения и их привязка к пользователю.
// Через него сигналинг находит «все соединения пользователя X».
type Directory struct {
	mu     sync.RWMutex
	conns  map[ConnID]Conn
	byUser map[domain.UserID]map[ConnID]struct{}
}

func NewDirectory() *Directory {
	return &Directory{
		conns:  make(map[ConnID]Conn),
		byUser: make(map[domain.UserID]map[ConnID]struct{}),
	}
}

func (d *Directory) Add(c Conn) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.conns[c.ID()]; ok {
		return false
	}
	d.conns[c.ID()] = c

	uid := c.Identity().UserID
	us, ok := d.byUser[uid]
	if !ok {
		us = make(map[ConnID]struct{})
		d.byUser[uid] = us
	}
	us[c.ID()] = struct{}{}

	return true
}

// Remove возвращает false, если соединение уже было удалено.
func (d *Directory) Remove(c Conn) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.conns[c.ID()]; !ok {
		return false
	}
	delete(d.conns, c.ID())

	uid := c.Identity().UserID
	if us, ok := d.byUser[uid]; ok {
		delete(us, c.ID())
		if len(us) == 0 {
			delete(d.byUser, uid)
		}
	}

	return true
}

func (d *Directory) ConnsOf(uid domain.UserID) []Conn {
	d.mu.RLock()
	defer d.mu.RUnlock()

	us := d.byUser[uid]
	out := make([]Conn, 0, len(us))
	for id := range us {
		out = append(out, d.conns[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })

	return out
}

func (d *Directory) Online(uid domain.UserID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.byUser[uid]) > 0
}

func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.conns)
}

// All возвращает снимок всех живых соединений.
func (d *Directory) All() []Conn {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Conn, 0, len(d.conns))
	for _, c := range d.conns {
		out = append(out, c)
	}
	return out
}
