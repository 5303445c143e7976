package realtime

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cwrk-planet/realtime-service/internal/domain"
)

type fakeConn struct {
	id   ConnID
	who  domain.Identity
	fail bool

	mu     sync.Mutex
	events []Event
}

func newFakeConn(id string, uid domain.UserID) *fakeConn {
	return &fakeConn{
		id:  ConnID(id),
		who: domain.Identity{UserID: uid, DisplayName: string(uid)},
	}
}

func (c *fakeConn) ID() ConnID                { return c.id }
func (c *fakeConn) Identity() domain.Identity { return c.who }

func (c *fakeConn) Send(ev Event) error {
	if c.fail {
		return ErrBackpressure
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeConn) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func (c *fakeConn) ofType(t string) []Event {
	var out []Event
	for _, ev := range c.all() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// fakeBackend: память вместо ChatSvc и AccessSvc.
type fakeBackend struct {
	mu       sync.Mutex
	channels map[string]domain.Channel
	members  map[string]map[domain.UserID]bool
	saved    []domain.Message
	failSave error
	seq      int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		channels: make(map[string]domain.Channel),
		members:  make(map[string]map[domain.UserID]bool),
	}
}

func (b *fakeBackend) addChannel(serverID, channelID string, users ...domain.UserID) {
	b.channels[channelID] = domain.Channel{ID: channelID, ServerID: serverID, Name: channelID}
	if b.members[serverID] == nil {
		b.members[serverID] = make(map[domain.UserID]bool)
	}
	for _, u := range users {
		b.members[serverID][u] = true
	}
}

func (b *fakeBackend) ChannelForUser(_ context.Context, uid domain.UserID, channelID string) (*domain.Channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.channels[channelID]
	if !ok {
		return nil, domain.ErrChannelNotFound
	}
	if !b.members[ch.ServerID][uid] {
		return nil, domain.ErrNotMember
	}
	return &ch, nil
}

func (b *fakeBackend) CheckServer(_ context.Context, uid domain.UserID, serverID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ms, ok := b.members[serverID]
	if !ok {
		return domain.ErrServerNotFound
	}
	if !ms[uid] {
		return domain.ErrNotMember
	}
	return nil
}

func (b *fakeBackend) Send(ctx context.Context, author domain.Identity, channelID, content string, attachment *string) (*domain.Message, error) {
	if content == "" && attachment == nil {
		return nil, domain.ErrEmptyMessage
	}
	if _, err := b.ChannelForUser(ctx, author.UserID, channelID); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failSave != nil {
		return nil, b.failSave
	}
	b.seq++
	m := domain.Message{
		ID:                "m" + strconv.Itoa(b.seq),
		ChannelID:         channelID,
		AuthorID:          author.UserID,
		AuthorDisplayName: author.DisplayName,
		Content:           content,
		Attachment:        attachment,
		CreatedAt:         time.Unix(int64(1000+b.seq), 0).UTC(),
	}
	b.saved = append(b.saved, m)
	return &m, nil
}

func (b *fakeBackend) savedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.saved)
}
