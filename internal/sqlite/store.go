// Package sqlite: встроенное хранилище на modernc.org/sqlite (без cgo).
// Используется для локального запуска, демо и end-to-end тестов транспорта.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cwrk-planet/realtime-service/internal/domain"
	"github.com/cwrk-planet/realtime-service/internal/storage"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const MemoryPath = ":memory:"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		username   TEXT NOT NULL UNIQUE,
		avatar     TEXT,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS servers (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		owner_id   TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS server_members (
		server_id TEXT NOT NULL,
		user_id   TEXT NOT NULL,
		role      TEXT NOT NULL DEFAULT 'member',
		joined_at INTEGER NOT NULL,
		PRIMARY KEY (server_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS channels (
		id         TEXT PRIMARY KEY,
		server_id  TEXT NOT NULL,
		name       TEXT NOT NULL,
		type       TEXT NOT NULL DEFAULT 'text',
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id            TEXT PRIMARY KEY,
		channel_id    TEXT NOT NULL,
		user_id       TEXT NOT NULL,
		author_name   TEXT NOT NULL,
		author_avatar TEXT,
		content       TEXT NOT NULL,
		attachment    TEXT,
		created_at    INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS messages_channel_created_idx
		ON messages (channel_id, created_at DESC, id DESC)`,
}

// Store реализует все хранилища сервисного слоя поверх одного *sql.DB.
// Время хранится в микросекундах unix.
type Store struct {
	db *sql.DB
	mu sync.Mutex // сериализует запись сообщений

	now func() time.Time
}

// Open открывает (или создаёт) базу по пути; ":memory:": база в памяти.
func Open(path string) (*Store, error) {
	if path == "" {
		path = MemoryPath
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// каждое соединение к ":memory:": отдельная база
	if path == MemoryPath {
		db.SetMaxOpenConns(1)
	} else {
		for _, pragma := range []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA busy_timeout = 5000",
		} {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("%s: %w", pragma, err)
			}
		}
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func micros(t time.Time) int64 {
	return t.UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

func (s *Store) GetChannel(ctx context.Context, id string) (*domain.Channel, error) {
	var ch domain.Channel
	var typ string
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, server_id, name, type, created_at FROM channels WHERE id = ?`, id).
		Scan(&ch.ID, &ch.ServerID, &ch.Name, &typ, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrChannelNotFound
		}
		return nil, err
	}
	ch.Type = domain.ChannelType(typ)
	ch.CreatedAt = fromMicros(created)
	return &ch, nil
}

func (s *Store) CreateChannel(ctx context.Context, ch *domain.Channel) error {
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	if ch.Type == "" {
		ch.Type = domain.ChannelText
	}
	ch.CreatedAt = fromMicros(micros(s.now()))
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (id, server_id, name, type, created_at) VALUES (?, ?, ?, ?, ?)`,
		ch.ID, ch.ServerID, ch.Name, string(ch.Type), micros(ch.CreatedAt))
	return err
}

func (s *Store) GetServer(ctx context.Context, id string) (*domain.Server, error) {
	var srv domain.Server
	var owner string
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id, created_at FROM servers WHERE id = ?`, id).
		Scan(&srv.ID, &srv.Name, &owner, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrServerNotFound
		}
		return nil, err
	}
	srv.OwnerID = domain.UserID(owner)
	srv.CreatedAt = fromMicros(created)
	return &srv, nil
}

// CreateServer создаёт сервер и добавляет владельца участником.
func (s *Store) CreateServer(ctx context.Context, srv *domain.Server) error {
	if srv.ID == "" {
		srv.ID = uuid.NewString()
	}
	srv.CreatedAt = fromMicros(micros(s.now()))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO servers (id, name, owner_id, created_at) VALUES (?, ?, ?, ?)`,
		srv.ID, srv.Name, string(srv.OwnerID), micros(srv.CreatedAt)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO server_members (server_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
		srv.ID, string(srv.OwnerID), string(domain.RoleOwner), micros(srv.CreatedAt)); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) IsMember(ctx context.Context, serverID string, uid domain.UserID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM server_members WHERE server_id = ? AND user_id = ?)`,
		serverID, string(uid)).Scan(&exists)
	return exists, err
}

func (s *Store) AddMember(ctx context.Context, m domain.Membership) error {
	if m.Role == "" {
		m.Role = domain.RoleMember
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO server_members (server_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
		m.ServerID, string(m.UserID), string(m.Role), micros(s.now()))
	return err
}

func (s *Store) RemoveMember(ctx context.Context, serverID string, uid domain.UserID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM server_members WHERE server_id = ? AND user_id = ?`, serverID, string(uid))
	return err
}

func (s *Store) GetUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var u domain.User
	var uid string
	var avatar sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, avatar FROM users WHERE id = ?`, string(id)).
		Scan(&uid, &u.Username, &avatar)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	u.ID = domain.UserID(uid)
	u.AvatarURL = nullToPtr(avatar)
	return &u, nil
}

func (s *Store) UpsertUser(ctx context.Context, u domain.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, avatar, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET username = excluded.username, avatar = excluded.avatar`,
		string(u.ID), u.Username, ptrToNull(u.AvatarURL), micros(s.now()))
	return err
}

// SaveMessage выдаёт id и created_at; created_at в канале строго растёт,
// даже если часы стоят на месте или идут назад.
func (s *Store) SaveMessage(ctx context.Context, m *domain.Message) error {
	if strings.TrimSpace(m.ChannelID) == "" {
		return domain.ErrMissingChannel
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM channels WHERE id = ?)`, m.ChannelID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrChannelNotFound
	}

	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM messages WHERE channel_id = ?`, m.ChannelID).Scan(&last); err != nil {
		return err
	}
	at := micros(s.now())
	if last.Valid && at <= last.Int64 {
		at = last.Int64 + 1
	}

	id := uuid.NewString()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, channel_id, user_id, author_name, author_avatar, content, attachment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, m.ChannelID, string(m.AuthorID), m.AuthorDisplayName,
		ptrToNull(m.AuthorAvatar), m.Content, ptrToNull(m.Attachment), at); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	m.ID = id
	m.CreatedAt = fromMicros(at)
	return nil
}

// History: от новых к старым, курсор (created_at, id).
func (s *Store) History(ctx context.Context, channelID, after string, limit int) ([]domain.Message, string, error) {
	limit = storage.ClampLimit(limit)
	cur, err := storage.DecodeCursor(after)
	if err != nil {
		return nil, "", err
	}

	q := `
		SELECT id, channel_id, user_id, author_name, author_avatar, content, attachment, created_at
		FROM messages
		WHERE channel_id = ?`
	args := []any{channelID}
	if cur != nil {
		q += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		at := micros(cur.CreatedAt)
		args = append(args, at, at, cur.ID)
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	out := make([]domain.Message, 0, limit)
	for rows.Next() {
		var (
			m          domain.Message
			uid        string
			avatar     sql.NullString
			attachment sql.NullString
			created    int64
		)
		if err := rows.Scan(&m.ID, &m.ChannelID, &uid, &m.AuthorDisplayName,
			&avatar, &m.Content, &attachment, &created); err != nil {
			return nil, "", err
		}
		m.AuthorID = domain.UserID(uid)
		m.AuthorAvatar = nullToPtr(avatar)
		m.Attachment = nullToPtr(attachment)
		m.CreatedAt = fromMicros(created)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	return out, storage.NextCursor(out, limit), nil
}

func nullToPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func ptrToNull(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}
