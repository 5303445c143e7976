package domain

import "time"

type Server struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	OwnerID   UserID    `db:"owner_id"`
	CreatedAt time.Time `db:"created_at"`
}

type ChannelType string

const (
	ChannelText  ChannelType = "text"
	ChannelVoice ChannelType = "voice"
)

type Channel struct {
	ID        string      `db:"id"`
	ServerID  string      `db:"server_id"`
	Name      string      `db:"name"`
	Type      ChannelType `db:"type"`
	CreatedAt time.Time   `db:"created_at"`
}

type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

type Membership struct {
	ServerID string    `db:"server_id"`
	UserID   UserID    `db:"user_id"`
	Role     Role      `db:"role"`
	JoinedAt time.Time `db:"joined_at"`
}
