package domain

import "strings"

type UserID string

const GuestIDPrefix = "guest-"

// Identity привязывается к соединению после рукопожатия и больше не меняется.
type Identity struct {
	UserID      UserID
	DisplayName string
	AvatarURL   *string
	Guest       bool
}

func (id UserID) IsGuest() bool {
	return strings.HasPrefix(string(id), GuestIDPrefix)
}

type User struct {
	ID        UserID  `db:"id"`
	Username  string  `db:"username"`
	AvatarURL *string `db:"avatar"`
}
