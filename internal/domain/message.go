package domain

import "time"

type Message struct {
	ID                string    `db:"id"`
	ChannelID         string    `db:"channel_id"`
	AuthorID          UserID    `db:"user_id"`
	AuthorDisplayName string    `db:"-"`
	AuthorAvatar      *string   `db:"-"`
	Content           string    `db:"content"`
	Attachment        *string   `db:"attachment"`
	CreatedAt         time.Time `db:"created_at"`
}
