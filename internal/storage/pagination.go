package storage

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cwrk-planet/realtime-service/internal/domain"
)

var ErrInvalidCursor = fmt.Errorf("invalid cursor: %w", domain.ErrInvalidArgument)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

// Cursor: позиция в ленте (created_at, id), лента идёт от новых к старым.
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
}

func EncodeCursor(c Cursor) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: decode base64: %v", ErrInvalidCursor, err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: decode json: %v", ErrInvalidCursor, err)
	}
	return &c, nil
}

func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageLimit
	}
	if limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}

// NextCursor: курсор на следующую страницу, если текущая заполнена целиком.
func NextCursor(page []domain.Message, limit int) string {
	if len(page) == 0 || len(page) < limit {
		return ""
	}
	last := page[len(page)-1]
	c, err := EncodeCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	if err != nil {
		return ""
	}
	return c
}
