package domain

import (
	"errors"
	"fmt"
)

// Базовые категории ошибок; всё остальное оборачивает одну из них.
var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInternal        = errors.New("internal error")
)

var (
	ErrChannelNotFound = fmt.Errorf("channel %w", ErrNotFound)
	ErrServerNotFound  = fmt.Errorf("server %w", ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)

	ErrNotMember = fmt.Errorf("not a member of the server: %w", ErrForbidden)

	ErrEmptyMessage   = fmt.Errorf("empty message: %w", ErrInvalidArgument)
	ErrMessageTooLong = fmt.Errorf("message too long: %w", ErrInvalidArgument)
	ErrMissingChannel = fmt.Errorf("channel id is required: %w", ErrInvalidArgument)
	ErrMissingServer  = fmt.Errorf("server id is required: %w", ErrInvalidArgument)
	ErrMissingTarget  = fmt.Errorf("target user is required: %w", ErrInvalidArgument)
	ErrBadPayload     = fmt.Errorf("malformed payload: %w", ErrInvalidArgument)
	ErrUnknownEvent   = fmt.Errorf("unknown event: %w", ErrInvalidArgument)
)

type Code string

const (
	CodeUnauthorized    Code = "unauthorized"
	CodeForbidden       Code = "forbidden"
	CodeNotFound        Code = "not_found"
	CodeInvalidArgument Code = "invalid_argument"
	CodeInternal        Code = "internal"
)

// CodeOf сводит произвольную ошибку к одной из категорий; неизвестное считается internal.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidArgument):
		return CodeInvalidArgument
	default:
		return CodeInternal
	}
}

// PublicMessage возвращает текст, который можно отдать клиенту.
// Внутренние ошибки не раскрываются.
func PublicMessage(err error) string {
	if CodeOf(err) == CodeInternal {
		return ErrInternal.Error()
	}
	return err.Error()
}
