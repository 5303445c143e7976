package security

import (
	"strings"

	"github.com/cwrk-planet/realtime-service/internal/domain"
)

const (
	DefaultGuestPrefix = "guest-token-"
	DefaultGuestName   = "Guest"
)

type TokenVerifier interface {
	ParseAndValidate(tokenStr string) (*AccessClaims, error)
}

// Authenticator проверяет credential при рукопожатии.
// Гостевой токен принимается без проверки подписи: из одного и того же
// токена всегда получается одна и та же гостевая identity.
type Authenticator struct {
	verifier    TokenVerifier
	guestPrefix string
	guestName   string
}

func NewAuthenticator(verifier TokenVerifier, guestPrefix, guestName string) *Authenticator {
	if guestPrefix == "" {
		guestPrefix = DefaultGuestPrefix
	}
	if guestName == "" {
		guestName = DefaultGuestName
	}
	return &Authenticator{
		verifier:    verifier,
		guestPrefix: guestPrefix,
		guestName:   guestName,
	}
}

func (a *Authenticator) Authenticate(credential string) (domain.Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return domain.Identity{}, ErrMissingToken
	}

	if strings.HasPrefix(credential, a.guestPrefix) {
		return a.guestIdentity(strings.TrimPrefix(credential, a.guestPrefix))
	}

	claims, err := a.verifier.ParseAndValidate(credential)
	if err != nil {
		return domain.Identity{}, err
	}

	return IdentityFromClaims(claims)
}

// guestIdentity не использует сам токен как user id: id виден другим
// участникам, а токен остаётся credential.
func (a *Authenticator) guestIdentity(suffix string) (domain.Identity, error) {
	suffix = strings.TrimSpace(suffix)
	if suffix == "" {
		return domain.Identity{}, ErrInvalidGuest
	}

	return domain.Identity{
		UserID:      domain.UserID(domain.GuestIDPrefix + shortHash(suffix, 16)),
		DisplayName: a.guestName,
		Guest:       true,
	}, nil
}
