package security

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cwrk-planet/realtime-service/internal/domain"

	"github.com/golang-jwt/jwt"
)

const (
	AlgHS256 = "HS256"
	AlgRS256 = "RS256"
)

// AccessClaims: стандартные клеймы плюс поля, которые кладёт в токен auth-сервис.
// Старые токены несут идентификатор в "id", новые в "sub".
type AccessClaims struct {
	jwt.StandardClaims
	UserID   string `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

type VerifierConfig struct {
	Alg       string
	Secret    []byte
	PublicKey *rsa.PublicKey
	Issuer    string
	Audience  string
	ClockSkew time.Duration
}

type JWTVerifier struct {
	cfg    VerifierConfig
	parser *jwt.Parser
	now    func() time.Time
}

func NewJWTVerifier(cfg VerifierConfig) (*JWTVerifier, error) {
	switch cfg.Alg {
	case AlgHS256:
		if len(cfg.Secret) == 0 {
			return nil, errors.New("jwt: HS256 requires a secret")
		}
	case AlgRS256:
		if cfg.PublicKey == nil {
			return nil, errors.New("jwt: RS256 requires a public key")
		}
	default:
		return nil, fmt.Errorf("jwt: unsupported alg %q", cfg.Alg)
	}

	return &JWTVerifier{
		cfg: cfg,
		// временные клеймы проверяем сами, с учётом clockSkew
		parser: &jwt.Parser{
			ValidMethods:         []string{cfg.Alg},
			SkipClaimsValidation: true,
		},
		now: time.Now,
	}, nil
}

func (v *JWTVerifier) keyFunc(t *jwt.Token) (any, error) {
	switch v.cfg.Alg {
	case AlgHS256:
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.cfg.Secret, nil
	default:
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, ErrInvalidToken
		}
		return v.cfg.PublicKey, nil
	}
}

// ParseAndValidate проверяет подпись, issuer/audience (если заданы) и exp/nbf.
func (v *JWTVerifier) ParseAndValidate(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := v.parser.ParseWithClaims(tokenStr, claims, v.keyFunc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if v.cfg.Issuer != "" && !claims.VerifyIssuer(v.cfg.Issuer, true) {
		return nil, ErrInvalidIssuer
	}
	if v.cfg.Audience != "" && !claims.VerifyAudience(v.cfg.Audience, true) {
		return nil, ErrInvalidAudience
	}

	now := v.now()
	if claims.NotBefore != 0 && now.Before(time.Unix(claims.NotBefore, 0).Add(-v.cfg.ClockSkew)) {
		return nil, ErrTokenExpired
	}
	// токены без exp допустимы: так их выпускала старая версия auth
	if claims.ExpiresAt != 0 && now.After(time.Unix(claims.ExpiresAt, 0).Add(v.cfg.ClockSkew)) {
		return nil, ErrTokenExpired
	}

	return claims, nil
}

// IdentityFromClaims собирает Identity из клеймов: sub приоритетнее id.
func IdentityFromClaims(claims *AccessClaims) (domain.Identity, error) {
	if claims == nil {
		return domain.Identity{}, ErrInvalidSubject
	}
	uid := strings.TrimSpace(claims.Subject)
	if uid == "" {
		uid = strings.TrimSpace(claims.UserID)
	}
	if uid == "" {
		return domain.Identity{}, ErrInvalidSubject
	}
	// гостевой префикс зарезервирован за токенами гостей
	if domain.UserID(uid).IsGuest() {
		return domain.Identity{}, ErrInvalidSubject
	}

	id := domain.Identity{
		UserID:      domain.UserID(uid),
		DisplayName: strings.TrimSpace(claims.Username),
	}
	if id.DisplayName == "" {
		id.DisplayName = uid
	}
	if a := strings.TrimSpace(claims.Avatar); a != "" {
		id.AvatarURL = &a
	}

	return id, nil
}

type SignerConfig struct {
	Alg        string
	Secret     []byte
	PrivateKey *rsa.PrivateKey
	Issuer     string
	Audience   string
	TTL        time.Duration
}

// JWTSigner выпускает токены того же формата. Сервис их не раздаёт,
// signer нужен тестам и локальной отладке.
type JWTSigner struct {
	cfg SignerConfig
}

func NewJWTSigner(cfg SignerConfig) *JWTSigner {
	return &JWTSigner{cfg: cfg}
}

func (s *JWTSigner) Sign(id domain.Identity, now time.Time) (string, error) {
	jti, err := randomToken(12)
	if err != nil {
		return "", err
	}
	claims := AccessClaims{
		StandardClaims: jwt.StandardClaims{
			Id:       jti,
			Subject:  string(id.UserID),
			Issuer:   s.cfg.Issuer,
			Audience: s.cfg.Audience,
			IssuedAt: now.Unix(),
		},
		Username: id.DisplayName,
	}
	if s.cfg.TTL > 0 {
		claims.ExpiresAt = now.Add(s.cfg.TTL).Unix()
	}
	if id.AvatarURL != nil {
		claims.Avatar = *id.AvatarURL
	}

	switch s.cfg.Alg {
	case AlgRS256:
		return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.cfg.PrivateKey)
	default:
		return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	}
}

func LoadRSAPublicKeyFromPEM(path string) (*rsa.PublicKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(b)
	if err != nil {
		return nil, err
	}

	return pub, nil
}
