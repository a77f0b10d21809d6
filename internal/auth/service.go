package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/0xPexy/aletta-backend/internal/config"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDisabled           = errors.New("auth: no JWT secret configured")
)

type Claims struct {
	jwt.RegisteredClaims
}

const issuer = "aletta-backend"

// Service mints and verifies HS256 bearer tokens. With an empty secret it is
// disabled and the middleware lets every request through.
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewService(cfg config.AuthConfig) *Service {
	ttl := cfg.JWTTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{secret: []byte(cfg.JWTSecret), ttl: ttl, now: time.Now}
}

func (s *Service) Enabled() bool { return len(s.secret) > 0 }

func (s *Service) Issue(subject string) (string, error) {
	if !s.Enabled() {
		return "", ErrDisabled
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", ErrInvalidCredentials
	}
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) Parse(tokenStr string) (*Claims, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidCredentials
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidCredentials
}
