package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultSessionTTL = 30 * 24 * time.Hour

	// TokenIssuer and TokenAudience identify sessions minted by this service.
	TokenIssuer   = "phrasal-api"
	TokenAudience = "phrasal-client"
)

var (
	// ErrMissingSigningSecret indicates the issuer was built without a secret.
	ErrMissingSigningSecret = errors.New("auth: signing secret must be provided")
	// ErrMissingSubject indicates a session was requested without a player id.
	ErrMissingSubject = errors.New("auth: subject claim must be provided")
	// ErrExpiredToken indicates the session token is past its expiry.
	ErrExpiredToken = errors.New("auth: token expired")
	// ErrInvalidToken indicates the session token failed validation.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// SessionManagerConfig configures the player session JWT issuer.
type SessionManagerConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// SessionManager issues and validates HS256 player session tokens.
type SessionManager struct {
	config SessionManagerConfig
	clock  func() time.Time
}

// NewSessionManager constructs a SessionManager with sane defaults.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	if cfg.Issuer == "" {
		cfg.Issuer = TokenIssuer
	}
	if cfg.Audience == "" {
		cfg.Audience = TokenAudience
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultSessionTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	cfg.Clock = clock
	return &SessionManager{config: cfg, clock: clock}
}

// IssueToken produces a signed JWT and its expiry (seconds) for the given player id.
func (m *SessionManager) IssueToken(_ context.Context, playerID string) (string, int64, error) {
	if len(m.config.SigningSecret) == 0 {
		return "", 0, ErrMissingSigningSecret
	}
	if playerID == "" {
		return "", 0, ErrMissingSubject
	}

	now := m.clock().UTC()
	expiresAt := now.Add(m.config.TokenTTL).UTC()

	registered := jwt.RegisteredClaims{
		Subject:   playerID,
		Issuer:    m.config.Issuer,
		Audience:  []string{m.config.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, registered)
	signed, err := token.SignedString(m.config.SigningSecret)
	if err != nil {
		return "", 0, err
	}

	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}

// ValidateToken ensures the session JWT is well formed and returns the player id.
func (m *SessionManager) ValidateToken(tokenString string) (string, error) {
	if len(m.config.SigningSecret) == 0 {
		return "", ErrMissingSigningSecret
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidToken, token.Method.Alg())
			}
			return m.config.SigningSecret, nil
		},
		jwt.WithAudience(m.config.Audience),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithTimeFunc(m.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", ErrMissingSubject
	}
	return claims.Subject, nil
}
