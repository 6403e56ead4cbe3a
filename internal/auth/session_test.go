package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestIssueTokenRoundTrip(t *testing.T) {
	issuedAt := time.Unix(1760000000, 0).UTC()
	manager := NewSessionManager(SessionManagerConfig{
		SigningSecret: []byte("unit-secret"),
		TokenTTL:      time.Hour,
		Clock:         fixedClock(issuedAt),
	})

	token, expiresIn, err := manager.IssueToken(context.Background(), "player-1")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if expiresIn != 3600 {
		t.Fatalf("expected 3600s expiry, got %d", expiresIn)
	}

	subject, err := manager.ValidateToken(token)
	if err != nil {
		t.Fatalf("unexpected validate error: %v", err)
	}
	if subject != "player-1" {
		t.Fatalf("expected subject player-1, got %q", subject)
	}
}

func TestIssueTokenRequiresSubject(t *testing.T) {
	manager := NewSessionManager(SessionManagerConfig{SigningSecret: []byte("unit-secret")})
	if _, _, err := manager.IssueToken(context.Background(), ""); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	issuedAt := time.Unix(1760000000, 0).UTC()
	manager := NewSessionManager(SessionManagerConfig{
		SigningSecret: []byte("unit-secret"),
		TokenTTL:      time.Minute,
		Clock:         fixedClock(issuedAt),
	})
	token, _, err := manager.IssueToken(context.Background(), "player-1")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	late := NewSessionManager(SessionManagerConfig{
		SigningSecret: []byte("unit-secret"),
		TokenTTL:      time.Minute,
		Clock:         fixedClock(issuedAt.Add(2 * time.Minute)),
	})
	if _, err := late.ValidateToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	manager := NewSessionManager(SessionManagerConfig{SigningSecret: []byte("unit-secret")})
	token, _, err := manager.IssueToken(context.Background(), "player-1")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	other := NewSessionManager(SessionManagerConfig{SigningSecret: []byte("different")})
	if _, err := other.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
