package contribution

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// Status classifies a token lookup.
type Status string

const (
	// StatusValid means the link can still accept submissions.
	StatusValid Status = "valid"
	// StatusExpired means the link's expiry timestamp has passed.
	StatusExpired Status = "expired"
	// StatusDeactivated means the link was switched off (sweep or manual).
	StatusDeactivated Status = "deactivated"
	// StatusExhausted means every allowed use has been consumed.
	StatusExhausted Status = "exhausted"
	// StatusNotFound means no link matches the token.
	StatusNotFound Status = "not_found"
)

const tokenByteLength = 32

// newToken returns an opaque unguessable token. 32 bytes of CSPRNG output
// rendered as unpadded base64url.
func newToken() (string, error) {
	raw := make([]byte, tokenByteLength)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Link is a time- and use-limited invitation for an outside contributor to
// submit a phrase targeted at the owning player. Links are kept forever
// for audit; exhaustion and expiry only flip the active flag.
type Link struct {
	ID                 string    `gorm:"column:id;primaryKey;size:190;not null"`
	Token              string    `gorm:"column:token;size:64;not null;uniqueIndex:idx_contribution_token"`
	RequestingPlayerID string    `gorm:"column:requesting_player_id;size:190;not null;index"`
	ContributorName    string    `gorm:"column:contributor_name;size:64"`
	CreatedAt          time.Time `gorm:"column:created_at;not null"`
	ExpiresAt          time.Time `gorm:"column:expires_at;not null"`
	MaxUses            int       `gorm:"column:max_uses;not null"`
	CurrentUses        int       `gorm:"column:current_uses;not null;default:0"`
	IsActive           bool      `gorm:"column:is_active;not null;default:true"`
}

// TableName provides the explicit table binding for GORM.
func (Link) TableName() string {
	return "contribution_links"
}

// RemainingUses reports how many submissions the link still accepts.
func (l Link) RemainingUses() int {
	remaining := l.MaxUses - l.CurrentUses
	if remaining < 0 {
		return 0
	}
	return remaining
}

// StatusAt classifies the link relative to the given instant.
func (l Link) StatusAt(now time.Time) Status {
	if l.CurrentUses >= l.MaxUses {
		return StatusExhausted
	}
	if now.After(l.ExpiresAt) {
		return StatusExpired
	}
	if !l.IsActive {
		return StatusDeactivated
	}
	return StatusValid
}
