package players

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	minNameLength = 2
	maxNameLength = 32
)

// ErrInvalidName indicates a display name is empty or out of bounds.
var ErrInvalidName = errors.New("players: invalid display name")

// NormalizeName trims and validates a display name.
func NormalizeName(rawInput string) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if len(trimmed) < minNameLength {
		return "", fmt.Errorf("%w: shorter than %d characters", ErrInvalidName, minNameLength)
	}
	if len(trimmed) > maxNameLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return trimmed, nil
}

// Player models a registered participant. Players are soft-deactivated,
// never hard-deleted.
type Player struct {
	ID               string    `gorm:"column:id;primaryKey;size:190;not null"`
	Name             string    `gorm:"column:name;size:64;not null;uniqueIndex:idx_players_name"`
	IsActive         bool      `gorm:"column:is_active;not null;default:true"`
	PhrasesCompleted int64     `gorm:"column:phrases_completed;not null;default:0"`
	LastSeenAt       time.Time `gorm:"column:last_seen_at"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Player) TableName() string {
	return "players"
}

// Level derives the display level shown alongside leaderboards and
// contribution pages. One level per ten completions.
func (p Player) Level() int64 {
	return p.PhrasesCompleted/10 + 1
}
