package phrases

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Source records where a phrase came from.
type Source string

const (
	// SourceApp marks phrases created in-app by a registered player.
	SourceApp Source = "app"
	// SourceExternal marks phrases submitted through a contribution link.
	SourceExternal Source = "external"
	// SourceAdmin marks phrases seeded by operators.
	SourceAdmin Source = "admin"
)

const (
	minContentLength = 3
	maxContentLength = 80
	minWordCount     = 2
	maxWordCount     = 6
	minHintLength    = 1
	maxHintLength    = 60
)

var (
	// ErrInvalidContent indicates the phrase text is out of bounds or carries
	// disallowed characters.
	ErrInvalidContent = errors.New("phrases: invalid phrase content")
	// ErrInvalidHint indicates the hint is missing or out of bounds.
	ErrInvalidHint = errors.New("phrases: invalid hint")
	// ErrPhraseNotFound indicates the phrase id is unknown.
	ErrPhraseNotFound = errors.New("phrases: phrase not found")
)

// ValidateContent checks the phrase text against length, word-count and
// character-set bounds. Returns the trimmed content.
func ValidateContent(rawContent, language string) (string, error) {
	content := strings.TrimSpace(rawContent)
	if len(content) < minContentLength {
		return "", fmt.Errorf("%w: shorter than %d characters", ErrInvalidContent, minContentLength)
	}
	if len(content) > maxContentLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidContent, maxContentLength)
	}
	words := strings.Fields(content)
	if len(words) < minWordCount {
		return "", fmt.Errorf("%w: fewer than %d words", ErrInvalidContent, minWordCount)
	}
	if len(words) > maxWordCount {
		return "", fmt.Errorf("%w: more than %d words", ErrInvalidContent, maxWordCount)
	}
	letters := letterSetFor(language)
	for _, r := range strings.ToLower(content) {
		if r == ' ' || r == '\'' || r == '-' {
			continue
		}
		if !letters[r] {
			return "", fmt.Errorf("%w: disallowed character %q", ErrInvalidContent, r)
		}
	}
	return content, nil
}

// ValidateHint checks the hint string bounds. Returns the trimmed hint.
func ValidateHint(rawHint string) (string, error) {
	hint := strings.TrimSpace(rawHint)
	if len(hint) < minHintLength {
		return "", fmt.Errorf("%w: hint is required", ErrInvalidHint)
	}
	if len(hint) > maxHintLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidHint, maxHintLength)
	}
	return hint, nil
}

// Phrase models an immutable puzzle. Content, hint and difficulty never
// change after creation; only the usage counter moves.
type Phrase struct {
	ID              string    `gorm:"column:id;primaryKey;size:190;not null"`
	Content         string    `gorm:"column:content;size:190;not null"`
	Hint            string    `gorm:"column:hint;size:190;not null"`
	DifficultyLevel int       `gorm:"column:difficulty_level;not null"`
	IsGlobal        bool      `gorm:"column:is_global;not null;default:false"`
	IsApproved      bool      `gorm:"column:is_approved;not null;default:false"`
	Language        string    `gorm:"column:language;size:8;not null;default:'en'"`
	Source          Source    `gorm:"column:source;size:16;not null;default:'app'"`
	CreatorID       *string   `gorm:"column:creator_id;size:190"`
	TimesPlayed     int64     `gorm:"column:times_played;not null;default:0"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Phrase) TableName() string {
	return "phrases"
}

// PlayerPhraseAssignment links a phrase to the player it is earmarked for.
// Delivery is recorded once, when the allocator hands the phrase out, and
// the delivered flag only ever transitions false to true.
type PlayerPhraseAssignment struct {
	ID             string     `gorm:"column:id;primaryKey;size:190;not null"`
	PhraseID       string     `gorm:"column:phrase_id;size:190;not null;index:idx_player_phrases_target,priority:2"`
	TargetPlayerID string     `gorm:"column:target_player_id;size:190;not null;index:idx_player_phrases_target,priority:1"`
	AssignedAt     time.Time  `gorm:"column:assigned_at;not null"`
	IsDelivered    bool       `gorm:"column:is_delivered;not null;default:false"`
	DeliveredAt    *time.Time `gorm:"column:delivered_at"`
}

// TableName provides the explicit table binding for GORM.
func (PlayerPhraseAssignment) TableName() string {
	return "player_phrases"
}
