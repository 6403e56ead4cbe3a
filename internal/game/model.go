package game

import "time"

// CompletedPhrase records one player's completion of one phrase. The
// unique index over (player_id, phrase_id) is the dedup invariant: storage
// rejects a second completion regardless of application-level races.
type CompletedPhrase struct {
	ID               string    `gorm:"column:id;primaryKey;size:190;not null"`
	PlayerID         string    `gorm:"column:player_id;size:190;not null;uniqueIndex:idx_completed_player_phrase,priority:1"`
	PhraseID         string    `gorm:"column:phrase_id;size:190;not null;uniqueIndex:idx_completed_player_phrase,priority:2"`
	Score            int       `gorm:"column:score;not null"`
	CompletionTimeMs int64     `gorm:"column:completion_time_ms;not null;default:0"`
	CompletedAt      time.Time `gorm:"column:completed_at;not null;index:idx_completed_at"`
}

// TableName provides the explicit table binding for GORM.
func (CompletedPhrase) TableName() string {
	return "completed_phrases"
}

// SkippedPhrase marks a phrase permanently ineligible for a player.
// Append-only, unique per (player, phrase).
type SkippedPhrase struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null"`
	PlayerID  string    `gorm:"column:player_id;size:190;not null;uniqueIndex:idx_skipped_player_phrase,priority:1"`
	PhraseID  string    `gorm:"column:phrase_id;size:190;not null;uniqueIndex:idx_skipped_player_phrase,priority:2"`
	SkippedAt time.Time `gorm:"column:skipped_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (SkippedPhrase) TableName() string {
	return "skipped_phrases"
}

// HintUsage records one hint level taken by a player on a phrase. Levels
// recorded for a pair always form a prefix of {1,2,3}.
type HintUsage struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null"`
	PlayerID  string    `gorm:"column:player_id;size:190;not null;uniqueIndex:idx_hint_usage_level,priority:1"`
	PhraseID  string    `gorm:"column:phrase_id;size:190;not null;uniqueIndex:idx_hint_usage_level,priority:2"`
	HintLevel int       `gorm:"column:hint_level;not null;uniqueIndex:idx_hint_usage_level,priority:3"`
	UsedAt    time.Time `gorm:"column:used_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (HintUsage) TableName() string {
	return "hint_usage"
}
