package leaderboard

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Period identifies a rolling scoring window.
type Period string

const (
	// PeriodDaily resets at UTC midnight.
	PeriodDaily Period = "daily"
	// PeriodWeekly resets at UTC midnight of the most recent Monday.
	PeriodWeekly Period = "weekly"
	// PeriodTotal never resets.
	PeriodTotal Period = "total"
)

// ErrUnknownPeriod indicates an unrecognized period name.
var ErrUnknownPeriod = errors.New("leaderboard: unknown period")

// Periods lists every bucket in recompute order.
var Periods = []Period{PeriodDaily, PeriodWeekly, PeriodTotal}

// ParsePeriod validates a raw period name.
func ParsePeriod(raw string) (Period, error) {
	switch Period(strings.ToLower(strings.TrimSpace(raw))) {
	case PeriodDaily:
		return PeriodDaily, nil
	case PeriodWeekly:
		return PeriodWeekly, nil
	case PeriodTotal:
		return PeriodTotal, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPeriod, raw)
	}
}

// Start returns the period boundary for the window containing now.
func (p Period) Start(now time.Time) time.Time {
	now = now.UTC()
	switch p {
	case PeriodDaily:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	case PeriodWeekly:
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		// time.Weekday counts Sunday as 0; shift so Monday is the boundary.
		offset := (int(midnight.Weekday()) + 6) % 7
		return midnight.AddDate(0, 0, -offset)
	default:
		return time.Unix(0, 0).UTC()
	}
}

// PlayerScoreAggregate holds one player's recomputed totals for one
// period window. Rows are replaced on every scoring event, never appended.
type PlayerScoreAggregate struct {
	ID               string    `gorm:"column:id;primaryKey;size:190;not null"`
	PlayerID         string    `gorm:"column:player_id;size:190;not null;uniqueIndex:idx_player_scores_bucket,priority:1"`
	ScorePeriod      Period    `gorm:"column:score_period;size:16;not null;uniqueIndex:idx_player_scores_bucket,priority:2"`
	PeriodStart      time.Time `gorm:"column:period_start;not null;uniqueIndex:idx_player_scores_bucket,priority:3"`
	TotalScore       int64     `gorm:"column:total_score;not null;default:0"`
	PhrasesCompleted int64     `gorm:"column:phrases_completed;not null;default:0"`
	RankPosition     int       `gorm:"column:rank_position;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (PlayerScoreAggregate) TableName() string {
	return "player_scores"
}

// Entry is one ranked leaderboard row joined with the player's name.
type Entry struct {
	Rank             int    `json:"rank"`
	PlayerID         string `json:"playerId"`
	PlayerName       string `json:"playerName"`
	TotalScore       int64  `json:"totalScore"`
	PhrasesCompleted int64  `json:"phrasesCompleted"`
}
