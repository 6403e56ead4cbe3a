package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"github.com/phrasalgame/backend/internal/contribution"
	"github.com/phrasalgame/backend/internal/game"
	"github.com/phrasalgame/backend/internal/leaderboard"
	"github.com/phrasalgame/backend/internal/phrases"
	"github.com/phrasalgame/backend/internal/players"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Unique indexes the dedup invariants depend on. Startup verifies these
// exist after migration and refuses to serve without them: a missing
// constraint would silently turn exactly-once recording into best-effort.
var requiredUniqueIndexes = []string{
	"idx_players_name",
	"idx_completed_player_phrase",
	"idx_skipped_player_phrase",
	"idx_hint_usage_level",
	"idx_player_scores_bucket",
	"idx_contribution_token",
}

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&players.Player{},
		&phrases.Phrase{},
		&phrases.PlayerPhraseAssignment{},
		&game.CompletedPhrase{},
		&game.SkippedPhrase{},
		&game.HintUsage{},
		&leaderboard.PlayerScoreAggregate{},
		&contribution.Link{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if err := verifyUniqueIndexes(db); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

func verifyUniqueIndexes(db *gorm.DB) error {
	for _, indexName := range requiredUniqueIndexes {
		var count int64
		err := db.Raw(
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?",
			indexName,
		).Scan(&count).Error
		if err != nil {
			return fmt.Errorf("schema verification failed: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("schema verification failed: required unique index %s is missing", indexName)
		}
	}
	return nil
}
