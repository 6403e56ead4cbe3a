package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phrasalgame/backend/internal/events"
	"github.com/phrasalgame/backend/internal/phrases"
	"github.com/phrasalgame/backend/internal/players"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()

	// ErrNoPhraseAvailable indicates no eligible phrase exists for the player.
	ErrNoPhraseAvailable = errors.New("game: no phrase available")
	// ErrHintOrder indicates a hint level was requested before its predecessor.
	ErrHintOrder = errors.New("game: hints must be used in order")
	// ErrInvalidHintLevel indicates a hint level outside 1..3.
	ErrInvalidHintLevel = errors.New("game: hint level must be between 1 and 3")
)

const (
	opServiceNew = "game.service.new"
	opNextPhrase = "game.next_phrase"
	opUseHint    = "game.use_hint"
	opComplete   = "game.complete"
	opSkip       = "game.skip"
)

// ServiceError wraps a failure with an operation.reason code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the operation.reason code.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// IDProvider issues identifiers for new records.
type IDProvider interface {
	NewID() (string, error)
}

// LeaderboardRefresher recomputes a player's rolling aggregates. Refresh
// runs after the completion transaction commits; a failure is logged and
// retried by the catch-up sweep, never propagated to the caller.
type LeaderboardRefresher interface {
	RefreshPlayer(ctx context.Context, playerID string) error
}

// ServiceConfig describes the dependencies for the game engine.
type ServiceConfig struct {
	Database    *gorm.DB
	Clock       func() time.Time
	IDProvider  IDProvider
	Logger      *zap.Logger
	Leaderboard LeaderboardRefresher
	Sink        events.Sink
}

// Service implements phrase allocation, the hint ledger, completion
// recording and skips. All invariants lean on the storage layer's unique
// indexes; the service holds no in-process state.
type Service struct {
	db          *gorm.DB
	clock       func() time.Time
	idProvider  IDProvider
	logger      *zap.Logger
	leaderboard LeaderboardRefresher
	sink        events.Sink
}

// NewService constructs the game service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	sink := cfg.Sink
	if sink == nil {
		sink = events.NewLogSink(logger)
	}
	return &Service{
		db:          cfg.Database,
		clock:       clock,
		idProvider:  cfg.IDProvider,
		logger:      logger,
		leaderboard: cfg.Leaderboard,
		sink:        sink,
	}, nil
}

// NextPhrase returns the next eligible phrase for a player: the oldest
// undelivered targeted assignment first (FIFO by assignment time), then a
// uniformly random approved phrase from the global pool. Returning a
// targeted phrase marks the assignment delivered; delivery and completion
// are distinct events.
func (s *Service) NextPhrase(ctx context.Context, playerID string) (phrases.Phrase, error) {
	var selected phrases.Phrase

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var assignment phrases.PlayerPhraseAssignment
		err := tx.
			Where("target_player_id = ? AND is_delivered = ?", playerID, false).
			Where("phrase_id NOT IN (?)", tx.Model(&CompletedPhrase{}).
				Select("phrase_id").Where("player_id = ?", playerID)).
			Where("phrase_id NOT IN (?)", tx.Model(&SkippedPhrase{}).
				Select("phrase_id").Where("player_id = ?", playerID)).
			Order("assigned_at ASC").
			Take(&assignment).Error
		if err == nil {
			if err := tx.Where("id = ?", assignment.PhraseID).Take(&selected).Error; err != nil {
				return newServiceError(opNextPhrase, "phrase_lookup_failed", err)
			}
			deliveredAt := s.clock().UTC()
			result := tx.Model(&phrases.PlayerPhraseAssignment{}).
				Where("id = ? AND is_delivered = ?", assignment.ID, false).
				Updates(map[string]interface{}{"is_delivered": true, "delivered_at": deliveredAt})
			if result.Error != nil {
				return newServiceError(opNextPhrase, "delivery_update_failed", result.Error)
			}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opNextPhrase, "assignment_query_failed", err)
		}

		err = tx.
			Where("is_global = ? AND is_approved = ?", true, true).
			Where("creator_id IS NULL OR creator_id <> ?", playerID).
			Where("id NOT IN (?)", tx.Model(&CompletedPhrase{}).
				Select("phrase_id").Where("player_id = ?", playerID)).
			Where("id NOT IN (?)", tx.Model(&SkippedPhrase{}).
				Select("phrase_id").Where("player_id = ?", playerID)).
			Order("RANDOM()").
			Take(&selected).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoPhraseAvailable
		}
		if err != nil {
			return newServiceError(opNextPhrase, "pool_query_failed", err)
		}
		return nil
	})
	if txErr != nil {
		if !errors.Is(txErr, ErrNoPhraseAvailable) {
			s.logError(opNextPhrase, "allocation_failed", txErr, zap.String("player_id", playerID))
		}
		return phrases.Phrase{}, txErr
	}

	return selected, nil
}

// HintResult describes the outcome of a hint request.
type HintResult struct {
	Level          int
	Hint           string
	HintsUsed      int
	HintsRemaining int
}

// UseHint records hint usage at the given level. Levels must be taken in
// order; re-recording an already-taken level is a no-op success.
func (s *Service) UseHint(ctx context.Context, playerID, phraseID string, level int) (HintResult, error) {
	if level < minHintLevel || level > maxHintLevel {
		return HintResult{}, fmt.Errorf("%w: got %d", ErrInvalidHintLevel, level)
	}

	var result HintResult
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var phrase phrases.Phrase
		if err := tx.Where("id = ?", phraseID).Take(&phrase).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", phrases.ErrPhraseNotFound, phraseID)
			}
			return newServiceError(opUseHint, "phrase_lookup_failed", err)
		}

		// Ordering invariant: level N needs level N-1 on record. Checked
		// inside the transaction so concurrent requests cannot skip a level.
		if level > minHintLevel {
			var previous int64
			err := tx.Model(&HintUsage{}).
				Where("player_id = ? AND phrase_id = ? AND hint_level = ?", playerID, phraseID, level-1).
				Count(&previous).Error
			if err != nil {
				return newServiceError(opUseHint, "order_check_failed", err)
			}
			if previous == 0 {
				return fmt.Errorf("%w: level %d requested before level %d", ErrHintOrder, level, level-1)
			}
		}

		usageID, err := s.idProvider.NewID()
		if err != nil {
			return newServiceError(opUseHint, "id_generation_failed", err)
		}
		usage := HintUsage{
			ID:        usageID,
			PlayerID:  playerID,
			PhraseID:  phraseID,
			HintLevel: level,
			UsedAt:    s.clock().UTC(),
		}
		insert := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "player_id"}, {Name: "phrase_id"}, {Name: "hint_level"}},
			DoNothing: true,
		}).Create(&usage)
		if insert.Error != nil {
			return newServiceError(opUseHint, "insert_failed", insert.Error)
		}

		var used int64
		if err := tx.Model(&HintUsage{}).
			Where("player_id = ? AND phrase_id = ?", playerID, phraseID).
			Count(&used).Error; err != nil {
			return newServiceError(opUseHint, "count_failed", err)
		}

		result = HintResult{
			Level:          level,
			Hint:           hintTextFor(phrase, level),
			HintsUsed:      int(used),
			HintsRemaining: maxHintLevel - int(used),
		}
		return nil
	})
	if txErr != nil {
		if !errors.Is(txErr, ErrHintOrder) && !errors.Is(txErr, phrases.ErrPhraseNotFound) {
			s.logError(opUseHint, "transaction_failed", txErr,
				zap.String("player_id", playerID), zap.String("phrase_id", phraseID))
		}
		return HintResult{}, txErr
	}
	return result, nil
}

// HintsUsed returns how many hint levels the player has taken on a phrase.
func (s *Service) HintsUsed(ctx context.Context, playerID, phraseID string) (int, error) {
	var used int64
	err := s.db.WithContext(ctx).Model(&HintUsage{}).
		Where("player_id = ? AND phrase_id = ?", playerID, phraseID).
		Count(&used).Error
	if err != nil {
		return 0, newServiceError(opUseHint, "count_failed", err)
	}
	return int(used), nil
}

// CompletionResult describes a recorded (or re-requested) completion.
type CompletionResult struct {
	FinalScore       int
	HintsUsed        int
	AlreadyCompleted bool
}

// Complete records a completion and returns the final score. Completing
// the same phrase twice is benign: the stored score comes back and no
// counter moves again. The leaderboard refresh runs after commit so its
// failure can never roll back the completion.
func (s *Service) Complete(ctx context.Context, playerID, phraseID string, completionTimeMs int64) (CompletionResult, error) {
	if completionTimeMs < 0 {
		completionTimeMs = 0
	}

	var result CompletionResult
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var player players.Player
		if err := tx.Where("id = ?", playerID).Take(&player).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", players.ErrPlayerNotFound, playerID)
			}
			return newServiceError(opComplete, "player_lookup_failed", err)
		}
		var phrase phrases.Phrase
		if err := tx.Where("id = ?", phraseID).Take(&phrase).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", phrases.ErrPhraseNotFound, phraseID)
			}
			return newServiceError(opComplete, "phrase_lookup_failed", err)
		}

		var hintsUsed int64
		if err := tx.Model(&HintUsage{}).
			Where("player_id = ? AND phrase_id = ?", playerID, phraseID).
			Count(&hintsUsed).Error; err != nil {
			return newServiceError(opComplete, "hint_count_failed", err)
		}

		completionID, err := s.idProvider.NewID()
		if err != nil {
			return newServiceError(opComplete, "id_generation_failed", err)
		}
		completion := CompletedPhrase{
			ID:               completionID,
			PlayerID:         playerID,
			PhraseID:         phraseID,
			Score:            FinalScore(phrase.DifficultyLevel, int(hintsUsed)),
			CompletionTimeMs: completionTimeMs,
			CompletedAt:      s.clock().UTC(),
		}
		insert := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "player_id"}, {Name: "phrase_id"}},
			DoNothing: true,
		}).Create(&completion)
		if insert.Error != nil {
			return newServiceError(opComplete, "insert_failed", insert.Error)
		}

		if insert.RowsAffected == 0 {
			// Duplicate completion: hand back the stored score untouched.
			var existing CompletedPhrase
			if err := tx.Where("player_id = ? AND phrase_id = ?", playerID, phraseID).
				Take(&existing).Error; err != nil {
				return newServiceError(opComplete, "duplicate_lookup_failed", err)
			}
			result = CompletionResult{
				FinalScore:       existing.Score,
				HintsUsed:        int(hintsUsed),
				AlreadyCompleted: true,
			}
			return nil
		}

		if err := tx.Model(&players.Player{}).Where("id = ?", playerID).
			Update("phrases_completed", gorm.Expr("phrases_completed + 1")).Error; err != nil {
			return newServiceError(opComplete, "counter_update_failed", err)
		}
		if err := tx.Model(&phrases.Phrase{}).Where("id = ?", phraseID).
			Update("times_played", gorm.Expr("times_played + 1")).Error; err != nil {
			return newServiceError(opComplete, "usage_update_failed", err)
		}

		// A completion implies delivery for any still-open targeted
		// assignment of this phrase.
		deliveredAt := s.clock().UTC()
		if err := tx.Model(&phrases.PlayerPhraseAssignment{}).
			Where("phrase_id = ? AND target_player_id = ? AND is_delivered = ?", phraseID, playerID, false).
			Updates(map[string]interface{}{"is_delivered": true, "delivered_at": deliveredAt}).Error; err != nil {
			return newServiceError(opComplete, "delivery_update_failed", err)
		}

		result = CompletionResult{FinalScore: completion.Score, HintsUsed: int(hintsUsed)}
		return nil
	})
	if txErr != nil {
		if !errors.Is(txErr, players.ErrPlayerNotFound) && !errors.Is(txErr, phrases.ErrPhraseNotFound) {
			s.logError(opComplete, "transaction_failed", txErr,
				zap.String("player_id", playerID), zap.String("phrase_id", phraseID))
		}
		return CompletionResult{}, txErr
	}

	if !result.AlreadyCompleted {
		s.sink.PhraseCompleted(ctx, events.PhraseCompleted{
			PlayerID:   playerID,
			PhraseID:   phraseID,
			FinalScore: result.FinalScore,
		})
		if s.leaderboard != nil {
			if err := s.leaderboard.RefreshPlayer(ctx, playerID); err != nil {
				s.logger.Warn("leaderboard refresh failed, catch-up sweep will retry",
					zap.String("player_id", playerID), zap.Error(err))
			}
		}
	}

	return result, nil
}

// Skip permanently excludes a phrase from the player's allocation. A
// repeated skip is a no-op success.
func (s *Service) Skip(ctx context.Context, playerID, phraseID string) error {
	var phrase phrases.Phrase
	err := s.db.WithContext(ctx).Where("id = ?", phraseID).Take(&phrase).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", phrases.ErrPhraseNotFound, phraseID)
	}
	if err != nil {
		return newServiceError(opSkip, "phrase_lookup_failed", err)
	}

	skipID, err := s.idProvider.NewID()
	if err != nil {
		return newServiceError(opSkip, "id_generation_failed", err)
	}
	skip := SkippedPhrase{
		ID:        skipID,
		PlayerID:  playerID,
		PhraseID:  phraseID,
		SkippedAt: s.clock().UTC(),
	}
	insert := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "player_id"}, {Name: "phrase_id"}},
		DoNothing: true,
	}).Create(&skip)
	if insert.Error != nil {
		s.logError(opSkip, "insert_failed", insert.Error,
			zap.String("player_id", playerID), zap.String("phrase_id", phraseID))
		return newServiceError(opSkip, "insert_failed", insert.Error)
	}
	return nil
}

// hintTextFor builds the progressively more revealing hint content.
func hintTextFor(phrase phrases.Phrase, level int) string {
	switch level {
	case 1:
		return phrase.Hint
	case 2:
		letters := 0
		for _, r := range phrase.Content {
			if r != ' ' {
				letters++
			}
		}
		return fmt.Sprintf("%s (%d letters)", phrase.Hint, letters)
	default:
		words := []rune(phrase.Content)
		firstWord := phrase.Content
		for i, r := range words {
			if r == ' ' {
				firstWord = string(words[:i])
				break
			}
		}
		return fmt.Sprintf("%s (starts with %q)", phrase.Hint, firstWord)
	}
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("game service error", attrs...)
}
