package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phrasalgame/backend/internal/game"
	"github.com/phrasalgame/backend/internal/players"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew = "leaderboard.service.new"
	opRefresh    = "leaderboard.refresh_player"
	opRerank     = "leaderboard.rerank"
	opTop        = "leaderboard.top"
	opPlayerRank = "leaderboard.player_rank"
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

// IDProvider issues identifiers for new aggregate rows.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies for the aggregator.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
	Cache      *Cache
}

// Service recomputes rolling score aggregates and ranks period buckets.
// Every recompute is a pure re-derivation from completed_phrases rows, so
// running it twice, or concurrently, converges on the same result.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
	cache      *Cache
}

// NewService constructs the aggregator.
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
	cache := cfg.Cache
	if cache == nil {
		cache = NewCache(nil)
	}
	return &Service{db: cfg.Database, clock: clock, idProvider: cfg.IDProvider, logger: logger, cache: cache}, nil
}

// RefreshPlayer recomputes one player's aggregates for all periods and
// re-ranks each bucket. Satisfies game.LeaderboardRefresher.
func (s *Service) RefreshPlayer(ctx context.Context, playerID string) error {
	now := s.clock().UTC()
	for _, period := range Periods {
		if err := s.refreshBucketRow(ctx, playerID, period, period.Start(now)); err != nil {
			return err
		}
		if err := s.RerankPeriod(ctx, period); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) refreshBucketRow(ctx context.Context, playerID string, period Period, periodStart time.Time) error {
	type totals struct {
		TotalScore       int64
		PhrasesCompleted int64
	}
	var sums totals
	err := s.db.WithContext(ctx).Model(&game.CompletedPhrase{}).
		Select("COALESCE(SUM(score), 0) AS total_score, COUNT(*) AS phrases_completed").
		Where("player_id = ? AND completed_at >= ?", playerID, periodStart).
		Scan(&sums).Error
	if err != nil {
		s.logError(opRefresh, "sum_query_failed", err, zap.String("player_id", playerID))
		return newServiceError(opRefresh, "sum_query_failed", err)
	}

	aggregateID, err := s.idProvider.NewID()
	if err != nil {
		return newServiceError(opRefresh, "id_generation_failed", err)
	}
	row := PlayerScoreAggregate{
		ID:               aggregateID,
		PlayerID:         playerID,
		ScorePeriod:      period,
		PeriodStart:      periodStart,
		TotalScore:       sums.TotalScore,
		PhrasesCompleted: sums.PhrasesCompleted,
	}
	// Replace-on-conflict keeps one row per (player, period, start); the
	// rank is reassigned by the bucket-wide rerank that follows.
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "player_id"}, {Name: "score_period"}, {Name: "period_start"}},
		DoUpdates: clause.AssignmentColumns([]string{"total_score", "phrases_completed"}),
	}).Create(&row).Error
	if err != nil {
		s.logError(opRefresh, "upsert_failed", err, zap.String("player_id", playerID))
		return newServiceError(opRefresh, "upsert_failed", err)
	}
	return nil
}

// RerankPeriod reassigns dense ranks across the period's current bucket:
// score descending, completion count breaking ties, then player id.
// Exact (score, completions) ties share a rank with no gaps after them.
func (s *Service) RerankPeriod(ctx context.Context, period Period) error {
	periodStart := period.Start(s.clock().UTC())

	var rows []PlayerScoreAggregate
	err := s.db.WithContext(ctx).
		Where("score_period = ? AND period_start = ?", period, periodStart).
		Order("total_score DESC, phrases_completed DESC, player_id ASC").
		Find(&rows).Error
	if err != nil {
		s.logError(opRerank, "bucket_query_failed", err, zap.String("period", string(period)))
		return newServiceError(opRerank, "bucket_query_failed", err)
	}

	rank := 0
	var previous *PlayerScoreAggregate
	for i := range rows {
		if previous == nil || rows[i].TotalScore != previous.TotalScore ||
			rows[i].PhrasesCompleted != previous.PhrasesCompleted {
			rank++
		}
		previous = &rows[i]
		if rows[i].RankPosition != rank {
			err := s.db.WithContext(ctx).Model(&PlayerScoreAggregate{}).
				Where("id = ?", rows[i].ID).
				Update("rank_position", rank).Error
			if err != nil {
				s.logError(opRerank, "rank_update_failed", err, zap.String("period", string(period)))
				return newServiceError(opRerank, "rank_update_failed", err)
			}
		}
		rows[i].RankPosition = rank
	}

	if err := s.cache.Replace(ctx, period, periodStart, rows); err != nil {
		// Cache trouble degrades reads to SQL; ranking already succeeded.
		s.logger.Warn("leaderboard cache replace failed",
			zap.String("period", string(period)), zap.Error(err))
	}
	return nil
}

// RerankAll re-derives every period bucket. The scheduled catch-up sweep
// calls this to heal any refresh that failed after a completion.
func (s *Service) RerankAll(ctx context.Context) error {
	now := s.clock().UTC()
	for _, period := range Periods {
		periodStart := period.Start(now)
		var playerIDs []string
		err := s.db.WithContext(ctx).Model(&game.CompletedPhrase{}).
			Distinct("player_id").
			Where("completed_at >= ?", periodStart).
			Pluck("player_id", &playerIDs).Error
		if err != nil {
			return newServiceError(opRerank, "player_scan_failed", err)
		}
		for _, playerID := range playerIDs {
			if err := s.refreshBucketRow(ctx, playerID, period, periodStart); err != nil {
				return err
			}
		}
		if err := s.RerankPeriod(ctx, period); err != nil {
			return err
		}
	}
	return nil
}

// PeriodStart reports the boundary of the window currently served for a
// period, computed with the service clock so it always matches the bucket
// Top and PlayerRank read from.
func (s *Service) PeriodStart(period Period) time.Time {
	return period.Start(s.clock().UTC())
}

// Top returns one ranked page for a period. When the redis mirror holds
// the bucket the page order comes from the sorted set; row details are
// always read from SQL.
func (s *Service) Top(ctx context.Context, period Period, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	periodStart := period.Start(s.clock().UTC())

	if ids, err := s.cache.TopPlayerIDs(ctx, period, periodStart, limit, offset); err == nil {
		entries, hydrateErr := s.hydrateEntries(ctx, period, periodStart, ids)
		if hydrateErr == nil {
			return entries, nil
		}
		s.logger.Warn("leaderboard cache hydrate failed, falling back to sql", zap.Error(hydrateErr))
	}

	var entries []Entry
	err := s.db.WithContext(ctx).Model(&PlayerScoreAggregate{}).
		Select("player_scores.rank_position AS rank, player_scores.player_id, players.name AS player_name, player_scores.total_score, player_scores.phrases_completed").
		Joins("JOIN players ON players.id = player_scores.player_id").
		Where("player_scores.score_period = ? AND player_scores.period_start = ?", period, periodStart).
		Order("player_scores.rank_position ASC, player_scores.player_id ASC").
		Limit(limit).Offset(offset).
		Scan(&entries).Error
	if err != nil {
		s.logError(opTop, "query_failed", err, zap.String("period", string(period)))
		return nil, newServiceError(opTop, "query_failed", err)
	}
	return entries, nil
}

func (s *Service) hydrateEntries(ctx context.Context, period Period, periodStart time.Time, playerIDs []string) ([]Entry, error) {
	entries := make([]Entry, 0, len(playerIDs))
	for _, playerID := range playerIDs {
		var row PlayerScoreAggregate
		err := s.db.WithContext(ctx).
			Where("player_id = ? AND score_period = ? AND period_start = ?", playerID, period, periodStart).
			Take(&row).Error
		if err != nil {
			return nil, err
		}
		var player players.Player
		if err := s.db.WithContext(ctx).Where("id = ?", playerID).Take(&player).Error; err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			Rank:             row.RankPosition,
			PlayerID:         row.PlayerID,
			PlayerName:       player.Name,
			TotalScore:       row.TotalScore,
			PhrasesCompleted: row.PhrasesCompleted,
		})
	}
	return entries, nil
}

// PlayerRank returns one player's aggregate row for a period.
func (s *Service) PlayerRank(ctx context.Context, period Period, playerID string) (PlayerScoreAggregate, error) {
	periodStart := period.Start(s.clock().UTC())
	var row PlayerScoreAggregate
	err := s.db.WithContext(ctx).
		Where("player_id = ? AND score_period = ? AND period_start = ?", playerID, period, periodStart).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return PlayerScoreAggregate{}, err
	}
	if err != nil {
		s.logError(opPlayerRank, "query_failed", err, zap.String("player_id", playerID))
		return PlayerScoreAggregate{}, newServiceError(opPlayerRank, "query_failed", err)
	}
	return row, nil
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
	s.logger.Error("leaderboard service error", attrs...)
}
