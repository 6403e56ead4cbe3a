package players

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()

	// ErrNameTaken indicates another player already holds the display name.
	ErrNameTaken = errors.New("players: display name already taken")
	// ErrPlayerNotFound indicates the player id is unknown.
	ErrPlayerNotFound = errors.New("players: player not found")
)

const (
	opServiceNew = "players.service.new"
	opRegister   = "players.register"
	opGet        = "players.get"
	opTouch      = "players.touch"
	opDeactivate = "players.deactivate"
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

// IDProvider issues identifiers for new players.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies for player management.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service manages player registration, lookups and presence.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the player service.
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
	return &Service{db: cfg.Database, clock: clock, idProvider: cfg.IDProvider, logger: logger}, nil
}

// Register creates a new player with a globally unique display name.
func (s *Service) Register(ctx context.Context, rawName string) (Player, error) {
	name, err := NormalizeName(rawName)
	if err != nil {
		return Player{}, err
	}

	playerID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opRegister, "id_generation_failed", err)
		return Player{}, newServiceError(opRegister, "id_generation_failed", err)
	}

	player := Player{
		ID:         playerID,
		Name:       name,
		IsActive:   true,
		LastSeenAt: s.clock().UTC(),
	}

	// The unique index on name is the source of truth; DoNothing lets the
	// conflict surface as a zero-row insert instead of a driver error.
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&player)
	if result.Error != nil {
		s.logError(opRegister, "insert_failed", result.Error, zap.String("name", name))
		return Player{}, newServiceError(opRegister, "insert_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return Player{}, fmt.Errorf("%w: %s", ErrNameTaken, name)
	}

	s.logger.Info("player registered", zap.String("player_id", playerID), zap.String("name", name))
	return player, nil
}

// Get returns the player with the given id.
func (s *Service) Get(ctx context.Context, playerID string) (Player, error) {
	if strings.TrimSpace(playerID) == "" {
		return Player{}, ErrPlayerNotFound
	}
	var player Player
	err := s.db.WithContext(ctx).Where("id = ?", playerID).Take(&player).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Player{}, fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.String("player_id", playerID))
		return Player{}, newServiceError(opGet, "query_failed", err)
	}
	return player, nil
}

// GetByName returns the player with the given display name.
func (s *Service) GetByName(ctx context.Context, name string) (Player, error) {
	var player Player
	err := s.db.WithContext(ctx).Where("name = ?", strings.TrimSpace(name)).Take(&player).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Player{}, fmt.Errorf("%w: name %s", ErrPlayerNotFound, name)
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.String("name", name))
		return Player{}, newServiceError(opGet, "query_failed", err)
	}
	return player, nil
}

// Touch records a presence heartbeat for the player.
func (s *Service) Touch(ctx context.Context, playerID string) error {
	result := s.db.WithContext(ctx).Model(&Player{}).
		Where("id = ?", playerID).
		Update("last_seen_at", s.clock().UTC())
	if result.Error != nil {
		s.logError(opTouch, "update_failed", result.Error, zap.String("player_id", playerID))
		return newServiceError(opTouch, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
	}
	return nil
}

// Deactivate soft-deletes the player. The row is retained for audit and
// leaderboard history.
func (s *Service) Deactivate(ctx context.Context, playerID string) error {
	result := s.db.WithContext(ctx).Model(&Player{}).
		Where("id = ?", playerID).
		Update("is_active", false)
	if result.Error != nil {
		s.logError(opDeactivate, "update_failed", result.Error, zap.String("player_id", playerID))
		return newServiceError(opDeactivate, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
	}
	s.logger.Info("player deactivated", zap.String("player_id", playerID))
	return nil
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
	s.logger.Error("players service error", attrs...)
}
