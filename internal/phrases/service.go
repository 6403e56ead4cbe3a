package phrases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew = "phrases.service.new"
	opCreate     = "phrases.create"
	opGet        = "phrases.get"
	opAssign     = "phrases.assign"
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

// IDProvider issues identifiers for new phrases and assignments.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies for phrase management.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service creates phrases and targeted assignments.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the phrase service.
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

// CreateRequest describes a new phrase.
type CreateRequest struct {
	Content        string
	Hint           string
	Language       string
	CreatorID      *string
	TargetPlayerID string
	IsGlobal       bool
	Source         Source
}

// Create validates, scores and persists a phrase. When TargetPlayerID is
// set, a targeted assignment is written in the same transaction.
func (s *Service) Create(ctx context.Context, request CreateRequest) (Phrase, error) {
	phrase, err := s.newPhrase(request)
	if err != nil {
		return Phrase{}, err
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.insertPhrase(tx, &phrase, request.TargetPlayerID)
	})
	if txErr != nil {
		s.logError(opCreate, "transaction_failed", txErr)
		return Phrase{}, txErr
	}

	s.logger.Info("phrase created",
		zap.String("phrase_id", phrase.ID),
		zap.String("source", string(phrase.Source)),
		zap.Int("difficulty", phrase.DifficultyLevel),
		zap.Bool("targeted", request.TargetPlayerID != ""))
	return phrase, nil
}

// CreateInTx validates, scores and persists a phrase inside the caller's
// transaction, so the phrase commits or rolls back together with the
// caller's other writes. The caller owns atomicity and logging.
func (s *Service) CreateInTx(tx *gorm.DB, request CreateRequest) (Phrase, error) {
	phrase, err := s.newPhrase(request)
	if err != nil {
		return Phrase{}, err
	}
	if err := s.insertPhrase(tx, &phrase, request.TargetPlayerID); err != nil {
		return Phrase{}, err
	}
	return phrase, nil
}

func (s *Service) newPhrase(request CreateRequest) (Phrase, error) {
	language := NormalizeLanguage(request.Language)
	content, err := ValidateContent(request.Content, language)
	if err != nil {
		return Phrase{}, err
	}
	hint, err := ValidateHint(request.Hint)
	if err != nil {
		return Phrase{}, err
	}

	source := request.Source
	if source == "" {
		source = SourceApp
	}

	phraseID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return Phrase{}, newServiceError(opCreate, "id_generation_failed", err)
	}

	// Difficulty is computed once here and never recomputed for a stored
	// phrase; previews reuse DifficultyFor directly. Phrases start out
	// approved; moderation flips the flag off, which removes a global
	// phrase from the allocation pool.
	return Phrase{
		ID:              phraseID,
		Content:         content,
		Hint:            hint,
		DifficultyLevel: DifficultyFor(content, language),
		IsGlobal:        request.IsGlobal,
		IsApproved:      true,
		Language:        language,
		Source:          source,
		CreatorID:       request.CreatorID,
	}, nil
}

func (s *Service) insertPhrase(tx *gorm.DB, phrase *Phrase, targetPlayerID string) error {
	if err := tx.Create(phrase).Error; err != nil {
		return newServiceError(opCreate, "insert_failed", err)
	}
	if targetPlayerID != "" {
		return s.assign(tx, phrase.ID, targetPlayerID)
	}
	return nil
}

// Get returns the phrase with the given id.
func (s *Service) Get(ctx context.Context, phraseID string) (Phrase, error) {
	var phrase Phrase
	err := s.db.WithContext(ctx).Where("id = ?", phraseID).Take(&phrase).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Phrase{}, fmt.Errorf("%w: %s", ErrPhraseNotFound, phraseID)
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.String("phrase_id", phraseID))
		return Phrase{}, newServiceError(opGet, "query_failed", err)
	}
	return phrase, nil
}

// Assign targets an existing phrase at a player.
func (s *Service) Assign(ctx context.Context, phraseID, targetPlayerID string) error {
	return s.assign(s.db.WithContext(ctx), phraseID, targetPlayerID)
}

func (s *Service) assign(tx *gorm.DB, phraseID, targetPlayerID string) error {
	assignmentID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opAssign, "id_generation_failed", err)
		return newServiceError(opAssign, "id_generation_failed", err)
	}
	assignment := PlayerPhraseAssignment{
		ID:             assignmentID,
		PhraseID:       phraseID,
		TargetPlayerID: targetPlayerID,
		AssignedAt:     s.clock().UTC(),
	}
	if err := tx.Create(&assignment).Error; err != nil {
		s.logError(opAssign, "insert_failed", err, zap.String("phrase_id", phraseID))
		return newServiceError(opAssign, "insert_failed", err)
	}
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
	s.logger.Error("phrases service error", attrs...)
}
