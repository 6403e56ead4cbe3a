package contribution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phrasalgame/backend/internal/events"
	"github.com/phrasalgame/backend/internal/phrases"
	"github.com/phrasalgame/backend/internal/players"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase      = errors.New("database handle is required")
	errMissingIDProvider    = errors.New("id provider is required")
	errMissingPhraseService = errors.New("phrase service is required")
	noOpLogger              = zap.NewNop()

	// ErrLinkNotFound indicates the token matches no link.
	ErrLinkNotFound = errors.New("contribution: link not found")
	// ErrLinkNotUsable indicates the link exists but cannot accept the
	// submission (expired, deactivated or exhausted).
	ErrLinkNotUsable = errors.New("contribution: link not usable")
	// ErrInvalidTTL indicates an out-of-bounds expiration request.
	ErrInvalidTTL = errors.New("contribution: expiration hours out of bounds")
	// ErrInvalidMaxUses indicates an out-of-bounds max-uses request.
	ErrInvalidMaxUses = errors.New("contribution: max uses out of bounds")
)

const (
	opServiceNew = "contribution.service.new"
	opCreateLink = "contribution.create_link"
	opValidate   = "contribution.validate"
	opSubmit     = "contribution.submit"
	opSweep      = "contribution.sweep_expired"

	minTTLHours = 1
	maxTTLHours = 168
	minMaxUses  = 1
	maxMaxUses  = 10

	maxContributorName = 64
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

// IDProvider issues identifiers for new links.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies for the link manager.
type ServiceConfig struct {
	Database       *gorm.DB
	Clock          func() time.Time
	IDProvider     IDProvider
	Logger         *zap.Logger
	PhraseService  *phrases.Service
	Sink           events.Sink
	DefaultTTL     time.Duration
	DefaultMaxUses int
}

// Service manages the contribution link lifecycle: issue, validate,
// consume, sweep.
type Service struct {
	db             *gorm.DB
	clock          func() time.Time
	idProvider     IDProvider
	logger         *zap.Logger
	phraseService  *phrases.Service
	sink           events.Sink
	defaultTTL     time.Duration
	defaultMaxUses int
}

// NewService constructs the link manager.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	if cfg.PhraseService == nil {
		return nil, newServiceError(opServiceNew, "missing_phrase_service", errMissingPhraseService)
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
	defaultTTL := cfg.DefaultTTL
	if defaultTTL <= 0 {
		defaultTTL = 48 * time.Hour
	}
	defaultMaxUses := cfg.DefaultMaxUses
	if defaultMaxUses <= 0 {
		defaultMaxUses = 3
	}
	return &Service{
		db:             cfg.Database,
		clock:          clock,
		idProvider:     cfg.IDProvider,
		logger:         logger,
		phraseService:  cfg.PhraseService,
		sink:           sink,
		defaultTTL:     defaultTTL,
		defaultMaxUses: defaultMaxUses,
	}, nil
}

// CreateLink issues a new contribution link for the owner. Zero ttlHours
// or maxUses select the configured defaults.
func (s *Service) CreateLink(ctx context.Context, ownerPlayerID string, ttlHours, maxUses int) (Link, error) {
	ttl := s.defaultTTL
	if ttlHours != 0 {
		if ttlHours < minTTLHours || ttlHours > maxTTLHours {
			return Link{}, fmt.Errorf("%w: %d", ErrInvalidTTL, ttlHours)
		}
		ttl = time.Duration(ttlHours) * time.Hour
	}
	if maxUses == 0 {
		maxUses = s.defaultMaxUses
	}
	if maxUses < minMaxUses || maxUses > maxMaxUses {
		return Link{}, fmt.Errorf("%w: %d", ErrInvalidMaxUses, maxUses)
	}

	var owner players.Player
	err := s.db.WithContext(ctx).Where("id = ?", ownerPlayerID).Take(&owner).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Link{}, fmt.Errorf("%w: %s", players.ErrPlayerNotFound, ownerPlayerID)
	}
	if err != nil {
		s.logError(opCreateLink, "owner_lookup_failed", err, zap.String("player_id", ownerPlayerID))
		return Link{}, newServiceError(opCreateLink, "owner_lookup_failed", err)
	}

	linkID, err := s.idProvider.NewID()
	if err != nil {
		return Link{}, newServiceError(opCreateLink, "id_generation_failed", err)
	}
	token, err := newToken()
	if err != nil {
		s.logError(opCreateLink, "token_generation_failed", err)
		return Link{}, newServiceError(opCreateLink, "token_generation_failed", err)
	}

	now := s.clock().UTC()
	link := Link{
		ID:                 linkID,
		Token:              token,
		RequestingPlayerID: ownerPlayerID,
		CreatedAt:          now,
		ExpiresAt:          now.Add(ttl),
		MaxUses:            maxUses,
		IsActive:           true,
	}
	if err := s.db.WithContext(ctx).Create(&link).Error; err != nil {
		s.logError(opCreateLink, "insert_failed", err, zap.String("player_id", ownerPlayerID))
		return Link{}, newServiceError(opCreateLink, "insert_failed", err)
	}

	s.logger.Info("contribution link created",
		zap.String("player_id", ownerPlayerID),
		zap.Time("expires_at", link.ExpiresAt),
		zap.Int("max_uses", link.MaxUses))
	return link, nil
}

// ValidationResult pairs a status with the link metadata. Expired and
// deactivated links still carry metadata so callers can render a useful
// message; only not-found comes back empty.
type ValidationResult struct {
	Status Status
	Link   Link
}

// Validate classifies a token without consuming a use.
func (s *Service) Validate(ctx context.Context, token string) (ValidationResult, error) {
	link, err := s.findByToken(ctx, token)
	if errors.Is(err, ErrLinkNotFound) {
		return ValidationResult{Status: StatusNotFound}, nil
	}
	if err != nil {
		return ValidationResult{}, err
	}
	return ValidationResult{Status: link.StatusAt(s.clock().UTC()), Link: link}, nil
}

// SubmitRequest describes an external phrase submission.
type SubmitRequest struct {
	Token           string
	PhraseText      string
	Hint            string
	Language        string
	ContributorName string
}

// SubmitResult reports the created phrase and the link's remaining budget.
type SubmitResult struct {
	Phrase        phrases.Phrase
	RemainingUses int
}

// Submit consumes one use of the link and creates a phrase targeted at the
// link's owner. The use-increment is a guarded UPDATE, so two concurrent
// submissions against a link with one remaining use cannot both succeed.
func (s *Service) Submit(ctx context.Context, request SubmitRequest) (SubmitResult, error) {
	language := phrases.NormalizeLanguage(request.Language)
	content, err := phrases.ValidateContent(request.PhraseText, language)
	if err != nil {
		return SubmitResult{}, err
	}
	hint, err := phrases.ValidateHint(request.Hint)
	if err != nil {
		return SubmitResult{}, err
	}
	contributor := strings.TrimSpace(request.ContributorName)
	if len(contributor) > maxContributorName {
		contributor = contributor[:maxContributorName]
	}

	link, err := s.findByToken(ctx, request.Token)
	if err != nil {
		return SubmitResult{}, err
	}
	now := s.clock().UTC()
	if status := link.StatusAt(now); status != StatusValid {
		return SubmitResult{}, fmt.Errorf("%w: %s", ErrLinkNotUsable, status)
	}

	var consumed Link
	var phrase phrases.Phrase
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The WHERE clause re-checks activity and budget under the
		// transaction; zero rows affected means a concurrent submission
		// won the last use.
		claim := tx.Model(&Link{}).
			Where("id = ? AND is_active = ? AND current_uses < max_uses AND expires_at > ?", link.ID, true, now).
			Update("current_uses", gorm.Expr("current_uses + 1"))
		if claim.Error != nil {
			return newServiceError(opSubmit, "claim_failed", claim.Error)
		}
		if claim.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrLinkNotUsable, StatusExhausted)
		}

		if err := tx.Where("id = ?", link.ID).Take(&consumed).Error; err != nil {
			return newServiceError(opSubmit, "reload_failed", err)
		}

		updates := map[string]interface{}{}
		if consumed.CurrentUses >= consumed.MaxUses {
			updates["is_active"] = false
			consumed.IsActive = false
		}
		if consumed.ContributorName == "" && contributor != "" {
			updates["contributor_name"] = contributor
			consumed.ContributorName = contributor
		}
		if len(updates) > 0 {
			if err := tx.Model(&Link{}).Where("id = ?", link.ID).Updates(updates).Error; err != nil {
				return newServiceError(opSubmit, "link_update_failed", err)
			}
		}

		// The phrase and its assignment share the claim transaction: a
		// failed insert rolls the consumed use back, so the contributor
		// can retry without losing part of the link's budget.
		created, err := s.phraseService.CreateInTx(tx, phrases.CreateRequest{
			Content:        content,
			Hint:           hint,
			Language:       language,
			TargetPlayerID: consumed.RequestingPlayerID,
			Source:         phrases.SourceExternal,
		})
		if err != nil {
			return err
		}
		phrase = created
		return nil
	})
	if txErr != nil {
		if !errors.Is(txErr, ErrLinkNotUsable) {
			s.logError(opSubmit, "transaction_failed", txErr, zap.String("link_id", link.ID))
		}
		return SubmitResult{}, txErr
	}

	s.sink.LinkConsumed(ctx, events.LinkConsumed{
		OwnerPlayerID:   consumed.RequestingPlayerID,
		PhraseID:        phrase.ID,
		ContributorName: contributor,
		RemainingUses:   consumed.RemainingUses(),
	})
	s.sink.PhraseTargeted(ctx, events.PhraseTargeted{
		PlayerID: consumed.RequestingPlayerID,
		PhraseID: phrase.ID,
		Source:   string(phrases.SourceExternal),
	})

	return SubmitResult{Phrase: phrase, RemainingUses: consumed.RemainingUses()}, nil
}

// SweepExpired deactivates active links past their expiry. Returns the
// number of links flipped.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Model(&Link{}).
		Where("is_active = ? AND expires_at <= ?", true, s.clock().UTC()).
		Update("is_active", false)
	if result.Error != nil {
		s.logError(opSweep, "update_failed", result.Error)
		return 0, newServiceError(opSweep, "update_failed", result.Error)
	}
	if result.RowsAffected > 0 {
		s.logger.Info("expired contribution links deactivated", zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

func (s *Service) findByToken(ctx context.Context, token string) (Link, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Link{}, ErrLinkNotFound
	}
	var link Link
	err := s.db.WithContext(ctx).Where("token = ?", token).Take(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Link{}, ErrLinkNotFound
	}
	if err != nil {
		s.logError(opValidate, "query_failed", err)
		return Link{}, newServiceError(opValidate, "query_failed", err)
	}
	return link, nil
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
	s.logger.Error("contribution service error", attrs...)
}
