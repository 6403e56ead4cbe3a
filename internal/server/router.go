package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/phrasalgame/backend/internal/auth"
	"github.com/phrasalgame/backend/internal/contribution"
	"github.com/phrasalgame/backend/internal/game"
	"github.com/phrasalgame/backend/internal/leaderboard"
	"github.com/phrasalgame/backend/internal/phrases"
	"github.com/phrasalgame/backend/internal/players"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const playerIDContextKey = "phrasal_player_id"

var (
	errMissingSessionManager     = errors.New("session manager dependency required")
	errMissingPlayerService      = errors.New("player service dependency required")
	errMissingPhraseService      = errors.New("phrase service dependency required")
	errMissingGameService        = errors.New("game service dependency required")
	errMissingLeaderboardService = errors.New("leaderboard service dependency required")
	errMissingContributionSvc    = errors.New("contribution service dependency required")
	errInvalidAuthorization      = errors.New("authorization header missing or invalid")
)

// Dependencies wires the HTTP layer to the services it fronts.
type Dependencies struct {
	Sessions            *auth.SessionManager
	Players             *players.Service
	Phrases             *phrases.Service
	Game                *game.Service
	Leaderboard         *leaderboard.Service
	Contribution        *contribution.Service
	Database            *gorm.DB
	Logger              *zap.Logger
	ContributionBaseURL string
}

// NewHTTPHandler builds the gin router for the API surface.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionManager
	}
	if deps.Players == nil {
		return nil, errMissingPlayerService
	}
	if deps.Phrases == nil {
		return nil, errMissingPhraseService
	}
	if deps.Game == nil {
		return nil, errMissingGameService
	}
	if deps.Leaderboard == nil {
		return nil, errMissingLeaderboardService
	}
	if deps.Contribution == nil {
		return nil, errMissingContributionSvc
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		sessions:     deps.Sessions,
		players:      deps.Players,
		phrases:      deps.Phrases,
		game:         deps.Game,
		leaderboard:  deps.Leaderboard,
		contribution: deps.Contribution,
		db:           deps.Database,
		logger:       logger,
		baseURL:      strings.TrimRight(deps.ContributionBaseURL, "/"),
	}

	router.GET("/healthz", handler.handleHealth)
	router.POST("/players/register", handler.handleRegister)
	router.POST("/phrases/preview", handler.handlePreview)
	router.GET("/leaderboard/:period", handler.handleLeaderboard)
	router.GET("/contribution/:token", handler.handleContributionStatus)
	router.POST("/contribution/:token/submit", handler.handleContributionSubmit)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/players/:playerId", handler.handleGetPlayer)
	protected.GET("/phrases/for/:playerId", handler.handleNextPhrase)
	protected.POST("/phrases/create", handler.handleCreatePhrase)
	protected.POST("/phrases/:id/hint", handler.handleHint)
	protected.POST("/phrases/:id/complete", handler.handleComplete)
	protected.POST("/phrases/:id/skip", handler.handleSkip)
	protected.POST("/contribution/request", handler.handleContributionRequest)

	return router, nil
}

type httpHandler struct {
	sessions     *auth.SessionManager
	players      *players.Service
	phrases      *phrases.Service
	game         *game.Service
	leaderboard  *leaderboard.Service
	contribution *contribution.Service
	db           *gorm.DB
	logger       *zap.Logger
	baseURL      string
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type registerRequestPayload struct {
	Name string `json:"name"`
}

type playerPayload struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Level            int64  `json:"level"`
	PhrasesCompleted int64  `json:"phrasesCompleted"`
	IsActive         bool   `json:"isActive"`
}

func playerToPayload(player players.Player) playerPayload {
	return playerPayload{
		ID:               player.ID,
		Name:             player.Name,
		Level:            player.Level(),
		PhrasesCompleted: player.PhrasesCompleted,
		IsActive:         player.IsActive,
	}
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	player, err := h.players.Register(c.Request.Context(), request.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}

	token, _, err := h.sessions.IssueToken(c.Request.Context(), player.ID)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"player":      playerToPayload(player),
		"accessToken": token,
		"tokenType":   "Bearer",
	})
}

func (h *httpHandler) handleGetPlayer(c *gin.Context) {
	playerID := c.Param("playerId")
	if !h.requireSelf(c, playerID) {
		return
	}
	player, err := h.players.Get(c.Request.Context(), playerID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	// A profile read doubles as a presence heartbeat.
	if err := h.players.Touch(c.Request.Context(), playerID); err != nil {
		h.logger.Warn("presence touch failed", zap.String("player_id", playerID), zap.Error(err))
	}
	c.JSON(http.StatusOK, playerToPayload(player))
}

type phrasePayload struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	Difficulty int    `json:"difficulty"`
	Language   string `json:"language"`
	IsGlobal   bool   `json:"isGlobal"`
	Source     string `json:"source"`
}

func phraseToPayload(phrase phrases.Phrase) phrasePayload {
	return phrasePayload{
		ID:         phrase.ID,
		Content:    phrase.Content,
		Difficulty: phrase.DifficultyLevel,
		Language:   phrase.Language,
		IsGlobal:   phrase.IsGlobal,
		Source:     string(phrase.Source),
	}
}

func (h *httpHandler) handleNextPhrase(c *gin.Context) {
	playerID := c.Param("playerId")
	if !h.requireSelf(c, playerID) {
		return
	}
	phrase, err := h.game.NextPhrase(c.Request.Context(), playerID)
	if errors.Is(err, game.ErrNoPhraseAvailable) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no_phrase_available"})
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, phraseToPayload(phrase))
}

type createPhraseRequestPayload struct {
	Content  string `json:"content"`
	Hint     string `json:"hint"`
	SenderID string `json:"senderId"`
	TargetID string `json:"targetId"`
	Language string `json:"language"`
	IsGlobal bool   `json:"isGlobal"`
}

func (h *httpHandler) handleCreatePhrase(c *gin.Context) {
	var request createPhraseRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if !h.requireSelf(c, request.SenderID) {
		return
	}
	if _, err := h.players.Get(c.Request.Context(), request.SenderID); err != nil {
		h.writeError(c, err)
		return
	}
	if request.TargetID != "" {
		if _, err := h.players.Get(c.Request.Context(), request.TargetID); err != nil {
			h.writeError(c, err)
			return
		}
	}

	creatorID := request.SenderID
	phrase, err := h.phrases.Create(c.Request.Context(), phrases.CreateRequest{
		Content:        request.Content,
		Hint:           request.Hint,
		Language:       request.Language,
		CreatorID:      &creatorID,
		TargetPlayerID: request.TargetID,
		IsGlobal:       request.IsGlobal,
		Source:         phrases.SourceApp,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, phraseToPayload(phrase))
}

type previewRequestPayload struct {
	Content  string `json:"content"`
	Language string `json:"language"`
}

func (h *httpHandler) handlePreview(c *gin.Context) {
	var request previewRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"difficulty": phrases.DifficultyFor(request.Content, request.Language),
		"language":   phrases.NormalizeLanguage(request.Language),
	})
}

type hintRequestPayload struct {
	PlayerID string `json:"playerId"`
}

func (h *httpHandler) handleHint(c *gin.Context) {
	var request hintRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if !h.requireSelf(c, request.PlayerID) {
		return
	}

	phraseID := c.Param("id")
	used, err := h.game.HintsUsed(c.Request.Context(), request.PlayerID, phraseID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if used >= 3 {
		c.JSON(http.StatusConflict, gin.H{"error": "no_hints_remaining"})
		return
	}

	result, err := h.game.UseHint(c.Request.Context(), request.PlayerID, phraseID, used+1)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"level":          result.Level,
		"hint":           result.Hint,
		"hintsUsed":      result.HintsUsed,
		"hintsRemaining": result.HintsRemaining,
	})
}

type completeRequestPayload struct {
	PlayerID         string `json:"playerId"`
	CompletionTimeMs int64  `json:"completionTimeMs"`
}

func (h *httpHandler) handleComplete(c *gin.Context) {
	var request completeRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if !h.requireSelf(c, request.PlayerID) {
		return
	}

	result, err := h.game.Complete(c.Request.Context(), request.PlayerID, c.Param("id"), request.CompletionTimeMs)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"finalScore":       result.FinalScore,
		"hintsUsed":        result.HintsUsed,
		"alreadyCompleted": result.AlreadyCompleted,
	})
}

type skipRequestPayload struct {
	PlayerID string `json:"playerId"`
}

func (h *httpHandler) handleSkip(c *gin.Context) {
	var request skipRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if !h.requireSelf(c, request.PlayerID) {
		return
	}
	if err := h.game.Skip(c.Request.Context(), request.PlayerID, c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"skipped": true})
}

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

func (h *httpHandler) handleLeaderboard(c *gin.Context) {
	period, err := leaderboard.ParsePeriod(c.Param("period"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_period"})
		return
	}

	limit := defaultLeaderboardLimit
	if raw := c.Query("limit"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
			return
		}
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}
	offset := 0
	if raw := c.Query("offset"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &offset); err != nil || offset < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_offset"})
			return
		}
	}

	entries, err := h.leaderboard.Top(c.Request.Context(), period, limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if entries == nil {
		entries = []leaderboard.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{
		"period":      string(period),
		"periodStart": h.leaderboard.PeriodStart(period).Format(time.RFC3339),
		"entries":     entries,
		"limit":       limit,
		"offset":      offset,
	})
}

type contributionRequestPayload struct {
	PlayerID        string `json:"playerId"`
	ExpirationHours int    `json:"expirationHours"`
	MaxUses         int    `json:"maxUses"`
}

func (h *httpHandler) handleContributionRequest(c *gin.Context) {
	var request contributionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if !h.requireSelf(c, request.PlayerID) {
		return
	}

	link, err := h.contribution.CreateLink(c.Request.Context(), request.PlayerID, request.ExpirationHours, request.MaxUses)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"token":        link.Token,
		"shareableUrl": fmt.Sprintf("%s/%s", h.baseURL, link.Token),
		"expiresAt":    link.ExpiresAt.Format(time.RFC3339),
		"maxUses":      link.MaxUses,
	})
}

func (h *httpHandler) handleContributionStatus(c *gin.Context) {
	result, err := h.contribution.Validate(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if result.Status == contribution.StatusNotFound {
		c.JSON(http.StatusNotFound, gin.H{"status": string(contribution.StatusNotFound)})
		return
	}

	response := gin.H{
		"status":        string(result.Status),
		"remainingUses": result.Link.RemainingUses(),
		"expiresAt":     result.Link.ExpiresAt.Format(time.RFC3339),
	}
	// Owner context lets the contribution page greet the contributor even
	// when the link itself is no longer usable.
	if owner, err := h.players.Get(c.Request.Context(), result.Link.RequestingPlayerID); err == nil {
		response["ownerName"] = owner.Name
		response["ownerLevel"] = owner.Level()
	}
	c.JSON(http.StatusOK, response)
}

type contributionSubmitPayload struct {
	Phrase          string `json:"phrase"`
	Hint            string `json:"hint"`
	Language        string `json:"language"`
	ContributorName string `json:"contributorName"`
}

func (h *httpHandler) handleContributionSubmit(c *gin.Context) {
	var request contributionSubmitPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	result, err := h.contribution.Submit(c.Request.Context(), contribution.SubmitRequest{
		Token:           c.Param("token"),
		PhraseText:      request.Phrase,
		Hint:            request.Hint,
		Language:        request.Language,
		ContributorName: request.ContributorName,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"phrase":        phraseToPayload(result.Phrase),
		"remainingUses": result.RemainingUses,
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	playerID, err := h.sessions.ValidateToken(token)
	if err != nil {
		h.logger.Warn("session validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(playerIDContextKey, playerID)
	c.Next()
}

// requireSelf rejects requests acting on a different player than the one
// the session token identifies.
func (h *httpHandler) requireSelf(c *gin.Context, playerID string) bool {
	if strings.TrimSpace(playerID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "player_id_required"})
		return false
	}
	if sessionPlayerID := c.GetString(playerIDContextKey); sessionPlayerID != playerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "player_mismatch"})
		return false
	}
	return true
}

func (h *httpHandler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal_error"

	switch {
	case errors.Is(err, players.ErrInvalidName),
		errors.Is(err, phrases.ErrInvalidContent),
		errors.Is(err, phrases.ErrInvalidHint),
		errors.Is(err, game.ErrInvalidHintLevel),
		errors.Is(err, contribution.ErrInvalidTTL),
		errors.Is(err, contribution.ErrInvalidMaxUses):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, players.ErrPlayerNotFound),
		errors.Is(err, phrases.ErrPhraseNotFound),
		errors.Is(err, contribution.ErrLinkNotFound):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, players.ErrNameTaken),
		errors.Is(err, game.ErrHintOrder),
		errors.Is(err, contribution.ErrLinkNotUsable):
		status = http.StatusConflict
		message = err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
		message = "storage_timeout"
	default:
		h.logger.Error("request failed", zap.Error(err))
	}

	c.JSON(status, gin.H{"error": message})
}
