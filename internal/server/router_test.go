package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/phrasalgame/backend/internal/auth"
	"github.com/phrasalgame/backend/internal/contribution"
	"github.com/phrasalgame/backend/internal/database"
	"github.com/phrasalgame/backend/internal/game"
	"github.com/phrasalgame/backend/internal/ids"
	"github.com/phrasalgame/backend/internal/leaderboard"
	"github.com/phrasalgame/backend/internal/phrases"
	"github.com/phrasalgame/backend/internal/players"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var routerTestNow = time.Unix(1760000000, 0).UTC()

type testEnv struct {
	handler http.Handler
	db      *gorm.DB
	phrases *phrases.Service
}

func newTestEnv(t *testing.T, name string) *testEnv {
	t.Helper()

	db, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	idProvider := ids.NewUUIDProvider()
	sessions := auth.NewSessionManager(auth.SessionManagerConfig{
		SigningSecret: []byte("router-test-secret"),
	})

	playerService, err := players.NewService(players.ServiceConfig{Database: db, IDProvider: idProvider})
	if err != nil {
		t.Fatalf("failed to build player service: %v", err)
	}
	phraseService, err := phrases.NewService(phrases.ServiceConfig{Database: db, IDProvider: idProvider})
	if err != nil {
		t.Fatalf("failed to build phrase service: %v", err)
	}
	leaderboardService, err := leaderboard.NewService(leaderboard.ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return routerTestNow },
		IDProvider: idProvider,
	})
	if err != nil {
		t.Fatalf("failed to build leaderboard service: %v", err)
	}
	gameService, err := game.NewService(game.ServiceConfig{
		Database:    db,
		IDProvider:  idProvider,
		Leaderboard: leaderboardService,
	})
	if err != nil {
		t.Fatalf("failed to build game service: %v", err)
	}
	contributionService, err := contribution.NewService(contribution.ServiceConfig{
		Database:      db,
		IDProvider:    idProvider,
		PhraseService: phraseService,
	})
	if err != nil {
		t.Fatalf("failed to build contribution service: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Sessions:            sessions,
		Players:             playerService,
		Phrases:             phraseService,
		Game:                gameService,
		Leaderboard:         leaderboardService,
		Contribution:        contributionService,
		Database:            db,
		ContributionBaseURL: "https://phrasal.example/contribute",
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	return &testEnv{handler: handler, db: db, phrases: phraseService}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	e.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}

// register creates a player over the API and returns its id and session token.
func (e *testEnv) register(t *testing.T, name string) (string, string) {
	t.Helper()
	recorder := e.do(t, http.MethodPost, "/players/register", "", map[string]string{"name": name})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("register returned %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(t, recorder)
	player := payload["player"].(map[string]interface{})
	return player["id"].(string), payload["accessToken"].(string)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, "router_health")
	recorder := env.do(t, http.MethodGet, "/healthz", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
}

func TestRegisterIssuesSession(t *testing.T) {
	env := newTestEnv(t, "router_register")

	recorder := env.do(t, http.MethodPost, "/players/register", "", map[string]string{"name": "ada"})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(t, recorder)
	if payload["accessToken"] == "" || payload["tokenType"] != "Bearer" {
		t.Fatalf("unexpected session payload: %v", payload)
	}

	duplicate := env.do(t, http.MethodPost, "/players/register", "", map[string]string{"name": "ada"})
	if duplicate.Code != http.StatusConflict {
		t.Fatalf("duplicate name should 409, got %d", duplicate.Code)
	}

	invalid := env.do(t, http.MethodPost, "/players/register", "", map[string]string{"name": "x"})
	if invalid.Code != http.StatusBadRequest {
		t.Fatalf("invalid name should 400, got %d", invalid.Code)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t, "router_auth")
	playerID, token := env.register(t, "ada")
	_, otherToken := env.register(t, "bo")

	missing := env.do(t, http.MethodGet, "/players/"+playerID, "", nil)
	if missing.Code != http.StatusUnauthorized {
		t.Fatalf("missing bearer should 401, got %d", missing.Code)
	}

	garbage := env.do(t, http.MethodGet, "/players/"+playerID, "not-a-jwt", nil)
	if garbage.Code != http.StatusUnauthorized {
		t.Fatalf("invalid token should 401, got %d", garbage.Code)
	}

	mismatch := env.do(t, http.MethodGet, "/players/"+playerID, otherToken, nil)
	if mismatch.Code != http.StatusForbidden {
		t.Fatalf("foreign session should 403, got %d", mismatch.Code)
	}

	self := env.do(t, http.MethodGet, "/players/"+playerID, token, nil)
	if self.Code != http.StatusOK {
		t.Fatalf("own profile should 200, got %d: %s", self.Code, self.Body.String())
	}
	profile := decodeBody(t, self)
	if profile["name"] != "ada" {
		t.Fatalf("unexpected profile: %v", profile)
	}
}

func TestNextPhraseEndpoint(t *testing.T) {
	env := newTestEnv(t, "router_next")
	ctx := context.Background()
	playerID, token := env.register(t, "ada")

	empty := env.do(t, http.MethodGet, "/phrases/for/"+playerID, token, nil)
	if empty.Code != http.StatusNotFound {
		t.Fatalf("empty pool should 404, got %d", empty.Code)
	}
	if payload := decodeBody(t, empty); payload["error"] != "no_phrase_available" {
		t.Fatalf("unexpected error body: %v", payload)
	}

	creatorID, _ := env.register(t, "bo")
	if _, err := env.phrases.Create(ctx, phrases.CreateRequest{
		Content:   "quiet harbor",
		Hint:      "calm waters",
		CreatorID: &creatorID,
		IsGlobal:  true,
	}); err != nil {
		t.Fatalf("failed to seed phrase: %v", err)
	}

	found := env.do(t, http.MethodGet, "/phrases/for/"+playerID, token, nil)
	if found.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", found.Code, found.Body.String())
	}
	payload := decodeBody(t, found)
	if payload["content"] != "quiet harbor" {
		t.Fatalf("unexpected phrase payload: %v", payload)
	}
}

func TestCreatePhraseEndpoint(t *testing.T) {
	env := newTestEnv(t, "router_create")
	senderID, token := env.register(t, "ada")
	targetID, _ := env.register(t, "bo")

	recorder := env.do(t, http.MethodPost, "/phrases/create", token, map[string]interface{}{
		"content":  "quiet harbor",
		"hint":     "calm waters",
		"senderId": senderID,
		"targetId": targetID,
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(t, recorder)
	if payload["difficulty"].(float64) < 1 {
		t.Fatalf("expected scored phrase, got %v", payload)
	}

	unknownTarget := env.do(t, http.MethodPost, "/phrases/create", token, map[string]interface{}{
		"content":  "quiet harbor",
		"hint":     "calm waters",
		"senderId": senderID,
		"targetId": "ghost",
	})
	if unknownTarget.Code != http.StatusNotFound {
		t.Fatalf("unknown target should 404, got %d", unknownTarget.Code)
	}

	badContent := env.do(t, http.MethodPost, "/phrases/create", token, map[string]interface{}{
		"content":  "word",
		"hint":     "calm waters",
		"senderId": senderID,
	})
	if badContent.Code != http.StatusBadRequest {
		t.Fatalf("invalid content should 400, got %d", badContent.Code)
	}
}

func TestPreviewEndpoint(t *testing.T) {
	env := newTestEnv(t, "router_preview")

	recorder := env.do(t, http.MethodPost, "/phrases/preview", "", map[string]string{
		"content": "lunar orbit", "language": "en",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	payload := decodeBody(t, recorder)
	difficulty := payload["difficulty"].(float64)
	if difficulty < 1 || difficulty > 100 {
		t.Fatalf("difficulty out of range: %v", difficulty)
	}

	empty := env.do(t, http.MethodPost, "/phrases/preview", "", map[string]string{"content": "  "})
	if empty.Code != http.StatusBadRequest {
		t.Fatalf("empty preview should 400, got %d", empty.Code)
	}
}

func TestHintFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t, "router_hint")
	ctx := context.Background()
	playerID, token := env.register(t, "ada")
	phrase, err := env.phrases.Create(ctx, phrases.CreateRequest{
		Content: "quiet harbor", Hint: "calm waters", IsGlobal: true,
	})
	if err != nil {
		t.Fatalf("failed to seed phrase: %v", err)
	}

	for level := 1; level <= 3; level++ {
		recorder := env.do(t, http.MethodPost, "/phrases/"+phrase.ID+"/hint", token, map[string]string{"playerId": playerID})
		if recorder.Code != http.StatusOK {
			t.Fatalf("hint %d returned %d: %s", level, recorder.Code, recorder.Body.String())
		}
		payload := decodeBody(t, recorder)
		if int(payload["level"].(float64)) != level {
			t.Fatalf("expected level %d, got %v", level, payload["level"])
		}
		if hint := payload["hint"].(string); !strings.HasPrefix(hint, "calm waters") {
			t.Fatalf("unexpected hint text %q", hint)
		}
	}

	exhausted := env.do(t, http.MethodPost, "/phrases/"+phrase.ID+"/hint", token, map[string]string{"playerId": playerID})
	if exhausted.Code != http.StatusConflict {
		t.Fatalf("fourth hint should 409, got %d", exhausted.Code)
	}
	if payload := decodeBody(t, exhausted); payload["error"] != "no_hints_remaining" {
		t.Fatalf("unexpected error body: %v", payload)
	}
}

func TestCompleteSkipAndLeaderboardOverHTTP(t *testing.T) {
	env := newTestEnv(t, "router_complete")
	ctx := context.Background()
	playerID, token := env.register(t, "ada")
	phrase, err := env.phrases.Create(ctx, phrases.CreateRequest{
		Content: "quiet harbor", Hint: "calm waters", IsGlobal: true,
	})
	if err != nil {
		t.Fatalf("failed to seed phrase: %v", err)
	}
	skippable, err := env.phrases.Create(ctx, phrases.CreateRequest{
		Content: "silver birch", Hint: "a tree", IsGlobal: true,
	})
	if err != nil {
		t.Fatalf("failed to seed phrase: %v", err)
	}

	complete := env.do(t, http.MethodPost, "/phrases/"+phrase.ID+"/complete", token, map[string]interface{}{
		"playerId": playerID, "completionTimeMs": 8200,
	})
	if complete.Code != http.StatusOK {
		t.Fatalf("complete returned %d: %s", complete.Code, complete.Body.String())
	}
	payload := decodeBody(t, complete)
	if int(payload["finalScore"].(float64)) != phrase.DifficultyLevel {
		t.Fatalf("hintless completion should score full difficulty, got %v", payload["finalScore"])
	}

	again := env.do(t, http.MethodPost, "/phrases/"+phrase.ID+"/complete", token, map[string]interface{}{
		"playerId": playerID,
	})
	if again.Code != http.StatusOK {
		t.Fatalf("duplicate complete returned %d", again.Code)
	}
	if payload := decodeBody(t, again); payload["alreadyCompleted"] != true {
		t.Fatalf("expected duplicate flag, got %v", payload)
	}

	skip := env.do(t, http.MethodPost, "/phrases/"+skippable.ID+"/skip", token, map[string]string{"playerId": playerID})
	if skip.Code != http.StatusOK {
		t.Fatalf("skip returned %d: %s", skip.Code, skip.Body.String())
	}

	board := env.do(t, http.MethodGet, "/leaderboard/total", "", nil)
	if board.Code != http.StatusOK {
		t.Fatalf("leaderboard returned %d: %s", board.Code, board.Body.String())
	}
	boardPayload := decodeBody(t, board)
	entries := boardPayload["entries"].([]interface{})
	if len(entries) != 1 {
		t.Fatalf("expected one ranked entry, got %d", len(entries))
	}
	top := entries[0].(map[string]interface{})
	if top["playerId"] != playerID || int(top["rank"].(float64)) != 1 {
		t.Fatalf("unexpected leaderboard entry: %v", top)
	}

	// periodStart must come from the leaderboard service clock, so it names
	// the same bucket the entries were read from.
	daily := env.do(t, http.MethodGet, "/leaderboard/daily", "", nil)
	if daily.Code != http.StatusOK {
		t.Fatalf("daily leaderboard returned %d: %s", daily.Code, daily.Body.String())
	}
	dailyPayload := decodeBody(t, daily)
	wantStart := leaderboard.PeriodDaily.Start(routerTestNow).Format(time.RFC3339)
	if dailyPayload["periodStart"] != wantStart {
		t.Fatalf("periodStart = %v, expected bucket boundary %s", dailyPayload["periodStart"], wantStart)
	}
	if len(dailyPayload["entries"].([]interface{})) != 1 {
		t.Fatalf("expected the completion in the daily bucket: %v", dailyPayload["entries"])
	}

	badPeriod := env.do(t, http.MethodGet, "/leaderboard/monthly", "", nil)
	if badPeriod.Code != http.StatusBadRequest {
		t.Fatalf("unknown period should 400, got %d", badPeriod.Code)
	}
	badLimit := env.do(t, http.MethodGet, "/leaderboard/total?limit=abc", "", nil)
	if badLimit.Code != http.StatusBadRequest {
		t.Fatalf("bad limit should 400, got %d", badLimit.Code)
	}
}

func TestContributionFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t, "router_contribution")
	playerID, token := env.register(t, "ada")

	created := env.do(t, http.MethodPost, "/contribution/request", token, map[string]interface{}{
		"playerId": playerID, "maxUses": 1,
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("link request returned %d: %s", created.Code, created.Body.String())
	}
	createdPayload := decodeBody(t, created)
	linkToken := createdPayload["token"].(string)
	if !strings.HasPrefix(createdPayload["shareableUrl"].(string), "https://phrasal.example/contribute/") {
		t.Fatalf("unexpected shareable url: %v", createdPayload["shareableUrl"])
	}
	if _, err := time.Parse(time.RFC3339, createdPayload["expiresAt"].(string)); err != nil {
		t.Fatalf("unparseable expiry: %v", err)
	}

	status := env.do(t, http.MethodGet, "/contribution/"+linkToken, "", nil)
	if status.Code != http.StatusOK {
		t.Fatalf("status returned %d: %s", status.Code, status.Body.String())
	}
	statusPayload := decodeBody(t, status)
	if statusPayload["status"] != "valid" || statusPayload["ownerName"] != "ada" {
		t.Fatalf("unexpected status payload: %v", statusPayload)
	}

	submitted := env.do(t, http.MethodPost, "/contribution/"+linkToken+"/submit", "", map[string]string{
		"phrase": "quiet harbor", "hint": "calm waters", "contributorName": "grandma",
	})
	if submitted.Code != http.StatusCreated {
		t.Fatalf("submit returned %d: %s", submitted.Code, submitted.Body.String())
	}
	submitPayload := decodeBody(t, submitted)
	if int(submitPayload["remainingUses"].(float64)) != 0 {
		t.Fatalf("expected exhausted link, got %v", submitPayload)
	}

	// The submitted phrase lands in the owner's queue without a session.
	next := env.do(t, http.MethodGet, "/phrases/for/"+playerID, token, nil)
	if next.Code != http.StatusOK {
		t.Fatalf("expected targeted phrase, got %d: %s", next.Code, next.Body.String())
	}
	if payload := decodeBody(t, next); payload["content"] != "quiet harbor" {
		t.Fatalf("unexpected next phrase: %v", payload)
	}

	rejected := env.do(t, http.MethodPost, "/contribution/"+linkToken+"/submit", "", map[string]string{
		"phrase": "silver birch", "hint": "a tree",
	})
	if rejected.Code != http.StatusConflict {
		t.Fatalf("exhausted link should 409, got %d", rejected.Code)
	}

	missing := env.do(t, http.MethodGet, "/contribution/no-such-token", "", nil)
	if missing.Code != http.StatusNotFound {
		t.Fatalf("unknown token should 404, got %d", missing.Code)
	}
}
