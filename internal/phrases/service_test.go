package phrases

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type seqIDProvider struct {
	next int
}

func (p *seqIDProvider) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("id-%04d", p.next), nil
}

func openTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Phrase{}, &PlayerPhraseAssignment{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Unix(1760000000, 0).UTC() },
		IDProvider: &seqIDProvider{},
	})
	if err != nil {
		t.Fatalf("failed to build phrase service: %v", err)
	}
	return service
}

func TestCreateStoresScoredPhrase(t *testing.T) {
	db := openTestDB(t, "phrases_create")
	service := newTestService(t, db)
	ctx := context.Background()

	phrase, err := service.Create(ctx, CreateRequest{
		Content:  "  lunar orbit  ",
		Hint:     "space travel",
		Language: "en",
		IsGlobal: true,
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if phrase.Content != "lunar orbit" {
		t.Fatalf("expected trimmed content, got %q", phrase.Content)
	}
	if phrase.DifficultyLevel != DifficultyFor("lunar orbit", LanguageEnglish) {
		t.Fatalf("stored difficulty %d disagrees with the scorer", phrase.DifficultyLevel)
	}
	if phrase.Source != SourceApp {
		t.Fatalf("expected default app source, got %s", phrase.Source)
	}
	if !phrase.IsApproved {
		t.Fatal("new phrases start approved")
	}

	var stored Phrase
	if err := db.Where("id = ?", phrase.ID).Take(&stored).Error; err != nil {
		t.Fatalf("failed to reload phrase: %v", err)
	}
	if stored.DifficultyLevel != phrase.DifficultyLevel {
		t.Fatalf("persisted difficulty %d differs from returned %d", stored.DifficultyLevel, phrase.DifficultyLevel)
	}

	var assignments int64
	if err := db.Model(&PlayerPhraseAssignment{}).Count(&assignments).Error; err != nil {
		t.Fatalf("failed to count assignments: %v", err)
	}
	if assignments != 0 {
		t.Fatalf("untargeted create must not assign, got %d", assignments)
	}
}

func TestCreateTargetedWritesAssignment(t *testing.T) {
	db := openTestDB(t, "phrases_create_target")
	service := newTestService(t, db)
	ctx := context.Background()

	phrase, err := service.Create(ctx, CreateRequest{
		Content:        "quiet harbor",
		Hint:           "calm waters",
		TargetPlayerID: "player-1",
		Source:         SourceExternal,
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	var assignment PlayerPhraseAssignment
	if err := db.Where("phrase_id = ?", phrase.ID).Take(&assignment).Error; err != nil {
		t.Fatalf("expected an assignment row: %v", err)
	}
	if assignment.TargetPlayerID != "player-1" {
		t.Fatalf("assignment targets %s", assignment.TargetPlayerID)
	}
	if assignment.IsDelivered {
		t.Fatal("fresh assignment must be undelivered")
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	db := openTestDB(t, "phrases_create_invalid")
	service := newTestService(t, db)
	ctx := context.Background()

	if _, err := service.Create(ctx, CreateRequest{Content: "single", Hint: "a hint"}); !errors.Is(err, ErrInvalidContent) {
		t.Fatalf("expected content error, got %v", err)
	}
	if _, err := service.Create(ctx, CreateRequest{Content: "lunar orbit", Hint: ""}); !errors.Is(err, ErrInvalidHint) {
		t.Fatalf("expected hint error, got %v", err)
	}

	var count int64
	if err := db.Model(&Phrase{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count phrases: %v", err)
	}
	if count != 0 {
		t.Fatalf("rejected input must not persist, got %d phrases", count)
	}
}

func TestGetUnknownPhrase(t *testing.T) {
	db := openTestDB(t, "phrases_get_missing")
	service := newTestService(t, db)

	if _, err := service.Get(context.Background(), "ghost"); !errors.Is(err, ErrPhraseNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}
