package game

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/phrasalgame/backend/internal/phrases"
	"github.com/phrasalgame/backend/internal/players"
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
	if err := db.AutoMigrate(
		&players.Player{},
		&phrases.Phrase{},
		&phrases.PlayerPhraseAssignment{},
		&CompletedPhrase{},
		&SkippedPhrase{},
		&HintUsage{},
	); err != nil {
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
		t.Fatalf("failed to build game service: %v", err)
	}
	return service
}

func seedPlayer(t *testing.T, db *gorm.DB, id, name string) {
	t.Helper()
	player := players.Player{ID: id, Name: name, IsActive: true, LastSeenAt: time.Unix(1759990000, 0).UTC()}
	if err := db.Create(&player).Error; err != nil {
		t.Fatalf("failed to seed player %s: %v", id, err)
	}
}

func seedPhrase(t *testing.T, db *gorm.DB, id string, difficulty int, global bool, creatorID *string) {
	t.Helper()
	phrase := phrases.Phrase{
		ID:              id,
		Content:         "lunar orbit",
		Hint:            "space travel",
		DifficultyLevel: difficulty,
		IsGlobal:        global,
		IsApproved:      true,
		Language:        phrases.LanguageEnglish,
		Source:          phrases.SourceApp,
		CreatorID:       creatorID,
	}
	if err := db.Create(&phrase).Error; err != nil {
		t.Fatalf("failed to seed phrase %s: %v", id, err)
	}
}

func seedAssignment(t *testing.T, db *gorm.DB, id, phraseID, playerID string, assignedAt time.Time) {
	t.Helper()
	assignment := phrases.PlayerPhraseAssignment{
		ID:             id,
		PhraseID:       phraseID,
		TargetPlayerID: playerID,
		AssignedAt:     assignedAt,
	}
	if err := db.Create(&assignment).Error; err != nil {
		t.Fatalf("failed to seed assignment %s: %v", id, err)
	}
}
