package database

import (
	"strings"
	"testing"

	"github.com/phrasalgame/backend/internal/players"
	"go.uber.org/zap"
)

func TestOpenSQLiteMigratesSchema(t *testing.T) {
	db, err := OpenSQLite("file:database_open?mode=memory&cache=shared", zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}

	// The schema is usable immediately after open.
	player := players.Player{ID: "player-1", Name: "ada", IsActive: true}
	if err := db.Create(&player).Error; err != nil {
		t.Fatalf("schema not usable after open: %v", err)
	}

	if err := verifyUniqueIndexes(db); err != nil {
		t.Fatalf("expected required indexes after migration: %v", err)
	}
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	if _, err := OpenSQLite("", zap.NewNop()); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestVerifyUniqueIndexesReportsMissing(t *testing.T) {
	db, err := OpenSQLite("file:database_verify?mode=memory&cache=shared", zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}

	if err := db.Exec("DROP INDEX idx_players_name").Error; err != nil {
		t.Fatalf("failed to drop index: %v", err)
	}
	err = verifyUniqueIndexes(db)
	if err == nil || !strings.Contains(err.Error(), "idx_players_name") {
		t.Fatalf("expected missing-index error, got %v", err)
	}
}

func TestMigrationsRunOnce(t *testing.T) {
	db, err := OpenSQLite("file:database_migrations?mode=memory&cache=shared", zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}

	var applied int64
	if err := db.Model(&migrationRecord{}).Count(&applied).Error; err != nil {
		t.Fatalf("failed to count migrations: %v", err)
	}
	if applied == 0 {
		t.Fatal("expected recorded migrations")
	}

	// A second apply pass is a no-op.
	if err := applyMigrations(db, zap.NewNop()); err != nil {
		t.Fatalf("reapply failed: %v", err)
	}
	var again int64
	if err := db.Model(&migrationRecord{}).Count(&again).Error; err != nil {
		t.Fatalf("failed to recount migrations: %v", err)
	}
	if again != applied {
		t.Fatalf("reapply changed the ledger: %d to %d", applied, again)
	}
}
