package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/stagetrack/internal/orders"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsNormalizesLegacyRows(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&orders.Order{}, &orders.Stage{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	now := time.Now().UTC()
	legacy := orders.Order{
		OrderCode:   "LEGACY-1",
		ClientEmail: " A@X.com ,broken, a@x.com,B@y.com",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := database.Create(&legacy).Error; err != nil {
		testContext.Fatalf("failed to insert order: %v", err)
	}
	stages := []orders.Stage{
		{OrderID: legacy.ID, Position: 0, StageName: "Fab Booking", Status: "DONE", CreatedAt: now, UpdatedAt: now},
		{OrderID: legacy.ID, Position: 1, StageName: "Yarn in house", Status: "", CreatedAt: now, UpdatedAt: now},
		{OrderID: legacy.ID, Position: 2, StageName: "Knitting start", Status: "shipped", CreatedAt: now, UpdatedAt: now},
	}
	if err := database.Create(&stages).Error; err != nil {
		testContext.Fatalf("failed to insert stages: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored orders.Order
	if err := database.Where("id = ?", legacy.ID).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload order: %v", err)
	}
	if stored.ClientEmail != "a@x.com,b@y.com" {
		testContext.Fatalf("expected normalized client email, got %q", stored.ClientEmail)
	}

	var reloaded []orders.Stage
	if err := database.Where("order_id = ?", legacy.ID).Order("position ASC").Find(&reloaded).Error; err != nil {
		testContext.Fatalf("failed to reload stages: %v", err)
	}
	expected := []orders.Status{orders.StatusDone, orders.StatusPending, orders.StatusPending}
	for index, stage := range reloaded {
		if stage.Status != expected[index] {
			testContext.Fatalf("stage %d: expected %q, got %q", index, expected[index], stage.Status)
		}
	}

	for _, name := range []string{migrationNormalizeClientEmails, migrationCanonicalStageStatus} {
		var record migrationRecord
		if err := database.Where("name = ?", name).Take(&record).Error; err != nil {
			testContext.Fatalf("expected migration record %s to be created: %v", name, err)
		}
		if record.AppliedAtSeconds == 0 {
			testContext.Fatalf("expected migration timestamp to be set")
		}
	}
}

func TestApplyMigrationsRunsOnce(testContext *testing.T) {
	database, err := OpenSQLite(filepath.Join(testContext.TempDir(), "once.db"), zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}

	now := time.Now().UTC()
	late := orders.Order{OrderCode: "LATE", ClientEmail: "UPPER@X.COM", CreatedAt: now, UpdatedAt: now}
	if err := database.Create(&late).Error; err != nil {
		testContext.Fatalf("failed to insert order: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to re-apply migrations: %v", err)
	}

	var stored orders.Order
	if err := database.Where("id = ?", late.ID).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload order: %v", err)
	}
	if stored.ClientEmail != "UPPER@X.COM" {
		testContext.Fatalf("expected recorded migration to be skipped, got %q", stored.ClientEmail)
	}
}
