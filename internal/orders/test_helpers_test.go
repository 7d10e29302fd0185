package orders

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/stagetrack/internal/auth"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	adminCaller  = auth.Identity{UserID: 1, Email: "boss@example.com", Name: "boss", IsAdmin: true}
	clientCaller = auth.Identity{UserID: 2, Email: "a@x.com", Name: "alice"}
)

type steppingClock struct {
	current time.Time
	step    time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.current = c.current.Add(c.step)
	return c.current
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "orders.db")), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Order{}, &Stage{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, logger *zap.Logger) (*Service, *gorm.DB) {
	t.Helper()
	db := openTestDatabase(t)
	clock := &steppingClock{current: time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC), step: time.Second}
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock:    clock.Now,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service, db
}

func mustCreateOrder(t *testing.T, service *Service, fields OrderFields) Order {
	t.Helper()
	order, err := service.Create(t.Context(), adminCaller, fields)
	if err != nil {
		t.Fatalf("create %q failed: %v", fields.OrderCode, err)
	}
	return order
}

func loadStages(t *testing.T, db *gorm.DB, orderID uint) []Stage {
	t.Helper()
	var stages []Stage
	if err := db.Where("order_id = ?", orderID).Order("position ASC").Find(&stages).Error; err != nil {
		t.Fatalf("failed to load stages: %v", err)
	}
	return stages
}
