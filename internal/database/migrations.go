package database

import (
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/stagetrack/internal/emails"
	"github.com/MarcoPoloResearchLab/stagetrack/internal/orders"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationNormalizeClientEmails = "2025-01-15_normalize_client_emails"
	migrationCanonicalStageStatus  = "2025-01-15_canonical_stage_status"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeClientEmails, apply: normalizeClientEmails},
		{name: migrationCanonicalStageStatus, apply: canonicalStageStatus},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// normalizeClientEmails rewrites stored email lists imported before normalization
// was enforced on write.
func normalizeClientEmails(db *gorm.DB) error {
	var rows []orders.Order
	if err := db.Select("id", "client_email").Find(&rows).Error; err != nil {
		return err
	}
	for _, row := range rows {
		normalized := emails.Normalize(row.ClientEmail)
		if normalized == row.ClientEmail {
			continue
		}
		if err := db.Model(&orders.Order{}).Where("id = ?", row.ID).UpdateColumn("client_email", normalized).Error; err != nil {
			return err
		}
	}
	return nil
}

// canonicalStageStatus maps blank or differently cased statuses to the canonical set.
// Unknown values become pending.
func canonicalStageStatus(db *gorm.DB) error {
	var rows []orders.Stage
	if err := db.Select("id", "status").Find(&rows).Error; err != nil {
		return err
	}
	for _, row := range rows {
		status, err := orders.ParseStatus(string(row.Status))
		if err != nil {
			status = orders.StatusPending
		}
		if status == row.Status && strings.TrimSpace(string(row.Status)) == string(row.Status) {
			continue
		}
		if err := db.Model(&orders.Stage{}).Where("id = ?", row.ID).UpdateColumn("status", status).Error; err != nil {
			return err
		}
	}
	return nil
}
