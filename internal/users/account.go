package users

import (
	"strings"
	"time"
)

// Capabilities that grant the admin role. Either one is sufficient.
const (
	CapabilityManageOptions = "manage_options"
	CapabilityManageStore   = "manage_store"
)

// Account is a portal login backed by the host account table.
type Account struct {
	ID           uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Login        string    `gorm:"column:login;size:120;not null;uniqueIndex"`
	Email        string    `gorm:"column:email;size:191;not null;uniqueIndex"`
	DisplayName  string    `gorm:"column:display_name;size:191;not null;default:''"`
	PasswordHash string    `gorm:"column:password_hash;size:255;not null"`
	Capabilities []string  `gorm:"column:capabilities;serializer:json;type:text"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing portal accounts.
func (Account) TableName() string {
	return "accounts"
}

// IsAdmin reports whether the account carries an administrative capability.
func (a Account) IsAdmin() bool {
	for _, capability := range a.Capabilities {
		switch normalize(capability) {
		case CapabilityManageOptions, CapabilityManageStore:
			return true
		}
	}
	return false
}

// Label is the preferred human-facing name: login, then display name, then email.
func (a Account) Label() string {
	if login := normalize(a.Login); login != "" {
		return login
	}
	if display := normalize(a.DisplayName); display != "" {
		return display
	}
	return normalize(a.Email)
}

// normalize value helper used across service implementation.
func normalize(value string) string {
	return strings.TrimSpace(value)
}
