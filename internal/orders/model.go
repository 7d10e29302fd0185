package orders

import (
	"fmt"
	"strings"
	"time"
)

// Status is the production state of a single stage.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// ParseStatus validates raw input. Blank input means pending.
func ParseStatus(raw string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case "", StatusPending:
		return StatusPending, nil
	case StatusInProgress:
		return StatusInProgress, nil
	case StatusDone:
		return StatusDone, nil
	default:
		return "", fmt.Errorf("orders: unknown stage status %q", raw)
	}
}

const (
	maxOrderCodeLength = 120
	maxStyleNameLength = 191
	stageDateLayout    = "2006-01-02"
)

var defaultStageTemplate = []string{
	"Fab Booking",
	"Yarn in house",
	"Knitting start",
	"Knitting close",
	"Dyeing start",
	"Dyeing close",
	"Cutting start",
	"Cutting close",
	"Printing start",
	"Printing close",
	"Sewing start",
	"Sewing close",
	"FRI",
}

// DefaultStages returns the canonical production template in order.
func DefaultStages() []string {
	return append([]string(nil), defaultStageTemplate...)
}

// Order is a trackable production unit.
type Order struct {
	ID          uint      `gorm:"column:id;primaryKey;autoIncrement"`
	OrderCode   string    `gorm:"column:order_code;size:120;not null;uniqueIndex:idx_orders_order_code"`
	ClientEmail string    `gorm:"column:client_email;size:191;not null;default:''"`
	StyleName   string    `gorm:"column:style_name;size:191;not null;default:''"`
	Quantity    int       `gorm:"column:quantity;not null;default:0"`
	Notes       string    `gorm:"column:notes;type:text;not null;default:''"`
	CreatedAt   time.Time `gorm:"column:created_at;not null;index:idx_orders_created"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null;index:idx_orders_updated"`
}

// TableName provides the explicit table binding for GORM.
func (Order) TableName() string {
	return "orders"
}

// Stage is one production step owned by an order.
type Stage struct {
	ID        uint       `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID   uint       `gorm:"column:order_id;not null;index:idx_stages_order,priority:1"`
	Position  int        `gorm:"column:position;not null;default:0;index:idx_stages_order,priority:2"`
	StageName string     `gorm:"column:stage_name;size:120;not null"`
	Status    Status     `gorm:"column:status;size:30;not null;default:'pending'"`
	StageDate *time.Time `gorm:"column:stage_date"`
	Remarks   string     `gorm:"column:remarks;type:text;not null;default:''"`
	CreatedAt time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt time.Time  `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Stage) TableName() string {
	return "stages"
}

// OrderFields is the admin-editable part of an order.
type OrderFields struct {
	OrderCode   string
	ClientEmail string
	StyleName   string
	Quantity    int
	Notes       string
}

// StageChange is the submitted status, date and remarks for one stage. A blank status
// means pending and a blank date clears the stored date.
type StageChange struct {
	Status  string
	Date    string
	Remarks string
}

// StageChanges maps stage ids to their submitted change.
type StageChanges map[uint]StageChange

// SkippedStage records a stage entry the bulk updater could not apply.
type SkippedStage struct {
	StageID uint
	Reason  string
}

// BulkResult summarises a best-effort bulk stage update.
type BulkResult struct {
	UpdatedCount int
	OrderIDs     []uint
	Skipped      []SkippedStage
}

// SearchResult is a role-filtered search hit. ClientEmail is empty for non-admin callers.
type SearchResult struct {
	ID          uint
	OrderCode   string
	StyleName   string
	ClientEmail string
	Quantity    int
	UpdatedAt   time.Time
}

// OrderDetail is an order with its stages and progress.
type OrderDetail struct {
	Order      Order
	Stages     []Stage
	DoneCount  int
	Percent    int
	AdminView  bool
	ViewerName string
}
