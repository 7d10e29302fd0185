package orders

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/stagetrack/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	skipStageNotFound  = "stage_not_found"
	skipForeignStage   = "foreign_stage"
	skipInvalidStatus  = "invalid_status"
	skipInvalidDate    = "invalid_date"
	skipLookupFailed   = "lookup_failed"
	skipUpdateFailed   = "update_failed"
	reasonTouchFailed  = "touch_failed"
	reasonStageSkipped = "stage_skipped"
)

// ApplyBulk overwrites status, date and remarks for every stage present in changes.
// Entries that cannot be applied are skipped and reported without aborting the batch.
// Each affected order has its updated_at bumped once.
func (s *Service) ApplyBulk(ctx context.Context, caller auth.Identity, changes StageChanges) (BulkResult, error) {
	return s.applyBulk(ctx, caller, 0, changes)
}

// ApplyBulkForOrder behaves like ApplyBulk but skips stages that belong to any order other than orderID.
func (s *Service) ApplyBulkForOrder(ctx context.Context, caller auth.Identity, orderID uint, changes StageChanges) (BulkResult, error) {
	if orderID == 0 {
		return BulkResult{}, invalidInput(opApplyBulk, "missing order")
	}
	return s.applyBulk(ctx, caller, orderID, changes)
}

// scope of zero accepts stages from any order.
func (s *Service) applyBulk(ctx context.Context, caller auth.Identity, scope uint, changes StageChanges) (BulkResult, error) {
	if caller.Role() != auth.RoleAdmin {
		return BulkResult{}, forbidden(opApplyBulk)
	}
	if err := s.ready(opApplyBulk); err != nil {
		return BulkResult{}, err
	}

	stageIDs := make([]uint, 0, len(changes))
	for stageID := range changes {
		stageIDs = append(stageIDs, stageID)
	}
	sort.Slice(stageIDs, func(i, j int) bool { return stageIDs[i] < stageIDs[j] })

	db := s.db.WithContext(ctx)
	now := s.now()
	result := BulkResult{OrderIDs: []uint{}, Skipped: []SkippedStage{}}
	affected := make(map[uint]struct{})

	for _, stageID := range stageIDs {
		change := changes[stageID]
		status, err := ParseStatus(change.Status)
		if err != nil {
			result.Skipped = append(result.Skipped, s.skip(stageID, skipInvalidStatus, err))
			continue
		}
		stageDate, err := parseStageDate(change.Date)
		if err != nil {
			result.Skipped = append(result.Skipped, s.skip(stageID, skipInvalidDate, err))
			continue
		}

		var stage Stage
		err = db.Select("id", "order_id").Where("id = ?", stageID).Take(&stage).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			result.Skipped = append(result.Skipped, SkippedStage{StageID: stageID, Reason: skipStageNotFound})
			continue
		}
		if err != nil {
			result.Skipped = append(result.Skipped, s.skip(stageID, skipLookupFailed, err))
			continue
		}
		if scope != 0 && stage.OrderID != scope {
			result.Skipped = append(result.Skipped, SkippedStage{StageID: stageID, Reason: skipForeignStage})
			continue
		}

		err = db.Model(&Stage{}).Where("id = ?", stageID).Updates(map[string]interface{}{
			"status":     status,
			"stage_date": stageDate,
			"remarks":    strings.TrimSpace(change.Remarks),
			"updated_at": now,
		}).Error
		if err != nil {
			result.Skipped = append(result.Skipped, s.skip(stageID, skipUpdateFailed, err))
			continue
		}

		result.UpdatedCount++
		affected[stage.OrderID] = struct{}{}
	}

	for orderID := range affected {
		result.OrderIDs = append(result.OrderIDs, orderID)
	}
	sort.Slice(result.OrderIDs, func(i, j int) bool { return result.OrderIDs[i] < result.OrderIDs[j] })

	if len(result.OrderIDs) > 0 {
		if err := db.Model(&Order{}).Where("id IN ?", result.OrderIDs).Update("updated_at", now).Error; err != nil {
			s.logError(opApplyBulk, reasonTouchFailed, err, zap.Uints("order_ids", result.OrderIDs))
		}
	}
	return result, nil
}

func (s *Service) skip(stageID uint, reason string, err error) SkippedStage {
	s.loggerOrDefault().Warn("bulk stage entry skipped",
		zap.String("operation", opApplyBulk),
		zap.String("reason", reasonStageSkipped),
		zap.Uint("stage_id", stageID),
		zap.String("skip", reason),
		zap.Error(err))
	return SkippedStage{StageID: stageID, Reason: reason}
}

func parseStageDate(raw string) (*time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := time.Parse(stageDateLayout, trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
