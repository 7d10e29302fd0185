package orders

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/MarcoPoloResearchLab/stagetrack/internal/auth"
	"github.com/MarcoPoloResearchLab/stagetrack/internal/emails"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	queryOrderCode         = "order_code = ?"
	queryOrderCodeOtherID  = "order_code = ? AND id <> ?"
	queryOwnedByEmail      = "(',' || LOWER(client_email) || ',') LIKE ? ESCAPE '\\'"
	orderAdminListing      = "updated_at DESC, created_at DESC, id DESC"
	orderClientListing     = "created_at DESC, id DESC"
	orderStagesCanonically = "position ASC, id ASC"
)

// Create inserts an order together with its full default stage set.
func (s *Service) Create(ctx context.Context, caller auth.Identity, fields OrderFields) (Order, error) {
	if caller.Role() != auth.RoleAdmin {
		return Order{}, forbidden(opCreate)
	}
	if err := s.ready(opCreate); err != nil {
		return Order{}, err
	}

	now := s.now()
	fields = cleanFields(fields)
	if fields.OrderCode == "" {
		fields.OrderCode = fmt.Sprintf("DA-%d", now.Unix())
	}
	if err := validateFields(opCreate, fields); err != nil {
		return Order{}, err
	}

	order := Order{
		OrderCode:   fields.OrderCode,
		ClientEmail: emails.Normalize(fields.ClientEmail),
		StyleName:   fields.StyleName,
		Quantity:    fields.Quantity,
		Notes:       fields.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&Order{}).Where(queryOrderCode, order.OrderCode).Count(&existing).Error; err != nil {
			return s.storeFailure(opCreate, reasonQueryFailed, err, zap.String("order_code", order.OrderCode))
		}
		if existing > 0 {
			return duplicateCode(opCreate)
		}
		if err := tx.Create(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return duplicateCode(opCreate)
			}
			return s.storeFailure(opCreate, reasonWriteFailed, err, zap.String("order_code", order.OrderCode))
		}
		stages := make([]Stage, 0, len(defaultStageTemplate))
		for position, name := range defaultStageTemplate {
			stages = append(stages, Stage{
				OrderID:   order.ID,
				Position:  position,
				StageName: name,
				Status:    StatusPending,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
		if err := tx.Create(&stages).Error; err != nil {
			return s.storeFailure(opCreate, reasonWriteFailed, err, zap.Uint("order_id", order.ID))
		}
		return nil
	})
	if txErr != nil {
		return Order{}, txErr
	}
	return order, nil
}

// Update overwrites the editable fields of an existing order.
func (s *Service) Update(ctx context.Context, caller auth.Identity, id uint, fields OrderFields) (Order, error) {
	if caller.Role() != auth.RoleAdmin {
		return Order{}, forbidden(opUpdate)
	}
	if err := s.ready(opUpdate); err != nil {
		return Order{}, err
	}

	fields = cleanFields(fields)
	if fields.OrderCode == "" {
		return Order{}, invalidInput(opUpdate, "order code is required")
	}
	if err := validateFields(opUpdate, fields); err != nil {
		return Order{}, err
	}

	order, err := s.load(ctx, opUpdate, id)
	if err != nil {
		return Order{}, err
	}

	db := s.db.WithContext(ctx)
	var duplicates int64
	if err := db.Model(&Order{}).Where(queryOrderCodeOtherID, fields.OrderCode, id).Count(&duplicates).Error; err != nil {
		return Order{}, s.storeFailure(opUpdate, reasonQueryFailed, err, zap.Uint("order_id", id))
	}
	if duplicates > 0 {
		return Order{}, duplicateCode(opUpdate)
	}

	order.OrderCode = fields.OrderCode
	order.ClientEmail = emails.Normalize(fields.ClientEmail)
	order.StyleName = fields.StyleName
	order.Quantity = fields.Quantity
	order.Notes = fields.Notes
	order.UpdatedAt = s.now()

	err = db.Model(&Order{}).Where("id = ?", id).Updates(map[string]interface{}{
		"order_code":   order.OrderCode,
		"client_email": order.ClientEmail,
		"style_name":   order.StyleName,
		"quantity":     order.Quantity,
		"notes":        order.Notes,
		"updated_at":   order.UpdatedAt,
	}).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return Order{}, duplicateCode(opUpdate)
		}
		return Order{}, s.storeFailure(opUpdate, reasonWriteFailed, err, zap.Uint("order_id", id))
	}
	return order, nil
}

// Delete removes the order and its stages. Unknown ids are a no-op. Comment logs are
// left in place.
func (s *Service) Delete(ctx context.Context, caller auth.Identity, id uint) error {
	if caller.Role() != auth.RoleAdmin {
		return forbidden(opDelete)
	}
	if err := s.ready(opDelete); err != nil {
		return err
	}
	if id == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", id).Delete(&Stage{}).Error; err != nil {
			return s.storeFailure(opDelete, reasonWriteFailed, err, zap.Uint("order_id", id))
		}
		if err := tx.Where("id = ?", id).Delete(&Order{}).Error; err != nil {
			return s.storeFailure(opDelete, reasonWriteFailed, err, zap.Uint("order_id", id))
		}
		return nil
	})
}

// ListForAdmin returns the most recently touched orders.
func (s *Service) ListForAdmin(ctx context.Context, caller auth.Identity) ([]Order, error) {
	if caller.Role() != auth.RoleAdmin {
		return nil, forbidden(opListForAdmin)
	}
	if err := s.ready(opListForAdmin); err != nil {
		return nil, err
	}
	var orders []Order
	if err := s.db.WithContext(ctx).
		Order(orderAdminListing).
		Limit(s.adminListLimit).
		Find(&orders).Error; err != nil {
		return nil, s.storeFailure(opListForAdmin, reasonQueryFailed, err)
	}
	return orders, nil
}

// ListForClient returns the orders whose client email set contains the caller's email.
func (s *Service) ListForClient(ctx context.Context, caller auth.Identity) ([]Order, error) {
	email := strings.ToLower(strings.TrimSpace(caller.Email))
	if !caller.Authenticated() || email == "" {
		return nil, forbidden(opListForClient)
	}
	if err := s.ready(opListForClient); err != nil {
		return nil, err
	}
	var candidates []Order
	if err := s.db.WithContext(ctx).
		Where(queryOwnedByEmail, likePattern(","+email+",")).
		Order(orderClientListing).
		Find(&candidates).Error; err != nil {
		return nil, s.storeFailure(opListForClient, reasonQueryFailed, err)
	}
	owned := make([]Order, 0, len(candidates))
	for _, order := range candidates {
		if emails.Owns(order.ClientEmail, email) {
			owned = append(owned, order)
		}
	}
	return owned, nil
}

// CanView reports whether caller may read order.
func CanView(caller auth.Identity, order Order) bool {
	if !caller.Authenticated() {
		return false
	}
	return caller.IsAdmin || emails.Owns(order.ClientEmail, caller.Email)
}

// AuthorizeViewer loads the order and checks that caller is an admin or an owning client.
// Missing orders are reported as forbidden to non-admins.
func (s *Service) AuthorizeViewer(ctx context.Context, caller auth.Identity, id uint) (Order, error) {
	if !caller.Authenticated() {
		return Order{}, forbidden(opAuthorizeView)
	}
	if err := s.ready(opAuthorizeView); err != nil {
		return Order{}, err
	}
	order, err := s.load(ctx, opAuthorizeView, id)
	if err != nil {
		if !caller.IsAdmin && isNotFound(err) {
			return Order{}, forbidden(opAuthorizeView)
		}
		return Order{}, err
	}
	if !CanView(caller, order) {
		return Order{}, forbidden(opAuthorizeView)
	}
	return order, nil
}

// Get returns the order with its stages and progress for an admin or owning client.
func (s *Service) Get(ctx context.Context, caller auth.Identity, id uint) (OrderDetail, error) {
	order, err := s.AuthorizeViewer(ctx, caller, id)
	if err != nil {
		return OrderDetail{}, err
	}
	var stages []Stage
	if err := s.db.WithContext(ctx).
		Where("order_id = ?", id).
		Order(orderStagesCanonically).
		Find(&stages).Error; err != nil {
		return OrderDetail{}, s.storeFailure(opGet, reasonQueryFailed, err, zap.Uint("order_id", id))
	}

	done := 0
	for _, stage := range stages {
		if stage.Status == StatusDone {
			done++
		}
	}
	percent := 0
	if len(stages) > 0 {
		percent = int(math.Round(float64(done) / float64(len(stages)) * 100))
	}

	detail := OrderDetail{
		Order:      order,
		Stages:     stages,
		DoneCount:  done,
		Percent:    percent,
		AdminView:  caller.IsAdmin,
		ViewerName: caller.Name,
	}
	if !caller.IsAdmin {
		detail.Order.ClientEmail = ""
	}
	return detail, nil
}

func (s *Service) load(ctx context.Context, operation string, id uint) (Order, error) {
	if id == 0 {
		return Order{}, notFound(operation)
	}
	var order Order
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Order{}, notFound(operation)
	}
	if err != nil {
		return Order{}, s.storeFailure(operation, reasonQueryFailed, err, zap.Uint("order_id", id))
	}
	return order, nil
}

func cleanFields(fields OrderFields) OrderFields {
	return OrderFields{
		OrderCode:   strings.TrimSpace(fields.OrderCode),
		ClientEmail: fields.ClientEmail,
		StyleName:   strings.TrimSpace(fields.StyleName),
		Quantity:    fields.Quantity,
		Notes:       strings.TrimSpace(fields.Notes),
	}
}

func validateFields(operation string, fields OrderFields) error {
	if len(fields.OrderCode) > maxOrderCodeLength {
		return invalidInput(operation, fmt.Sprintf("order code exceeds %d characters", maxOrderCodeLength))
	}
	if len(fields.StyleName) > maxStyleNameLength {
		return invalidInput(operation, fmt.Sprintf("style name exceeds %d characters", maxStyleNameLength))
	}
	if fields.Quantity < 0 {
		return invalidInput(operation, "quantity must not be negative")
	}
	return nil
}
