package comments

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/stagetrack/internal/auth"
	"github.com/MarcoPoloResearchLab/stagetrack/internal/emails"
	"github.com/MarcoPoloResearchLab/stagetrack/internal/failure"
	"github.com/MarcoPoloResearchLab/stagetrack/internal/orders"
	"github.com/MarcoPoloResearchLab/stagetrack/internal/users"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	opServiceNew = "comments.service.new"
	opAppend     = "comments.append"
	opGet        = "comments.get"
	opDeleteAt   = "comments.delete_at"
	opDeleteByID = "comments.delete_by_id"
	defaultCap   = 200
)

const (
	reasonMissingStore    = "missing_store"
	reasonMissingOrders   = "missing_orders"
	reasonMissingOrder    = "missing_order"
	reasonEmptyComment    = "empty_comment"
	reasonMissingEmail    = "missing_email"
	reasonForbidden       = "forbidden"
	reasonIndexOutOfRange = "index_out_of_range"
	reasonUnknownComment  = "unknown_comment"
	reasonLoadFailed      = "load_failed"
	reasonSaveFailed      = "save_failed"
	reasonDecodeFailed    = "decode_failed"
	reasonIDFailed        = "id_failed"
)

// ViewAuthorizer gates access to an order's comment log.
type ViewAuthorizer interface {
	AuthorizeViewer(ctx context.Context, caller auth.Identity, id uint) (orders.Order, error)
}

// AccountDirectory resolves display names for comment authors.
type AccountDirectory interface {
	FindByEmail(ctx context.Context, email string) (users.Account, error)
}

// ServiceConfig wires the comment log.
type ServiceConfig struct {
	Store    Store
	Orders   ViewAuthorizer
	Accounts AccountDirectory
	Clock    func() time.Time
	Logger   *zap.Logger
	Cap      int
}

// Service keeps a capped newest-first comment list per order.
type Service struct {
	store    Store
	orders   ViewAuthorizer
	accounts AccountDirectory
	clock    func() time.Time
	logger   *zap.Logger
	capacity int
}

// NewService constructs the comment log service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, failure.New(failure.KindTransientIO, opServiceNew, reasonMissingStore, "", errors.New("comment store is required"))
	}
	if cfg.Orders == nil {
		return nil, failure.New(failure.KindUnknown, opServiceNew, reasonMissingOrders, "", errors.New("order authorizer is required"))
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	capacity := cfg.Cap
	if capacity <= 0 {
		capacity = defaultCap
	}
	return &Service{
		store:    cfg.Store,
		orders:   cfg.Orders,
		accounts: cfg.Accounts,
		clock:    clock,
		logger:   logger,
		capacity: capacity,
	}, nil
}

// Append prepends a comment by caller and truncates the log to the configured cap.
// fallbackName is used only when neither the session nor the account store yields a name.
func (s *Service) Append(ctx context.Context, caller auth.Identity, orderID uint, text, fallbackName string) (RenderedLog, error) {
	if orderID == 0 {
		return RenderedLog{}, missingOrder(opAppend)
	}
	body := strings.TrimSpace(text)
	if body == "" {
		return RenderedLog{}, failure.New(failure.KindInvalidInput, opAppend, reasonEmptyComment, "comment text is required", nil)
	}
	email := strings.ToLower(strings.TrimSpace(caller.Email))
	if !caller.Authenticated() || !emails.Valid(email) {
		return RenderedLog{}, failure.New(failure.KindInvalidInput, opAppend, reasonMissingEmail, "a valid author email is required", nil)
	}
	if _, err := s.orders.AuthorizeViewer(ctx, caller, orderID); err != nil {
		return RenderedLog{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return RenderedLog{}, s.ioFailure(opAppend, reasonIDFailed, err, orderID)
	}

	list, err := s.load(ctx, opAppend, orderID)
	if err != nil {
		return RenderedLog{}, err
	}
	entry := Comment{
		ID:        id,
		UserEmail: email,
		UserName:  s.resolveName(ctx, caller, email, fallbackName),
		Comment:   body,
		CreatedAt: s.clock().UTC(),
	}
	list = append([]Comment{entry}, list...)
	if len(list) > s.capacity {
		list = list[:s.capacity]
	}
	if err := s.save(ctx, opAppend, orderID, list); err != nil {
		return RenderedLog{}, err
	}
	return render(caller, orderID, list), nil
}

// Get returns the comment log of an order.
func (s *Service) Get(ctx context.Context, caller auth.Identity, orderID uint) (RenderedLog, error) {
	if orderID == 0 {
		return RenderedLog{}, missingOrder(opGet)
	}
	if _, err := s.orders.AuthorizeViewer(ctx, caller, orderID); err != nil {
		return RenderedLog{}, err
	}
	list, err := s.load(ctx, opGet, orderID)
	if err != nil {
		return RenderedLog{}, err
	}
	return render(caller, orderID, list), nil
}

// DeleteAt removes the entry at the zero-based position of the current newest-first list.
func (s *Service) DeleteAt(ctx context.Context, caller auth.Identity, orderID uint, index int) (RenderedLog, error) {
	list, err := s.loadForDelete(ctx, opDeleteAt, caller, orderID)
	if err != nil {
		return RenderedLog{}, err
	}
	if index < 0 || index >= len(list) {
		return RenderedLog{}, failure.New(failure.KindNotFound, opDeleteAt, reasonIndexOutOfRange, "comment not found", nil)
	}
	list = append(list[:index], list[index+1:]...)
	if err := s.save(ctx, opDeleteAt, orderID, list); err != nil {
		return RenderedLog{}, err
	}
	return render(caller, orderID, list), nil
}

// DeleteByID removes the entry carrying commentID.
func (s *Service) DeleteByID(ctx context.Context, caller auth.Identity, orderID uint, commentID uuid.UUID) (RenderedLog, error) {
	list, err := s.loadForDelete(ctx, opDeleteByID, caller, orderID)
	if err != nil {
		return RenderedLog{}, err
	}
	position := -1
	for index, entry := range list {
		if entry.ID == commentID {
			position = index
			break
		}
	}
	if position < 0 {
		return RenderedLog{}, failure.New(failure.KindNotFound, opDeleteByID, reasonUnknownComment, "comment not found", nil)
	}
	list = append(list[:position], list[position+1:]...)
	if err := s.save(ctx, opDeleteByID, orderID, list); err != nil {
		return RenderedLog{}, err
	}
	return render(caller, orderID, list), nil
}

func (s *Service) loadForDelete(ctx context.Context, operation string, caller auth.Identity, orderID uint) ([]Comment, error) {
	if caller.Role() != auth.RoleAdmin {
		return nil, failure.New(failure.KindForbidden, operation, reasonForbidden, "access denied", nil)
	}
	if orderID == 0 {
		return nil, missingOrder(operation)
	}
	return s.load(ctx, operation, orderID)
}

func (s *Service) resolveName(ctx context.Context, caller auth.Identity, email, fallbackName string) string {
	if name := strings.TrimSpace(caller.Name); name != "" {
		return name
	}
	if s.accounts != nil {
		account, err := s.accounts.FindByEmail(ctx, email)
		if err == nil {
			if label := account.Label(); label != "" {
				return label
			}
		} else if !errors.Is(err, users.ErrAccountNotFound) {
			s.logger.Warn("comment author lookup failed", zap.String("operation", opAppend), zap.Error(err))
		}
	}
	return strings.TrimSpace(fallbackName)
}

func (s *Service) load(ctx context.Context, operation string, orderID uint) ([]Comment, error) {
	raw, found, err := s.store.Load(ctx, logKey(orderID))
	if err != nil {
		return nil, s.ioFailure(operation, reasonLoadFailed, err, orderID)
	}
	if !found || len(raw) == 0 {
		return []Comment{}, nil
	}
	var list []Comment
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, s.ioFailure(operation, reasonDecodeFailed, err, orderID)
	}
	return list, nil
}

func (s *Service) save(ctx context.Context, operation string, orderID uint, list []Comment) error {
	if list == nil {
		list = []Comment{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return s.ioFailure(operation, reasonSaveFailed, err, orderID)
	}
	if err := s.store.Save(ctx, logKey(orderID), raw); err != nil {
		return s.ioFailure(operation, reasonSaveFailed, err, orderID)
	}
	return nil
}

func (s *Service) ioFailure(operation, reason string, err error, orderID uint) error {
	s.logger.Error("comments service error",
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Uint("order_id", orderID),
		zap.Error(err))
	return failure.New(failure.KindTransientIO, operation, reason, "storage unavailable", err)
}

func missingOrder(operation string) error {
	return failure.New(failure.KindInvalidInput, operation, reasonMissingOrder, "missing order", nil)
}

func render(caller auth.Identity, orderID uint, list []Comment) RenderedLog {
	entries := make([]Entry, 0, len(list))
	for index, comment := range list {
		entry := Entry{
			ID:          comment.ID.String(),
			Index:       index,
			AuthorLabel: comment.AuthorLabel(),
			Comment:     comment.Comment,
			CreatedAt:   comment.CreatedAt,
		}
		if caller.IsAdmin {
			entry.AuthorEmail = comment.UserEmail
		}
		entries = append(entries, entry)
	}
	return RenderedLog{
		OrderID:   orderID,
		CanDelete: caller.Role() == auth.RoleAdmin,
		Entries:   entries,
	}
}
