package orders

import (
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/stagetrack/internal/failure"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew     = "orders.service.new"
	opCreate         = "orders.create"
	opUpdate         = "orders.update"
	opDelete         = "orders.delete"
	opGet            = "orders.get"
	opListForAdmin   = "orders.list_admin"
	opListForClient  = "orders.list_client"
	opApplyBulk      = "orders.apply_bulk"
	opSearch         = "orders.search"
	opAuthorizeView  = "orders.authorize_view"
	defaultListLimit = 500
	defaultHitLimit  = 50
)

const (
	reasonMissingDatabase = "missing_database"
	reasonForbidden       = "forbidden"
	reasonNotFound        = "not_found"
	reasonDuplicateCode   = "duplicate_code"
	reasonInvalidInput    = "invalid_input"
	reasonQueryFailed     = "query_failed"
	reasonWriteFailed     = "write_failed"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// ServiceConfig wires the order service.
type ServiceConfig struct {
	Database       *gorm.DB
	Clock          func() time.Time
	Logger         *zap.Logger
	AdminListLimit int
	SearchLimit    int
}

// Service owns orders and their stages.
type Service struct {
	db             *gorm.DB
	clock          func() time.Time
	logger         *zap.Logger
	adminListLimit int
	searchLimit    int
}

// NewService constructs the order service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, failure.New(failure.KindTransientIO, opServiceNew, reasonMissingDatabase, "", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	listLimit := cfg.AdminListLimit
	if listLimit <= 0 {
		listLimit = defaultListLimit
	}
	searchLimit := cfg.SearchLimit
	if searchLimit <= 0 {
		searchLimit = defaultHitLimit
	}

	return &Service{
		db:             cfg.Database,
		clock:          clock,
		logger:         logger,
		adminListLimit: listLimit,
		searchLimit:    searchLimit,
	}, nil
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) ready(operation string) error {
	if s.db == nil {
		s.logError(operation, reasonMissingDatabase, errMissingDatabase)
		return failure.New(failure.KindTransientIO, operation, reasonMissingDatabase, "", errMissingDatabase)
	}
	return nil
}

func forbidden(operation string) error {
	return failure.New(failure.KindForbidden, operation, reasonForbidden, "access denied", nil)
}

func notFound(operation string) error {
	return failure.New(failure.KindNotFound, operation, reasonNotFound, "order not found", nil)
}

func duplicateCode(operation string) error {
	return failure.New(failure.KindDuplicateCode, operation, reasonDuplicateCode, "order code already exists", nil)
}

func invalidInput(operation, message string) error {
	return failure.New(failure.KindInvalidInput, operation, reasonInvalidInput, message, nil)
}

func (s *Service) storeFailure(operation, reason string, err error, fields ...zap.Field) error {
	s.logError(operation, reason, err, fields...)
	return failure.New(failure.KindTransientIO, operation, reason, "storage unavailable", err)
}

// likePattern builds a substring LIKE pattern with the wildcards in needle escaped.
func likePattern(needle string) string {
	escaper := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + escaper.Replace(needle) + "%"
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("orders service error", attrs...)
}

func isNotFound(err error) bool {
	return failure.Is(err, failure.KindNotFound)
}
