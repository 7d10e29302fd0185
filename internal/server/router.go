package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/stagetrack/internal/auth"
	"github.com/MarcoPoloResearchLab/stagetrack/internal/comments"
	"github.com/MarcoPoloResearchLab/stagetrack/internal/failure"
	"github.com/MarcoPoloResearchLab/stagetrack/internal/orders"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const identityContextKey = "stagetrack_identity"

var (
	errMissingGate     = errors.New("identity gate dependency required")
	errMissingOrders   = errors.New("orders service dependency required")
	errMissingComments = errors.New("comments service dependency required")
)

// IdentityGate resolves callers and runs the portal login flow.
type IdentityGate interface {
	Resolve(ctx context.Context, r *http.Request) auth.Resolution
	Login(ctx context.Context, loginOrEmail, password string, remember bool) (auth.LoginResult, error)
	Logout() []*http.Cookie
}

// OrderService is the order and stage surface used by the handlers.
type OrderService interface {
	Create(ctx context.Context, caller auth.Identity, fields orders.OrderFields) (orders.Order, error)
	Update(ctx context.Context, caller auth.Identity, id uint, fields orders.OrderFields) (orders.Order, error)
	Delete(ctx context.Context, caller auth.Identity, id uint) error
	Get(ctx context.Context, caller auth.Identity, id uint) (orders.OrderDetail, error)
	ListForAdmin(ctx context.Context, caller auth.Identity) ([]orders.Order, error)
	ListForClient(ctx context.Context, caller auth.Identity) ([]orders.Order, error)
	ApplyBulk(ctx context.Context, caller auth.Identity, changes orders.StageChanges) (orders.BulkResult, error)
	ApplyBulkForOrder(ctx context.Context, caller auth.Identity, orderID uint, changes orders.StageChanges) (orders.BulkResult, error)
	Search(ctx context.Context, caller auth.Identity, query string) ([]orders.SearchResult, error)
}

// CommentService is the comment log surface used by the handlers.
type CommentService interface {
	Append(ctx context.Context, caller auth.Identity, orderID uint, text, fallbackName string) (comments.RenderedLog, error)
	Get(ctx context.Context, caller auth.Identity, orderID uint) (comments.RenderedLog, error)
	DeleteAt(ctx context.Context, caller auth.Identity, orderID uint, index int) (comments.RenderedLog, error)
	DeleteByID(ctx context.Context, caller auth.Identity, orderID uint, commentID uuid.UUID) (comments.RenderedLog, error)
}

// Dependencies lists the collaborators required by the HTTP handler.
type Dependencies struct {
	Gate           IdentityGate
	Orders         OrderService
	Comments       CommentService
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewHTTPHandler builds the gin router serving the portal API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Gate == nil {
		return nil, errMissingGate
	}
	if deps.Orders == nil {
		return nil, errMissingOrders
	}
	if deps.Comments == nil {
		return nil, errMissingComments
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if len(deps.AllowedOrigins) > 0 {
		router.Use(corsMiddleware(deps.AllowedOrigins))
	}

	handler := &httpHandler{
		gate:     deps.Gate,
		orders:   deps.Orders,
		comments: deps.Comments,
		logger:   logger,
	}

	api := router.Group("/api")
	api.Use(handler.resolveIdentity)

	api.POST("/login", handler.handleLogin)
	api.POST("/logout", handler.handleLogout)
	api.GET("/session", handler.handleSession)

	api.GET("/admin/orders", handler.handleListAdminOrders)
	api.GET("/client/orders", handler.handleListClientOrders)
	api.POST("/orders", handler.handleCreateOrder)
	api.GET("/orders/:id", handler.handleGetOrder)
	api.PUT("/orders/:id", handler.handleUpdateOrder)
	api.DELETE("/orders/:id", handler.handleDeleteOrder)
	api.POST("/stages/bulk", handler.handleBulkStages)
	api.GET("/search", handler.handleSearch)

	api.GET("/orders/:id/comments", handler.handleGetComments)
	api.POST("/orders/:id/comments", handler.handleAddComment)
	api.DELETE("/orders/:id/comments", handler.handleDeleteCommentAt)
	api.DELETE("/orders/:id/comments/:commentID", handler.handleDeleteCommentByID)

	return router, nil
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

type httpHandler struct {
	gate     IdentityGate
	orders   OrderService
	comments CommentService
	logger   *zap.Logger
}

// resolveIdentity attaches the caller identity and clears cookies that failed verification.
func (h *httpHandler) resolveIdentity(c *gin.Context) {
	resolution := h.gate.Resolve(c.Request.Context(), c.Request)
	for _, cookie := range resolution.ClearCookies {
		http.SetCookie(c.Writer, cookie)
	}
	c.Set(identityContextKey, resolution.Identity)
	c.Next()
}

func identityFrom(c *gin.Context) auth.Identity {
	value, ok := c.Get(identityContextKey)
	if !ok {
		return auth.Anonymous()
	}
	identity, ok := value.(auth.Identity)
	if !ok {
		return auth.Anonymous()
	}
	return identity
}

func respondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func respondError(c *gin.Context, status int, kind, code, message string) {
	c.JSON(status, gin.H{"success": false, "error": kind, "code": code, "message": message})
}

func (h *httpHandler) respondFailure(c *gin.Context, err error) {
	var typed *failure.Error
	if !errors.As(err, &typed) {
		h.logger.Error("unclassified handler error", zap.String("path", c.FullPath()), zap.Error(err))
		respondError(c, http.StatusInternalServerError, string(failure.KindUnknown), "server.unknown", "internal error")
		return
	}
	status := statusForKind(typed.Kind())
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.String("code", typed.Code()), zap.Error(err))
	}
	respondError(c, status, string(typed.Kind()), typed.Code(), typed.Message())
}

func statusForKind(kind failure.Kind) int {
	switch kind {
	case failure.KindDuplicateCode:
		return http.StatusConflict
	case failure.KindNotFound:
		return http.StatusNotFound
	case failure.KindForbidden:
		return http.StatusForbidden
	case failure.KindInvalidInput:
		return http.StatusBadRequest
	case failure.KindTransientIO:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *httpHandler) invalidRequest(c *gin.Context, code, message string) {
	respondError(c, http.StatusBadRequest, string(failure.KindInvalidInput), code, message)
}
