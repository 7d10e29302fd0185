package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/stagetrack/internal/auth"
	"github.com/MarcoPoloResearchLab/stagetrack/internal/failure"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubGate struct {
	resolution auth.Resolution
}

func (s stubGate) Resolve(context.Context, *http.Request) auth.Resolution {
	return s.resolution
}

func (s stubGate) Login(context.Context, string, string, bool) (auth.LoginResult, error) {
	return auth.LoginResult{}, auth.ErrInvalidCredentials
}

func (s stubGate) Logout() []*http.Cookie {
	return nil
}

func TestCORSMiddlewareAllowsConfiguredOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(corsMiddleware([]string{"https://portal.example.com"}))
	router.OPTIONS("/api/orders", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	request := httptest.NewRequest(http.MethodOptions, "/api/orders", http.NoBody)
	request.Header.Set("Origin", "https://portal.example.com")
	request.Header.Set("Access-Control-Request-Method", http.MethodPut)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, recorder.Code)
	}
	if !strings.Contains(recorder.Header().Get("Access-Control-Allow-Methods"), http.MethodPut) {
		t.Fatalf("expected PUT to be allowed, got %q", recorder.Header().Get("Access-Control-Allow-Methods"))
	}
	if recorder.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("expected credentials to be enabled")
	}
}

func TestCORSMiddlewareRejectsUnknownOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(corsMiddleware([]string{"https://portal.example.com"}))
	router.OPTIONS("/api/orders", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	request := httptest.NewRequest(http.MethodOptions, "/api/orders", http.NoBody)
	request.Header.Set("Origin", "https://evil.example.com")
	request.Header.Set("Access-Control-Request-Method", http.MethodPut)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, recorder.Code)
	}
	if origin := recorder.Header().Get("Access-Control-Allow-Origin"); origin != "" {
		t.Fatalf("expected no allowed origin header, got %q", origin)
	}
}

func TestResolveIdentityWritesClearCookies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/api/session", http.NoBody)

	expired := &http.Cookie{Name: "portal_auth", Value: "", Path: "/", MaxAge: -1}
	handler := &httpHandler{
		gate:   stubGate{resolution: auth.Resolution{Identity: auth.Anonymous(), ClearCookies: []*http.Cookie{expired}}},
		logger: zap.NewNop(),
	}

	handler.resolveIdentity(ctx)

	if !strings.Contains(recorder.Header().Get("Set-Cookie"), "portal_auth=") {
		t.Fatalf("expected clearing cookie, got %q", recorder.Header().Get("Set-Cookie"))
	}
	if identityFrom(ctx).Authenticated() {
		t.Fatalf("expected anonymous identity")
	}
}

func TestStatusForKind(t *testing.T) {
	testCases := map[failure.Kind]int{
		failure.KindDuplicateCode: http.StatusConflict,
		failure.KindNotFound:      http.StatusNotFound,
		failure.KindForbidden:     http.StatusForbidden,
		failure.KindInvalidInput:  http.StatusBadRequest,
		failure.KindTransientIO:   http.StatusServiceUnavailable,
		failure.KindUnknown:       http.StatusInternalServerError,
	}
	for kind, want := range testCases {
		assert.Equal(t, want, statusForKind(kind), string(kind))
	}
}

func TestRespondFailureLogsServerErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{logger: zap.New(core)}

	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	handler.respondFailure(ctx, failure.New(failure.KindTransientIO, "orders.get", "query_failed", "storage unavailable", errors.New("disk gone")))
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"code":"orders.get.query_failed"`)

	recorder = httptest.NewRecorder()
	ctx, _ = gin.CreateTestContext(recorder)
	handler.respondFailure(ctx, failure.New(failure.KindForbidden, "orders.get", "forbidden", "access denied", nil))
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	recorder = httptest.NewRecorder()
	ctx, _ = gin.CreateTestContext(recorder)
	handler.respondFailure(ctx, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, recorder.Code)

	assert.Equal(t, 1, logs.FilterMessage("request failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("unclassified handler error").Len())
}

func TestNewHTTPHandlerRequiresDependencies(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); !errors.Is(err, errMissingGate) {
		t.Fatalf("expected missing gate error, got %v", err)
	}
	if _, err := NewHTTPHandler(Dependencies{Gate: stubGate{}}); !errors.Is(err, errMissingOrders) {
		t.Fatalf("expected missing orders error, got %v", err)
	}
}
