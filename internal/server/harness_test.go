package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/stagetrack/internal/auth"
	"github.com/MarcoPoloResearchLab/stagetrack/internal/comments"
	"github.com/MarcoPoloResearchLab/stagetrack/internal/database"
	"github.com/MarcoPoloResearchLab/stagetrack/internal/orders"
	"github.com/MarcoPoloResearchLab/stagetrack/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	testPassword   = "correct horse"
	testCookieName = "portal_auth"
)

type testPortal struct {
	handler http.Handler
	orders  *orders.Service
	cookie  *auth.PortalCookie
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
}

func newTestPortal(t *testing.T, logger *zap.Logger) *testPortal {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "portal.db"), logger)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	accounts, err := users.NewService(users.ServiceConfig{Database: db, Logger: logger, HashCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("failed to build account service: %v", err)
	}
	for _, params := range []users.CreateParams{
		{Login: "boss", Email: "boss@example.com", DisplayName: "The Boss", Password: testPassword, Capabilities: []string{users.CapabilityManageOptions}},
		{Login: "alice", Email: "a@x.com", Password: testPassword},
		{Login: "abby", Email: "ab@x.com", Password: testPassword},
	} {
		if _, err := accounts.Create(t.Context(), params); err != nil {
			t.Fatalf("failed to create account %s: %v", params.Login, err)
		}
	}

	portalCookie, err := auth.NewPortalCookie(auth.PortalCookieConfig{SigningSecret: []byte("server-test-secret"), CookieName: testCookieName})
	if err != nil {
		t.Fatalf("failed to build portal cookie: %v", err)
	}
	gate, err := auth.NewGate(auth.GateConfig{Accounts: accounts, PortalCookie: portalCookie, Logger: logger})
	if err != nil {
		t.Fatalf("failed to build gate: %v", err)
	}
	orderService, err := orders.NewService(orders.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		t.Fatalf("failed to build order service: %v", err)
	}
	store, err := comments.NewOptionStore(db)
	if err != nil {
		t.Fatalf("failed to build comment store: %v", err)
	}
	commentService, err := comments.NewService(comments.ServiceConfig{Store: store, Orders: orderService, Accounts: accounts, Logger: logger})
	if err != nil {
		t.Fatalf("failed to build comment service: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Gate:     gate,
		Orders:   orderService,
		Comments: commentService,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return &testPortal{handler: handler, orders: orderService, cookie: portalCookie}
}

func (p *testPortal) do(t *testing.T, method, path string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	for _, cookie := range cookies {
		request.AddCookie(cookie)
	}
	recorder := httptest.NewRecorder()
	p.handler.ServeHTTP(recorder, request)
	return recorder
}

func (p *testPortal) login(t *testing.T, login string) *http.Cookie {
	t.Helper()
	recorder := p.do(t, http.MethodPost, "/api/login", loginRequestPayload{Login: login, Password: testPassword})
	if recorder.Code != http.StatusOK {
		t.Fatalf("login %s failed: %d %s", login, recorder.Code, recorder.Body.String())
	}
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == testCookieName {
			return cookie
		}
	}
	t.Fatalf("login %s did not set the portal cookie", login)
	return nil
}

func decodeEnvelope(t *testing.T, recorder *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var decoded envelope
	if err := json.Unmarshal(recorder.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	if data != nil && decoded.Success {
		if err := json.Unmarshal(decoded.Data, data); err != nil {
			t.Fatalf("failed to decode data %q: %v", string(decoded.Data), err)
		}
	}
	return decoded
}
