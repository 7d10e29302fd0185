package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/stagetrack/internal/users"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubAccounts struct {
	byID     map[uint]users.Account
	password string
}

func (s stubAccounts) FindByID(_ context.Context, id uint) (users.Account, error) {
	account, ok := s.byID[id]
	if !ok {
		return users.Account{}, users.ErrAccountNotFound
	}
	return account, nil
}

func (s stubAccounts) Authenticate(_ context.Context, loginOrEmail, password string) (users.Account, error) {
	for _, account := range s.byID {
		if (account.Login == loginOrEmail || account.Email == loginOrEmail) && password == s.password {
			return account, nil
		}
	}
	return users.Account{}, users.ErrInvalidCredentials
}

func newTestGate(t *testing.T, logger *zap.Logger, withHost bool) (*Gate, *PortalCookie) {
	t.Helper()
	portal := newTestPortalCookie(t, nil)
	var host *HostSessionValidator
	if withHost {
		host = newTestHostValidator(t, nil)
	}
	gate, err := NewGate(GateConfig{
		Accounts: stubAccounts{
			byID: map[uint]users.Account{
				1:  {ID: 1, Login: "boss", Email: "boss@example.com", Capabilities: []string{users.CapabilityManageOptions}},
				2:  {ID: 2, Login: "client", Email: "client@example.com"},
				17: {ID: 17, Login: "hosted", Email: "hosted@example.com", Capabilities: []string{users.CapabilityManageStore}},
			},
			password: "pw",
		},
		PortalCookie: portal,
		HostSessions: host,
		Logger:       logger,
	})
	if err != nil {
		t.Fatalf("failed to construct gate: %v", err)
	}
	return gate, portal
}

func TestGateResolvesPortalCookie(t *testing.T) {
	gate, portal := newTestGate(t, zap.NewNop(), false)
	token, expiresAt, err := portal.Issue(2, false)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	request := httptest.NewRequest(http.MethodGet, "/api/session", http.NoBody)
	request.AddCookie(portal.Cookie(token, expiresAt))

	resolution := gate.Resolve(context.Background(), request)

	if resolution.Identity.UserID != 2 || resolution.Identity.Role() != RoleClient {
		t.Fatalf("unexpected identity %#v", resolution.Identity)
	}
	if len(resolution.ClearCookies) != 0 {
		t.Fatalf("valid cookie must not be cleared")
	}
}

func TestGateTreatsTamperedCookieAsAnonymousAndClearsIt(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	gate, portal := newTestGate(t, zap.New(core), false)
	token, _, err := portal.Issue(1, false)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	request := httptest.NewRequest(http.MethodGet, "/api/session", http.NoBody)
	request.AddCookie(&http.Cookie{Name: portal.CookieName(), Value: tamperSignature(token)})

	resolution := gate.Resolve(context.Background(), request)

	if resolution.Identity.Authenticated() {
		t.Fatalf("tampered cookie must resolve to anonymous")
	}
	if len(resolution.ClearCookies) != 1 || resolution.ClearCookies[0].MaxAge >= 0 {
		t.Fatalf("expected portal cookie to be cleared, got %#v", resolution.ClearCookies)
	}
	entries := logs.FilterMessage("portal cookie rejected").All()
	if len(entries) != 1 || entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected one warn entry, got %v", logs.All())
	}
}

func TestGateTreatsExpiredCookieAsAnonymousAndClearsIt(t *testing.T) {
	gate, _ := newTestGate(t, zap.NewNop(), false)
	issuedAt := time.Now().Add(-48 * time.Hour)
	stale, err := NewPortalCookie(PortalCookieConfig{
		SigningSecret: []byte(testPortalSecret),
		CookieName:    "portal_auth",
		Clock:         func() time.Time { return issuedAt },
	})
	if err != nil {
		t.Fatalf("failed to construct stale portal cookie: %v", err)
	}
	token, expiresAt, err := stale.Issue(1, false)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	request := httptest.NewRequest(http.MethodGet, "/api/session", http.NoBody)
	request.AddCookie(stale.Cookie(token, expiresAt))

	resolution := gate.Resolve(context.Background(), request)

	if resolution.Identity.Authenticated() {
		t.Fatalf("expired cookie must resolve to anonymous")
	}
	if len(resolution.ClearCookies) != 1 {
		t.Fatalf("expected expired cookie to be cleared")
	}
}

func TestGatePrefersHostSession(t *testing.T) {
	gate, portal := newTestGate(t, zap.NewNop(), true)
	token, expiresAt, err := portal.Issue(2, false)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	hostToken := mintHostToken(t, testHostIssuer, "17", time.Now().Add(-time.Minute), time.Now().Add(time.Hour))

	request := httptest.NewRequest(http.MethodGet, "/api/session", http.NoBody)
	request.AddCookie(portal.Cookie(token, expiresAt))
	request.AddCookie(&http.Cookie{Name: testHostCookieName, Value: hostToken})

	resolution := gate.Resolve(context.Background(), request)

	if resolution.Identity.UserID != 17 || !resolution.Identity.IsAdmin {
		t.Fatalf("expected host session admin, got %#v", resolution.Identity)
	}
}

func TestGateAnonymousWithoutCookies(t *testing.T) {
	gate, _ := newTestGate(t, zap.NewNop(), true)
	request := httptest.NewRequest(http.MethodGet, "/api/session", http.NoBody)

	resolution := gate.Resolve(context.Background(), request)

	if resolution.Identity.Role() != RoleAnonymous {
		t.Fatalf("expected anonymous, got %s", resolution.Identity.Role())
	}
	if len(resolution.ClearCookies) != 0 {
		t.Fatalf("nothing to clear without cookies")
	}
}

func TestGateLoginIssuesCookieAndRedirect(t *testing.T) {
	gate, portal := newTestGate(t, zap.NewNop(), false)

	result, err := gate.Login(context.Background(), "boss", "pw", true)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if result.Identity.RedirectTarget() != "/admin/" {
		t.Fatalf("expected admin redirect, got %s", result.Identity.RedirectTarget())
	}
	if result.Cookie.Name != portal.CookieName() || !result.Cookie.HttpOnly {
		t.Fatalf("unexpected cookie %#v", result.Cookie)
	}
	if userID, err := portal.Verify(result.Cookie.Value); err != nil || userID != 1 {
		t.Fatalf("issued cookie did not verify: %d %v", userID, err)
	}

	client, err := gate.Login(context.Background(), "client@example.com", "pw", false)
	if err != nil {
		t.Fatalf("client login failed: %v", err)
	}
	if client.Identity.RedirectTarget() != "/client/" {
		t.Fatalf("expected client redirect, got %s", client.Identity.RedirectTarget())
	}
}

func TestGateLoginFailureIsGeneric(t *testing.T) {
	gate, _ := newTestGate(t, zap.NewNop(), false)

	if _, err := gate.Login(context.Background(), "boss", "wrong", false); err != ErrInvalidCredentials {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := gate.Login(context.Background(), "nobody", "pw", false); err != ErrInvalidCredentials {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestGateLogoutClearsBothSessions(t *testing.T) {
	gate, _ := newTestGate(t, zap.NewNop(), true)

	cookies := gate.Logout()

	if len(cookies) != 2 {
		t.Fatalf("expected portal and host cookies to be cleared, got %d", len(cookies))
	}
	for _, cookie := range cookies {
		if cookie.MaxAge >= 0 {
			t.Fatalf("cookie %s not expired", cookie.Name)
		}
	}
}
