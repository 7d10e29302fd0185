package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	portal := newTestPortal(t, nil)

	wrongPassword := portal.do(t, http.MethodPost, "/api/login", loginRequestPayload{Login: "alice", Password: "nope"})
	unknownUser := portal.do(t, http.MethodPost, "/api/login", loginRequestPayload{Login: "nobody", Password: "nope"})

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownUser.Code)
	assert.Equal(t, wrongPassword.Body.String(), unknownUser.Body.String())
	assert.Empty(t, wrongPassword.Result().Cookies())
}

func TestLoginRejectsIncompleteRequest(t *testing.T) {
	portal := newTestPortal(t, nil)

	recorder := portal.do(t, http.MethodPost, "/api/login", loginRequestPayload{Login: "alice"})

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	decoded := decodeEnvelope(t, recorder, nil)
	assert.Equal(t, "invalid_input", decoded.Error)
}

func TestLoginSessionAndLogout(t *testing.T) {
	portal := newTestPortal(t, nil)

	adminCookie := portal.login(t, "boss@example.com")
	assert.True(t, adminCookie.HttpOnly)

	var session sessionPayload
	recorder := portal.do(t, http.MethodGet, "/api/session", nil, adminCookie)
	require.Equal(t, http.StatusOK, recorder.Code)
	decodeEnvelope(t, recorder, &session)
	assert.True(t, session.Authenticated)
	assert.Equal(t, "admin", session.Role)
	assert.Equal(t, "/admin/", session.Redirect)

	clientCookie := portal.login(t, "alice")
	recorder = portal.do(t, http.MethodGet, "/api/session", nil, clientCookie)
	decodeEnvelope(t, recorder, &session)
	assert.Equal(t, "client", session.Role)
	assert.Equal(t, "/client/", session.Redirect)

	recorder = portal.do(t, http.MethodPost, "/api/logout", nil, clientCookie)
	require.Equal(t, http.StatusOK, recorder.Code)
	cleared := recorder.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, testCookieName, cleared[0].Name)
	assert.Less(t, cleared[0].MaxAge, 0)
}

func TestTamperedCookieResolvesAnonymousAndIsCleared(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	portal := newTestPortal(t, zap.New(core))
	cookie := portal.login(t, "alice")
	tampered := *cookie
	tampered.Value = cookie.Value + "x"

	recorder := portal.do(t, http.MethodGet, "/api/session", nil, &tampered)

	require.Equal(t, http.StatusOK, recorder.Code)
	var session sessionPayload
	decodeEnvelope(t, recorder, &session)
	assert.False(t, session.Authenticated)
	assert.Equal(t, "anonymous", session.Role)
	cleared := recorder.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Less(t, cleared[0].MaxAge, 0)
	assert.Equal(t, 1, logs.FilterMessage("portal cookie rejected").Len())

	recorder = portal.do(t, http.MethodGet, "/api/client/orders", nil, &tampered)
	assert.Equal(t, http.StatusForbidden, recorder.Code)
}
