package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/stagetrack/internal/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Login) == "" || request.Password == "" {
		h.invalidRequest(c, "login.invalid_request", "login and password are required")
		return
	}

	result, err := h.gate.Login(c.Request.Context(), request.Login, request.Password, request.Remember)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			respondError(c, http.StatusUnauthorized, "invalid_credentials", "login.invalid_credentials", "invalid username or password")
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "unknown", "login.failed", "login failed")
		return
	}

	http.SetCookie(c.Writer, result.Cookie)
	respondSuccess(c, http.StatusOK, newSessionPayload(result.Identity))
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	for _, cookie := range h.gate.Logout() {
		http.SetCookie(c.Writer, cookie)
	}
	respondSuccess(c, http.StatusOK, newSessionPayload(auth.Anonymous()))
}

func (h *httpHandler) handleSession(c *gin.Context) {
	respondSuccess(c, http.StatusOK, newSessionPayload(identityFrom(c)))
}
