package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/stagetrack/internal/users"
	"go.uber.org/zap"
)

var (
	// ErrInvalidCredentials is the only error surfaced by a failed login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	errMissingAccounts    = errors.New("auth gate: account directory required")
	errMissingPortal      = errors.New("auth gate: portal cookie required")
)

// AccountDirectory is the host account capability consumed by the gate.
type AccountDirectory interface {
	FindByID(ctx context.Context, id uint) (users.Account, error)
	Authenticate(ctx context.Context, loginOrEmail, password string) (users.Account, error)
}

// GateConfig wires the gate's collaborators. HostSessions is optional.
type GateConfig struct {
	Accounts     AccountDirectory
	PortalCookie *PortalCookie
	HostSessions *HostSessionValidator
	Logger       *zap.Logger
}

// Gate resolves request identities from the host session or the portal cookie.
type Gate struct {
	accounts AccountDirectory
	portal   *PortalCookie
	host     *HostSessionValidator
	logger   *zap.Logger
}

// NewGate constructs a Gate.
func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.Accounts == nil {
		return nil, errMissingAccounts
	}
	if cfg.PortalCookie == nil {
		return nil, errMissingPortal
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		accounts: cfg.Accounts,
		portal:   cfg.PortalCookie,
		host:     cfg.HostSessions,
		logger:   logger,
	}, nil
}

// Resolution is the outcome of resolving a request.
type Resolution struct {
	Identity Identity
	// ClearCookies lists cookies the caller must write back because they failed verification.
	ClearCookies []*http.Cookie
}

// Resolve returns the caller identity. Verification failures resolve to Anonymous.
func (g *Gate) Resolve(ctx context.Context, r *http.Request) Resolution {
	if identity, ok := g.resolveHost(ctx, r); ok {
		return Resolution{Identity: identity}
	}

	cookie, err := r.Cookie(g.portal.CookieName())
	if err != nil || cookie == nil || cookie.Value == "" {
		return Resolution{Identity: Anonymous()}
	}

	userID, err := g.portal.Verify(cookie.Value)
	if err != nil {
		if errors.Is(err, ErrExpiredPortalToken) {
			g.logger.Info("portal cookie expired")
		} else {
			g.logger.Warn("portal cookie rejected", zap.Error(err))
		}
		return Resolution{Identity: Anonymous(), ClearCookies: []*http.Cookie{g.portal.ClearCookie()}}
	}

	account, err := g.accounts.FindByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, users.ErrAccountNotFound) {
			g.logger.Error("portal account lookup failed", zap.Uint("user_id", userID), zap.Error(err))
			return Resolution{Identity: Anonymous()}
		}
		return Resolution{Identity: Anonymous(), ClearCookies: []*http.Cookie{g.portal.ClearCookie()}}
	}
	return Resolution{Identity: IdentityFromAccount(account)}
}

func (g *Gate) resolveHost(ctx context.Context, r *http.Request) (Identity, bool) {
	if g.host == nil {
		return Identity{}, false
	}
	claims, err := g.host.ValidateRequest(r)
	if err != nil {
		if !errors.Is(err, ErrMissingHostToken) {
			g.logger.Info("host session ignored", zap.Error(err))
		}
		return Identity{}, false
	}
	accountID, err := claims.AccountID()
	if err != nil {
		return Identity{}, false
	}
	account, err := g.accounts.FindByID(ctx, accountID)
	if err != nil {
		g.logger.Info("host session account unresolved", zap.Uint("user_id", accountID), zap.Error(err))
		return Identity{}, false
	}
	return IdentityFromAccount(account), true
}

// LoginResult carries the signed-in identity and the portal cookie to set.
type LoginResult struct {
	Identity Identity
	Cookie   *http.Cookie
}

// Login verifies credentials and issues a portal cookie.
func (g *Gate) Login(ctx context.Context, loginOrEmail, password string, remember bool) (LoginResult, error) {
	account, err := g.accounts.Authenticate(ctx, loginOrEmail, password)
	if err != nil {
		if !errors.Is(err, users.ErrInvalidCredentials) {
			g.logger.Error("login lookup failed", zap.Error(err))
		}
		return LoginResult{}, ErrInvalidCredentials
	}
	token, expiresAt, err := g.portal.Issue(account.ID, remember)
	if err != nil {
		g.logger.Error("portal cookie issue failed", zap.Uint("user_id", account.ID), zap.Error(err))
		return LoginResult{}, err
	}
	return LoginResult{
		Identity: IdentityFromAccount(account),
		Cookie:   g.portal.Cookie(token, expiresAt),
	}, nil
}

// Logout returns the cookies that end both the host session and the portal session.
func (g *Gate) Logout() []*http.Cookie {
	cookies := []*http.Cookie{g.portal.ClearCookie()}
	if g.host != nil {
		cookies = append(cookies, g.host.ClearCookie())
	}
	return cookies
}
