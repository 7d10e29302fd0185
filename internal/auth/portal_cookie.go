package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultPortalTTL         = 24 * time.Hour
	defaultPortalRememberTTL = 30 * 24 * time.Hour
	portalTokenIssuer        = "stagetrack-portal"
)

var (
	ErrMissingPortalSigningKey = errors.New("portal cookie: signing key required")
	ErrMissingPortalCookieName = errors.New("portal cookie: cookie name required")
	ErrMissingPortalToken      = errors.New("portal cookie: token required")
	ErrInvalidPortalToken      = errors.New("portal cookie: invalid token")
	ErrExpiredPortalToken      = errors.New("portal cookie: token expired")
	ErrMissingPortalUser       = errors.New("portal cookie: user id required")
)

// PortalCookieConfig configures the signed portal cookie.
type PortalCookieConfig struct {
	SigningSecret []byte
	CookieName    string
	TTL           time.Duration
	RememberTTL   time.Duration
	Secure        bool
	Path          string
	Clock         func() time.Time
}

// PortalCookie issues and verifies HS256 tokens binding a user id to an absolute expiry.
type PortalCookie struct {
	signingSecret []byte
	cookieName    string
	ttl           time.Duration
	rememberTTL   time.Duration
	secure        bool
	path          string
	clock         func() time.Time
}

// NewPortalCookie constructs a PortalCookie with the provided configuration.
func NewPortalCookie(cfg PortalCookieConfig) (*PortalCookie, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingPortalSigningKey
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		return nil, ErrMissingPortalCookieName
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultPortalTTL
	}
	rememberTTL := cfg.RememberTTL
	if rememberTTL <= 0 {
		rememberTTL = defaultPortalRememberTTL
	}
	path := cfg.Path
	if path == "" {
		path = "/"
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &PortalCookie{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		cookieName:    cookieName,
		ttl:           ttl,
		rememberTTL:   rememberTTL,
		secure:        cfg.Secure,
		path:          path,
		clock:         clock,
	}, nil
}

// CookieName returns the cookie name used for portal sessions.
func (p *PortalCookie) CookieName() string {
	return p.cookieName
}

// Issue signs a token for userID and returns it with its absolute expiry.
func (p *PortalCookie) Issue(userID uint, remember bool) (string, time.Time, error) {
	if userID == 0 {
		return "", time.Time{}, ErrMissingPortalUser
	}
	now := p.clock().UTC()
	ttl := p.ttl
	if remember {
		ttl = p.rememberTTL
	}
	expiresAt := now.Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		Issuer:    portalTokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	signed, err := token.SignedString(p.signingSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks the MAC and expiry of tokenString and returns the bound user id.
func (p *PortalCookie) Verify(tokenString string) (uint, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return 0, ErrMissingPortalToken
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			return p.signingSecret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(portalTokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.clock),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrExpiredPortalToken
		}
		return 0, fmt.Errorf("%w: %v", ErrInvalidPortalToken, err)
	}
	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || userID == 0 {
		return 0, ErrMissingPortalUser
	}
	return uint(userID), nil
}

// Cookie wraps a signed token into an HttpOnly cookie expiring with the token.
func (p *PortalCookie) Cookie(token string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     p.cookieName,
		Value:    token,
		Path:     p.path,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearCookie returns a cookie that removes the portal session from the browser.
func (p *PortalCookie) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     p.cookieName,
		Value:    "",
		Path:     p.path,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
