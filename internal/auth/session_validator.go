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

var (
	ErrMissingHostSigningKey = errors.New("host session: signing key required")
	ErrMissingHostIssuer     = errors.New("host session: issuer required")
	ErrMissingHostCookieName = errors.New("host session: cookie name required")
	ErrMissingHostToken      = errors.New("host session: token required")
	ErrInvalidHostToken      = errors.New("host session: invalid token")
	ErrExpiredHostToken      = errors.New("host session: token expired")
	ErrMissingHostSubject    = errors.New("host session: user id required")
)

// HostSessionClaims mirrors the JWT payload emitted by the host application's login.
type HostSessionClaims struct {
	UserID    string `json:"user_id"`
	UserEmail string `json:"user_email"`
	jwt.RegisteredClaims
}

// AccountID parses the host user id as a portal account id.
func (c HostSessionClaims) AccountID() (uint, error) {
	raw := strings.TrimSpace(c.UserID)
	if raw == "" {
		raw = strings.TrimSpace(c.Subject)
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || value == 0 {
		return 0, ErrMissingHostSubject
	}
	return uint(value), nil
}

// HostSessionConfig describes how to validate host-issued JWTs.
type HostSessionConfig struct {
	SigningSecret []byte
	Issuer        string
	CookieName    string
	Clock         func() time.Time
}

// HostSessionValidator validates HS256 session cookies issued by the host application.
type HostSessionValidator struct {
	signingSecret []byte
	issuer        string
	cookieName    string
	clock         func() time.Time
}

// NewHostSessionValidator constructs a validator with the provided configuration.
func NewHostSessionValidator(cfg HostSessionConfig) (*HostSessionValidator, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingHostSigningKey
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, ErrMissingHostIssuer
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		return nil, ErrMissingHostCookieName
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &HostSessionValidator{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		cookieName:    cookieName,
		clock:         clock,
	}, nil
}

// CookieName returns the cookie name configured for host session lookups.
func (v *HostSessionValidator) CookieName() string {
	return v.cookieName
}

// ValidateToken validates the supplied JWT string and returns the parsed claims.
func (v *HostSessionValidator) ValidateToken(tokenString string) (HostSessionClaims, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return HostSessionClaims{}, ErrMissingHostToken
	}

	claims := &HostSessionClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(*jwt.Token) (interface{}, error) {
			return v.signingSecret, nil
		},
		jwt.WithTimeFunc(v.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return HostSessionClaims{}, ErrExpiredHostToken
		}
		return HostSessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidHostToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return HostSessionClaims{}, ErrInvalidHostToken
	}
	if claims.Issuer != v.issuer {
		return HostSessionClaims{}, ErrInvalidHostToken
	}
	if _, err := claims.AccountID(); err != nil {
		return HostSessionClaims{}, err
	}
	return *claims, nil
}

// ValidateRequest extracts the configured cookie from the request and validates it.
func (v *HostSessionValidator) ValidateRequest(r *http.Request) (HostSessionClaims, error) {
	if r == nil {
		return HostSessionClaims{}, ErrMissingHostToken
	}
	cookie, err := r.Cookie(v.cookieName)
	if err != nil || cookie == nil {
		return HostSessionClaims{}, ErrMissingHostToken
	}
	return v.ValidateToken(cookie.Value)
}

// ClearCookie returns a cookie that ends the host session in the browser.
func (v *HostSessionValidator) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     v.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
	}
}
