package auth

import "github.com/MarcoPoloResearchLab/stagetrack/internal/users"

// Role is the binary portal role.
type Role string

const (
	RoleAnonymous Role = "anonymous"
	RoleClient    Role = "client"
	RoleAdmin     Role = "admin"
)

// Identity is the resolved caller threaded explicitly into every portal operation.
type Identity struct {
	UserID  uint
	Email   string
	Name    string
	IsAdmin bool
}

// Anonymous returns the identity of an unauthenticated caller.
func Anonymous() Identity {
	return Identity{}
}

// IdentityFromAccount derives an identity from a host account. The admin flag comes only
// from the account's capabilities.
func IdentityFromAccount(account users.Account) Identity {
	return Identity{
		UserID:  account.ID,
		Email:   account.Email,
		Name:    account.Label(),
		IsAdmin: account.IsAdmin(),
	}
}

// Authenticated reports whether the identity resolved to an account.
func (i Identity) Authenticated() bool {
	return i.UserID != 0
}

// Role reports the caller's role.
func (i Identity) Role() Role {
	switch {
	case !i.Authenticated():
		return RoleAnonymous
	case i.IsAdmin:
		return RoleAdmin
	default:
		return RoleClient
	}
}

// RedirectTarget is the dashboard path a signed-in caller lands on.
func (i Identity) RedirectTarget() string {
	if i.Role() == RoleAdmin {
		return "/admin/"
	}
	return "/client/"
}
