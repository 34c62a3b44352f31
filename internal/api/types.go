package api

import (
	"fmt"

	"sharedledger.org/internal/identity"
)

const (
	PathIdentity = "/api/auth/user"
	PathLogin    = "/api/auth/login"
	PathLogout   = "/api/auth/logout"
	PathRegister = "/api/users/register"
	PathProfile  = "/api/users/profile"
	PathGroups   = "/api/groups"
)

func groupPath(id int64) string         { return fmt.Sprintf("/api/groups/%d", id) }
func groupExpensesPath(id int64) string { return fmt.Sprintf("/api/expenses/group/%d", id) }
func balancesPath(id int64) string      { return fmt.Sprintf("/api/groups/%d/balances", id) }
func sharePath(id int64) string         { return fmt.Sprintf("/api/groups/%d/share", id) }

// User is the wire form of an account.
type User struct {
	ID          int64          `json:"id"`
	DisplayName string         `json:"displayName"`
	Email       string         `json:"email"`
	Role        string         `json:"role,omitempty"`
	Profile     map[string]any `json:"profile,omitempty"`
}

// Identity converts the wire user into an authenticated principal.
func (u User) Identity() identity.Identity {
	return identity.Identity{
		Authenticated: true,
		ID:            u.ID,
		DisplayName:   u.DisplayName,
		Email:         u.Email,
		Role:          u.Role,
		Profile:       u.Profile,
	}
}

// IdentityResponse is the body of GET /api/auth/user.
type IdentityResponse struct {
	Authenticated bool  `json:"authenticated"`
	User          *User `json:"user,omitempty"`
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Registration struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

// ProfileUpdate carries only the fields being changed.
type ProfileUpdate struct {
	DisplayName *string        `json:"displayName,omitempty"`
	Email       *string        `json:"email,omitempty"`
	Profile     map[string]any `json:"profile,omitempty"`
}

// NewGroup is the body of POST /api/groups.
type NewGroup struct {
	Name     string  `json:"name"`
	IsPublic bool    `json:"isPublic"`
	Currency string  `json:"currency"`
	Members  []int64 `json:"members,omitempty"`
}

type userEnvelope struct {
	User User `json:"user"`
}
