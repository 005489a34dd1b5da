package domain

import (
	"strings"
	"time"
)

// User is the identity attached to a session.
type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Image         string `json:"image,omitempty"`
	EmailVerified bool   `json:"emailVerified"`
}

// Session is a signed-in session issued by the identity provider. Token is
// the value carried by the session cookie.
type Session struct {
	Token     string    `json:"-"`
	User      User      `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Credentials are the email sign-in and sign-up inputs.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// SessionState is the read-only view of authentication state.
// IsAuthenticated is true iff User is non-nil. While IsLoading is true
// neither value of IsAuthenticated may be relied upon.
type SessionState struct {
	User            *User  `json:"user"`
	IsLoading       bool   `json:"isLoading"`
	IsAuthenticated bool   `json:"isAuthenticated"`
	Error           string `json:"error,omitempty"`
}

// AuthenticatedState returns the state for a verified user.
func AuthenticatedState(u *User) SessionState {
	return SessionState{User: u, IsAuthenticated: u != nil}
}

// FirstName returns the first word of the user's display name, or fallback.
func (u *User) FirstName(fallback string) string {
	if u == nil {
		return fallback
	}
	if fields := strings.Fields(u.Name); len(fields) > 0 {
		return fields[0]
	}
	return fallback
}
