package http

import (
	"net/http"
	"strings"
)

// GuardConfig holds the path rules of Guard.
type GuardConfig struct {
	CookieName        string
	ProtectedPrefixes []string
	AuthPrefixes      []string
	LoginPath         string
	LandingPath       string
}

// DefaultGuardConfig protects /dashboard and keeps signed-in visitors away
// from /login and /signup.
func DefaultGuardConfig(cookieName string) GuardConfig {
	return GuardConfig{
		CookieName:        cookieName,
		ProtectedPrefixes: []string{"/dashboard"},
		AuthPrefixes:      []string{"/login", "/signup"},
		LoginPath:         "/login",
		LandingPath:       "/dashboard",
	}
}

// Redirect returns where a request for r must be sent instead, if anywhere.
// Only the presence of the session cookie is checked, never its validity.
func (c GuardConfig) Redirect(r *http.Request) (string, bool) {
	path := r.URL.Path
	hasCookie := c.hasSessionCookie(r)

	if !hasCookie && hasAnyPrefix(path, c.ProtectedPrefixes) {
		return c.LoginPath, true
	}
	if hasCookie && hasAnyPrefix(path, c.AuthPrefixes) {
		return c.LandingPath, true
	}
	return "", false
}

func (c GuardConfig) hasSessionCookie(r *http.Request) bool {
	cookie, err := r.Cookie(c.CookieName)
	return err == nil && cookie.Value != ""
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Guard redirects page navigations according to cfg with a 307. It is a
// routing convenience; Sessions.RequirePage and Sessions.RequireAPI do the
// actual verification.
func Guard(cfg GuardConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if target, ok := cfg.Redirect(r); ok {
				http.Redirect(w, r, target, http.StatusTemporaryRedirect)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
