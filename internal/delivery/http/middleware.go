package http

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"crypto-dashboard/internal/domain"
	"crypto-dashboard/internal/usecase"
)

type contextKey int

const userKey contextKey = iota

// UserFromContext returns the user RequirePage or RequireAPI attached to ctx.
func UserFromContext(ctx context.Context) (*domain.User, bool) {
	u, ok := ctx.Value(userKey).(*domain.User)
	return u, ok && u != nil
}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u *domain.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// SessionCookie describes the cookie that carries the session token.
type SessionCookie struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

// Token returns the session token of r, or "".
func (c SessionCookie) Token(r *http.Request) string {
	cookie, err := r.Cookie(c.Name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (c SessionCookie) set(w http.ResponseWriter, s *domain.Session) {
	expires := s.ExpiresAt
	if expires.IsZero() {
		expires = time.Now().Add(c.TTL)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    s.Token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c SessionCookie) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Sessions verifies the session cookie of privileged requests.
type Sessions struct {
	accessor  *usecase.SessionAccessor
	cookie    SessionCookie
	loginPath string
	logger    *slog.Logger
}

// NewSessions creates the session middleware
func NewSessions(accessor *usecase.SessionAccessor, cookie SessionCookie, loginPath string, logger *slog.Logger) *Sessions {
	return &Sessions{accessor: accessor, cookie: cookie, loginPath: loginPath, logger: logger}
}

// RequireAPI answers 401 unless the request carries a verified session.
func (s *Sessions) RequireAPI(next http.Handler) http.Handler {
	return s.require(next, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Authentication required"})
	})
}

// RequirePage sends visitors without a verified session to the login page
// and drops their stale cookie.
func (s *Sessions) RequirePage(next http.Handler) http.Handler {
	return s.require(next, func(w http.ResponseWriter, r *http.Request) {
		s.cookie.clear(w)
		http.Redirect(w, r, s.loginPath, http.StatusTemporaryRedirect)
	})
}

func (s *Sessions) require(next http.Handler, deny http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state, err := s.accessor.Current(r.Context(), s.cookie.Token(r))
		if err != nil {
			// client went away while the session was verified
			return
		}
		if state.Error != "" {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: state.Error})
			return
		}
		if !state.IsAuthenticated {
			deny(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), state.User)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rec.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (rec *statusRecorder) Unwrap() http.ResponseWriter { return rec.ResponseWriter }

// RequestLogger logs one line per request.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			level := slog.LevelInfo
			if rec.status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			if r.URL.Path == "/healthz" && rec.status == http.StatusOK {
				level = slog.LevelDebug
			}
			logger.Log(r.Context(), level, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("took", time.Since(start)),
			)
		})
	}
}
