package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"crypto-dashboard/internal/domain"
	"crypto-dashboard/internal/usecase"
)

// AuthHandler handles sign-in, sign-up and sign-out
type AuthHandler struct {
	sessions *usecase.SessionAccessor
	cookie   SessionCookie
	landing  string
	login    string
	logger   *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(sessions *usecase.SessionAccessor, cookie SessionCookie, guard GuardConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		cookie:   cookie,
		landing:  guard.LandingPath,
		login:    guard.LoginPath,
		logger:   logger,
	}
}

// AuthPage is the model of the sign-in and sign-up screens.
type AuthPage struct {
	Page      string   `json:"page"`
	Action    string   `json:"action"`
	Fields    []string `json:"fields"`
	Alternate string   `json:"alternate"`
}

// AuthResponse is returned after a successful sign-in or sign-up.
type AuthResponse struct {
	User      domain.User `json:"user"`
	ExpiresAt time.Time   `json:"expiresAt"`
	Redirect  string      `json:"redirect"`
}

// Login handles GET and POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, AuthPage{
			Page:      "login",
			Action:    "/login",
			Fields:    []string{"email", "password"},
			Alternate: "/signup",
		})
	case http.MethodPost:
		h.authenticate(w, r, h.sessions.SignIn)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Signup handles GET and POST /signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, AuthPage{
			Page:      "signup",
			Action:    "/signup",
			Fields:    []string{"name", "email", "password"},
			Alternate: "/login",
		})
	case http.MethodPost:
		h.authenticate(w, r, h.sessions.SignUp)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AuthHandler) authenticate(w http.ResponseWriter, r *http.Request, auth func(context.Context, domain.Credentials) (*domain.Session, error)) {
	creds, err := decodeCredentials(r)
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	session, err := auth(r.Context(), creds)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.cookie.set(w, session)
	h.logger.Info("signed in", slog.String("user", session.User.ID))

	writeJSON(w, http.StatusOK, AuthResponse{
		User:      session.User,
		ExpiresAt: session.ExpiresAt,
		Redirect:  h.landing,
	})
}

// Logout handles POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.sessions.SignOut(r.Context(), h.cookie.Token(r)); err != nil {
		// the cookie is dropped either way
		h.logger.Warn("sign out failed", slog.Any("error", err))
	}
	h.cookie.clear(w)
	writeJSON(w, http.StatusOK, map[string]string{"redirect": h.login})
}

// Session handles GET /api/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state, err := h.sessions.Current(r.Context(), h.cookie.Token(r))
	if err != nil {
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// decodeCredentials accepts a JSON body or an HTML form.
func decodeCredentials(r *http.Request) (domain.Credentials, error) {
	var c domain.Credentials
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			return c, err
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return c, err
		}
		c.Email = r.PostFormValue("email")
		c.Password = r.PostFormValue("password")
		c.Name = r.PostFormValue("name")
	}
	c.Email = strings.TrimSpace(c.Email)
	c.Name = strings.TrimSpace(c.Name)
	return c, nil
}
