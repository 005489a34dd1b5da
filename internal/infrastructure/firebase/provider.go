// Package firebase adapts Firebase Authentication to the identity provider
// port. Sessions are Firebase session cookies minted from the ID token of
// an email and password sign-in.
package firebase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"

	"crypto-dashboard/internal/config"
	"crypto-dashboard/internal/domain"
)

// authClient is the subset of *auth.Client the provider uses.
type authClient interface {
	SessionCookie(ctx context.Context, idToken string, expiresIn time.Duration) (string, error)
	VerifySessionCookieAndCheckRevoked(ctx context.Context, sessionCookie string) (*auth.Token, error)
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
	CreateUser(ctx context.Context, user *auth.UserToCreate) (*auth.UserRecord, error)
	RevokeRefreshTokens(ctx context.Context, uid string) error
}

// passwordSignIn exchanges email and password for an ID token.
type passwordSignIn func(ctx context.Context, email, password string) (*identitytoolkit.VerifyPasswordResponse, error)

type Provider struct {
	auth       authClient
	signIn     passwordSignIn
	sessionTTL time.Duration
	logger     *slog.Logger
}

var _ domain.IdentityProvider = (*Provider)(nil)

// NewProvider initializes the Firebase app from cfg's service account and
// the Identity Toolkit client from its web API key.
func NewProvider(ctx context.Context, cfg config.FirebaseConfig, sessionTTL time.Duration, logger *slog.Logger) (*Provider, error) {
	var cred option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		cred = option.WithCredentialsJSON([]byte(cfg.CredentialsJSON))
	case cfg.CredentialsPath != "":
		cred = option.WithCredentialsFile(cfg.CredentialsPath)
	default:
		return nil, errors.New("firebase credentials are not configured")
	}

	app, err := firebase.NewApp(ctx, nil, cred)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting auth client: %w", err)
	}

	toolkit, err := identitytoolkit.NewService(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("error creating identity toolkit client: %w", err)
	}
	signIn := func(ctx context.Context, email, password string) (*identitytoolkit.VerifyPasswordResponse, error) {
		return toolkit.Relyingparty.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
			Email:             email,
			Password:          password,
			ReturnSecureToken: true,
		}).Context(ctx).Do()
	}

	logger.Info("firebase authentication initialized")
	return newProvider(client, signIn, sessionTTL, logger), nil
}

func newProvider(client authClient, signIn passwordSignIn, sessionTTL time.Duration, logger *slog.Logger) *Provider {
	return &Provider{
		auth:       client,
		signIn:     signIn,
		sessionTTL: sessionTTL,
		logger:     logger.With(slog.String("component", "firebase")),
	}
}

// SignIn verifies the password and mints a session cookie.
func (p *Provider) SignIn(ctx context.Context, creds domain.Credentials) (*domain.Session, error) {
	resp, err := p.signIn(ctx, creds.Email, creds.Password)
	if err != nil {
		return nil, &domain.AuthError{Op: "sign in", Message: providerMessage(err), Err: err}
	}
	return p.session(ctx, "sign in", resp.IdToken, resp.LocalId)
}

// SignUp creates the account and signs it in.
func (p *Provider) SignUp(ctx context.Context, creds domain.Credentials) (*domain.Session, error) {
	params := (&auth.UserToCreate{}).Email(creds.Email).Password(creds.Password)
	if name := strings.TrimSpace(creds.Name); name != "" {
		params = params.DisplayName(name)
	}
	if _, err := p.auth.CreateUser(ctx, params); err != nil {
		msg := providerMessage(err)
		if auth.IsEmailAlreadyExists(err) {
			msg = "An account with this email already exists"
		}
		return nil, &domain.AuthError{Op: "sign up", Message: msg, Err: err}
	}
	p.logger.Info("user created", slog.String("email", creds.Email))
	return p.SignIn(ctx, creds)
}

// SignOut revokes every refresh token of the session's user, which also
// invalidates the session cookie.
func (p *Provider) SignOut(ctx context.Context, token string) error {
	tok, err := p.auth.VerifySessionCookieAndCheckRevoked(ctx, token)
	if err != nil {
		if cookieRejected(err) {
			return domain.ErrSessionInvalid
		}
		return &domain.AuthError{Op: "sign out", Message: "Unable to sign out", Err: err}
	}
	if err := p.auth.RevokeRefreshTokens(ctx, tok.UID); err != nil {
		return &domain.AuthError{Op: "sign out", Message: "Unable to sign out", Err: err}
	}
	return nil
}

// VerifySession checks the session cookie and loads its user.
func (p *Provider) VerifySession(ctx context.Context, token string) (*domain.User, error) {
	tok, err := p.auth.VerifySessionCookieAndCheckRevoked(ctx, token)
	if err != nil {
		if cookieRejected(err) {
			return nil, domain.ErrSessionInvalid
		}
		return nil, fmt.Errorf("verify session cookie: %w", err)
	}
	rec, err := p.auth.GetUser(ctx, tok.UID)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return nil, domain.ErrSessionInvalid
		}
		return nil, fmt.Errorf("get user %s: %w", tok.UID, err)
	}
	if rec.Disabled {
		return nil, domain.ErrSessionInvalid
	}
	u := toUser(rec)
	return &u, nil
}

func (p *Provider) session(ctx context.Context, op, idToken, uid string) (*domain.Session, error) {
	cookie, err := p.auth.SessionCookie(ctx, idToken, p.sessionTTL)
	if err != nil {
		return nil, &domain.AuthError{Op: op, Message: "Unable to create session", Err: err}
	}
	rec, err := p.auth.GetUser(ctx, uid)
	if err != nil {
		return nil, &domain.AuthError{Op: op, Message: "Unable to load account", Err: err}
	}
	return &domain.Session{
		Token:     cookie,
		User:      toUser(rec),
		ExpiresAt: time.Now().Add(p.sessionTTL).UTC(),
	}, nil
}

func toUser(rec *auth.UserRecord) domain.User {
	u := domain.User{EmailVerified: rec.EmailVerified}
	if rec.UserInfo != nil {
		u.ID = rec.UID
		u.Email = rec.Email
		u.Name = rec.DisplayName
		u.Image = rec.PhotoURL
	}
	return u
}

// cookieRejected reports whether err means the cookie itself is not
// acceptable, as opposed to a failure reaching Firebase.
func cookieRejected(err error) bool {
	return !auth.IsCertificateFetchFailed(err)
}

var messages = map[string]string{
	"EMAIL_NOT_FOUND":             "Invalid email or password",
	"INVALID_PASSWORD":            "Invalid email or password",
	"INVALID_LOGIN_CREDENTIALS":   "Invalid email or password",
	"USER_DISABLED":               "This account has been disabled",
	"TOO_MANY_ATTEMPTS_TRY_LATER": "Too many attempts. Please try again later",
	"INVALID_EMAIL":               "A valid email address is required",
	"WEAK_PASSWORD":               "Password should be at least 6 characters",
}

// providerMessage extracts the message Firebase attached to err.
func providerMessage(err error) string {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		code := gerr.Message
		if i := strings.IndexAny(code, " :"); i > 0 {
			code = code[:i]
		}
		if msg, ok := messages[code]; ok {
			return msg
		}
		if gerr.Message != "" {
			return gerr.Message
		}
	}
	if auth.IsInvalidEmail(err) {
		return messages["INVALID_EMAIL"]
	}
	return "Authentication failed. Please try again."
}
