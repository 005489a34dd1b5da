package firebase

import (
	"context"

	"crypto-dashboard/internal/domain"
)

// Unavailable is the identity provider used when Firebase is not
// configured. No session can be created, so none is ever valid.
type Unavailable struct{}

var _ domain.IdentityProvider = Unavailable{}

const unavailableMessage = "Authentication is not configured on this server"

func (Unavailable) SignIn(context.Context, domain.Credentials) (*domain.Session, error) {
	return nil, &domain.AuthError{Op: "sign in", Message: unavailableMessage}
}

func (Unavailable) SignUp(context.Context, domain.Credentials) (*domain.Session, error) {
	return nil, &domain.AuthError{Op: "sign up", Message: unavailableMessage}
}

func (Unavailable) SignOut(context.Context, string) error { return nil }

func (Unavailable) VerifySession(context.Context, string) (*domain.User, error) {
	return nil, domain.ErrSessionInvalid
}
