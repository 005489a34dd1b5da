package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrSessionInvalid is returned by an identity provider for a session
	// token it does not recognize. It is not a failure of the provider.
	ErrSessionInvalid = errors.New("session invalid or expired")
)

// FetchError reports a failed call to the market-data API: a transport
// failure, a non-2xx status, or a payload that failed validation.
type FetchError struct {
	Endpoint   string
	StatusCode int
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	if e == nil {
		return "market data fetch failed"
	}
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: %s (status %d)", e.Endpoint, e.Message, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Endpoint, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Endpoint, e.Message)
}

func (e *FetchError) Unwrap() error { return e.Err }

// AuthError reports a sign-in, sign-up or sign-out failure with the message
// supplied by the identity provider.
type AuthError struct {
	Op      string
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }
