package domain

import (
	"context"
	"time"
)

// MarketDataSource is the external market-data API.
type MarketDataSource interface {
	Markets(ctx context.Context, q MarketQuery) ([]Coin, error)
	MarketChart(ctx context.Context, coinID, days, interval string) (MarketChart, error)
	Search(ctx context.Context, query string) ([]SearchResult, error)
	Categories(ctx context.Context) ([]Category, error)
	Global(ctx context.Context) (MarketStats, error)
	Trending(ctx context.Context) ([]TrendingCoin, error)
}

// IdentityProvider is the external authentication service. Sessions are
// identified by the opaque token stored in the session cookie.
type IdentityProvider interface {
	SignIn(ctx context.Context, creds Credentials) (*Session, error)
	SignUp(ctx context.Context, creds Credentials) (*Session, error)
	SignOut(ctx context.Context, token string) error
	// VerifySession returns ErrSessionInvalid for unknown or expired tokens.
	VerifySession(ctx context.Context, token string) (*User, error)
}

// SessionCache keeps recently verified sessions so that every request does
// not round-trip to the identity provider.
type SessionCache interface {
	Get(ctx context.Context, token string) (*User, bool)
	Set(ctx context.Context, token string, user *User, ttl time.Duration) error
	Delete(ctx context.Context, token string) error
}

// WatchlistItem is a coin a user follows.
type WatchlistItem struct {
	ID      string    `json:"id"`
	UserID  string    `json:"user_id"`
	CoinID  string    `json:"coin_id"`
	Symbol  string    `json:"symbol"`
	Name    string    `json:"name"`
	AddedAt time.Time `json:"added_at"`
}

// WatchlistStore persists watchlists.
type WatchlistStore interface {
	// Add inserts item; adding a coin already on the user's list is a no-op.
	Add(ctx context.Context, item WatchlistItem) error
	List(ctx context.Context, userID string) ([]WatchlistItem, error)
	// Remove returns ErrNotFound if the coin is not on the user's list.
	Remove(ctx context.Context, userID, coinID string) error
}
