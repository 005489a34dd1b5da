package http

import (
	"log/slog"
	"net/http"
)

// Handlers groups everything the router dispatches to.
type Handlers struct {
	Auth      *AuthHandler
	Market    *MarketHandler
	Dashboard *DashboardHandler
	Watchlist *WatchlistHandler
	Live      http.Handler
	Sessions  *Sessions
}

// NewRouter registers every route. Pages under /dashboard and every /api
// route except /api/session require a verified session.
func NewRouter(h Handlers, guard GuardConfig, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	page := func(f http.HandlerFunc) http.Handler { return h.Sessions.RequirePage(f) }
	api := func(f http.HandlerFunc) http.Handler { return h.Sessions.RequireAPI(f) }

	mux.HandleFunc("/healthz", Health)

	mux.HandleFunc("/login", h.Auth.Login)
	mux.HandleFunc("/signup", h.Auth.Signup)
	mux.HandleFunc("/logout", h.Auth.Logout)
	mux.HandleFunc("/api/session", h.Auth.Session)

	mux.Handle("/dashboard", page(h.Dashboard.Overview))
	mux.Handle("/dashboard/market", page(h.Dashboard.Market))
	mux.Handle("/dashboard/watchlist", page(h.Dashboard.Watchlist))

	mux.Handle("/api/markets", api(h.Market.Markets))
	mux.Handle("/api/coins", api(h.Market.Coins))
	mux.Handle("/api/coins/{id}/history", api(h.Market.History))
	mux.Handle("/api/search", api(h.Market.Search))
	mux.Handle("/api/categories", api(h.Market.Categories))
	mux.Handle("/api/global", api(h.Market.Global))
	mux.Handle("/api/trending", api(h.Market.Trending))
	mux.Handle("/api/watchlist", api(h.Watchlist.Collection))
	mux.Handle("/api/watchlist/{coinId}", api(h.Watchlist.Item))
	if h.Live != nil {
		mux.Handle("/api/ws", h.Sessions.RequireAPI(h.Live))
	}

	return RequestLogger(logger)(Guard(guard)(mux))
}

// Health handles GET /healthz
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
