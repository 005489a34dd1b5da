package http

import (
	"log/slog"
	"net/http"

	"crypto-dashboard/internal/usecase"
)

// DashboardHandler serves the page models of the signed-in screens
type DashboardHandler struct {
	market    *usecase.MarketService
	watchlist *usecase.WatchlistService
	logger    *slog.Logger
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(market *usecase.MarketService, watchlist *usecase.WatchlistService, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{market: market, watchlist: watchlist, logger: logger}
}

// Overview handles GET /dashboard
func (h *DashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user, _ := UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, h.market.Overview(r.Context(), user))
}

// Market handles GET /dashboard/market
func (h *DashboardHandler) Market(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	perPage, err := PerPage(r.URL.Query())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	page, err := h.market.MarketPage(r.Context(), usecase.ParseFilterState(r.URL.Query()), perPage)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Watchlist handles GET /dashboard/watchlist
func (h *DashboardHandler) Watchlist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user, ok := UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Authentication required"})
		return
	}
	page, err := h.watchlist.Page(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
