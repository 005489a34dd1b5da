package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"crypto-dashboard/internal/domain"
	"crypto-dashboard/internal/usecase"
)

// MarketHandler serves market data as JSON
type MarketHandler struct {
	market *usecase.MarketService
	logger *slog.Logger
}

// NewMarketHandler creates a new market handler
func NewMarketHandler(market *usecase.MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{market: market, logger: logger}
}

// Markets handles GET /api/markets
func (h *MarketHandler) Markets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	perPage, err := PerPage(r.URL.Query())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	listing, err := h.market.Listing(r.Context(), usecase.ParseFilterState(r.URL.Query()), perPage)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// Coins handles GET /api/coins?ids=bitcoin,ethereum
func (h *MarketHandler) Coins(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var ids []string
	for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
		if id = strings.ToLower(strings.TrimSpace(id)); id != "" {
			ids = append(ids, id)
		}
	}
	coins, err := h.market.CoinsByIDs(r.Context(), ids)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"coins": h.market.CoinRows(coins)})
}

// History handles GET /api/coins/{id}/history
func (h *MarketHandler) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	overlays, err := usecase.ParseOverlays(q.Get("overlay"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	view, err := h.market.History(r.Context(), r.PathValue("id"), q.Get("days"), q.Get("interval"), overlays)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Search handles GET /api/search?q=
func (h *MarketHandler) Search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	results, err := h.market.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"coins": results})
}

// Categories handles GET /api/categories
func (h *MarketHandler) Categories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cats, err := h.market.Categories(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": cats})
}

// Global handles GET /api/global
func (h *MarketHandler) Global(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := h.market.GlobalView(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Trending handles GET /api/trending
func (h *MarketHandler) Trending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	coins, err := h.market.Trending(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"coins": coins})
}

// PerPage reads the optional page size of a listing request. Zero means
// the configured default.
func PerPage(v url.Values) (int, error) {
	s := v.Get("per_page")
	if s == "" {
		s = v.Get("perPage")
	}
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 250 {
		return 0, fmt.Errorf("%w: per_page must be in [1, 250]", domain.ErrInvalidParameter)
	}
	return n, nil
}
