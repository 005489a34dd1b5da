package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"crypto-dashboard/internal/usecase"
)

// WatchlistHandler handles watchlist endpoints
type WatchlistHandler struct {
	watchlist *usecase.WatchlistService
	logger    *slog.Logger
}

// NewWatchlistHandler creates a new watchlist handler
func NewWatchlistHandler(watchlist *usecase.WatchlistService, logger *slog.Logger) *WatchlistHandler {
	return &WatchlistHandler{watchlist: watchlist, logger: logger}
}

type addWatchlistRequest struct {
	CoinID string `json:"coinId"`
}

// Collection handles GET and POST /api/watchlist
func (h *WatchlistHandler) Collection(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Authentication required"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		items, err := h.watchlist.List(r.Context(), user.ID)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})

	case http.MethodPost:
		var req addWatchlistRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		item, err := h.watchlist.Add(r.Context(), user.ID, req.CoinID)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, item)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Item handles DELETE /api/watchlist/{coinId}
func (h *WatchlistHandler) Item(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Authentication required"})
		return
	}

	if err := h.watchlist.Remove(r.Context(), user.ID, r.PathValue("coinId")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
