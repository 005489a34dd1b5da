package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"crypto-dashboard/internal/domain"
)

// WatchlistService manages the coins a user follows.
type WatchlistService struct {
	store  domain.WatchlistStore
	market *MarketService
	logger *slog.Logger
}

func NewWatchlistService(store domain.WatchlistStore, market *MarketService, logger *slog.Logger) *WatchlistService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WatchlistService{store: store, market: market, logger: logger}
}

// Add follows coinID after checking that the market knows it.
func (uc *WatchlistService) Add(ctx context.Context, userID, coinID string) (domain.WatchlistItem, error) {
	coinID = strings.ToLower(strings.TrimSpace(coinID))
	if coinID == "" {
		return domain.WatchlistItem{}, fmt.Errorf("%w: coin id is required", domain.ErrInvalidParameter)
	}
	coins, err := uc.market.CoinsByIDs(ctx, []string{coinID})
	if err != nil {
		return domain.WatchlistItem{}, err
	}
	if len(coins) == 0 {
		return domain.WatchlistItem{}, fmt.Errorf("coin %q: %w", coinID, domain.ErrNotFound)
	}

	item := domain.WatchlistItem{
		UserID: userID,
		CoinID: coinID,
		Symbol: coins[0].Symbol,
		Name:   coins[0].Name,
	}
	if err := uc.store.Add(ctx, item); err != nil {
		return domain.WatchlistItem{}, err
	}
	uc.logger.Info("watchlist add", slog.String("user", userID), slog.String("coin", coinID))

	items, err := uc.store.List(ctx, userID)
	if err != nil {
		return domain.WatchlistItem{}, err
	}
	for _, it := range items {
		if it.CoinID == coinID {
			return it, nil
		}
	}
	return item, nil
}

func (uc *WatchlistService) List(ctx context.Context, userID string) ([]domain.WatchlistItem, error) {
	return uc.store.List(ctx, userID)
}

func (uc *WatchlistService) Remove(ctx context.Context, userID, coinID string) error {
	return uc.store.Remove(ctx, userID, strings.ToLower(strings.TrimSpace(coinID)))
}

// WatchlistEntry is a followed coin with its live row, when available.
type WatchlistEntry struct {
	domain.WatchlistItem
	Coin *CoinRow `json:"coin"`
}

// WatchlistPage is the model of the watchlist screen.
type WatchlistPage struct {
	Items []WatchlistEntry `json:"items"`
	Error string           `json:"error,omitempty"`
}

// Page joins the user's watchlist with live market data. A market failure
// leaves the items without rows.
func (uc *WatchlistService) Page(ctx context.Context, userID string) (*WatchlistPage, error) {
	items, err := uc.store.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	page := &WatchlistPage{Items: make([]WatchlistEntry, len(items))}
	for i, it := range items {
		page.Items[i] = WatchlistEntry{WatchlistItem: it}
	}
	if len(items) == 0 {
		return page, nil
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.CoinID
	}
	coins, err := uc.market.CoinsByIDs(ctx, ids)
	if err != nil {
		uc.logger.Warn("watchlist market data failed", slog.Any("error", err))
		page.Error = userMessage(err)
		return page, nil
	}
	rows := uc.market.rows(coins)
	byID := make(map[string]*CoinRow, len(rows))
	for i := range rows {
		byID[rows[i].ID] = &rows[i]
	}
	for i := range page.Items {
		page.Items[i].Coin = byID[page.Items[i].CoinID]
	}
	return page, nil
}
