package usecase

import (
	"context"
	"log/slog"
	"time"

	"crypto-dashboard/internal/domain"
	"crypto-dashboard/internal/querycache"
)

// Listing is one filtered page of the coin table.
type Listing struct {
	Filters    domain.FilterState `json:"filters"`
	Coins      []CoinRow          `json:"coins"`
	Pagination PageInfo           `json:"pagination"`
	FetchedAt  time.Time          `json:"fetchedAt"`
}

// ListingQuery normalizes f against the presented option sets and returns
// the upstream query it selects. The category list is only loaded when a
// specific category is requested.
func (uc *MarketService) ListingQuery(ctx context.Context, f domain.FilterState, perPage int) (domain.FilterState, domain.MarketQuery) {
	if perPage <= 0 {
		perPage = uc.perPage
	}
	var known []string
	if f.Category != "" && f.Category != domain.CategoryAll {
		cats, err := uc.Categories(ctx)
		if err != nil {
			uc.logger.Warn("category options unavailable", slog.Any("error", err))
		}
		known = CategoryChoices(cats, err, f.Category)
	}
	f = f.Normalize(known)
	return f, domain.MarketQuery{
		Page:     f.Page,
		PerPage:  perPage,
		Category: f.CategoryParam(),
		SortBy:   f.SortBy,
	}
}

// CategoryChoices returns the selectable category ids. When the category
// list failed to load the requested category is accepted as is.
func CategoryChoices(cats []domain.Category, loadErr error, requested string) []string {
	options := categoryOptions(cats)
	known := make([]string, 0, len(options)+1)
	for _, o := range options {
		known = append(known, o.Value)
	}
	if loadErr != nil {
		known = append(known, requested)
	}
	return known
}

// Listing loads the page selected by f and runs it through the pipeline.
func (uc *MarketService) Listing(ctx context.Context, f domain.FilterState, perPage int) (*Listing, error) {
	f, q := uc.ListingQuery(ctx, f, perPage)
	coins, err := uc.Markets(ctx, q)
	if err != nil {
		return nil, err
	}
	return uc.listing(f, q, coins, time.Now().UTC()), nil
}

// SubscribeListing calls fn with the filtered page after every revalidation
// of the listing selected by f. On a failed load fn gets the error and a
// nil listing.
func (uc *MarketService) SubscribeListing(ctx context.Context, f domain.FilterState, perPage int, fn func(*Listing, error)) (unsubscribe func(), err error) {
	f, q := uc.ListingQuery(ctx, f, perPage)
	return uc.SubscribeMarkets(q, func(r querycache.Result[[]domain.Coin]) {
		if r.Err != nil {
			fn(nil, r.Err)
			return
		}
		fn(uc.listing(f, q, r.Value, r.FetchedAt), nil)
	})
}

func (uc *MarketService) listing(f domain.FilterState, q domain.MarketQuery, coins []domain.Coin, fetchedAt time.Time) *Listing {
	visible := Apply(coins, f)
	return &Listing{
		Filters:    f,
		Coins:      uc.rows(visible),
		Pagination: NewPageInfo(q.Page, q.PerPage, len(coins), len(visible)),
		FetchedAt:  fetchedAt,
	}
}

// CoinRows formats coins for display.
func (uc *MarketService) CoinRows(coins []domain.Coin) []CoinRow {
	return uc.rows(coins)
}

// GlobalView returns the formatted market-stats card.
func (uc *MarketService) GlobalView(ctx context.Context) (*StatsView, error) {
	stats, err := uc.Global(ctx)
	if err != nil {
		return nil, err
	}
	return uc.statsView(stats), nil
}
