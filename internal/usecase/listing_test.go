package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"crypto-dashboard/internal/domain"
)

func TestListing_FiltersLoadedPage(t *testing.T) {
	src := newFakeSource()
	svc, _ := newMarketService(t, src)

	f := domain.DefaultFilterState()
	f.PriceFilter = domain.PriceGainers
	f.SortBy = domain.SortPriceDesc

	l, err := svc.Listing(context.Background(), f, 3)
	if err != nil {
		t.Fatal(err)
	}
	// page 1 of 3 holds bitcoin, ethereum, wrapped-bitcoin
	if len(l.Coins) != 2 || l.Coins[0].ID != "bitcoin" || l.Coins[1].ID != "wrapped-bitcoin" {
		t.Fatalf("unexpected coins %v", l.Coins)
	}
	if !l.Pagination.HasNext || l.Pagination.Loaded != 3 || l.Pagination.Visible != 2 {
		t.Errorf("unexpected pagination %+v", l.Pagination)
	}
	if q := src.queries[len(src.queries)-1]; q.SortBy != domain.SortPriceDesc || q.PerPage != 3 {
		t.Errorf("unexpected upstream query %+v", q)
	}
}

func TestListing_NormalizesFilters(t *testing.T) {
	src := newFakeSource()
	svc, _ := newMarketService(t, src)

	f := domain.FilterState{Category: "layer-1", SortBy: "bogus", PriceFilter: "sideways", Page: -3}
	l, err := svc.Listing(context.Background(), f, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := domain.FilterState{Category: "layer-1", SortBy: domain.SortMarketCapDesc, PriceFilter: domain.PriceAll, Page: 1}
	if l.Filters != want {
		t.Errorf("Filters = %+v, want %+v", l.Filters, want)
	}
	if q := src.queries[0]; q.Category != "layer-1" || q.PerPage != svc.PerPage() {
		t.Errorf("unexpected upstream query %+v", q)
	}
}

func TestListing_UnknownCategoryFallsBack(t *testing.T) {
	tests := []struct {
		name          string
		category      string
		categoriesErr error
		want          string
	}{
		{"unknown", "no-such-category", nil, domain.CategoryAll},
		{"not offered", "cat-22", nil, domain.CategoryAll},
		{"offered", "cat-3", nil, "cat-3"},
		{"options unavailable", "no-such-category", errors.New("categories down"), "no-such-category"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newFakeSource()
			src.categoriesErr = tt.categoriesErr
			svc, _ := newMarketService(t, src)

			f := domain.DefaultFilterState()
			f.Category = tt.category
			l, err := svc.Listing(context.Background(), f, 0)
			if err != nil {
				t.Fatal(err)
			}
			if l.Filters.Category != tt.want {
				t.Errorf("Filters.Category = %q, want %q", l.Filters.Category, tt.want)
			}
			upstream := tt.want
			if upstream == domain.CategoryAll {
				upstream = ""
			}
			if q := src.queries[len(src.queries)-1]; q.Category != upstream {
				t.Errorf("upstream category = %q, want %q", q.Category, upstream)
			}
		})
	}
}

func TestListing_AllSkipsCategoryLoad(t *testing.T) {
	src := newFakeSource()
	svc, _ := newMarketService(t, src)

	if _, err := svc.Listing(context.Background(), domain.DefaultFilterState(), 0); err != nil {
		t.Fatal(err)
	}
	if n := src.Calls("categories"); n != 0 {
		t.Errorf("categories loaded %d times for the default filters", n)
	}
}

func TestSubscribeListing_DeliversFilteredPages(t *testing.T) {
	src := newFakeSource()
	svc, _ := newMarketService(t, src)

	f := domain.DefaultFilterState()
	f.Search = "bitcoin"

	got := make(chan *Listing, 4)
	unsubscribe, err := svc.SubscribeListing(context.Background(), f, 50, func(l *Listing, err error) {
		if err == nil {
			got <- l
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	defer unsubscribe()

	select {
	case l := <-got:
		if len(l.Coins) != 2 {
			t.Errorf("expected bitcoin and wrapped-bitcoin, got %d coins", len(l.Coins))
		}
	case <-time.After(time.Second):
		t.Fatal("no listing delivered")
	}
}

func TestSubscribeListing_ReportsErrors(t *testing.T) {
	src := newFakeSource()
	src.marketsErr = &domain.FetchError{Endpoint: "/coins/markets", StatusCode: 500, Message: "boom"}
	svc, _ := newMarketService(t, src)

	errs := make(chan error, 4)
	unsubscribe, err := svc.SubscribeListing(context.Background(), domain.DefaultFilterState(), 50, func(l *Listing, err error) {
		if l == nil {
			errs <- err
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	defer unsubscribe()

	select {
	case err := <-errs:
		var fe *domain.FetchError
		if !errors.As(err, &fe) {
			t.Errorf("expected FetchError, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("no error delivered")
	}
}
