package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"crypto-dashboard/internal/config"
	"crypto-dashboard/internal/domain"
	"crypto-dashboard/internal/logging"
	"crypto-dashboard/internal/querycache"
)

type fakeSource struct {
	mu      sync.Mutex
	calls   map[string]int
	queries []domain.MarketQuery

	coins         []domain.Coin
	chart         domain.MarketChart
	marketsErr    error
	globalErr     error
	categoriesErr error
}

func newFakeSource() *fakeSource {
	return &fakeSource{calls: make(map[string]int), coins: sample()}
}

func (s *fakeSource) count(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[name]++
}

func (s *fakeSource) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *fakeSource) Markets(_ context.Context, q domain.MarketQuery) ([]domain.Coin, error) {
	s.count("markets")
	s.mu.Lock()
	s.queries = append(s.queries, q)
	s.mu.Unlock()
	if s.marketsErr != nil {
		return nil, s.marketsErr
	}
	if len(q.IDs) > 0 {
		var out []domain.Coin
		for _, id := range q.IDs {
			for _, c := range s.coins {
				if c.ID == id {
					out = append(out, c)
				}
			}
		}
		return out, nil
	}
	start := (q.Page - 1) * q.PerPage
	if start >= len(s.coins) {
		return []domain.Coin{}, nil
	}
	end := min(start+q.PerPage, len(s.coins))
	return append([]domain.Coin(nil), s.coins[start:end]...), nil
}

func (s *fakeSource) MarketChart(_ context.Context, coinID, days, interval string) (domain.MarketChart, error) {
	s.count("chart")
	c := s.chart
	c.CoinID = coinID
	return c, nil
}

func (s *fakeSource) Search(_ context.Context, query string) ([]domain.SearchResult, error) {
	s.count("search")
	return []domain.SearchResult{{ID: "bitcoin", Name: "Bitcoin", Symbol: "BTC"}}, nil
}

func (s *fakeSource) Categories(context.Context) ([]domain.Category, error) {
	s.count("categories")
	if s.categoriesErr != nil {
		return nil, s.categoriesErr
	}
	out := make([]domain.Category, 25)
	for i := range out {
		out[i] = domain.Category{ID: fmt.Sprintf("cat-%d", i), Name: fmt.Sprintf("Category %d", i)}
	}
	out[0] = domain.Category{ID: "layer-1", Name: "Layer 1 (L1)"}
	return out, nil
}

func (s *fakeSource) Global(context.Context) (domain.MarketStats, error) {
	s.count("global")
	if s.globalErr != nil {
		return domain.MarketStats{}, s.globalErr
	}
	return domain.MarketStats{TotalMarketCap: 2.5e12, TotalVolume: 9e10, TotalCoins: 15000, Dominance: domain.Dominance{BTC: 52, ETH: 17}}, nil
}

func (s *fakeSource) Trending(context.Context) ([]domain.TrendingCoin, error) {
	s.count("trending")
	return []domain.TrendingCoin{{ID: "pepe", Name: "Pepe", Symbol: "PEPE"}}, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newMarketService(t *testing.T, src *fakeSource) (*MarketService, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
	cfg := config.Default().Market
	svc := NewMarketService(src, cfg, []string{"bitcoin", "ethereum", "tether", "newcoin", "wrapped-bitcoin"}, logging.Discard(), querycache.WithClock(clock.Now))
	t.Cleanup(svc.Close)
	return svc, clock
}

func TestMarkets_PagesCachedIndependently(t *testing.T) {
	src := newFakeSource()
	svc, clock := newMarketService(t, src)
	ctx := context.Background()

	page1 := domain.MarketQuery{Page: 1, PerPage: 50, SortBy: domain.SortMarketCapDesc}
	page2 := domain.MarketQuery{Page: 2, PerPage: 50, SortBy: domain.SortMarketCapDesc}

	if _, err := svc.Markets(ctx, page1); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Markets(ctx, page2); err != nil {
		t.Fatal(err)
	}
	if n := src.Calls("markets"); n != 2 {
		t.Fatalf("calls = %d, want one per page", n)
	}

	clock.Advance(5 * time.Second)
	if _, err := svc.Markets(ctx, page1); err != nil {
		t.Fatal(err)
	}
	if n := src.Calls("markets"); n != 2 {
		t.Errorf("refetch within the staleness window hit the network (%d calls)", n)
	}

	clock.Advance(6 * time.Second)
	if _, err := svc.Markets(ctx, page1); err != nil {
		t.Fatal(err)
	}
	if n := src.Calls("markets"); n != 3 {
		t.Errorf("stale page was not refetched (%d calls)", n)
	}
}

func TestMarkets_InvalidQuery(t *testing.T) {
	src := newFakeSource()
	svc, _ := newMarketService(t, src)
	_, err := svc.Markets(context.Background(), domain.MarketQuery{Page: 1, PerPage: 0})
	if !errors.Is(err, domain.ErrInvalidParameter) {
		t.Fatalf("err = %v", err)
	}
	if src.Calls("markets") != 0 {
		t.Error("invalid query fetched")
	}
}

func TestCoinsByIDs_LoadsLargeSetsInChunks(t *testing.T) {
	src := newFakeSource()
	svc, _ := newMarketService(t, src)

	requested := make([]string, 0, 300)
	requested = append(requested, "tether")
	for i := 0; len(requested) < 260; i++ {
		requested = append(requested, fmt.Sprintf("filler-%d", i))
	}
	requested = append(requested, "bitcoin", "newcoin")
	for i := 0; len(requested) < 300; i++ {
		requested = append(requested, fmt.Sprintf("tail-%d", i))
	}

	coins, err := svc.CoinsByIDs(context.Background(), requested)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(coins); !slices.Equal(got, []string{"bitcoin", "tether", "newcoin"}) {
		t.Errorf("coins = %v, want every requested coin by market cap", got)
	}
	if n := src.Calls("markets"); n != 2 {
		t.Errorf("markets calls = %d, want 2", n)
	}
	for _, q := range src.queries {
		if q.PerPage > domain.MaxPerPage || q.PerPage != len(q.IDs) {
			t.Errorf("chunk query %d ids, per_page %d", len(q.IDs), q.PerPage)
		}
	}
}

func TestMarketPage(t *testing.T) {
	src := newFakeSource()
	svc, _ := newMarketService(t, src)

	f := domain.FilterState{Search: "bit", Category: "layer-1", SortBy: domain.SortPriceAsc, PriceFilter: domain.PriceGainers, Page: 1}
	page, err := svc.MarketPage(context.Background(), f, 5)
	if err != nil {
		t.Fatalf("MarketPage: %v", err)
	}

	if page.Filters.Category != "layer-1" || page.Filters.SortBy != domain.SortPriceAsc {
		t.Errorf("valid filters were changed: %+v", page.Filters)
	}
	if !page.HasActiveFilters {
		t.Error("HasActiveFilters = false")
	}
	if len(page.Coins) != 2 || page.Coins[0].ID != "wrapped-bitcoin" || page.Coins[1].ID != "bitcoin" {
		t.Fatalf("coins = %+v", page.Coins)
	}
	if page.Coins[1].Display.Price != "$65,000.00" || page.Coins[1].Display.Change24h != "+2.10%" {
		t.Errorf("display = %+v", page.Coins[1].Display)
	}
	if !page.Pagination.HasNext || page.Pagination.Loaded != 5 || page.Pagination.Visible != 2 {
		t.Errorf("pagination = %+v", page.Pagination)
	}
	if len(page.Categories) != MaxCategoryOptions+1 || page.Categories[0].Value != domain.CategoryAll {
		t.Errorf("got %d category options", len(page.Categories))
	}
	if page.Stats == nil || page.Stats.Display.TotalMarketCap != "$2.50T" {
		t.Errorf("stats = %+v", page.Stats)
	}

	last := src.queries[len(src.queries)-1]
	if last.Category != "layer-1" || last.PerPage != 5 || last.SortBy != domain.SortPriceAsc {
		t.Errorf("upstream query = %+v", last)
	}
}

func TestMarketPage_UnknownValuesFallBack(t *testing.T) {
	src := newFakeSource()
	svc, _ := newMarketService(t, src)

	f := domain.FilterState{Category: "no-such-category", SortBy: "random", PriceFilter: "moon", Page: -3}
	page, err := svc.MarketPage(context.Background(), f, 0)
	if err != nil {
		t.Fatal(err)
	}
	if page.Filters != domain.DefaultFilterState() {
		t.Errorf("filters = %+v, want defaults", page.Filters)
	}
	if page.Pagination.PerPage != config.Default().Market.PerPage {
		t.Errorf("per page = %d", page.Pagination.PerPage)
	}
}

func TestMarketPage_SectionFailures(t *testing.T) {
	src := newFakeSource()
	src.globalErr = &domain.FetchError{Endpoint: "/global", StatusCode: 500, Message: "boom"}
	svc, _ := newMarketService(t, src)

	page, err := svc.MarketPage(context.Background(), domain.DefaultFilterState(), 10)
	if err != nil {
		t.Fatalf("a stats failure must not fail the page: %v", err)
	}
	if page.Stats != nil || page.Errors["stats"] == "" {
		t.Errorf("stats = %+v errors = %v", page.Stats, page.Errors)
	}

	src2 := newFakeSource()
	src2.marketsErr = &domain.FetchError{Endpoint: "/coins/markets", StatusCode: 429, Message: "rate limited"}
	svc2, _ := newMarketService(t, src2)
	_, err = svc2.MarketPage(context.Background(), domain.DefaultFilterState(), 10)
	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FetchError", err)
	}
}

func TestOverview(t *testing.T) {
	src := newFakeSource()
	svc, _ := newMarketService(t, src)

	page := svc.Overview(context.Background(), &domain.User{Name: "Ada Lovelace"})
	if page.Greeting != "Ada" {
		t.Errorf("greeting = %q", page.Greeting)
	}
	if len(page.TopCoins) != OverviewTopCoins {
		t.Errorf("top coins = %d", len(page.TopCoins))
	}
	if len(page.Trending) != 1 || page.Stats == nil || page.Errors != nil {
		t.Errorf("overview = %+v", page)
	}

	if got := svc.Overview(context.Background(), nil).Greeting; got != GreetingFallback {
		t.Errorf("fallback greeting = %q", got)
	}
}

func TestSubscribeMarkets(t *testing.T) {
	src := newFakeSource()
	cfg := config.Default().Market
	cfg.RefetchInterval = 10 * time.Millisecond
	cfg.StaleTime = time.Millisecond
	svc := NewMarketService(src, cfg, nil, logging.Discard())
	defer svc.Close()

	got := make(chan querycache.Result[[]domain.Coin], 16)
	unsubscribe, err := svc.SubscribeMarkets(domain.MarketQuery{Page: 1, PerPage: 2}, func(r querycache.Result[[]domain.Coin]) {
		select {
		case got <- r:
		default:
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	defer unsubscribe()

	for i := 0; i < 2; i++ {
		select {
		case r := <-got:
			if r.Err != nil || len(r.Value) != 2 {
				t.Fatalf("result = %+v", r)
			}
		case <-time.After(time.Second):
			t.Fatal("no revalidation delivered")
		}
	}
}

func TestHistory(t *testing.T) {
	src := newFakeSource()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 30; i++ {
		src.chart.Prices = append(src.chart.Prices, domain.PricePoint{Time: base.Add(time.Duration(i) * time.Hour), Value: float64(100 + i)})
	}
	svc, _ := newMarketService(t, src)

	specs, err := ParseOverlays("ema:10,rsi,bb")
	if err != nil {
		t.Fatal(err)
	}
	view, err := svc.History(context.Background(), "bitcoin", "1", "", specs)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if view.CoinID != "bitcoin" || len(view.Prices) != 30 {
		t.Fatalf("chart = %+v", view.MarketChart)
	}
	if len(view.Overlays) != 5 {
		t.Fatalf("overlays = %d, want ema, rsi and three bands", len(view.Overlays))
	}
	ema := view.Overlays[0]
	if ema.Name != "ema" || ema.Period != 10 || len(ema.Points) != 21 {
		t.Errorf("ema = %s/%d with %d points", ema.Name, ema.Period, len(ema.Points))
	}
	if !ema.Points[0].Time.Equal(view.Prices[9].Time) {
		t.Error("overlay not aligned to price timestamps")
	}
	if rsi := view.Overlays[1]; len(rsi.Points) != 16 || rsi.Points[0].Value != 100 {
		t.Errorf("rsi = %+v", rsi)
	}

	if _, err := svc.History(context.Background(), "bitcoin", "1", "", nil); err != nil {
		t.Fatal(err)
	}
	if src.Calls("chart") != 1 {
		t.Errorf("history not cached: %d calls", src.Calls("chart"))
	}

	if _, err := svc.History(context.Background(), "bitcoin", "2", "", nil); !errors.Is(err, domain.ErrInvalidParameter) {
		t.Errorf("days=2: %v", err)
	}
}

func TestParseOverlays_Invalid(t *testing.T) {
	for _, s := range []string{"macd", "ema:1", "rsi:x"} {
		if _, err := ParseOverlays(s); !errors.Is(err, domain.ErrInvalidParameter) {
			t.Errorf("ParseOverlays(%q) = %v", s, err)
		}
	}
	if specs, err := ParseOverlays(""); err != nil || len(specs) != 0 {
		t.Errorf("empty = %v, %v", specs, err)
	}
}
