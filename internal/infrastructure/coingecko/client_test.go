package coingecko

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"crypto-dashboard/internal/domain"
	"crypto-dashboard/internal/logging"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, VsCurrency: "usd", APIKey: "demo"}, logging.Discard())
}

const marketsBody = `[
  {"id":"bitcoin","symbol":"btc","name":"Bitcoin","image":"https://img/btc.png","current_price":65000.5,
   "market_cap":1280000000000,"market_cap_rank":1,"total_volume":31000000000,
   "price_change_percentage_24h":2.5,"price_change_percentage_7d_in_currency":-1.2,
   "ath":73000,"ath_date":"2024-03-14T07:10:36.635Z","last_updated":"2026-10-19T10:00:00.000Z"},
  {"id":"tiny","symbol":"tny","name":"Tiny","current_price":0.0004,
   "market_cap":null,"market_cap_rank":null,"total_volume":null,"price_change_percentage_24h":null}
]`

func TestMarkets(t *testing.T) {
	var got *http.Request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, marketsBody)
	})

	coins, err := c.Markets(context.Background(), domain.MarketQuery{
		Page:     2,
		PerPage:  50,
		Category: "layer-1",
		SortBy:   domain.SortVolumeAsc,
	})
	if err != nil {
		t.Fatalf("Markets: %v", err)
	}

	if got.URL.Path != "/coins/markets" {
		t.Errorf("path = %s", got.URL.Path)
	}
	q := got.URL.Query()
	for k, want := range map[string]string{
		"vs_currency":             "usd",
		"order":                   "volume_asc",
		"per_page":                "50",
		"page":                    "2",
		"category":                "layer-1",
		"price_change_percentage": "1h,24h,7d,30d",
	} {
		if q.Get(k) != want {
			t.Errorf("%s = %q, want %q", k, q.Get(k), want)
		}
	}
	if q.Has("ids") {
		t.Error("ids sent for an empty id set")
	}
	if got.Header.Get("x-cg-demo-api-key") != "demo" {
		t.Error("api key header missing")
	}

	if len(coins) != 2 {
		t.Fatalf("got %d coins", len(coins))
	}
	btc := coins[0]
	if btc.ID != "bitcoin" || btc.CurrentPrice != 65000.5 || btc.MarketCapRank == nil || *btc.MarketCapRank != 1 {
		t.Errorf("bitcoin = %+v", btc)
	}
	if btc.PriceChangePercentage7d == nil || *btc.PriceChangePercentage7d != -1.2 {
		t.Error("7d change not mapped")
	}
	if btc.ATHDate == nil || btc.LastUpdated.IsZero() {
		t.Error("dates not mapped")
	}
	if tiny := coins[1]; tiny.MarketCap != nil || tiny.PriceChangePercentage24h != nil {
		t.Errorf("null figures must stay nil: %+v", tiny)
	}
}

func TestMarkets_PriceSortFetchedByMarketCap(t *testing.T) {
	var order string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		order = r.URL.Query().Get("order")
		fmt.Fprint(w, `[]`)
	})
	if _, err := c.Markets(context.Background(), domain.MarketQuery{Page: 1, PerPage: 10, SortBy: domain.SortPriceDesc}); err != nil {
		t.Fatal(err)
	}
	if order != "market_cap_desc" {
		t.Errorf("order = %q", order)
	}
}

func TestMarkets_IDs(t *testing.T) {
	var ids string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		ids = r.URL.Query().Get("ids")
		fmt.Fprint(w, `[]`)
	})
	q := domain.MarketQuery{IDs: []string{"bitcoin", "ethereum"}, Page: 1, PerPage: 10}
	if _, err := c.Markets(context.Background(), q); err != nil {
		t.Fatal(err)
	}
	if ids != "bitcoin,ethereum" {
		t.Errorf("ids = %q", ids)
	}
}

func TestMarkets_InvalidQueryMakesNoCall(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })

	_, err := c.Markets(context.Background(), domain.MarketQuery{Page: 0, PerPage: 10})
	if !errors.Is(err, domain.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	if calls.Load() != 0 {
		t.Error("invalid query reached the network")
	}
}

func TestMarkets_NonSuccessStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"status":{"error_code":429,"error_message":"You've exceeded the Rate Limit."}}`)
	})

	coins, err := c.Markets(context.Background(), domain.MarketQuery{Page: 1, PerPage: 10})
	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d", fe.StatusCode)
	}
	if !strings.Contains(fe.Message, "Rate Limit") {
		t.Errorf("message = %q", fe.Message)
	}
	if coins != nil {
		t.Error("partial data returned on failure")
	}
}

func TestMarkets_RejectsMalformedPayload(t *testing.T) {
	const valid = `{"id":"ok","symbol":"ok","name":"Ok","current_price":1}`
	tests := []struct {
		name string
		body string
	}{
		{"missing price", `[` + valid + `,{"id":"x","symbol":"x","name":"X"}]`},
		{"negative price", `[` + valid + `,{"id":"x","symbol":"x","name":"X","current_price":-1}]`},
		{"missing id", `[` + valid + `,{"symbol":"x","name":"X","current_price":1}]`},
		{"wrong type", `[` + valid + `,{"id":"x","symbol":"x","name":"X","current_price":"1"}]`},
		{"not a list", `{"error":"nope"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, tt.body) })
			coins, err := c.Markets(context.Background(), domain.MarketQuery{Page: 1, PerPage: 10})
			var fe *domain.FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FetchError, got %v", err)
			}
			if coins != nil {
				t.Error("valid records of an invalid payload were returned")
			}
		})
	}
}

func TestGlobal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"active_cryptocurrencies":15000,
			"total_market_cap":{"usd":2500000000000,"eur":2300000000000},
			"total_volume":{"usd":90000000000},
			"market_cap_percentage":{"btc":52.1,"eth":16.9},
			"market_cap_change_percentage_24h_usd":-0.8,"updated_at":1760000000}}`)
	})

	stats, err := c.Global(context.Background())
	if err != nil {
		t.Fatalf("Global: %v", err)
	}
	if stats.TotalMarketCap != 2.5e12 || stats.TotalVolume != 9e10 || stats.TotalCoins != 15000 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Dominance.BTC != 52.1 || stats.Dominance.ETH != 16.9 {
		t.Errorf("dominance = %+v", stats.Dominance)
	}
	if stats.MarketCapChange24h != -0.8 || stats.UpdatedAt.Unix() != 1760000000 {
		t.Errorf("change/updated = %v %v", stats.MarketCapChange24h, stats.UpdatedAt)
	}
}

func TestGlobal_MissingData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, `{}`) })
	_, err := c.Global(context.Background())
	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
}

func TestSearch(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("query") != "bit" {
			t.Errorf("query = %q", r.URL.Query().Get("query"))
		}
		var b strings.Builder
		b.WriteString(`{"coins":[`)
		for i := 0; i < 15; i++ {
			if i > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, `{"id":"c%d","name":"Coin %d","symbol":"C%d"}`, i, i, i)
		}
		b.WriteString(`]}`)
		fmt.Fprint(w, b.String())
	})

	res, err := c.Search(context.Background(), "b")
	if err != nil || len(res) != 0 {
		t.Fatalf("short query = %v, %v", res, err)
	}
	if calls.Load() != 0 {
		t.Fatal("short query reached the network")
	}

	res, err = c.Search(context.Background(), " bit ")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != MaxSearchResults {
		t.Errorf("got %d results, want %d", len(res), MaxSearchResults)
	}
}

func TestMarketChart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/bitcoin/market_chart" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("days") != "30" || r.URL.Query().Get("interval") != "daily" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"prices":[[1700000000000,100],[1700086400000,110]],"market_caps":[],"total_volumes":[]}`)
	})

	chart, err := c.MarketChart(context.Background(), "bitcoin", "30", "daily")
	if err != nil {
		t.Fatalf("MarketChart: %v", err)
	}
	if len(chart.Prices) != 2 || chart.Prices[1].Value != 110 {
		t.Errorf("prices = %+v", chart.Prices)
	}
	if chart.Prices[0].Time.UnixMilli() != 1700000000000 {
		t.Errorf("time = %v", chart.Prices[0].Time)
	}
}

func TestMarketChart_BadPair(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"prices":[[1700000000000]]}`)
	})
	if _, err := c.MarketChart(context.Background(), "bitcoin", "1", ""); err == nil {
		t.Fatal("expected error for malformed pair")
	}
}

func TestCategoriesAndTrending(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/coins/categories":
			fmt.Fprint(w, `[{"id":"layer-1","name":"Layer 1 (L1)","market_cap":1.5e12,"top_3_coins":["a","b","c"]}]`)
		case "/search/trending":
			fmt.Fprint(w, `{"coins":[{"item":{"id":"pepe","name":"Pepe","symbol":"PEPE","market_cap_rank":30,"price_btc":1e-10,"score":0}}]}`)
		default:
			http.NotFound(w, r)
		}
	})

	cats, err := c.Categories(context.Background())
	if err != nil || len(cats) != 1 || cats[0].ID != "layer-1" {
		t.Fatalf("Categories = %+v, %v", cats, err)
	}
	trending, err := c.Trending(context.Background())
	if err != nil || len(trending) != 1 || trending[0].Symbol != "PEPE" {
		t.Fatalf("Trending = %+v, %v", trending, err)
	}
}

func TestUpstreamOrder(t *testing.T) {
	tests := map[domain.SortKey]string{
		domain.SortMarketCapDesc: "market_cap_desc",
		domain.SortVolumeDesc:    "volume_desc",
		domain.SortPriceAsc:      "market_cap_desc",
		domain.SortChange24hDesc: "market_cap_desc",
		"":                       "market_cap_desc",
	}
	for k, want := range tests {
		if got := UpstreamOrder(k); got != want {
			t.Errorf("UpstreamOrder(%q) = %q, want %q", k, got, want)
		}
	}
}
