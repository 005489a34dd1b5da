package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"crypto-dashboard/internal/domain"
)

const (
	DefaultBaseURL = "https://api.coingecko.com/api/v3"

	// MaxSearchResults caps the search endpoint's coin list.
	MaxSearchResults = 10
	// MinSearchLength is the shortest query sent upstream.
	MinSearchLength = 2

	priceChangeWindows = "1h,24h,7d,30d"
	maxErrorBody       = 4 << 10
)

// DefaultCoinIDs is the id set of the overview when no ids are requested.
var DefaultCoinIDs = []string{
	"bitcoin",
	"ethereum",
	"binancecoin",
	"cardano",
	"solana",
	"ripple",
	"polkadot",
	"dogecoin",
	"avalanche-2",
	"chainlink",
}

type Config struct {
	BaseURL           string
	APIKey            string
	VsCurrency        string
	Timeout           time.Duration
	RequestsPerSecond float64 // zero disables pacing
}

// Client talks to the public market-data API. Every response is validated
// before it is mapped to domain types.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	vsCurrency string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

var _ domain.MarketDataSource = (*Client)(nil)

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.VsCurrency == "" {
		cfg.VsCurrency = "usd"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		vsCurrency: strings.ToLower(cfg.VsCurrency),
		limiter:    limiter,
		logger:     logger.With(slog.String("component", "coingecko")),
	}
}

// VsCurrency returns the quote currency of every price the client returns.
func (c *Client) VsCurrency() string { return c.vsCurrency }

// Markets returns one page of the coin listing.
func (c *Client) Markets(ctx context.Context, q domain.MarketQuery) ([]domain.Coin, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("vs_currency", c.vsCurrency)
	params.Set("order", UpstreamOrder(q.SortBy))
	params.Set("per_page", strconv.Itoa(q.PerPage))
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("sparkline", "false")
	params.Set("price_change_percentage", priceChangeWindows)
	if len(q.IDs) > 0 {
		params.Set("ids", strings.Join(q.IDs, ","))
	}
	if q.Category != "" && q.Category != domain.CategoryAll {
		params.Set("category", q.Category)
	}

	const endpoint = "/coins/markets"
	var raw []marketCoin
	if err := c.getJSON(ctx, endpoint, params, &raw); err != nil {
		return nil, err
	}
	coins := make([]domain.Coin, 0, len(raw))
	for _, r := range raw {
		coin, err := r.toDomain()
		if err != nil {
			return nil, invalidPayload(endpoint, err)
		}
		coins = append(coins, coin)
	}
	return coins, nil
}

// MarketChart returns the history of coinID over days ("1", "7", "30",
// "max", ...). interval may be empty to let the API pick the granularity.
func (c *Client) MarketChart(ctx context.Context, coinID, days, interval string) (domain.MarketChart, error) {
	if strings.TrimSpace(coinID) == "" {
		return domain.MarketChart{}, fmt.Errorf("%w: coin id is required", domain.ErrInvalidParameter)
	}
	if days == "" {
		days = "7"
	}
	params := url.Values{}
	params.Set("vs_currency", c.vsCurrency)
	params.Set("days", days)
	if interval != "" {
		params.Set("interval", interval)
	}

	endpoint := "/coins/" + url.PathEscape(coinID) + "/market_chart"
	var raw chartResponse
	if err := c.getJSON(ctx, endpoint, params, &raw); err != nil {
		return domain.MarketChart{}, err
	}
	chart, err := raw.toDomain(coinID)
	if err != nil {
		return domain.MarketChart{}, invalidPayload(endpoint, err)
	}
	return chart, nil
}

// Search returns at most MaxSearchResults coins matching query. Queries
// shorter than MinSearchLength return nothing without calling the API.
func (c *Client) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinSearchLength {
		return []domain.SearchResult{}, nil
	}

	const endpoint = "/search"
	var raw searchResponse
	if err := c.getJSON(ctx, endpoint, url.Values{"query": {query}}, &raw); err != nil {
		return nil, err
	}
	out := make([]domain.SearchResult, 0, min(len(raw.Coins), MaxSearchResults))
	for _, r := range raw.Coins {
		if len(out) == MaxSearchResults {
			break
		}
		if r.ID == "" || r.Name == "" {
			return nil, invalidPayload(endpoint, fmt.Errorf("search result %q: missing id or name", r.ID))
		}
		out = append(out, domain.SearchResult{
			ID:            r.ID,
			Name:          r.Name,
			Symbol:        r.Symbol,
			MarketCapRank: r.MarketCapRank,
			Thumb:         r.Thumb,
			Large:         r.Large,
		})
	}
	return out, nil
}

// Categories returns every coin category.
func (c *Client) Categories(ctx context.Context) ([]domain.Category, error) {
	const endpoint = "/coins/categories"
	var raw []category
	if err := c.getJSON(ctx, endpoint, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]domain.Category, 0, len(raw))
	for _, r := range raw {
		cat, err := r.toDomain()
		if err != nil {
			return nil, invalidPayload(endpoint, err)
		}
		out = append(out, cat)
	}
	return out, nil
}

// Global returns the aggregate market figures in the client's quote currency.
func (c *Client) Global(ctx context.Context) (domain.MarketStats, error) {
	const endpoint = "/global"
	var raw globalResponse
	if err := c.getJSON(ctx, endpoint, nil, &raw); err != nil {
		return domain.MarketStats{}, err
	}
	stats, err := raw.toDomain(c.vsCurrency)
	if err != nil {
		return domain.MarketStats{}, invalidPayload(endpoint, err)
	}
	return stats, nil
}

// Trending returns the trending-search coins.
func (c *Client) Trending(ctx context.Context) ([]domain.TrendingCoin, error) {
	const endpoint = "/search/trending"
	var raw trendingResponse
	if err := c.getJSON(ctx, endpoint, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]domain.TrendingCoin, 0, len(raw.Coins))
	for _, r := range raw.Coins {
		it := r.Item
		if it.ID == "" {
			return nil, invalidPayload(endpoint, errors.New("trending coin without id"))
		}
		out = append(out, domain.TrendingCoin{
			ID:            it.ID,
			Name:          it.Name,
			Symbol:        it.Symbol,
			MarketCapRank: it.MarketCapRank,
			Thumb:         it.Thumb,
			PriceBTC:      it.PriceBTC,
			Score:         it.Score,
		})
	}
	return out, nil
}

// UpstreamOrder maps a sort key to the API's order parameter. Keys the API
// cannot order by are fetched by market cap and sorted locally.
func UpstreamOrder(k domain.SortKey) string {
	switch k {
	case domain.SortMarketCapDesc, domain.SortMarketCapAsc, domain.SortVolumeDesc, domain.SortVolumeAsc:
		return string(k)
	case "id_asc", "id_desc":
		return string(k)
	}
	return string(domain.SortMarketCapDesc)
}

func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &domain.FetchError{Endpoint: endpoint, Message: "request cancelled", Err: err}
	}

	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &domain.FetchError{Endpoint: endpoint, Message: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed", slog.String("endpoint", endpoint), slog.Any("error", err))
		return &domain.FetchError{Endpoint: endpoint, Message: "failed to fetch market data", Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("request",
		slog.String("endpoint", endpoint),
		slog.Int("status", resp.StatusCode),
		slog.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := parseAPIError(body)
		if msg == "" {
			msg = "failed to fetch market data"
		}
		return &domain.FetchError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return invalidPayload(endpoint, err)
	}
	return nil
}

func invalidPayload(endpoint string, err error) error {
	return &domain.FetchError{Endpoint: endpoint, Message: "invalid response payload", Err: err}
}
