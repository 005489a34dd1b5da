package usecase

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"crypto-dashboard/internal/config"
	"crypto-dashboard/internal/domain"
	"crypto-dashboard/internal/format"
	"crypto-dashboard/internal/querycache"
)

const (
	// MaxCategoryOptions is how many categories the market page offers.
	MaxCategoryOptions = 20
	// OverviewTopCoins is how many coins the overview lists.
	OverviewTopCoins = 5
	// GreetingFallback is used when the user has no display name.
	GreetingFallback = "Trader"
	// FetchFailedMessage is shown in place of a section that failed to load.
	FetchFailedMessage = "Failed to load market data. Please try again."
)

// MarketService serves market data through per-endpoint query caches.
type MarketService struct {
	source     domain.MarketDataSource
	vsCurrency string
	perPage    int
	defaultIDs []string
	logger     *slog.Logger

	markets    *querycache.Cache[[]domain.Coin]
	global     *querycache.Cache[domain.MarketStats]
	categories *querycache.Cache[[]domain.Category]
	trending   *querycache.Cache[[]domain.TrendingCoin]
	history    *querycache.Cache[domain.MarketChart]
	search     *querycache.Cache[[]domain.SearchResult]
}

func NewMarketService(source domain.MarketDataSource, cfg config.MarketConfig, defaultIDs []string, logger *slog.Logger, opts ...querycache.Option) *MarketService {
	if logger == nil {
		logger = slog.Default()
	}
	retain := cfg.UnusedEntryRetention
	return &MarketService{
		source:     source,
		vsCurrency: cfg.VsCurrency,
		perPage:    cfg.PerPage,
		defaultIDs: defaultIDs,
		logger:     logger,

		markets: querycache.New[[]domain.Coin]("markets", querycache.Policy{
			StaleTime:       cfg.StaleTime,
			RefetchInterval: cfg.RefetchInterval,
			RetainUnused:    retain,
			FetchTimeout:    cfg.Timeout,
		}, logger, opts...),
		global: querycache.New[domain.MarketStats]("global", querycache.Policy{
			StaleTime:       cfg.GlobalStaleTime,
			RefetchInterval: cfg.GlobalRefetchInterval,
			FetchTimeout:    cfg.Timeout,
		}, logger, opts...),
		categories: querycache.New[[]domain.Category]("categories", querycache.Policy{
			StaleTime:       cfg.CategoriesStaleTime,
			RefetchInterval: cfg.CategoriesRefetchInterval,
			FetchTimeout:    cfg.Timeout,
		}, logger, opts...),
		trending: querycache.New[[]domain.TrendingCoin]("trending", querycache.Policy{
			StaleTime:       cfg.CategoriesStaleTime,
			RefetchInterval: cfg.CategoriesRefetchInterval,
			FetchTimeout:    cfg.Timeout,
		}, logger, opts...),
		history: querycache.New[domain.MarketChart]("history", querycache.Policy{
			StaleTime:    cfg.HistoryStaleTime,
			RetainUnused: retain,
			FetchTimeout: cfg.Timeout,
		}, logger, opts...),
		search: querycache.New[[]domain.SearchResult]("search", querycache.Policy{
			StaleTime:    cfg.SearchStaleTime,
			RetainUnused: retain,
			FetchTimeout: cfg.Timeout,
		}, logger, opts...),
	}
}

// Close stops every background revalidation.
func (uc *MarketService) Close() {
	uc.markets.Close()
	uc.global.Close()
	uc.categories.Close()
	uc.trending.Close()
	uc.history.Close()
	uc.search.Close()
}

// PerPage is the default page size of market listings.
func (uc *MarketService) PerPage() int { return uc.perPage }

// VsCurrency is the quote currency of every figure.
func (uc *MarketService) VsCurrency() string { return uc.vsCurrency }

// Markets returns one page of the listing described by q.
func (uc *MarketService) Markets(ctx context.Context, q domain.MarketQuery) ([]domain.Coin, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return uc.markets.Get(ctx, q.Key(), uc.fetchMarkets(q))
}

// SubscribeMarkets pushes every revalidation of q to fn until the returned
// function is called.
func (uc *MarketService) SubscribeMarkets(q domain.MarketQuery, fn func(querycache.Result[[]domain.Coin])) (unsubscribe func(), err error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return uc.markets.Subscribe(q.Key(), uc.fetchMarkets(q), fn), nil
}

func (uc *MarketService) fetchMarkets(q domain.MarketQuery) querycache.Fetcher[[]domain.Coin] {
	return func(ctx context.Context) ([]domain.Coin, error) {
		return uc.source.Markets(ctx, q)
	}
}

// CoinsByIDs returns the listing entries of ids, or of the default id set
// when ids is empty. Id sets larger than one page are loaded in chunks and
// merged by market cap.
func (uc *MarketService) CoinsByIDs(ctx context.Context, ids []string) ([]domain.Coin, error) {
	if len(ids) == 0 {
		ids = uc.defaultIDs
	}
	if len(ids) <= domain.MaxPerPage {
		return uc.coinsPage(ctx, ids)
	}

	chunks := make([][]domain.Coin, (len(ids)+domain.MaxPerPage-1)/domain.MaxPerPage)
	g, gctx := errgroup.WithContext(ctx)
	for i := range chunks {
		start := i * domain.MaxPerPage
		part := ids[start:min(start+domain.MaxPerPage, len(ids))]
		g.Go(func() error {
			coins, err := uc.coinsPage(gctx, part)
			chunks[i] = coins
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []domain.Coin
	for _, c := range chunks {
		out = append(out, c...)
	}
	SortCoins(out, domain.FieldMarketCap, domain.Descending)
	return out, nil
}

func (uc *MarketService) coinsPage(ctx context.Context, ids []string) ([]domain.Coin, error) {
	return uc.Markets(ctx, domain.MarketQuery{
		IDs:     ids,
		Page:    1,
		PerPage: len(ids),
		SortBy:  domain.SortMarketCapDesc,
	})
}

func (uc *MarketService) Global(ctx context.Context) (domain.MarketStats, error) {
	return uc.global.Get(ctx, "global", uc.source.Global)
}

func (uc *MarketService) Categories(ctx context.Context) ([]domain.Category, error) {
	return uc.categories.Get(ctx, "categories", uc.source.Categories)
}

func (uc *MarketService) Trending(ctx context.Context) ([]domain.TrendingCoin, error) {
	return uc.trending.Get(ctx, "trending", uc.source.Trending)
}

// Search looks coins up by name or symbol.
func (uc *MarketService) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	key := querycache.Key("search", map[string]string{"q": query})
	return uc.search.Get(ctx, key, func(ctx context.Context) ([]domain.SearchResult, error) {
		return uc.source.Search(ctx, query)
	})
}

// CoinDisplay holds the formatted figures of a coin row.
type CoinDisplay struct {
	Price     string `json:"price"`
	MarketCap string `json:"marketCap"`
	Volume    string `json:"volume"`
	Change24h string `json:"change24h"`
	Change7d  string `json:"change7d"`
}

// CoinRow is a coin with its display strings.
type CoinRow struct {
	domain.Coin
	Display CoinDisplay `json:"display"`
}

// StatsDisplay holds the formatted global figures.
type StatsDisplay struct {
	TotalMarketCap     string `json:"totalMarketCap"`
	TotalVolume        string `json:"totalVolume"`
	MarketCapChange24h string `json:"marketCapChange24h"`
	BTCDominance       string `json:"btcDominance"`
	ETHDominance       string `json:"ethDominance"`
}

// StatsView is the market-stats card.
type StatsView struct {
	domain.MarketStats
	Display StatsDisplay `json:"display"`
}

func (uc *MarketService) rows(coins []domain.Coin) []CoinRow {
	price := func(v float64) string { return format.Price(v, uc.vsCurrency) }
	large := func(v float64) string { return format.LargeNumber(v, uc.vsCurrency) }

	rows := make([]CoinRow, len(coins))
	for i, c := range coins {
		rows[i] = CoinRow{
			Coin: c,
			Display: CoinDisplay{
				Price:     price(c.CurrentPrice),
				MarketCap: format.Optional(c.MarketCap, large),
				Volume:    format.Optional(c.TotalVolume, large),
				Change24h: format.Optional(c.PriceChangePercentage24h, format.Percent),
				Change7d:  format.Optional(c.PriceChangePercentage7d, format.Percent),
			},
		}
	}
	return rows
}

func (uc *MarketService) statsView(s domain.MarketStats) *StatsView {
	return &StatsView{
		MarketStats: s,
		Display: StatsDisplay{
			TotalMarketCap:     format.Aggregate(s.TotalMarketCap, uc.vsCurrency),
			TotalVolume:        format.Aggregate(s.TotalVolume, uc.vsCurrency),
			MarketCapChange24h: format.Percent(s.MarketCapChange24h),
			BTCDominance:       format.Percent(s.Dominance.BTC),
			ETHDominance:       format.Percent(s.Dominance.ETH),
		},
	}
}

// CategoryOption is an entry of the category selector.
type CategoryOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// MarketPage is the model of the market screen.
type MarketPage struct {
	Filters          domain.FilterState  `json:"filters"`
	HasActiveFilters bool                `json:"hasActiveFilters"`
	Stats            *StatsView          `json:"stats"`
	Coins            []CoinRow           `json:"coins"`
	Pagination       PageInfo            `json:"pagination"`
	Categories       []CategoryOption    `json:"categories"`
	SortOptions      []domain.SortOption `json:"sortOptions"`

	// Errors holds the failures of secondary sections, keyed by section.
	Errors    map[string]string `json:"errors,omitempty"`
	FetchedAt time.Time         `json:"fetchedAt"`
}

// MarketPage loads the listing selected by f together with the global
// stats and the category options. Only a listing failure fails the page.
func (uc *MarketService) MarketPage(ctx context.Context, f domain.FilterState, perPage int) (*MarketPage, error) {
	if perPage <= 0 {
		perPage = uc.perPage
	}

	var (
		cats     []domain.Category
		catsErr  error
		stats    domain.MarketStats
		statsErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cats, catsErr = uc.Categories(gctx)
		return nil
	})
	g.Go(func() error {
		stats, statsErr = uc.Global(gctx)
		return nil
	})
	_ = g.Wait()

	f = f.Normalize(CategoryChoices(cats, catsErr, f.Category))

	coins, err := uc.Markets(ctx, domain.MarketQuery{
		Page:     f.Page,
		PerPage:  perPage,
		Category: f.CategoryParam(),
		SortBy:   f.SortBy,
	})
	if err != nil {
		return nil, err
	}
	visible := Apply(coins, f)

	page := &MarketPage{
		Filters:          f,
		HasActiveFilters: f.HasActiveFilters(),
		Coins:            uc.rows(visible),
		Pagination:       NewPageInfo(f.Page, perPage, len(coins), len(visible)),
		Categories:       categoryOptions(cats),
		SortOptions:      domain.SortOptions(),
		FetchedAt:        time.Now().UTC(),
	}
	if statsErr == nil {
		page.Stats = uc.statsView(stats)
	} else {
		page.addError("stats", statsErr)
	}
	if catsErr != nil {
		page.addError("categories", catsErr)
	}
	return page, nil
}

func (p *MarketPage) addError(section string, err error) {
	if p.Errors == nil {
		p.Errors = make(map[string]string)
	}
	p.Errors[section] = userMessage(err)
}

func categoryOptions(cats []domain.Category) []CategoryOption {
	options := []CategoryOption{{Value: domain.CategoryAll, Label: "All Categories"}}
	for i, c := range cats {
		if i == MaxCategoryOptions {
			break
		}
		options = append(options, CategoryOption{Value: c.ID, Label: c.Name})
	}
	return options
}

// OverviewPage is the model of the dashboard landing screen.
type OverviewPage struct {
	Greeting string                `json:"greeting"`
	Stats    *StatsView            `json:"stats"`
	TopCoins []CoinRow             `json:"topCoins"`
	Trending []domain.TrendingCoin `json:"trending"`
	Errors   map[string]string     `json:"errors,omitempty"`
}

// Overview loads the landing screen for user. Each section fails on its own.
func (uc *MarketService) Overview(ctx context.Context, user *domain.User) *OverviewPage {
	page := &OverviewPage{Greeting: user.FirstName(GreetingFallback)}
	errs := make(map[string]error)

	var (
		stats    domain.MarketStats
		coins    []domain.Coin
		trending []domain.TrendingCoin
		statsErr error
		coinsErr error
		trendErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stats, statsErr = uc.Global(gctx)
		return nil
	})
	g.Go(func() error {
		coins, coinsErr = uc.CoinsByIDs(gctx, nil)
		return nil
	})
	g.Go(func() error {
		trending, trendErr = uc.Trending(gctx)
		return nil
	})
	_ = g.Wait()

	if statsErr == nil {
		page.Stats = uc.statsView(stats)
	} else {
		errs["stats"] = statsErr
	}
	if coinsErr == nil {
		page.TopCoins = uc.rows(coins[:min(len(coins), OverviewTopCoins)])
	} else {
		errs["topCoins"] = coinsErr
	}
	if trendErr == nil {
		page.Trending = trending
	} else {
		errs["trending"] = trendErr
	}

	for section, err := range errs {
		uc.logger.Warn("overview section failed", slog.String("section", section), slog.Any("error", err))
		if page.Errors == nil {
			page.Errors = make(map[string]string)
		}
		page.Errors[section] = userMessage(err)
	}
	return page
}

// userMessage is the text shown for a failed section.
func userMessage(err error) string {
	if err == nil {
		return ""
	}
	return FetchFailedMessage
}
