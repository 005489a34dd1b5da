package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"crypto-dashboard/internal/domain"
	"crypto-dashboard/internal/format"
	"crypto-dashboard/internal/usecase"
)

type marketsCmd struct {
	page     int
	perPage  int
	category string
	sort     string
	price    string
	search   string
	ids      string
}

func (*marketsCmd) Name() string     { return "markets" }
func (*marketsCmd) Synopsis() string { return "list one page of the coin table" }
func (*marketsCmd) Usage() string {
	return `dashctl markets [-page N] [-per-page N] [-category id] [-sort key] [-price all|gainers|losers] [-search text] [-ids a,b]

  Fetches one page of the coin listing and applies the same search, price
  filter and sort as the dashboard. Filters only see the fetched page.
`
}

func (c *marketsCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.page, "page", 1, "Page number, starting at 1.")
	f.IntVar(&c.perPage, "per-page", 20, "Coins per page (1 to 250).")
	f.StringVar(&c.category, "category", domain.CategoryAll, "Category id.")
	f.StringVar(&c.sort, "sort", string(domain.SortMarketCapDesc), "Sort key, e.g. price_desc or change_24h_asc.")
	f.StringVar(&c.price, "price", string(domain.PriceAll), "Price filter: all, gainers or losers.")
	f.StringVar(&c.search, "search", "", "Case-insensitive name or symbol filter.")
	f.StringVar(&c.ids, "ids", "", "Comma separated coin ids; overrides the page selection.")
}

func (c *marketsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	client, _, err := newClient()
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}

	f := domain.FilterState{
		Search:      strings.TrimSpace(c.search),
		Category:    c.category,
		SortBy:      domain.SortKey(c.sort),
		PriceFilter: domain.PriceFilter(c.price),
		Page:        c.page,
	}
	var known []string
	if f.Category != "" && f.Category != domain.CategoryAll {
		cats, err := client.Categories(ctx)
		known = usecase.CategoryChoices(cats, err, f.Category)
	}
	if f = f.Normalize(known); f.Category != c.category && c.category != "" {
		fmt.Fprintf(os.Stderr, "unknown category %q, showing all\n", c.category)
	}

	q := domain.MarketQuery{Page: f.Page, PerPage: c.perPage, Category: f.CategoryParam(), SortBy: f.SortBy}
	if c.ids != "" {
		q.IDs = strings.Split(c.ids, ",")
		q.Page = 1
		q.PerPage = len(q.IDs)
	}
	coins, err := client.Markets(ctx, q)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	visible := usecase.Apply(coins, f)

	vs := client.VsCurrency()
	large := func(v float64) string { return format.LargeNumber(v, vs) }
	w := table(os.Stdout)
	fmt.Fprintln(w, "#\tCoin\tPrice\t24h\t7d\tMarket Cap\tVolume\t")
	for _, coin := range visible {
		rank := "-"
		if coin.MarketCapRank != nil {
			rank = fmt.Sprint(*coin.MarketCapRank)
		}
		fmt.Fprintf(w, "%s\t%s (%s)\t%s\t%s\t%s\t%s\t%s\t\n",
			rank,
			coin.Name,
			strings.ToUpper(coin.Symbol),
			format.Price(coin.CurrentPrice, vs),
			format.Optional(coin.PriceChangePercentage24h, format.Percent),
			format.Optional(coin.PriceChangePercentage7d, format.Percent),
			format.Optional(coin.MarketCap, large),
			format.Optional(coin.TotalVolume, large),
		)
	}
	w.Flush()

	info := usecase.NewPageInfo(q.Page, q.PerPage, len(coins), len(visible))
	if info.Loaded > 0 {
		fmt.Printf("\nshowing %d of coins %d-%d", info.Visible, info.From, info.To)
		if info.HasNext {
			fmt.Printf(", next: -page %d", info.Page+1)
		}
		fmt.Println()
	}
	return subcommands.ExitSuccess
}
