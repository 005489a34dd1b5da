package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"crypto-dashboard/internal/format"
	"crypto-dashboard/internal/infrastructure/coingecko"
	"crypto-dashboard/internal/usecase"
)

type globalCmd struct{}

func (*globalCmd) Name() string           { return "global" }
func (*globalCmd) Synopsis() string       { return "show total market cap, volume and dominance" }
func (*globalCmd) Usage() string          { return "dashctl global\n" }
func (*globalCmd) SetFlags(*flag.FlagSet) {}

func (*globalCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	client, _, err := newClient()
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	stats, err := client.Global(ctx)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	vs := client.VsCurrency()
	w := table(os.Stdout)
	fmt.Fprintf(w, "Total market cap\t%s\t\n", format.Aggregate(stats.TotalMarketCap, vs))
	fmt.Fprintf(w, "24h volume\t%s\t\n", format.Aggregate(stats.TotalVolume, vs))
	fmt.Fprintf(w, "24h change\t%s\t\n", format.Percent(stats.MarketCapChange24h))
	fmt.Fprintf(w, "BTC dominance\t%s\t\n", format.Percent(stats.Dominance.BTC))
	fmt.Fprintf(w, "ETH dominance\t%s\t\n", format.Percent(stats.Dominance.ETH))
	fmt.Fprintf(w, "Active coins\t%d\t\n", stats.TotalCoins)
	w.Flush()
	return subcommands.ExitSuccess
}

type searchCmd struct{}

func (*searchCmd) Name() string           { return "search" }
func (*searchCmd) Synopsis() string       { return "look coins up by name or symbol" }
func (*searchCmd) SetFlags(*flag.FlagSet) {}
func (*searchCmd) Usage() string {
	return fmt.Sprintf("dashctl search <query>\n\n  Queries shorter than %d characters return nothing.\n", coingecko.MinSearchLength)
}

func (*searchCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	client, _, err := newClient()
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	results, err := client.Search(ctx, strings.Join(f.Args(), " "))
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	w := table(os.Stdout)
	fmt.Fprintln(w, "Rank\tId\tSymbol\tName\t")
	for _, r := range results {
		rank := "-"
		if r.MarketCapRank != nil {
			rank = fmt.Sprint(*r.MarketCapRank)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", rank, r.ID, strings.ToUpper(r.Symbol), r.Name)
	}
	w.Flush()
	return subcommands.ExitSuccess
}

type trendingCmd struct{}

func (*trendingCmd) Name() string           { return "trending" }
func (*trendingCmd) Synopsis() string       { return "list the trending coins" }
func (*trendingCmd) Usage() string          { return "dashctl trending\n" }
func (*trendingCmd) SetFlags(*flag.FlagSet) {}

func (*trendingCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	client, _, err := newClient()
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	coins, err := client.Trending(ctx)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	w := table(os.Stdout)
	fmt.Fprintln(w, "Rank\tId\tSymbol\tName\tPrice (BTC)\t")
	for _, c := range coins {
		rank := "-"
		if c.MarketCapRank != nil {
			rank = fmt.Sprint(*c.MarketCapRank)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.10f\t\n", rank, c.ID, strings.ToUpper(c.Symbol), c.Name, c.PriceBTC)
	}
	w.Flush()
	return subcommands.ExitSuccess
}

type historyCmd struct {
	days     string
	interval string
	overlays string
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "print a coin's price history with indicator overlays" }
func (*historyCmd) Usage() string {
	return `dashctl history [-days 7] [-interval daily] [-overlay ema,rsi:7,bb] <coin-id>
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.days, "days", "7", "History window: 1, 7, 14, 30, 90, 180, 365 or max.")
	f.StringVar(&c.interval, "interval", "", "Empty for automatic granularity, or daily.")
	f.StringVar(&c.overlays, "overlay", "", "Comma separated overlays: ema, sma, rsi, bb, each with an optional :period.")
}

func (c *historyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	overlays, err := usecase.ParseOverlays(c.overlays)
	if err != nil {
		fail(err)
		return subcommands.ExitUsageError
	}
	client, cfg, err := newClient()
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	market := usecase.NewMarketService(client, cfg.Market, coingecko.DefaultCoinIDs, nil)
	defer market.Close()

	view, err := market.History(ctx, f.Arg(0), c.days, c.interval, overlays)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}

	// overlay values by timestamp
	columns := make([]map[int64]float64, len(view.Overlays))
	for i, o := range view.Overlays {
		columns[i] = make(map[int64]float64, len(o.Points))
		for _, p := range o.Points {
			columns[i][p.Time.UnixMilli()] = p.Value
		}
	}

	vs := client.VsCurrency()
	w := table(os.Stdout)
	fmt.Fprint(w, "Time\tPrice\t")
	for _, o := range view.Overlays {
		fmt.Fprintf(w, "%s(%d)\t", o.Name, o.Period)
	}
	fmt.Fprintln(w)
	for _, p := range view.Prices {
		fmt.Fprintf(w, "%s\t%s\t", p.Time.Format("2006-01-02 15:04"), format.Price(p.Value, vs))
		for _, col := range columns {
			if v, ok := col[p.Time.UnixMilli()]; ok {
				fmt.Fprintf(w, "%.2f\t", v)
			} else {
				fmt.Fprint(w, "-\t")
			}
		}
		fmt.Fprintln(w)
	}
	w.Flush()
	return subcommands.ExitSuccess
}
