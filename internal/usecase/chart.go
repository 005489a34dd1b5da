package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"crypto-dashboard/internal/domain"
	"crypto-dashboard/internal/infrastructure/indicators"
	"crypto-dashboard/internal/querycache"
)

var validDays = map[string]bool{
	"1": true, "7": true, "14": true, "30": true, "90": true, "180": true, "365": true, "max": true,
}

var defaultPeriods = map[string]int{
	"ema": 20,
	"sma": 20,
	"rsi": 14,
	"bb":  20,
}

// Overlay is an indicator series computed over the price history.
type Overlay struct {
	Name   string              `json:"name"`
	Period int                 `json:"period"`
	Points []domain.PricePoint `json:"points"`
}

// HistoryView is a coin's chart with its requested overlays.
type HistoryView struct {
	domain.MarketChart
	Overlays []Overlay `json:"overlays,omitempty"`
}

// ParseOverlays reads a comma separated overlay list such as
// "ema,rsi:7,bb". Unknown names and bad periods are rejected.
func ParseOverlays(s string) ([]OverlaySpec, error) {
	var specs []OverlaySpec
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		name, period, hasPeriod := strings.Cut(part, ":")
		def, ok := defaultPeriods[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown overlay %q", domain.ErrInvalidParameter, name)
		}
		spec := OverlaySpec{Name: name, Period: def}
		if hasPeriod {
			n, err := strconv.Atoi(period)
			if err != nil || n < 2 || n > 200 {
				return nil, fmt.Errorf("%w: overlay period %q", domain.ErrInvalidParameter, period)
			}
			spec.Period = n
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// OverlaySpec selects one overlay.
type OverlaySpec struct {
	Name   string
	Period int
}

// History returns the market chart of coinID with overlays computed over
// its prices. Bollinger bands produce three overlays.
func (uc *MarketService) History(ctx context.Context, coinID, days, interval string, overlays []OverlaySpec) (*HistoryView, error) {
	if coinID == "" {
		return nil, fmt.Errorf("%w: coin id is required", domain.ErrInvalidParameter)
	}
	if days == "" {
		days = "7"
	}
	if !validDays[days] {
		return nil, fmt.Errorf("%w: days %q", domain.ErrInvalidParameter, days)
	}
	if interval != "" && interval != "daily" {
		return nil, fmt.Errorf("%w: interval %q", domain.ErrInvalidParameter, interval)
	}

	key := querycache.Key("history", map[string]string{"id": coinID, "days": days, "interval": interval})
	chart, err := uc.history.Get(ctx, key, func(ctx context.Context) (domain.MarketChart, error) {
		return uc.source.MarketChart(ctx, coinID, days, interval)
	})
	if err != nil {
		return nil, err
	}

	view := &HistoryView{MarketChart: chart}
	closes := make([]float64, len(chart.Prices))
	for i, p := range chart.Prices {
		closes[i] = p.Value
	}
	for _, o := range overlays {
		switch o.Name {
		case "ema":
			view.Overlays = append(view.Overlays, overlay(chart.Prices, "ema", o.Period, indicators.EMA(closes, o.Period), indicators.Warmup("ema", o.Period)))
		case "sma":
			view.Overlays = append(view.Overlays, overlay(chart.Prices, "sma", o.Period, rollingMean(closes, o.Period), indicators.Warmup("sma", o.Period)))
		case "rsi":
			view.Overlays = append(view.Overlays, overlay(chart.Prices, "rsi", o.Period, indicators.RSI(closes, o.Period), indicators.Warmup("rsi", o.Period)))
		case "bb":
			bands := indicators.Bollinger(closes, o.Period, 2)
			skip := indicators.Warmup("bb", o.Period)
			view.Overlays = append(view.Overlays,
				overlay(chart.Prices, "bb_upper", o.Period, bands.Upper, skip),
				overlay(chart.Prices, "bb_middle", o.Period, bands.Middle, skip),
				overlay(chart.Prices, "bb_lower", o.Period, bands.Lower, skip),
			)
		}
	}
	return view, nil
}

func rollingMean(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := period - 1; i < len(values); i++ {
		out[i] = indicators.SMA(values[i-period+1 : i+1])
	}
	return out
}

// overlay pairs series with the price timestamps, dropping the warmup.
func overlay(prices []domain.PricePoint, name string, period int, series []float64, skip int) Overlay {
	o := Overlay{Name: name, Period: period, Points: []domain.PricePoint{}}
	if len(series) <= skip {
		return o
	}
	for i := skip; i < len(series); i++ {
		o.Points = append(o.Points, domain.PricePoint{Time: prices[i].Time, Value: series[i]})
	}
	return o
}
