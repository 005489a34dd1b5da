package usecase

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"crypto-dashboard/internal/domain"
)

// Apply returns the coins of one loaded page that match f, in the order f
// selects. It never adds entries and never mutates its input. Category and
// page are applied upstream and are ignored here.
func Apply(coins []domain.Coin, f domain.FilterState) []domain.Coin {
	out := make([]domain.Coin, 0, len(coins))
	query := strings.ToLower(strings.TrimSpace(f.Search))
	for _, c := range coins {
		if query != "" &&
			!strings.Contains(strings.ToLower(c.Name), query) &&
			!strings.Contains(strings.ToLower(c.Symbol), query) {
			continue
		}
		if !matchesPriceFilter(c, f.PriceFilter) {
			continue
		}
		out = append(out, c)
	}

	if field, dir, ok := f.SortBy.Field(); ok {
		SortCoins(out, field, dir)
	}
	return out
}

func matchesPriceFilter(c domain.Coin, p domain.PriceFilter) bool {
	switch p {
	case domain.PriceGainers:
		v, ok := c.Value(domain.FieldChange24h)
		return ok && v > 0
	case domain.PriceLosers:
		v, ok := c.Value(domain.FieldChange24h)
		return ok && v < 0
	}
	return true
}

// SortCoins stably sorts coins in place by field. Coins without a value
// for field keep their relative order and follow every coin that has one.
func SortCoins(coins []domain.Coin, field domain.NumericField, dir domain.Direction) {
	sort.SliceStable(coins, func(i, j int) bool {
		a, aok := coins[i].Value(field)
		b, bok := coins[j].Value(field)
		switch {
		case !aok:
			return false
		case !bok:
			return true
		case dir == domain.Descending:
			return a > b
		default:
			return a < b
		}
	})
}

// PageInfo summarizes the loaded page window.
type PageInfo struct {
	Page    int  `json:"page"`
	PerPage int  `json:"perPage"`
	From    int  `json:"from"`
	To      int  `json:"to"`
	Loaded  int  `json:"loaded"`
	Visible int  `json:"visible"`
	HasPrev bool `json:"hasPrev"`
	HasNext bool `json:"hasNext"`

	// Scope is "page": filters only see the loaded page.
	Scope string `json:"scope"`
}

// NewPageInfo describes page given how many coins were loaded and how many
// survived filtering. A next page exists iff the loaded page is full.
func NewPageInfo(page, perPage, loaded, visible int) PageInfo {
	info := PageInfo{
		Page:    page,
		PerPage: perPage,
		Loaded:  loaded,
		Visible: visible,
		HasPrev: page > 1,
		HasNext: perPage > 0 && loaded == perPage,
		Scope:   "page",
	}
	if loaded > 0 {
		info.From = (page-1)*perPage + 1
		info.To = (page-1)*perPage + loaded
	}
	return info
}

// ParseFilterState reads a filter state from query parameters. Values are
// not validated; call Normalize against the presented options.
func ParseFilterState(v url.Values) domain.FilterState {
	f := domain.DefaultFilterState()
	f.Search = strings.TrimSpace(first(v, "search", "q"))
	if s := first(v, "category"); s != "" {
		f.Category = s
	}
	if s := first(v, "sortBy", "sort"); s != "" {
		f.SortBy = domain.SortKey(s)
	}
	if s := first(v, "priceFilter", "price"); s != "" {
		f.PriceFilter = domain.PriceFilter(s)
	}
	if s := first(v, "page"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			f.Page = n
		} else {
			f.Page = 0
		}
	}
	return f
}

// Values encodes f as query parameters, omitting defaults.
func Values(f domain.FilterState) url.Values {
	def := domain.DefaultFilterState()
	v := url.Values{}
	if f.Search != "" {
		v.Set("search", f.Search)
	}
	if f.Category != def.Category {
		v.Set("category", f.Category)
	}
	if f.SortBy != def.SortBy {
		v.Set("sortBy", string(f.SortBy))
	}
	if f.PriceFilter != def.PriceFilter {
		v.Set("priceFilter", string(f.PriceFilter))
	}
	if f.Page != def.Page {
		v.Set("page", strconv.Itoa(f.Page))
	}
	return v
}

func first(v url.Values, keys ...string) string {
	for _, k := range keys {
		if s := v.Get(k); s != "" {
			return s
		}
	}
	return ""
}
