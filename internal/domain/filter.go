package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// SortKey selects the ordering of a market listing.
type SortKey string

const (
	SortMarketCapDesc SortKey = "market_cap_desc"
	SortMarketCapAsc  SortKey = "market_cap_asc"
	SortPriceDesc     SortKey = "price_desc"
	SortPriceAsc      SortKey = "price_asc"
	SortVolumeDesc    SortKey = "volume_desc"
	SortVolumeAsc     SortKey = "volume_asc"
	SortChange24hDesc SortKey = "percent_change_24h_desc"
	SortChange24hAsc  SortKey = "percent_change_24h_asc"
)

// Direction of a sort.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// SortOption is a sort key with its display label.
type SortOption struct {
	Value SortKey `json:"value"`
	Label string  `json:"label"`
}

var sortOptions = []SortOption{
	{SortMarketCapDesc, "Market Cap (High to Low)"},
	{SortMarketCapAsc, "Market Cap (Low to High)"},
	{SortPriceDesc, "Price (High to Low)"},
	{SortPriceAsc, "Price (Low to High)"},
	{SortVolumeDesc, "Volume (High to Low)"},
	{SortVolumeAsc, "Volume (Low to High)"},
	{SortChange24hDesc, "24h Change (High to Low)"},
	{SortChange24hAsc, "24h Change (Low to High)"},
}

// SortOptions returns the presented set of sort keys.
func SortOptions() []SortOption {
	out := make([]SortOption, len(sortOptions))
	copy(out, sortOptions)
	return out
}

// Valid reports whether k belongs to the presented option set.
func (k SortKey) Valid() bool {
	for _, o := range sortOptions {
		if o.Value == k {
			return true
		}
	}
	return false
}

// Field returns the numeric field and direction k sorts by.
func (k SortKey) Field() (NumericField, Direction, bool) {
	switch k {
	case SortMarketCapDesc:
		return FieldMarketCap, Descending, true
	case SortMarketCapAsc:
		return FieldMarketCap, Ascending, true
	case SortPriceDesc:
		return FieldPrice, Descending, true
	case SortPriceAsc:
		return FieldPrice, Ascending, true
	case SortVolumeDesc:
		return FieldVolume, Descending, true
	case SortVolumeAsc:
		return FieldVolume, Ascending, true
	case SortChange24hDesc:
		return FieldChange24h, Descending, true
	case SortChange24hAsc:
		return FieldChange24h, Ascending, true
	}
	return "", "", false
}

// PriceFilter restricts a listing by 24h price direction.
type PriceFilter string

const (
	PriceAll     PriceFilter = "all"
	PriceGainers PriceFilter = "gainers"
	PriceLosers  PriceFilter = "losers"
)

// Valid reports whether p is one of the known price filters.
func (p PriceFilter) Valid() bool {
	return p == PriceAll || p == PriceGainers || p == PriceLosers
}

// CategoryAll is the category selection meaning "no category filter".
const CategoryAll = "all"

// FilterState is the user's current market-table selection.
type FilterState struct {
	Search      string      `json:"search"`
	Category    string      `json:"category"`
	SortBy      SortKey     `json:"sortBy"`
	PriceFilter PriceFilter `json:"priceFilter"`
	Page        int         `json:"page"`
}

// DefaultFilterState is the state a reset restores.
func DefaultFilterState() FilterState {
	return FilterState{
		Search:      "",
		Category:    CategoryAll,
		SortBy:      SortMarketCapDesc,
		PriceFilter: PriceAll,
		Page:        1,
	}
}

// Reset restores every field to its default.
func (f *FilterState) Reset() {
	*f = DefaultFilterState()
}

// HasActiveFilters reports whether f differs from the defaults in any way a
// user would want to clear.
func (f FilterState) HasActiveFilters() bool {
	return f.Search != "" ||
		f.Category != CategoryAll ||
		f.PriceFilter != PriceAll ||
		f.SortBy != SortMarketCapDesc
}

// Normalize replaces values outside the presented option sets with their
// defaults. categories is the list of selectable category ids; "all" is
// always accepted.
func (f FilterState) Normalize(categories []string) FilterState {
	if f.Category == "" {
		f.Category = CategoryAll
	}
	if f.Category != CategoryAll {
		known := false
		for _, id := range categories {
			if id == f.Category {
				known = true
				break
			}
		}
		if !known {
			f.Category = CategoryAll
		}
	}
	if !f.SortBy.Valid() {
		f.SortBy = SortMarketCapDesc
	}
	if !f.PriceFilter.Valid() {
		f.PriceFilter = PriceAll
	}
	if f.Page < 1 {
		f.Page = 1
	}
	return f
}

// CategoryParam returns the category to send upstream, empty for "all".
func (f FilterState) CategoryParam() string {
	if f.Category == CategoryAll {
		return ""
	}
	return f.Category
}

// MaxPerPage is the largest page the market-data API serves.
const MaxPerPage = 250

// MarketQuery is the parameter tuple of a market listing request.
type MarketQuery struct {
	IDs      []string
	Page     int
	PerPage  int
	Category string
	SortBy   SortKey
}

// Key returns the canonical cache key of q. Two queries selecting the same
// data produce the same key regardless of id order.
func (q MarketQuery) Key() string {
	ids := make([]string, len(q.IDs))
	copy(ids, q.IDs)
	sort.Strings(ids)
	parts := []string{
		"category=" + q.Category,
		"ids=" + strings.Join(ids, ","),
		"page=" + strconv.Itoa(q.Page),
		"per_page=" + strconv.Itoa(q.PerPage),
		"sort=" + string(q.SortBy),
	}
	return "markets?" + strings.Join(parts, "&")
}

// Validate checks q's pagination parameters.
func (q MarketQuery) Validate() error {
	if q.Page < 1 {
		return fmt.Errorf("%w: page must be positive, got %d", ErrInvalidParameter, q.Page)
	}
	if q.PerPage < 1 || q.PerPage > MaxPerPage {
		return fmt.Errorf("%w: per_page must be in [1, %d], got %d", ErrInvalidParameter, MaxPerPage, q.PerPage)
	}
	return nil
}
