package domain

import "time"

// Coin is a single asset's market snapshot as returned by the market-data API.
// Optional figures are pointers: the upstream API sends null for assets it
// has no data on, and a nil value must not be confused with zero.
type Coin struct {
	ID                           string     `json:"id"`
	Symbol                       string     `json:"symbol"`
	Name                         string     `json:"name"`
	Image                        string     `json:"image"`
	CurrentPrice                 float64    `json:"current_price"`
	MarketCap                    *float64   `json:"market_cap"`
	MarketCapRank                *int       `json:"market_cap_rank"`
	FullyDilutedValuation        *float64   `json:"fully_diluted_valuation"`
	TotalVolume                  *float64   `json:"total_volume"`
	High24h                      *float64   `json:"high_24h"`
	Low24h                       *float64   `json:"low_24h"`
	PriceChange24h               *float64   `json:"price_change_24h"`
	PriceChangePercentage1h      *float64   `json:"price_change_percentage_1h_in_currency,omitempty"`
	PriceChangePercentage24h     *float64   `json:"price_change_percentage_24h"`
	PriceChangePercentage7d      *float64   `json:"price_change_percentage_7d_in_currency"`
	PriceChangePercentage30d     *float64   `json:"price_change_percentage_30d_in_currency,omitempty"`
	MarketCapChange24h           *float64   `json:"market_cap_change_24h"`
	MarketCapChangePercentage24h *float64   `json:"market_cap_change_percentage_24h"`
	CirculatingSupply            *float64   `json:"circulating_supply"`
	TotalSupply                  *float64   `json:"total_supply"`
	MaxSupply                    *float64   `json:"max_supply"`
	ATH                          *float64   `json:"ath"`
	ATHChangePercentage          *float64   `json:"ath_change_percentage"`
	ATHDate                      *time.Time `json:"ath_date"`
	ATL                          *float64   `json:"atl"`
	ATLChangePercentage          *float64   `json:"atl_change_percentage"`
	ATLDate                      *time.Time `json:"atl_date"`
	LastUpdated                  time.Time  `json:"last_updated"`
	Sparkline7d                  []float64  `json:"sparkline_in_7d,omitempty"`
}

// NumericField names a sortable numeric column of a Coin.
type NumericField string

const (
	FieldPrice     NumericField = "current_price"
	FieldChange24h NumericField = "price_change_percentage_24h"
	FieldChange7d  NumericField = "price_change_percentage_7d_in_currency"
	FieldMarketCap NumericField = "market_cap"
	FieldVolume    NumericField = "total_volume"
	FieldRank      NumericField = "market_cap_rank"
)

// NumericFields lists the columns a coin table can be sorted by.
func NumericFields() []NumericField {
	return []NumericField{FieldPrice, FieldChange24h, FieldChange7d, FieldMarketCap, FieldVolume, FieldRank}
}

// Value returns the coin's value for f. ok is false when the value is missing
// or f is not a numeric field.
func (c Coin) Value(f NumericField) (v float64, ok bool) {
	switch f {
	case FieldPrice:
		return c.CurrentPrice, true
	case FieldChange24h:
		return deref(c.PriceChangePercentage24h)
	case FieldChange7d:
		return deref(c.PriceChangePercentage7d)
	case FieldMarketCap:
		return deref(c.MarketCap)
	case FieldVolume:
		return deref(c.TotalVolume)
	case FieldRank:
		if c.MarketCapRank == nil {
			return 0, false
		}
		return float64(*c.MarketCapRank), true
	}
	return 0, false
}

func deref(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

// MarketStats aggregates the global market figures.
type MarketStats struct {
	TotalMarketCap     float64   `json:"totalMarketCap"`
	TotalVolume        float64   `json:"totalVolume"`
	TotalCoins         int       `json:"totalCoins"`
	Dominance          Dominance `json:"dominance"`
	MarketCapChange24h float64   `json:"marketCapChange24h"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Dominance holds market-cap dominance percentages for the two reference assets.
type Dominance struct {
	BTC float64 `json:"btc"`
	ETH float64 `json:"eth"`
}

// Category is a coin category, used only as a filter dimension.
type Category struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	MarketCap          *float64  `json:"market_cap"`
	MarketCapChange24h *float64  `json:"market_cap_change_24h"`
	Volume24h          *float64  `json:"volume_24h"`
	Top3Coins          []string  `json:"top_3_coins,omitempty"`
	UpdatedAt          time.Time `json:"updated_at,omitempty"`
}

// TrendingCoin is an entry of the trending-search list.
type TrendingCoin struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Symbol        string  `json:"symbol"`
	MarketCapRank *int    `json:"market_cap_rank"`
	Thumb         string  `json:"thumb"`
	PriceBTC      float64 `json:"price_btc"`
	Score         int     `json:"score"`
}

// SearchResult is a coin matched by the full-text search endpoint.
type SearchResult struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	MarketCapRank *int   `json:"market_cap_rank"`
	Thumb         string `json:"thumb"`
	Large         string `json:"large"`
}

// PricePoint is one sample of a market-chart series.
type PricePoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// MarketChart is the price, market-cap and volume history of a coin.
type MarketChart struct {
	CoinID       string       `json:"coinId"`
	Prices       []PricePoint `json:"prices"`
	MarketCaps   []PricePoint `json:"marketCaps"`
	TotalVolumes []PricePoint `json:"totalVolumes"`
}
