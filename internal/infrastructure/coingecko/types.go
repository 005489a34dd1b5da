package coingecko

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"crypto-dashboard/internal/domain"
)

// marketCoin is the wire shape of one /coins/markets element.
type marketCoin struct {
	ID                           *string    `json:"id"`
	Symbol                       *string    `json:"symbol"`
	Name                         *string    `json:"name"`
	Image                        string     `json:"image"`
	CurrentPrice                 *float64   `json:"current_price"`
	MarketCap                    *float64   `json:"market_cap"`
	MarketCapRank                *int       `json:"market_cap_rank"`
	FullyDilutedValuation        *float64   `json:"fully_diluted_valuation"`
	TotalVolume                  *float64   `json:"total_volume"`
	High24h                      *float64   `json:"high_24h"`
	Low24h                       *float64   `json:"low_24h"`
	PriceChange24h               *float64   `json:"price_change_24h"`
	PriceChangePercentage24h     *float64   `json:"price_change_percentage_24h"`
	PriceChangePercentage1h      *float64   `json:"price_change_percentage_1h_in_currency"`
	PriceChangePercentage7d      *float64   `json:"price_change_percentage_7d_in_currency"`
	PriceChangePercentage30d     *float64   `json:"price_change_percentage_30d_in_currency"`
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
	LastUpdated                  *time.Time `json:"last_updated"`
	Sparkline                    *struct {
		Price []float64 `json:"price"`
	} `json:"sparkline_in_7d"`
}

// toDomain validates c and maps it to a Coin. Identity fields and the
// current price are mandatory; every other figure may be null.
func (c marketCoin) toDomain() (domain.Coin, error) {
	if c.ID == nil || strings.TrimSpace(*c.ID) == "" {
		return domain.Coin{}, errors.New("coin without id")
	}
	id := *c.ID
	if c.Symbol == nil || *c.Symbol == "" {
		return domain.Coin{}, fmt.Errorf("coin %s: missing symbol", id)
	}
	if c.Name == nil || *c.Name == "" {
		return domain.Coin{}, fmt.Errorf("coin %s: missing name", id)
	}
	if c.CurrentPrice == nil {
		return domain.Coin{}, fmt.Errorf("coin %s: missing current_price", id)
	}
	if !finite(*c.CurrentPrice) || *c.CurrentPrice < 0 {
		return domain.Coin{}, fmt.Errorf("coin %s: invalid current_price %v", id, *c.CurrentPrice)
	}
	for name, v := range map[string]*float64{
		"market_cap":                  c.MarketCap,
		"total_volume":                c.TotalVolume,
		"price_change_percentage_24h": c.PriceChangePercentage24h,
	} {
		if v != nil && !finite(*v) {
			return domain.Coin{}, fmt.Errorf("coin %s: %s is not a finite number", id, name)
		}
	}

	coin := domain.Coin{
		ID:                           id,
		Symbol:                       *c.Symbol,
		Name:                         *c.Name,
		Image:                        c.Image,
		CurrentPrice:                 *c.CurrentPrice,
		MarketCap:                    c.MarketCap,
		MarketCapRank:                c.MarketCapRank,
		FullyDilutedValuation:        c.FullyDilutedValuation,
		TotalVolume:                  c.TotalVolume,
		High24h:                      c.High24h,
		Low24h:                       c.Low24h,
		PriceChange24h:               c.PriceChange24h,
		PriceChangePercentage1h:      c.PriceChangePercentage1h,
		PriceChangePercentage24h:     c.PriceChangePercentage24h,
		PriceChangePercentage7d:      c.PriceChangePercentage7d,
		PriceChangePercentage30d:     c.PriceChangePercentage30d,
		MarketCapChange24h:           c.MarketCapChange24h,
		MarketCapChangePercentage24h: c.MarketCapChangePercentage24h,
		CirculatingSupply:            c.CirculatingSupply,
		TotalSupply:                  c.TotalSupply,
		MaxSupply:                    c.MaxSupply,
		ATH:                          c.ATH,
		ATHChangePercentage:          c.ATHChangePercentage,
		ATHDate:                      c.ATHDate,
		ATL:                          c.ATL,
		ATLChangePercentage:          c.ATLChangePercentage,
		ATLDate:                      c.ATLDate,
	}
	if c.LastUpdated != nil {
		coin.LastUpdated = *c.LastUpdated
	}
	if c.Sparkline != nil {
		coin.Sparkline7d = c.Sparkline.Price
	}
	return coin, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

type globalResponse struct {
	Data *struct {
		ActiveCryptocurrencies          int                `json:"active_cryptocurrencies"`
		TotalMarketCap                  map[string]float64 `json:"total_market_cap"`
		TotalVolume                     map[string]float64 `json:"total_volume"`
		MarketCapPercentage             map[string]float64 `json:"market_cap_percentage"`
		MarketCapChangePercentage24hUSD float64            `json:"market_cap_change_percentage_24h_usd"`
		UpdatedAt                       int64              `json:"updated_at"`
	} `json:"data"`
}

func (g globalResponse) toDomain(vsCurrency string) (domain.MarketStats, error) {
	if g.Data == nil {
		return domain.MarketStats{}, errors.New("missing data object")
	}
	mcap, ok := g.Data.TotalMarketCap[vsCurrency]
	if !ok {
		return domain.MarketStats{}, fmt.Errorf("total_market_cap has no %q figure", vsCurrency)
	}
	vol, ok := g.Data.TotalVolume[vsCurrency]
	if !ok {
		return domain.MarketStats{}, fmt.Errorf("total_volume has no %q figure", vsCurrency)
	}
	stats := domain.MarketStats{
		TotalMarketCap: mcap,
		TotalVolume:    vol,
		TotalCoins:     g.Data.ActiveCryptocurrencies,
		Dominance: domain.Dominance{
			BTC: g.Data.MarketCapPercentage["btc"],
			ETH: g.Data.MarketCapPercentage["eth"],
		},
		MarketCapChange24h: g.Data.MarketCapChangePercentage24hUSD,
	}
	if g.Data.UpdatedAt > 0 {
		stats.UpdatedAt = time.Unix(g.Data.UpdatedAt, 0).UTC()
	}
	return stats, nil
}

type category struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	MarketCap          *float64   `json:"market_cap"`
	MarketCapChange24h *float64   `json:"market_cap_change_24h"`
	Volume24h          *float64   `json:"volume_24h"`
	Top3Coins          []string   `json:"top_3_coins"`
	UpdatedAt          *time.Time `json:"updated_at"`
}

func (c category) toDomain() (domain.Category, error) {
	if c.ID == "" || c.Name == "" {
		return domain.Category{}, fmt.Errorf("category %q: missing id or name", c.ID)
	}
	out := domain.Category{
		ID:                 c.ID,
		Name:               c.Name,
		MarketCap:          c.MarketCap,
		MarketCapChange24h: c.MarketCapChange24h,
		Volume24h:          c.Volume24h,
		Top3Coins:          c.Top3Coins,
	}
	if c.UpdatedAt != nil {
		out.UpdatedAt = *c.UpdatedAt
	}
	return out, nil
}

type searchResponse struct {
	Coins []struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		Symbol        string `json:"symbol"`
		MarketCapRank *int   `json:"market_cap_rank"`
		Thumb         string `json:"thumb"`
		Large         string `json:"large"`
	} `json:"coins"`
}

type trendingResponse struct {
	Coins []struct {
		Item struct {
			ID            string  `json:"id"`
			Name          string  `json:"name"`
			Symbol        string  `json:"symbol"`
			MarketCapRank *int    `json:"market_cap_rank"`
			Thumb         string  `json:"thumb"`
			PriceBTC      float64 `json:"price_btc"`
			Score         int     `json:"score"`
		} `json:"item"`
	} `json:"coins"`
}

// chartResponse holds [timestamp_ms, value] pairs.
type chartResponse struct {
	Prices       [][]float64 `json:"prices"`
	MarketCaps   [][]float64 `json:"market_caps"`
	TotalVolumes [][]float64 `json:"total_volumes"`
}

func (r chartResponse) toDomain(coinID string) (domain.MarketChart, error) {
	if r.Prices == nil {
		return domain.MarketChart{}, errors.New("missing prices series")
	}
	prices, err := points("prices", r.Prices)
	if err != nil {
		return domain.MarketChart{}, err
	}
	caps, err := points("market_caps", r.MarketCaps)
	if err != nil {
		return domain.MarketChart{}, err
	}
	vols, err := points("total_volumes", r.TotalVolumes)
	if err != nil {
		return domain.MarketChart{}, err
	}
	return domain.MarketChart{CoinID: coinID, Prices: prices, MarketCaps: caps, TotalVolumes: vols}, nil
}

func points(name string, raw [][]float64) ([]domain.PricePoint, error) {
	out := make([]domain.PricePoint, 0, len(raw))
	for i, p := range raw {
		if len(p) != 2 {
			return nil, fmt.Errorf("%s[%d]: expected [time, value] pair, got %d elements", name, i, len(p))
		}
		out = append(out, domain.PricePoint{Time: time.UnixMilli(int64(p[0])).UTC(), Value: p[1]})
	}
	return out, nil
}

// apiError is the error body some endpoints return with a 4xx status.
type apiError struct {
	Error  string `json:"error"`
	Status *struct {
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
}

func parseAPIError(body []byte) string {
	var e apiError
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}
	if e.Status != nil && e.Status.ErrorMessage != "" {
		return e.Status.ErrorMessage
	}
	return e.Error
}
