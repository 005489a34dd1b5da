// Package format renders market figures for display.
package format

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

var suffixes = []struct {
	threshold decimal.Decimal
	suffix    string
}{
	{decimal.New(1, 12), "T"},
	{decimal.New(1, 9), "B"},
	{decimal.New(1, 6), "M"},
	{decimal.New(1, 3), "K"},
}

// Price formats a unit price: two decimals, or between four and six below 1.
func Price(value float64, currency string) string {
	d := decimal.NewFromFloat(value)
	if d.Abs().LessThan(decimal.NewFromInt(1)) {
		return amount(d, currency, 6, 4)
	}
	return amount(d, currency, 2, 2)
}

// LargeNumber abbreviates value with a T, B, M or K suffix and falls back
// to Price below a thousand.
func LargeNumber(value float64, currency string) string {
	d := decimal.NewFromFloat(value)
	for _, s := range suffixes {
		if d.Abs().GreaterThanOrEqual(s.threshold) {
			return sign(d) + symbol(currency) + d.Abs().Div(s.threshold).StringFixed(2) + s.suffix
		}
	}
	return Price(value, currency)
}

// Aggregate formats market-wide totals: T, B or M suffixes, whole units below.
func Aggregate(value float64, currency string) string {
	d := decimal.NewFromFloat(value)
	for _, s := range suffixes[:3] {
		if d.Abs().GreaterThanOrEqual(s.threshold) {
			return sign(d) + symbol(currency) + d.Abs().Div(s.threshold).StringFixed(2) + s.suffix
		}
	}
	return amount(d, currency, 0, 0)
}

// Percent formats a signed percentage with two decimals, e.g. "+2.50%".
func Percent(value float64) string {
	d := decimal.NewFromFloat(value).Round(2)
	if !d.IsNegative() {
		return "+" + d.StringFixed(2) + "%"
	}
	return d.StringFixed(2) + "%"
}

// Optional formats a missing figure as a dash.
func Optional(v *float64, f func(float64) string) string {
	if v == nil {
		return "-"
	}
	return f(*v)
}

// amount renders d with at most maxFrac decimals, trimming trailing zeros
// down to minFrac.
func amount(d decimal.Decimal, currency string, maxFrac, minFrac int) string {
	f := formatter(currency, maxFrac)
	minor := d.Shift(int32(maxFrac)).Round(0).IntPart()
	s := f.Format(minor)
	if maxFrac == minFrac || f.Decimal == "" {
		return s
	}
	i := strings.LastIndex(s, f.Decimal)
	if i < 0 {
		return s
	}
	// only the digits right after the separator are trimmed
	end := i + len(f.Decimal)
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	frac := strings.TrimRight(s[i+len(f.Decimal):end], "0")
	for len(frac) < minFrac {
		frac += "0"
	}
	return s[:i] + f.Decimal + frac + s[end:]
}

func formatter(currency string, fraction int) *money.Formatter {
	if cur := money.GetCurrency(strings.ToUpper(currency)); cur != nil {
		return money.NewFormatter(fraction, cur.Decimal, cur.Thousand, cur.Grapheme, cur.Template)
	}
	return money.NewFormatter(fraction, ".", ",", strings.ToUpper(currency)+" ", "$1")
}

func symbol(currency string) string {
	if cur := money.GetCurrency(strings.ToUpper(currency)); cur != nil {
		return cur.Grapheme
	}
	return strings.ToUpper(currency) + " "
}

func sign(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-"
	}
	return ""
}
