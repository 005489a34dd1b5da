package indicators

import "math"

type BollingerBands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger computes bands of multiplier population standard deviations
// around the period simple moving average.
func Bollinger(closes []float64, period int, multiplier float64) BollingerBands {
	n := len(closes)
	bands := BollingerBands{
		Upper:  make([]float64, n),
		Middle: make([]float64, n),
		Lower:  make([]float64, n),
	}
	if period < 1 || n < period {
		return bands
	}

	for i := period - 1; i < n; i++ {
		window := closes[i-period+1 : i+1]
		ma := SMA(window)

		sumSq := 0.0
		for _, v := range window {
			d := v - ma
			sumSq += d * d
		}
		sd := math.Sqrt(sumSq / float64(period))

		bands.Middle[i] = ma
		bands.Upper[i] = ma + multiplier*sd
		bands.Lower[i] = ma - multiplier*sd
	}
	return bands
}
