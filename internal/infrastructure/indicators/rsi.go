package indicators

// RSI computes Wilder's relative strength index of closes. Entries before
// index period are zero.
func RSI(closes []float64, period int) []float64 {
	rsi := make([]float64, len(closes))
	if period < 1 || len(closes) < period+1 {
		return rsi
	}

	// gains[i] and losses[i] hold the move from closes[i] to closes[i+1].
	gains := make([]float64, len(closes)-1)
	losses := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains[i-1] = change
		} else {
			losses[i-1] = -change
		}
	}

	avgGain := SMA(gains[:period])
	avgLoss := SMA(losses[:period])
	rsi[period] = strength(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i-1]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i-1]) / float64(period)
		rsi[i] = strength(avgGain, avgLoss)
	}
	return rsi
}

func strength(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
