package indicators

// EMA computes the exponential moving average of values. The first
// period-1 entries are zero; the average is seeded with the simple mean of
// the first period values.
func EMA(values []float64, period int) []float64 {
	ema := make([]float64, len(values))
	if period < 1 || len(values) < period {
		return ema
	}

	k := 2.0 / (float64(period) + 1.0)

	ema[period-1] = SMA(values[:period])
	for i := period; i < len(values); i++ {
		ema[i] = values[i]*k + ema[i-1]*(1-k)
	}
	return ema
}

// SMA returns the arithmetic mean of values, zero when empty.
func SMA(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Warmup returns the number of leading entries an indicator of kind
// leaves undefined for period.
func Warmup(kind string, period int) int {
	switch kind {
	case "rsi":
		return period
	default:
		return period - 1
	}
}
