package indicators

import "math"

// SMA computes the simple moving average over n bars. Valid from index
// n-1.
func SMA(closes []float64, n int) []float64 {
	out := nans(len(closes))
	if n <= 0 || n > len(closes) {
		return out
	}
	sum := 0.0
	for i, c := range closes {
		sum += c
		if i >= n {
			sum -= closes[i-n]
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// EMA computes the exponential moving average with multiplier 2/(n+1),
// seeded with the SMA of the first n values. Valid from index n-1.
func EMA(closes []float64, n int) []float64 {
	out := nans(len(closes))
	if n <= 0 || n > len(closes) {
		return out
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += closes[i]
	}
	prev := sum / float64(n)
	out[n-1] = prev
	k := 2.0 / float64(n+1)
	for i := n; i < len(closes); i++ {
		prev = closes[i]*k + prev*(1-k)
		out[i] = prev
	}
	return out
}

// KAMA computes Kaufman's adaptive moving average.
//
//	ER  = |close_t - close_{t-n}| / sum(|close_i - close_{i-1}|)
//	SC  = (ER*(2/(fast+1) - 2/(slow+1)) + 2/(slow+1))^2
//	out = out_prev + SC*(close_t - out_prev)
//
// Seeded with close[n-1]; valid from index n.
func KAMA(closes []float64, n, fast, slow int) []float64 {
	out := nans(len(closes))
	if n <= 0 || n >= len(closes) {
		return out
	}
	fastSC := 2.0 / float64(fast+1)
	slowSC := 2.0 / float64(slow+1)

	prev := closes[n-1]
	volSum := 0.0
	for i := 1; i <= n-1; i++ {
		volSum += math.Abs(closes[i] - closes[i-1])
	}
	for i := n; i < len(closes); i++ {
		volSum += math.Abs(closes[i] - closes[i-1])
		if i > n {
			volSum -= math.Abs(closes[i-n] - closes[i-n-1])
		}
		er := 0.0
		if volSum != 0 {
			er = math.Abs(closes[i]-closes[i-n]) / volSum
		}
		sc := er*(fastSC-slowSC) + slowSC
		sc *= sc
		prev += sc * (closes[i] - prev)
		out[i] = prev
	}
	return out
}

// MACDResult holds the three MACD output sequences.
type MACDResult struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes the moving average convergence/divergence. The line is
// EMA(fast) - EMA(slow); the signal is an EMA of the line seeded with
// the SMA of its first `signal` valid values.
func MACD(closes []float64, fast, slow, signal int) MACDResult {
	n := len(closes)
	res := MACDResult{Line: nans(n), Signal: nans(n), Histogram: nans(n)}
	if fast <= 0 || slow <= fast || signal <= 0 || slow > n {
		return res
	}
	emaFast := EMA(closes, fast)
	emaSlow := EMA(closes, slow)
	for i := slow - 1; i < n; i++ {
		res.Line[i] = emaFast[i] - emaSlow[i]
	}
	// Signal EMA over the valid region of the line.
	start := slow - 1
	if start+signal > n {
		return res
	}
	sum := 0.0
	for i := start; i < start+signal; i++ {
		sum += res.Line[i]
	}
	prev := sum / float64(signal)
	res.Signal[start+signal-1] = prev
	k := 2.0 / float64(signal+1)
	for i := start + signal; i < n; i++ {
		prev = res.Line[i]*k + prev*(1-k)
		res.Signal[i] = prev
	}
	for i := start + signal - 1; i < n; i++ {
		res.Histogram[i] = res.Line[i] - res.Signal[i]
	}
	return res
}
