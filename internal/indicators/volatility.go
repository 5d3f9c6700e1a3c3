package indicators

import "math"

// TrueRange computes max(high-low, |high-prevClose|, |low-prevClose|).
// Index 0 falls back to high-low.
func TrueRange(highs, lows, closes []float64) []float64 {
	n := len(closes)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	out[0] = highs[0] - lows[0]
	for i := 1; i < n; i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		out[i] = math.Max(hl, math.Max(hc, lc))
	}
	return out
}

// ATR computes the average true range with Wilder smoothing, seeded
// with the simple average of the first n true ranges (starting at the
// first TR that uses a previous close). Valid from index n.
func ATR(highs, lows, closes []float64, n int) []float64 {
	out := nans(len(closes))
	if n <= 0 || n >= len(closes) {
		return out
	}
	tr := TrueRange(highs, lows, closes)
	smoothed := wilderSmooth(tr[1:], n, 0)
	copy(out[1:], smoothed)
	return out
}

// BollingerResult holds the three band sequences.
type BollingerResult struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger computes middle = SMA(n), upper/lower = middle +/- k
// population standard deviations. Valid from index n-1.
func Bollinger(closes []float64, n int, k float64) BollingerResult {
	ln := len(closes)
	res := BollingerResult{Upper: nans(ln), Middle: nans(ln), Lower: nans(ln)}
	if n <= 0 || n > ln {
		return res
	}
	sum, sumSq := 0.0, 0.0
	for i := 0; i < ln; i++ {
		sum += closes[i]
		sumSq += closes[i] * closes[i]
		if i >= n {
			sum -= closes[i-n]
			sumSq -= closes[i-n] * closes[i-n]
		}
		if i >= n-1 {
			mean := sum / float64(n)
			variance := sumSq/float64(n) - mean*mean
			if variance < 0 {
				variance = 0 // floating point noise on flat windows
			}
			std := math.Sqrt(variance)
			res.Middle[i] = mean
			res.Upper[i] = mean + k*std
			res.Lower[i] = mean - k*std
		}
	}
	return res
}

// SupertrendResult holds the supertrend line and direction (+1 bullish,
// -1 bearish).
type SupertrendResult struct {
	Line      []float64
	Direction []float64
}

// Supertrend computes the ATR-band trend follower. Basic bands are
// (high+low)/2 +/- mult*ATR(n); final bands carry forward while price
// stays on their side; the line flips between the bands when close
// crosses them. Valid from index n.
func Supertrend(highs, lows, closes []float64, n int, mult float64) SupertrendResult {
	ln := len(closes)
	res := SupertrendResult{Line: nans(ln), Direction: nans(ln)}
	if n <= 0 || n >= ln {
		return res
	}
	atr := ATR(highs, lows, closes, n)

	finalUpper, finalLower := 0.0, 0.0
	dir := 1.0
	for i := n; i < ln; i++ {
		mid := (highs[i] + lows[i]) / 2
		basicUpper := mid + mult*atr[i]
		basicLower := mid - mult*atr[i]

		if i == n {
			finalUpper, finalLower = basicUpper, basicLower
		} else {
			if basicUpper < finalUpper || closes[i-1] > finalUpper {
				finalUpper = basicUpper
			}
			if basicLower > finalLower || closes[i-1] < finalLower {
				finalLower = basicLower
			}
		}

		if dir > 0 && closes[i] < finalLower {
			dir = -1
		} else if dir < 0 && closes[i] > finalUpper {
			dir = 1
		}
		res.Direction[i] = dir
		if dir > 0 {
			res.Line[i] = finalLower
		} else {
			res.Line[i] = finalUpper
		}
	}
	return res
}
