// Package indicators provides pure technical-indicator functions over
// columnar price slices. Every function returns a slice of the same
// length as its input; positions without sufficient history hold the
// not-yet-valid sentinel (NaN), which compares false against any
// threshold. Functions are stateless and restartable.
package indicators

import "math"

// NotYetValid is the sentinel for positions where the indicator has
// insufficient history. NaN compares false in every ordered comparison,
// so gating logic like `rsi[i] > 50` is safe without explicit checks.
var NotYetValid = math.NaN()

// IsValid reports whether an indicator value is usable.
func IsValid(v float64) bool { return !math.IsNaN(v) }

// nans allocates a slice pre-filled with the sentinel.
func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = NotYetValid
	}
	return out
}

// wilderSmooth applies Wilder's smoothing: out_t = out_{t-1} +
// (in_t - out_{t-1}) / n, seeded with the simple average of the first n
// valid inputs starting at firstIdx. Positions before the seed are
// sentinel.
func wilderSmooth(values []float64, n, firstIdx int) []float64 {
	out := nans(len(values))
	seedEnd := firstIdx + n
	if n <= 0 || seedEnd > len(values) {
		return out
	}
	sum := 0.0
	for i := firstIdx; i < seedEnd; i++ {
		sum += values[i]
	}
	prev := sum / float64(n)
	out[seedEnd-1] = prev
	for i := seedEnd; i < len(values); i++ {
		prev += (values[i] - prev) / float64(n)
		out[i] = prev
	}
	return out
}

// rollingMax computes the maximum over the trailing n values (window
// [i-n+1, i]) using a monotonic deque. O(len(values)).
func rollingMax(values []float64, n int) []float64 {
	return rollingExtreme(values, n, func(a, b float64) bool { return a >= b })
}

// rollingMin computes the minimum over the trailing n values.
func rollingMin(values []float64, n int) []float64 {
	return rollingExtreme(values, n, func(a, b float64) bool { return a <= b })
}

func rollingExtreme(values []float64, n int, better func(a, b float64) bool) []float64 {
	out := nans(len(values))
	if n <= 0 || n > len(values) {
		return out
	}
	// Deque holds indices with monotonically "better" values at the front.
	deque := make([]int, 0, n)
	for i := range values {
		for len(deque) > 0 && better(values[i], values[deque[len(deque)-1]]) {
			deque = deque[:len(deque)-1]
		}
		deque = append(deque, i)
		if deque[0] <= i-n {
			deque = deque[1:]
		}
		if i >= n-1 {
			out[i] = values[deque[0]]
		}
	}
	return out
}

// shiftForward moves values forward by k bars (value computed at i is
// reported at i+k). Vacated leading positions are sentinel; values that
// would land past the end are dropped.
func shiftForward(values []float64, k int) []float64 {
	out := nans(len(values))
	for i := 0; i+k < len(values); i++ {
		out[i+k] = values[i]
	}
	return out
}

// shiftBack moves values back by k bars (value computed at i is
// reported at i-k). Trailing positions are sentinel.
func shiftBack(values []float64, k int) []float64 {
	out := nans(len(values))
	for i := k; i < len(values); i++ {
		out[i-k] = values[i]
	}
	return out
}
