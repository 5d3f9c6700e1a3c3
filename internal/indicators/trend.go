package indicators

import "math"

// ADXResult holds the directional movement sequences.
type ADXResult struct {
	PlusDI  []float64
	MinusDI []float64
	ADX     []float64
}

// ADX computes Wilder's directional movement index. +DM/-DM and TR are
// Wilder-smoothed over n bars; DX = 100*|DI+ - DI-|/(DI+ + DI-) with a
// neutral zero when both DIs vanish; ADX is a further Wilder smoothing
// of DX. DI valid from index n, ADX from index 2n-1.
func ADX(highs, lows, closes []float64, n int) ADXResult {
	ln := len(closes)
	res := ADXResult{PlusDI: nans(ln), MinusDI: nans(ln), ADX: nans(ln)}
	if n <= 0 || 2*n >= ln {
		return res
	}
	tr := TrueRange(highs, lows, closes)
	plusDM := make([]float64, ln)
	minusDM := make([]float64, ln)
	for i := 1; i < ln; i++ {
		up := highs[i] - highs[i-1]
		down := lows[i-1] - lows[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	smTR := wilderSum(tr[1:], n)
	smPlus := wilderSum(plusDM[1:], n)
	smMinus := wilderSum(minusDM[1:], n)

	dx := nans(ln)
	for j := n - 1; j < ln-1; j++ {
		i := j + 1 // shift back to full-series index
		if smTR[j] == 0 {
			res.PlusDI[i], res.MinusDI[i] = 0, 0
		} else {
			res.PlusDI[i] = 100 * smPlus[j] / smTR[j]
			res.MinusDI[i] = 100 * smMinus[j] / smTR[j]
		}
		diSum := res.PlusDI[i] + res.MinusDI[i]
		if diSum == 0 {
			dx[i] = 0
		} else {
			dx[i] = 100 * math.Abs(res.PlusDI[i]-res.MinusDI[i]) / diSum
		}
	}
	res.ADX = wilderSmooth(dx, n, n)
	return res
}

// wilderSum is Wilder's running sum: out_t = out_{t-1} -
// out_{t-1}/n + in_t, seeded with the plain sum of the first n inputs.
func wilderSum(values []float64, n int) []float64 {
	out := nans(len(values))
	if n <= 0 || n > len(values) {
		return out
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += values[i]
	}
	out[n-1] = sum
	for i := n; i < len(values); i++ {
		sum = sum - sum/float64(n) + values[i]
		out[i] = sum
	}
	return out
}

// AroonResult holds the Aroon up/down sequences.
type AroonResult struct {
	Up   []float64
	Down []float64
}

// Aroon computes, over a window of n+1 bars, how recently the highest
// high and lowest low occurred: 100*(n - barsSinceExtreme)/n. Valid
// from index n.
func Aroon(highs, lows []float64, n int) AroonResult {
	ln := len(highs)
	res := AroonResult{Up: nans(ln), Down: nans(ln)}
	if n <= 0 || n >= ln {
		return res
	}
	for i := n; i < ln; i++ {
		hiIdx, loIdx := i-n, i-n
		for j := i - n; j <= i; j++ {
			if highs[j] >= highs[hiIdx] {
				hiIdx = j
			}
			if lows[j] <= lows[loIdx] {
				loIdx = j
			}
		}
		res.Up[i] = 100 * float64(n-(i-hiIdx)) / float64(n)
		res.Down[i] = 100 * float64(n-(i-loIdx)) / float64(n)
	}
	return res
}

// IchimokuResult holds the five Ichimoku sequences. SenkouA/B are
// already shifted forward by the base period; Chikou is shifted back.
type IchimokuResult struct {
	Tenkan  []float64
	Kijun   []float64
	SenkouA []float64
	SenkouB []float64
	Chikou  []float64
}

// Ichimoku computes the Ichimoku Kinko Hyo system with the given
// conversion, base and leading periods (standard 9, 26, 52).
func Ichimoku(highs, lows, closes []float64, conv, base, lead int) IchimokuResult {
	n := len(closes)
	midpoint := func(span int) []float64 {
		hh := rollingMax(highs, span)
		ll := rollingMin(lows, span)
		out := nans(n)
		for i := span - 1; i < n; i++ {
			out[i] = (hh[i] + ll[i]) / 2
		}
		return out
	}
	tenkan := midpoint(conv)
	kijun := midpoint(base)

	senkouA := nans(n)
	for i := 0; i < n; i++ {
		if IsValid(tenkan[i]) && IsValid(kijun[i]) {
			senkouA[i] = (tenkan[i] + kijun[i]) / 2
		}
	}
	return IchimokuResult{
		Tenkan:  tenkan,
		Kijun:   kijun,
		SenkouA: shiftForward(senkouA, base),
		SenkouB: shiftForward(midpoint(lead), base),
		Chikou:  shiftBack(closes, base),
	}
}
