package indicators

// RSI computes the relative strength index with Wilder smoothing of
// average gains and losses. Valid from index n. A flat window yields
// the neutral value 50; an all-gain window yields 100.
func RSI(closes []float64, n int) []float64 {
	out := nans(len(closes))
	if n <= 0 || n >= len(closes) {
		return out
	}
	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= n; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			avgGain += d
		} else {
			avgLoss -= d
		}
	}
	avgGain /= float64(n)
	avgLoss /= float64(n)
	out[n] = rsiValue(avgGain, avgLoss)
	for i := n + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (avgGain*float64(n-1) + gain) / float64(n)
		avgLoss = (avgLoss*float64(n-1) + loss) / float64(n)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// Momentum computes close_t - close_{t-n}. Valid from index n.
func Momentum(closes []float64, n int) []float64 {
	out := nans(len(closes))
	if n <= 0 {
		return out
	}
	for i := n; i < len(closes); i++ {
		out[i] = closes[i] - closes[i-n]
	}
	return out
}

// StochasticResult holds %K and %D sequences.
type StochasticResult struct {
	K []float64
	D []float64
}

// Stochastic computes the stochastic oscillator:
// %K = 100*(close - minLow(k)) / (maxHigh(k) - minLow(k)), %D = SMA of
// %K over dSmooth. A zero high-low range yields the neutral value 50.
func Stochastic(highs, lows, closes []float64, k, dSmooth int) StochasticResult {
	n := len(closes)
	res := StochasticResult{K: nans(n), D: nans(n)}
	if k <= 0 || k > n {
		return res
	}
	hh := rollingMax(highs, k)
	ll := rollingMin(lows, k)
	for i := k - 1; i < n; i++ {
		rng := hh[i] - ll[i]
		if rng == 0 {
			res.K[i] = 50
		} else {
			res.K[i] = 100 * (closes[i] - ll[i]) / rng
		}
	}
	res.D = smaValid(res.K, dSmooth, k-1)
	return res
}

// StochRSIResult holds the smoothed %K and %D of the stochastic RSI.
type StochRSIResult struct {
	K []float64
	D []float64
}

// StochRSI applies the stochastic calculation to an RSI series:
// raw = 100*(rsi - minRSI(stochN)) / (maxRSI(stochN) - minRSI(stochN)),
// %K = SMA(raw, kSmooth), %D = SMA(%K, dSmooth). A zero RSI range
// yields 50.
func StochRSI(closes []float64, rsiN, stochN, kSmooth, dSmooth int) StochRSIResult {
	n := len(closes)
	res := StochRSIResult{K: nans(n), D: nans(n)}
	rsi := RSI(closes, rsiN)
	firstValid := rsiN
	if stochN <= 0 || firstValid+stochN > n {
		return res
	}
	raw := nans(n)
	// Rolling extremes over the valid RSI region only.
	hh := rollingMaxFrom(rsi, stochN, firstValid)
	ll := rollingMinFrom(rsi, stochN, firstValid)
	for i := firstValid + stochN - 1; i < n; i++ {
		rng := hh[i] - ll[i]
		if rng == 0 {
			raw[i] = 50
		} else {
			raw[i] = 100 * (rsi[i] - ll[i]) / rng
		}
	}
	res.K = smaValid(raw, kSmooth, firstValid+stochN-1)
	res.D = smaValid(res.K, dSmooth, firstValid+stochN-1+kSmooth-1)
	return res
}

// CMF computes the Chaikin money flow over n bars:
// MFM = ((close-low) - (high-close)) / (high-low), MFV = MFM*volume,
// CMF = sum(MFV, n) / sum(volume, n). Zero ranges contribute a neutral
// zero; a zero volume sum yields zero.
func CMF(highs, lows, closes, volumes []float64, n int) []float64 {
	ln := len(closes)
	out := nans(ln)
	if n <= 0 || n > ln {
		return out
	}
	mfv := make([]float64, ln)
	for i := 0; i < ln; i++ {
		rng := highs[i] - lows[i]
		if rng != 0 {
			mfm := ((closes[i] - lows[i]) - (highs[i] - closes[i])) / rng
			mfv[i] = mfm * volumes[i]
		}
	}
	mfvSum, volSum := 0.0, 0.0
	for i := 0; i < ln; i++ {
		mfvSum += mfv[i]
		volSum += volumes[i]
		if i >= n {
			mfvSum -= mfv[i-n]
			volSum -= volumes[i-n]
		}
		if i >= n-1 {
			if volSum == 0 {
				out[i] = 0
			} else {
				out[i] = mfvSum / volSum
			}
		}
	}
	return out
}

// smaValid computes an SMA that ignores the sentinel warm-up region:
// averaging starts at firstValid and output becomes valid at
// firstValid+n-1.
func smaValid(values []float64, n, firstValid int) []float64 {
	out := nans(len(values))
	if n <= 0 || firstValid < 0 || firstValid+n > len(values) {
		return out
	}
	sum := 0.0
	for i := firstValid; i < len(values); i++ {
		sum += values[i]
		if i >= firstValid+n {
			sum -= values[i-n]
		}
		if i >= firstValid+n-1 {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// rollingMaxFrom is rollingMax restricted to values[firstValid:].
func rollingMaxFrom(values []float64, n, firstValid int) []float64 {
	out := nans(len(values))
	if firstValid >= len(values) {
		return out
	}
	sub := rollingMax(values[firstValid:], n)
	copy(out[firstValid:], sub)
	return out
}

// rollingMinFrom is rollingMin restricted to values[firstValid:].
func rollingMinFrom(values []float64, n, firstValid int) []float64 {
	out := nans(len(values))
	if firstValid >= len(values) {
		return out
	}
	sub := rollingMin(values[firstValid:], n)
	copy(out[firstValid:], sub)
	return out
}
