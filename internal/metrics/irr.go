package metrics

import (
	"math"
	"time"
)

// Cashflow is one dated flow: negative for money out (entries),
// positive for money in (exits).
type Cashflow struct {
	Time   time.Time
	Amount float64
}

const (
	irrMaxIterations = 100
	irrTolerance     = 1e-7
)

// IRR solves for the annual internal rate of return of the cashflow
// series with Newton's method, falling back to bisection when Newton
// diverges. Returns the rate as a fraction (0.12 = 12% a year), or 0
// when the series has no sign change or no root in (-0.999, 10).
func IRR(flows []Cashflow) float64 {
	if len(flows) < 2 {
		return 0
	}
	var hasNeg, hasPos bool
	for _, f := range flows {
		if f.Amount < 0 {
			hasNeg = true
		}
		if f.Amount > 0 {
			hasPos = true
		}
	}
	if !hasNeg || !hasPos {
		return 0
	}

	t0 := flows[0].Time
	years := make([]float64, len(flows))
	for i, f := range flows {
		years[i] = f.Time.Sub(t0).Hours() / 24 / 365.25
	}

	npv := func(rate float64) (v, dv float64) {
		for i, f := range flows {
			g := math.Pow(1+rate, years[i])
			v += f.Amount / g
			dv -= years[i] * f.Amount / (g * (1 + rate))
		}
		return v, dv
	}

	rate := 0.1
	for iter := 0; iter < irrMaxIterations; iter++ {
		v, dv := npv(rate)
		if math.Abs(v) < irrTolerance {
			return rate
		}
		if dv == 0 {
			break
		}
		next := rate - v/dv
		if next <= -0.999 || next > 10 || math.IsNaN(next) {
			break
		}
		if math.Abs(next-rate) < irrTolerance {
			return next
		}
		rate = next
	}

	// Bisection fallback over a wide bracket.
	lo, hi := -0.999, 10.0
	vLo, _ := npv(lo)
	vHi, _ := npv(hi)
	if vLo*vHi > 0 {
		return 0
	}
	for iter := 0; iter < irrMaxIterations; iter++ {
		mid := (lo + hi) / 2
		v, _ := npv(mid)
		if math.Abs(v) < irrTolerance {
			return mid
		}
		if v*vLo < 0 {
			hi = mid
		} else {
			lo, vLo = mid, v
		}
	}
	return (lo + hi) / 2
}
