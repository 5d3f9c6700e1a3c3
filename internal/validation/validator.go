// Package validation provides structural, value and continuity checks
// for OHLCV series plus the dataset fingerprint carried through run
// summaries.
package validation

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/rupeelab/backtest/internal/domain"
)

const (
	// MinRows is the minimum series length for a structural pass.
	MinRows = 100
	// maxNaNFraction bounds the tolerated share of NaN cells per column.
	maxNaNFraction = 0.10
	// dailyGapWarnDays flags calendar gaps in daily data.
	dailyGapWarnDays = 7
	// priceRangeSlack widens the series range for trade-price checks.
	priceRangeSlack = 0.01
)

// CheckResult records the outcome of one named check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Stats summarizes the validated series.
type Stats struct {
	Rows     int       `json:"rows"`
	FirstTS  time.Time `json:"first_ts"`
	LastTS   time.Time `json:"last_ts"`
	MinLow   float64   `json:"min_low"`
	MaxHigh  float64   `json:"max_high"`
	NaNCells int       `json:"nan_cells"`
}

// Result is the tagged outcome of a validation pass. A failed result
// does not stop the engine; it runs with warnings attached.
type Result struct {
	Symbol      string        `json:"symbol"`
	Passed      bool          `json:"passed"`
	Checks      []CheckResult `json:"checks"`
	Warnings    []string      `json:"warnings,omitempty"`
	Errors      []string      `json:"errors,omitempty"`
	Stats       Stats         `json:"stats"`
	Fingerprint string        `json:"fingerprint"`
}

// Validator runs series checks. Stateless apart from its logger.
type Validator struct {
	log zerolog.Logger
}

// New creates a validator.
func New(log zerolog.Logger) *Validator {
	return &Validator{log: log.With().Str("component", "validation").Logger()}
}

// Validate runs all checks in order. The first failure does not stop
// the remaining checks; it only flags the overall pass as false.
func (v *Validator) Validate(s *domain.Series) Result {
	res := Result{Symbol: s.Symbol, Passed: true, Fingerprint: Fingerprint(s)}

	res.addCheck(v.checkStructure(s))
	res.addCheck(v.checkValues(s, &res))
	res.addCheck(v.checkContinuity(s, &res))

	if s.Len() > 0 {
		res.Stats.Rows = s.Len()
		res.Stats.FirstTS = s.TS[0]
		res.Stats.LastTS = s.TS[s.Len()-1]
		res.Stats.MinLow, res.Stats.MaxHigh = priceRange(s)
	}

	v.log.Debug().
		Str("symbol", s.Symbol).
		Bool("passed", res.Passed).
		Str("fingerprint", res.Fingerprint).
		Int("warnings", len(res.Warnings)).
		Msg("Series validated")
	return res
}

func (r *Result) addCheck(c CheckResult) {
	r.Checks = append(r.Checks, c)
	if !c.Passed {
		r.Passed = false
		r.Errors = append(r.Errors, fmt.Sprintf("%s: %s", c.Name, c.Detail))
	}
}

func (v *Validator) checkStructure(s *domain.Series) CheckResult {
	c := CheckResult{Name: "structure", Passed: true}
	if s.Len() < MinRows {
		c.Passed = false
		c.Detail = fmt.Sprintf("need at least %d rows, got %d", MinRows, s.Len())
		return c
	}
	for i := 1; i < s.Len(); i++ {
		if !s.TS[i].After(s.TS[i-1]) {
			c.Passed = false
			c.Detail = fmt.Sprintf("timestamps not strictly increasing at row %d", i)
			return c
		}
	}
	return c
}

func (v *Validator) checkValues(s *domain.Series, res *Result) CheckResult {
	c := CheckResult{Name: "values", Passed: true}
	n := s.Len()
	if n == 0 {
		return c
	}
	cols := map[string][]float64{
		"open": s.Open, "high": s.High, "low": s.Low, "close": s.Close, "volume": s.Volume,
	}
	for name, col := range cols {
		nan := 0
		for _, x := range col {
			if math.IsNaN(x) {
				nan++
			}
		}
		res.Stats.NaNCells += nan
		if float64(nan) > maxNaNFraction*float64(n) {
			c.Passed = false
			c.Detail = fmt.Sprintf("column %s has %d NaN values (>%d%%)", name, nan, int(maxNaNFraction*100))
		}
	}
	for i := 0; i < n; i++ {
		if math.IsNaN(s.High[i]) || math.IsNaN(s.Low[i]) || math.IsNaN(s.Close[i]) {
			continue
		}
		switch {
		case s.High[i] < s.Low[i]:
			c.Passed = false
			c.Detail = fmt.Sprintf("high below low at row %d", i)
		case s.Close[i] < s.Low[i] || s.Close[i] > s.High[i]:
			c.Passed = false
			c.Detail = fmt.Sprintf("close outside [low, high] at row %d", i)
		case s.Low[i] <= 0 || s.Open[i] <= 0 || s.Close[i] <= 0:
			c.Passed = false
			c.Detail = fmt.Sprintf("non-positive price at row %d", i)
		}
		if !c.Passed {
			return c
		}
	}
	return c
}

func (v *Validator) checkContinuity(s *domain.Series, res *Result) CheckResult {
	c := CheckResult{Name: "continuity", Passed: true}
	if s.Len() < 2 {
		return c
	}
	if s.Interval.IsIntraday() {
		nominal, err := s.Interval.Duration()
		if err != nil {
			return c
		}
		for i := 1; i < s.Len(); i++ {
			gap := s.TS[i].Sub(s.TS[i-1])
			if gap > 2*nominal && withinSameSession(s.TS[i-1], s.TS[i]) {
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("intraday gap of %s before %s", gap, s.TS[i].Format(time.RFC3339)))
			}
		}
		return c
	}
	for i := 1; i < s.Len(); i++ {
		gapDays := s.TS[i].Sub(s.TS[i-1]).Hours() / 24
		if gapDays > dailyGapWarnDays {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("gap of %.0f days before %s", gapDays, s.TS[i].Format("2006-01-02")))
		}
	}
	return c
}

// withinSameSession reports whether both timestamps fall inside the
// same IST trading day and session hours. Gaps across sessions are the
// normal overnight case, not a data problem.
func withinSameSession(a, b time.Time) bool {
	ai := a.In(domain.ISTLocation)
	bi := b.In(domain.ISTLocation)
	if ai.Year() != bi.Year() || ai.YearDay() != bi.YearDay() {
		return false
	}
	return inSessionHours(ai) && inSessionHours(bi)
}

func inSessionHours(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	return m >= domain.MarketOpenMinute && m <= domain.MarketCloseMinute
}

// ValidateTradePrices checks post-hoc that every fill price falls
// within [minLow*(1-slack), maxHigh*(1+slack)] of the series. Returns
// one error per violating price.
func (v *Validator) ValidateTradePrices(s *domain.Series, prices []float64) []string {
	if s.Len() == 0 {
		return nil
	}
	minLow, maxHigh := priceRange(s)
	lo := minLow * (1 - priceRangeSlack)
	hi := maxHigh * (1 + priceRangeSlack)
	var errs []string
	for _, p := range prices {
		if p < lo || p > hi {
			errs = append(errs, fmt.Sprintf("trade price %.2f outside series range [%.2f, %.2f]", p, lo, hi))
		}
	}
	return errs
}

// CheckCacheFile verifies a cache file exists and is non-empty.
func (v *Validator) CheckCacheFile(path string) CheckResult {
	c := CheckResult{Name: "cache_file", Passed: true}
	info, err := os.Stat(path)
	if err != nil {
		c.Passed = false
		c.Detail = fmt.Sprintf("cache file missing: %s", path)
		return c
	}
	if info.Size() == 0 {
		c.Passed = false
		c.Detail = fmt.Sprintf("cache file empty: %s", path)
	}
	return c
}

func priceRange(s *domain.Series) (minLow, maxHigh float64) {
	minLow, maxHigh = math.Inf(1), math.Inf(-1)
	for i := 0; i < s.Len(); i++ {
		if !math.IsNaN(s.Low[i]) && s.Low[i] < minLow {
			minLow = s.Low[i]
		}
		if !math.IsNaN(s.High[i]) && s.High[i] > maxHigh {
			maxHigh = s.High[i]
		}
	}
	return minLow, maxHigh
}
