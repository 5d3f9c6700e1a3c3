package validation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/rupeelab/backtest/internal/domain"
)

// Fingerprint returns the 8-hex-character dataset identity:
// SHA-256 over (high sum | low sum | close sum | row count | first ts |
// last ts). Deterministic and independent of the on-disk format; NaN
// cells contribute zero so the hash stays well defined.
func Fingerprint(s *domain.Series) string {
	var highSum, lowSum, closeSum float64
	for i := 0; i < s.Len(); i++ {
		highSum += zeroNaN(s.High[i])
		lowSum += zeroNaN(s.Low[i])
		closeSum += zeroNaN(s.Close[i])
	}
	var first, last int64
	if s.Len() > 0 {
		first = s.TS[0].Unix()
		last = s.TS[s.Len()-1].Unix()
	}
	key := fmt.Sprintf("%.6f|%.6f|%.6f|%d|%d|%d", highSum, lowSum, closeSum, s.Len(), first, last)
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])[:8]
}

func zeroNaN(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
