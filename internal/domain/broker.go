package domain

import "fmt"

// CapitalMode selects how portfolio aggregation treats capital.
type CapitalMode string

const (
	// CapitalModeIsolated gives every symbol its own capital; the
	// portfolio curve is the sum with no reallocation (default).
	CapitalModeIsolated CapitalMode = "isolated"
	// CapitalModeShared runs all symbols against one shared cash pool;
	// entries that exceed available cash are dropped and flagged.
	CapitalModeShared CapitalMode = "shared"
)

// BrokerConfig holds the process-wide execution parameters. Immutable
// after construction; shared by reference across engines.
type BrokerConfig struct {
	InitialCapital    float64 `yaml:"initial_capital"`
	QtyPctOfEquity    float64 `yaml:"qty_pct_of_equity"`
	CommissionPct     float64 `yaml:"commission_pct"`
	SlippageTicks     int     `yaml:"slippage_ticks"`
	TickSize          float64 `yaml:"tick_size"`
	ExecuteOnNextOpen bool    `yaml:"execute_on_next_open"`
	AllowPyramiding   bool    `yaml:"allow_pyramiding"`
	MaxPyramidLots    int     `yaml:"max_pyramid_lots"`
}

// DefaultBrokerConfig returns the standard configuration for Indian
// equity backtests.
func DefaultBrokerConfig() BrokerConfig {
	return BrokerConfig{
		InitialCapital:    1_000_000,
		QtyPctOfEquity:    0.10,
		CommissionPct:     0.001,
		SlippageTicks:     0,
		TickSize:          0.05,
		ExecuteOnNextOpen: true,
		AllowPyramiding:   false,
		MaxPyramidLots:    1,
	}
}

// Validate checks the configuration invariants.
func (c BrokerConfig) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital must be positive, got %v", c.InitialCapital)
	}
	if c.QtyPctOfEquity <= 0 || c.QtyPctOfEquity > 1 {
		return fmt.Errorf("qty_pct_of_equity must be in (0, 1], got %v", c.QtyPctOfEquity)
	}
	if c.CommissionPct < 0 {
		return fmt.Errorf("commission_pct must be non-negative, got %v", c.CommissionPct)
	}
	if c.SlippageTicks < 0 {
		return fmt.Errorf("slippage_ticks must be non-negative, got %d", c.SlippageTicks)
	}
	if c.TickSize <= 0 {
		return fmt.Errorf("tick_size must be positive, got %v", c.TickSize)
	}
	if c.MaxPyramidLots < 1 {
		return fmt.Errorf("max_pyramid_lots must be >= 1, got %d", c.MaxPyramidLots)
	}
	return nil
}

// Slippage returns the absolute price adjustment applied to market
// fills. Buys pay up, sells receive less.
func (c BrokerConfig) Slippage() float64 {
	return float64(c.SlippageTicks) * c.TickSize
}
