package domain

import "fmt"

// ErrorKind classifies failures surfaced through tagged results.
// Errors never cross component boundaries as panics.
type ErrorKind string

const (
	KindConfigError      ErrorKind = "ConfigError"
	KindDataError        ErrorKind = "DataError"
	KindDataWarning      ErrorKind = "DataWarning"
	KindStrategyError    ErrorKind = "StrategyError"
	KindEngineError      ErrorKind = "EngineError"
	KindAggregationError ErrorKind = "AggregationError"
)

// Severity orders error kinds for exit-code selection. Warnings do not
// affect the exit code.
func (k ErrorKind) Severity() int {
	switch k {
	case KindDataWarning:
		return 0
	case KindConfigError:
		return 1
	case KindDataError, KindStrategyError, KindAggregationError:
		return 2
	case KindEngineError:
		return 3
	}
	return 2
}

// RunError is a tagged error attributed to a symbol (or the run itself
// when Symbol is empty).
type RunError struct {
	Kind   ErrorKind `json:"kind"`
	Symbol string    `json:"symbol,omitempty"`
	Msg    string    `json:"message"`
	Err    error     `json:"-"`
}

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Symbol, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap exposes the wrapped cause.
func (e *RunError) Unwrap() error { return e.Err }

// NewConfigError creates a run-level configuration error.
func NewConfigError(format string, args ...any) *RunError {
	return &RunError{Kind: KindConfigError, Msg: fmt.Sprintf(format, args...)}
}

// NewDataError creates a data error for a symbol.
func NewDataError(symbol, format string, args ...any) *RunError {
	return &RunError{Kind: KindDataError, Symbol: symbol, Msg: fmt.Sprintf(format, args...)}
}

// NewStrategyError creates a strategy callback failure for a symbol.
func NewStrategyError(symbol, format string, args ...any) *RunError {
	return &RunError{Kind: KindStrategyError, Symbol: symbol, Msg: fmt.Sprintf(format, args...)}
}

// NewEngineError creates an engine invariant violation for a symbol.
func NewEngineError(symbol, format string, args ...any) *RunError {
	return &RunError{Kind: KindEngineError, Symbol: symbol, Msg: fmt.Sprintf(format, args...)}
}

// NewAggregationError creates a portfolio aggregation error.
func NewAggregationError(symbol, format string, args ...any) *RunError {
	return &RunError{Kind: KindAggregationError, Symbol: symbol, Msg: fmt.Sprintf(format, args...)}
}

// Warning is a non-fatal condition recorded on a result.
type Warning struct {
	Kind   ErrorKind `json:"kind"`
	Symbol string    `json:"symbol,omitempty"`
	Msg    string    `json:"message"`
}

// NewDataWarning creates a data warning for a symbol.
func NewDataWarning(symbol, format string, args ...any) Warning {
	return Warning{Kind: KindDataWarning, Symbol: symbol, Msg: fmt.Sprintf(format, args...)}
}
