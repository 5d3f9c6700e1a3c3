package strategy

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rupeelab/backtest/internal/domain"
)

// Constructor builds a fresh strategy instance with parameter
// overrides applied. Called once per (symbol, run).
type Constructor func(p Params) (Strategy, error)

// Registry maps strategy keys to constructors. Populated once at
// startup and read-only afterwards.
type Registry struct {
	constructors map[string]Constructor
	mu           sync.RWMutex
	log          zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		constructors: make(map[string]Constructor),
		log:          log.With().Str("component", "strategy_registry").Logger(),
	}
}

// Register adds a constructor under a key.
func (r *Registry) Register(key string, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.constructors[key] = c
	r.log.Debug().Str("strategy", key).Msg("Registered strategy")
}

// New instantiates the strategy registered under key. An unknown key
// is a configuration error and fatal for the run.
func (r *Registry) New(key string, p Params) (Strategy, error) {
	r.mu.RLock()
	c, ok := r.constructors[key]
	r.mu.RUnlock()

	if !ok {
		return nil, domain.NewConfigError("unknown strategy %q (available: %v)", key, r.Keys())
	}
	s, err := c(p)
	if err != nil {
		return nil, domain.NewConfigError("strategy %q: %s", key, err)
	}
	return s, nil
}

// Keys returns the registered strategy keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.constructors))
	for k := range r.constructors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NewPopulatedRegistry creates a registry with all bundled strategies
// registered.
func NewPopulatedRegistry(log zerolog.Logger) *Registry {
	registry := NewRegistry(log)

	registry.Register(KeyEMACross, NewEMACross)
	registry.Register(KeyKAMACross, NewKAMACross)
	registry.Register(KeyIchimoku, NewIchimoku)
	registry.Register(KeyEnvelopeKD, NewEnvelopeKD)
	registry.Register(KeyStochRSI, NewStochRSILong)
	registry.Register(KeyCandlestick, NewCandlestick)
	registry.Register(KeyBollingerRSI, NewBollingerRSI)

	log.Info().
		Int("strategies", len(registry.constructors)).
		Msg("Strategy registry initialized")

	return registry
}
