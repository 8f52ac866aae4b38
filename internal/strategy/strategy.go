// Package strategy defines the Strategy interface for signal generation and
// provides a Registry for managing multiple strategy implementations. Any
// value with a conforming GenerateSignals method is a Strategy; no base type
// is required, and plain functions can be adapted with Func.
package strategy

import (
	"context"
	"sort"
	"time"

	"tidemark/internal/domain"
)

// Strategy produces the trading signals for one simulation date. It must use
// only market data with trade dates at or before the given date; a signal
// dated later indicates lookahead bias and is flagged by the backtest engine.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// GenerateSignals returns the signals for the given simulation date,
	// at most one per symbol.
	GenerateSignals(ctx context.Context, date time.Time) ([]domain.Signal, error)
}

// Func adapts a plain function to the Strategy interface under the given
// name.
type Func struct {
	StrategyName string
	Generate     func(ctx context.Context, date time.Time) ([]domain.Signal, error)
}

// Name returns the adapter's strategy name.
func (f Func) Name() string { return f.StrategyName }

// GenerateSignals calls the wrapped function.
func (f Func) GenerateSignals(ctx context.Context, date time.Time) ([]domain.Signal, error) {
	return f.Generate(ctx, date)
}

// Compile-time interface check.
var _ Strategy = Func{}

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
