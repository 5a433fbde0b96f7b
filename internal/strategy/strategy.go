// Package strategy defines the Strategy capability consumed by the simulator
// and provides a Registry of named strategy factories.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"panelsim/internal/domain"
	"panelsim/internal/panel"
)

// ErrUnknownStrategy is returned by Registry.New for an unregistered name.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Strategy maps a trailing window of panel data and the tickers tradable on
// the current date to a target allocation.
type Strategy interface {
	// Name returns the registry identifier for this strategy.
	Name() string

	// RequiredNumberDates is the lookback length, in schedule dates, of the
	// window passed to CreatePortfolio. It is read once when a simulation
	// is constructed and must be at least 2.
	RequiredNumberDates() int

	// CreatePortfolio returns target weights in [-1, 1]. The window only
	// holds dates strictly before the rebalance date. Weights on the same
	// side should sum to at most 1 in absolute value; the portfolio clips
	// any excess.
	CreatePortfolio(ctx context.Context, window *panel.Panel, tickers []string) (domain.Allocation, error)
}

// Signer is implemented by strategies whose run-history identity depends on
// their parameters.
type Signer interface {
	Signature() string
}

// Signature returns the identity used to key run history: s.Signature() when
// s implements Signer, otherwise s.Name().
func Signature(s Strategy) string {
	if sg, ok := s.(Signer); ok {
		return sg.Signature()
	}
	return s.Name()
}

// Validate checks that a strategy declares a usable lookback.
func Validate(s Strategy) error {
	if n := s.RequiredNumberDates(); n < 2 {
		return fmt.Errorf("strategy %s requires %d dates, want at least 2", s.Name(), n)
	}
	return nil
}

// Factory builds a fresh Strategy. Each simulation run gets its own
// instance, so strategies may keep internal state such as a trained model.
type Factory func() (Strategy, error)

// Registry holds a named collection of strategy factories for lookup and
// enumeration. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under name, replacing any previous entry.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Factory retrieves the factory registered under name. The second return
// value indicates whether it was found.
func (r *Registry) Factory(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// New builds a strategy by name and checks its lookback.
func (r *Registry) New(name string) (Strategy, error) {
	f, ok := r.Factory(name)
	if !ok {
		return nil, fmt.Errorf("%q (have %v): %w", name, r.List(), ErrUnknownStrategy)
	}
	s, err := f()
	if err != nil {
		return nil, fmt.Errorf("building strategy %s: %w", name, err)
	}
	if err := Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
