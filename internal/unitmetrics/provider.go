// Package unitmetrics describes per-unit metric providers, keeps them in a
// registry and turns the status of their computations into the per-provider
// data the units table consumes.
package unitmetrics

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/banshee-data/sortingview/internal/sorting"
)

// Options carries the tunables shared by the built-in metrics.
type Options struct {
	RefractoryPeriodMs float64
	MatchToleranceMs   float64
}

// Input is everything a provider may read when computing its records.
type Input struct {
	Recording *sorting.Recording
	Sorting   *sorting.Sorting
	// Compare is set only for comparison metrics.
	Compare *sorting.Sorting
	Options Options
}

// Provider computes one named per-unit statistic and knows how to sort and
// render it. Records are keyed by the decimal unit id.
type Provider struct {
	Name        string
	ColumnLabel string
	Tooltip     string
	Priority    int
	Disabled    bool
	IsNumeric   bool
	Comparison  bool

	// GetValue extracts the sortable value from a record.
	GetValue func(record any) any
	// Render formats a record for display.
	Render func(record any) string
	// Compute produces the records for every unit of the input sorting.
	Compute func(in Input) (map[string]any, error)
}

// Validate checks the provider is usable.
func (p *Provider) Validate() error {
	if p.Name == "" {
		return errors.New("provider has no name")
	}
	if p.GetValue == nil {
		return fmt.Errorf("provider %s: GetValue is required", p.Name)
	}
	if p.Compute == nil {
		return fmt.Errorf("provider %s: Compute is required", p.Name)
	}
	return nil
}

// SortByPriority returns a copy of providers ordered by priority, highest
// first. Equal priorities are ordered by name so the result does not depend
// on registration order.
func SortByPriority(providers []*Provider) []*Provider {
	out := append([]*Provider(nil), providers...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Registry holds metric providers by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]*Provider)}
}

// Register adds a provider. Names must be unique.
func (r *Registry) Register(p *Provider) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[p.Name]; exists {
		return fmt.Errorf("provider %s already registered", p.Name)
	}
	r.providers[p.Name] = p
	return nil
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (*Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// UnitMetrics returns the non-comparison providers in priority order.
func (r *Registry) UnitMetrics() []*Provider {
	return r.filter(func(p *Provider) bool { return !p.Comparison })
}

// ComparisonMetrics returns the comparison providers in priority order.
func (r *Registry) ComparisonMetrics() []*Provider {
	return r.filter(func(p *Provider) bool { return p.Comparison })
}

// List returns every provider in priority order.
func (r *Registry) List() []*Provider {
	return r.filter(func(*Provider) bool { return true })
}

func (r *Registry) filter(keep func(*Provider) bool) []*Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Provider
	for _, p := range r.providers {
		if keep(p) {
			out = append(out, p)
		}
	}
	return SortByPriority(out)
}
