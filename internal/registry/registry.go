package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/hybridsearch/pkg/types"
)

// Registry holds embedding backend descriptors and produces stable
// priority-ordered views of the enabled set. A registry instance is
// owned by the host process and passed into the gateway explicitly;
// there is no package-level global.
//
// Enable, Disable, and SetPriority mutate state in place and take
// effect only for calls starting after the mutation: the gateway
// snapshots EnabledOrdered at the start of each embed call, so a
// mid-flight toggle cannot corrupt an in-progress failover sequence.
type Registry struct {
	mu         sync.RWMutex
	featureOn  bool
	backends   map[string]*Descriptor
	regOrder   []string // registration order, used for priority ties
}

// New creates an empty registry. featureOn is the global embedding
// feature flag supplied by the host configuration.
func New(featureOn bool) *Registry {
	return &Registry{
		featureOn: featureOn,
		backends:  make(map[string]*Descriptor),
	}
}

// FeatureEnabled reports the global embedding feature flag.
func (r *Registry) FeatureEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.featureOn
}

// Register normalizes, validates, and adds a descriptor. Registering a
// name twice is a configuration error; backends are deactivated with
// Disable, never replaced at runtime.
func (r *Registry) Register(desc Descriptor) error {
	desc.Normalize()
	if err := desc.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[desc.Name]; exists {
		return fmt.Errorf("%w: backend %q already registered", types.ErrConfiguration, desc.Name)
	}

	r.backends[desc.Name] = &desc
	r.regOrder = append(r.regOrder, desc.Name)
	return nil
}

// EnabledOrdered returns a snapshot of enabled backends sorted
// ascending by priority, ties broken by registration order. The
// result is stable across repeated calls with unchanged configuration
// and safe for the caller to hold across a failover sequence.
func (r *Registry) EnabledOrdered() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ordered := make([]Descriptor, 0, len(r.regOrder))
	for _, name := range r.regOrder {
		if d := r.backends[name]; d.Enabled {
			ordered = append(ordered, *d)
		}
	}

	// regOrder iteration already yields registration order, so a
	// stable sort on priority preserves it for ties.
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	return ordered
}

// Primary returns the highest-precedence enabled backend.
func (r *Registry) Primary() (Descriptor, bool) {
	ordered := r.EnabledOrdered()
	if len(ordered) == 0 {
		return Descriptor{}, false
	}
	return ordered[0], true
}

// Get returns a copy of a descriptor by name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.backends[name]
	if !ok {
		return Descriptor{}, false
	}
	return *d, true
}

// All returns copies of every registered descriptor in registration
// order, enabled or not.
func (r *Registry) All() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]Descriptor, 0, len(r.regOrder))
	for _, name := range r.regOrder {
		all = append(all, *r.backends[name])
	}
	return all
}

// Enable marks a backend enabled. Takes effect for calls starting
// after the mutation.
func (r *Registry) Enable(name string) error {
	return r.setEnabled(name, true)
}

// Disable deactivates a backend without removing it.
func (r *Registry) Disable(name string) error {
	return r.setEnabled(name, false)
}

func (r *Registry) setEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.backends[name]
	if !ok {
		return fmt.Errorf("%w: unknown backend %q", types.ErrConfiguration, name)
	}
	d.Enabled = enabled
	return nil
}

// SetPriority changes a backend's precedence.
func (r *Registry) SetPriority(name string, priority int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.backends[name]
	if !ok {
		return fmt.Errorf("%w: unknown backend %q", types.ErrConfiguration, name)
	}
	d.Priority = priority
	return nil
}

// Validate checks startup invariants: when the feature is globally on,
// at least one backend must be enabled.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.featureOn {
		return nil
	}
	for _, d := range r.backends {
		if d.Enabled {
			return nil
		}
	}
	return fmt.Errorf("%w: embedding enabled but no backends are enabled", types.ErrConfiguration)
}
