package storage

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/stordock/stordock/interfaces"
)

// Constructor builds a backend instance bound to a parsed locator. The
// resolver has already merged registration presets into the locator's options
// by the time a constructor runs.
type Constructor func(loc *Locator, log *slog.Logger) (interfaces.Storage, error)

// Registration couples a backend constructor with the preset options of its
// scheme. Defaults are merged under locator options, so locator values win on
// conflict. Pinned values are merged over locator options and cannot be
// overridden; a scheme bound to a fixed auth endpoint uses this.
type Registration struct {
	Constructor Constructor
	Defaults    map[string]string
	Pinned      map[string]string
}

// Registry maps locator schemes to backend registrations. Registering a
// scheme twice replaces the earlier entry. The zero value is not usable; use
// NewRegistry.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Registration)}
}

// Register installs or replaces the backend constructor for scheme.
func (r *Registry) Register(scheme string, ctor Constructor) {
	r.RegisterWithPresets(scheme, ctor, nil, nil)
}

// RegisterWithPresets installs or replaces the backend constructor for scheme
// together with preset options. This is the form used by scheme families that
// share an adapter but differ in fixed endpoint or region defaults.
func (r *Registry) RegisterWithPresets(scheme string, ctor Constructor, defaults, pinned map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[strings.ToLower(scheme)] = Registration{
		Constructor: ctor,
		Defaults:    cloneOptions(defaults),
		Pinned:      cloneOptions(pinned),
	}
}

// Resolve returns the registration for scheme.
func (r *Registry) Resolve(scheme string) (Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[strings.ToLower(scheme)]
	if !ok {
		return Registration{}, fmt.Errorf("%w: %s", interfaces.ErrUnknownScheme, scheme)
	}
	return reg, nil
}

// Schemes returns the registered schemes in sorted order.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schemes := make([]string, 0, len(r.entries))
	for scheme := range r.entries {
		schemes = append(schemes, scheme)
	}
	sort.Strings(schemes)
	return schemes
}

// apply merges the registration's presets into the locator's options.
func (reg Registration) apply(loc *Locator) {
	for key, value := range reg.Defaults {
		if _, ok := loc.Options[key]; !ok {
			loc.Options[key] = value
		}
	}
	for key, value := range reg.Pinned {
		loc.Options[key] = value
	}
}

func cloneOptions(options map[string]string) map[string]string {
	if len(options) == 0 {
		return nil
	}
	clone := make(map[string]string, len(options))
	for key, value := range options {
		clone[key] = value
	}
	return clone
}

// DefaultRegistry holds the registrations installed by backend init functions.
var DefaultRegistry = NewRegistry()

// Register installs a backend constructor into the default registry.
func Register(scheme string, ctor Constructor) {
	DefaultRegistry.Register(scheme, ctor)
}

// RegisterWithPresets installs a backend constructor with preset options into
// the default registry.
func RegisterWithPresets(scheme string, ctor Constructor, defaults, pinned map[string]string) {
	DefaultRegistry.RegisterWithPresets(scheme, ctor, defaults, pinned)
}
