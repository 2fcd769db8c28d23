package storage

import (
	"log/slog"

	"github.com/stordock/stordock/interfaces"
)

// Resolver creates storage backends from locator URIs using a protocol
// registry. New schemes are added through registry registration; the resolver
// itself never needs to change.
type Resolver struct {
	log      *slog.Logger
	registry *Registry
}

// NewResolver creates a resolver over the default registry.
func NewResolver(log *slog.Logger) *Resolver {
	return NewResolverWithRegistry(log, DefaultRegistry)
}

// NewResolverWithRegistry creates a resolver over an explicit registry.
func NewResolverWithRegistry(log *slog.Logger, registry *Registry) *Resolver {
	return &Resolver{log: log, registry: registry}
}

// GetStorage parses a locator URI and returns a backend instance bound to it.
// The instance opens its underlying client lazily on first use.
func (r *Resolver) GetStorage(uri string) (interfaces.Storage, error) {
	loc, err := ParseLocator(uri)
	if err != nil {
		return nil, err
	}

	reg, err := r.registry.Resolve(loc.Scheme)
	if err != nil {
		return nil, err
	}
	reg.apply(loc)

	r.log.Debug("Resolved storage locator",
		slog.String("scheme", loc.Scheme),
		slog.String("uri", loc.SanitizedURI()))

	return reg.Constructor(loc, r.log)
}

// GetStorage resolves a locator URI against the default registry with the
// default logger.
func GetStorage(uri string) (interfaces.Storage, error) {
	return NewResolver(slog.Default()).GetStorage(uri)
}
