package adapters

import (
	"fmt"
	"sort"
	"strings"

	"github.com/smallbiznis/storefront/internal/payment/domain"
)

// Registry resolves the provider segment of a webhook route to the factory
// that builds its adapter.
type Registry struct {
	byName map[string]domain.AdapterFactory
}

// NewRegistry indexes factories by lower-cased provider name. Two factories
// claiming the same provider is a wiring mistake.
func NewRegistry(factories ...domain.AdapterFactory) (*Registry, error) {
	r := &Registry{byName: make(map[string]domain.AdapterFactory, len(factories))}
	for _, f := range factories {
		if f == nil {
			continue
		}
		name := providerKey(f.Provider())
		if name == "" {
			return nil, fmt.Errorf("payment adapter factory %T has no provider name", f)
		}
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("payment provider %q registered twice", name)
		}
		r.byName[name] = f
	}
	return r, nil
}

func (r *Registry) Has(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.byName[providerKey(provider)]
	return ok
}

// Providers lists registered names in order.
func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) NewAdapter(provider string, cfg domain.AdapterConfig) (domain.PaymentAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	f, ok := r.byName[providerKey(provider)]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return f.NewAdapter(cfg)
}

func providerKey(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
