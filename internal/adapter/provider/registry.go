package provider

import (
	"fmt"
	"net/http"

	"github.com/cwygoda/tokbot/internal/config"
	"github.com/cwygoda/tokbot/internal/domain"
)

// Registry holds providers by name, in registration order.
type Registry struct {
	providers []domain.Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a provider. A later provider with the same name replaces the earlier one.
func (r *Registry) Register(p domain.Provider) {
	for i, existing := range r.providers {
		if existing.Name() == p.Name() {
			r.providers[i] = p
			return
		}
	}
	r.providers = append(r.providers, p)
}

// Get returns the provider with the given name, or nil.
func (r *Registry) Get(name string) domain.Provider {
	for _, p := range r.providers {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// Select returns the named providers in the order given.
func (r *Registry) Select(names []string) ([]domain.Provider, error) {
	out := make([]domain.Provider, 0, len(names))
	for _, name := range names {
		p := r.Get(name)
		if p == nil {
			return nil, fmt.Errorf("unknown provider %q", name)
		}
		out = append(out, p)
	}
	return out, nil
}

// FromConfig registers the built-in providers and every configured command
// provider, then returns them in the configured priority order.
func FromConfig(cfg *config.Config, client *http.Client) ([]domain.Provider, error) {
	opts := func(name string) Options {
		return Options{BaseURL: cfg.Endpoints[name], Client: client}
	}

	r := NewRegistry()
	r.Register(NewSnaptik(opts("snaptik")))
	r.Register(NewTikmate(opts("tikmate")))
	r.Register(NewMdown(opts("mdown")))
	r.Register(NewTTDownloader(opts("ttdownloader")))
	for _, cc := range cfg.Commands {
		r.Register(NewCommand(cc))
	}
	return r.Select(cfg.Providers)
}
