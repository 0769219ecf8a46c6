package provider

import (
	"fmt"
	"log/slog"
	"sync"

	"prizmagent/internal/config"
	"prizmagent/internal/domain"
)

// Factory creates and caches providers from config entries. Every configured
// provider is treated as an OpenAI-compatible endpoint; the entry's name and
// apiBase select the backend.
type Factory struct {
	cfg    *config.Config
	logger *slog.Logger
	cache  map[string]domain.Provider
	mu     sync.Mutex
}

func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger,
		cache:  make(map[string]domain.Provider),
	}
}

// Get returns the named provider, constructing it on first use.
func (f *Factory) Get(name string) (domain.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.cache[name]; ok {
		return p, nil
	}

	pc, ok := f.cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q is not configured", name)
	}
	if !pc.Enabled {
		return nil, fmt.Errorf("provider %q is disabled", name)
	}

	p := NewOpenAI(OpenAIConfig{
		Name:    name,
		APIKey:  pc.APIKey,
		APIBase: pc.APIBase,
		Model:   pc.DefaultModel,
		Logger:  f.logger,
	})
	f.cache[name] = p
	return p, nil
}

// Default returns the provider named by general.defaultProvider.
func (f *Factory) Default() (domain.Provider, error) {
	return f.Get(f.cfg.General.DefaultProvider)
}

// Names lists the enabled provider names.
func (f *Factory) Names() []string {
	names := make([]string, 0, len(f.cfg.Providers))
	for name, pc := range f.cfg.Providers {
		if pc.Enabled {
			names = append(names, name)
		}
	}
	return names
}
