package chain

import (
	"log/slog"
	"sync"

	"prizmagent/internal/domain"
)

// Registry maps chain names to executables. It mirrors the tool registry but
// lives in its own namespace; the invoker resolves tool names first, chain
// names second. Listing preserves registration order.
type Registry struct {
	mu     sync.RWMutex
	chains map[string]domain.Executable
	order  []string
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		chains: make(map[string]domain.Executable),
		logger: logger,
	}
}

// Register adds a chain, rejecting duplicate names and cyclic composition.
// Cycles are re-checked here because a registered chain may be composed from
// chains built elsewhere.
func (r *Registry) Register(c domain.Executable) error {
	if err := checkAcyclic(c); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	name := c.Name()
	if _, exists := r.chains[name]; exists {
		return domain.Failf(domain.DuplicateName, "chain %q is already registered", name)
	}
	r.chains[name] = c
	r.order = append(r.order, name)
	r.logger.Debug("registered chain", "name", name)
	return nil
}

// Get returns the named chain, or a NotFound failure.
func (r *Registry) Get(name string) (domain.Executable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chains[name]
	if !ok {
		return nil, domain.Failf(domain.NotFound, "unknown chain: %s", name)
	}
	return c, nil
}

// Has reports whether a chain with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.chains[name]
	return ok
}

// List returns descriptors for all registered chains in registration order.
// Chains accept a single free-text input.
func (r *Registry) List() []domain.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]domain.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		c := r.chains[name]
		defs = append(defs, domain.ToolDefinition{
			Name:        c.Name(),
			Description: c.Description(),
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"input": map[string]any{"type": "string", "description": "Input passed to the first step"},
				},
			},
			Kind: domain.KindChain,
		})
	}
	return defs
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chains)
}
