package llm

import "fmt"

// Manager holds the configured providers and resolves them by name,
// or by preference order with automatic fallback (spec §4.10).
type Manager struct {
	providers map[string]Provider
	order     []string
}

func NewManager() *Manager {
	return &Manager{providers: make(map[string]Provider)}
}

// Register adds a provider, appending it to the fallback order.
func (m *Manager) Register(p Provider) {
	m.providers[p.Name()] = p
	m.order = append(m.order, p.Name())
}

// Get returns the named provider, or an error if it was never registered.
func (m *Manager) Get(name string) (Provider, error) {
	p, ok := m.providers[name]
	if !ok {
		return nil, fmt.Errorf("llm: no provider registered as %q", name)
	}
	return p, nil
}

// GetWithFallback returns preferred if registered, otherwise the first
// provider registered in Register order. Returns an error only if no
// provider has been registered at all.
func (m *Manager) GetWithFallback(preferred string) (Provider, error) {
	if p, ok := m.providers[preferred]; ok {
		return p, nil
	}
	for _, name := range m.order {
		return m.providers[name], nil
	}
	return nil, fmt.Errorf("llm: no providers registered")
}
