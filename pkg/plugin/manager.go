package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/routekit/pkg/logger"
)

// Proxy is the per-request view of a registered plugin. The Instance is
// shared across requests; Context is rebound per request by the pipeline so
// plugin calls always see the current request's state.
type Proxy struct {
	Name     string
	Instance any

	// Context is the request's context bag at bind time. Nil for an
	// unbound proxy.
	Context map[string]any

	emit func(ctx context.Context, event string, payload any) error
}

// Bind returns a copy of the proxy bound to the given context bag.
// The original proxy is not mutated, so concurrent requests never share a
// back-reference.
func (p *Proxy) Bind(values map[string]any) *Proxy {
	clone := *p
	clone.Context = values
	return &clone
}

// Emit publishes an event on the plugin's namespaced channel.
func (p *Proxy) Emit(ctx context.Context, event string, payload any) error {
	if p.emit == nil {
		return nil
	}
	return p.emit(ctx, event, payload)
}

// Manager is the process-wide plugin registry. Registration happens at
// startup; afterwards the manager is read-mostly and safe for concurrent
// use across requests.
type Manager struct {
	mu      sync.RWMutex
	proxies map[string]*Proxy
	bus     *Bus
	log     *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(log *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if log != nil {
			m.log = log.With(logger.Component("plugin_manager"))
		}
	}
}

// WithBus sets the event bus plugin events route through.
func WithBus(bus *Bus) ManagerOption {
	return func(m *Manager) {
		if bus != nil {
			m.bus = bus
		}
	}
}

// NewManager creates a plugin manager with its own event bus unless one is
// provided.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		proxies: make(map[string]*Proxy),
		bus:     NewBus(),
		log:     slog.Default().With(logger.Component("plugin_manager")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds a plugin instance under a unique name.
func (m *Manager) Register(name string, instance any) error {
	if name == "" {
		return ErrNameRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.proxies[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}

	m.proxies[name] = &Proxy{
		Name:     name,
		Instance: instance,
		emit: func(ctx context.Context, event string, payload any) error {
			return m.bus.Publish(ctx, EventChannel(name, event), payload)
		},
	}

	m.log.Debug("plugin registered", logger.Plugin(name))
	return nil
}

// Proxies returns all registered plugin proxies keyed by name.
// The returned map is a copy; callers may not mutate the registry through it.
func (m *Manager) Proxies() map[string]*Proxy {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*Proxy, len(m.proxies))
	for name, proxy := range m.proxies {
		out[name] = proxy
	}
	return out
}

// Emit publishes an event for a registered plugin on its namespaced channel.
func (m *Manager) Emit(ctx context.Context, plugin, event string, payload any) error {
	m.mu.RLock()
	_, exists := m.proxies[plugin]
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrNotRegistered, plugin)
	}
	return m.bus.Publish(ctx, EventChannel(plugin, event), payload)
}

// Subscribe listens for one plugin event channel.
func (m *Manager) Subscribe(plugin, event string) (*Subscription, error) {
	return m.bus.Subscribe(EventChannel(plugin, event))
}

// Close shuts down the event bus.
func (m *Manager) Close() error {
	return m.bus.Close()
}

// EventChannel builds the namespaced channel name for a plugin event.
func EventChannel(plugin, event string) string {
	return "plugin:" + plugin + ":" + event
}
