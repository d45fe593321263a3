package channel

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/plugbot/plugbot/internal/bots"
)

// AdapterFactory builds an unstarted adapter for one bot.
type AdapterFactory func(log *slog.Logger, bot bots.Bot) (PlatformAdapter, error)

// Registry maps transports to adapter factories. It must be created via
// NewRegistry and passed explicitly to components that need it.
type Registry struct {
	mu        sync.RWMutex
	factories map[Transport]AdapterFactory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: map[Transport]AdapterFactory{},
	}
}

// Register adds a factory for transport.
func (r *Registry) Register(transport Transport, factory AdapterFactory) error {
	if factory == nil {
		return fmt.Errorf("factory is nil")
	}
	if _, err := ParseTransport(transport.String()); err != nil {
		return fmt.Errorf("%w: %s", err, transport)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[transport]; exists {
		return fmt.Errorf("transport already registered: %s", transport)
	}
	r.factories[transport] = factory
	return nil
}

// MustRegister calls Register and panics on error.
func (r *Registry) MustRegister(transport Transport, factory AdapterFactory) {
	if err := r.Register(transport, factory); err != nil {
		panic(err)
	}
}

// Get returns the factory for transport.
func (r *Registry) Get(transport Transport) (AdapterFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[transport]
	return f, ok
}

// Transports returns the registered transports in a stable order.
func (r *Registry) Transports() []Transport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]Transport, 0, len(r.factories))
	for t := range r.factories {
		items = append(items, t)
	}
	sort.Slice(items, func(i, j int) bool { return items[i] < items[j] })
	return items
}

// TransportsFor returns the registered transports the bot has credentials for.
func (r *Registry) TransportsFor(bot bots.Bot) []Transport {
	var out []Transport
	for _, t := range r.Transports() {
		switch t {
		case TransportTelegram:
			if bot.HasTelegram() {
				out = append(out, t)
			}
		case TransportDiscord:
			if bot.HasDiscord() {
				out = append(out, t)
			}
		}
	}
	return out
}
