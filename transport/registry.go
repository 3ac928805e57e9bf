package transport

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
)

type registration struct {
	build Builder
	caps  Capabilities
}

// Registry maps PubSubSystem names to builders.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registration
}

// DefaultRegistry is where backend packages register on import.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

// Register adds or replaces the backend called name.
func (r *Registry) Register(name string, build Builder, caps Capabilities) {
	if caps.Name == "" {
		caps.Name = name
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = registration{build: build, caps: caps}
}

// Build creates the transport selected by cfg.GetPubSubSystem().
func (r *Registry) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	if cfg == nil {
		return Transport{}, fmt.Errorf("transport config is required")
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	name := cfg.GetPubSubSystem()

	r.mu.RLock()
	entry, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return Transport{}, fmt.Errorf("%w %q (registered: %v)", ErrUnknownTransport, name, r.Names())
	}

	t, err := entry.build(ctx, cfg, logger.With(watermill.LogFields{"transport": name}))
	if err != nil {
		return Transport{}, fmt.Errorf("build %s transport: %w", name, err)
	}
	return t, nil
}

// Names returns the registered names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Capabilities returns what the backend called name supports. Unknown names
// report nothing but their name.
func (r *Registry) Capabilities(name string) Capabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.entries[name]; ok {
		return entry.caps
	}
	return Capabilities{Name: name}
}

// Describe lists the capabilities of every registered backend by name.
func (r *Registry) Describe() []Capabilities {
	names := r.Names()
	out := make([]Capabilities, 0, len(names))
	for _, name := range names {
		out = append(out, r.Capabilities(name))
	}
	return out
}

// Register adds a backend to DefaultRegistry.
func Register(name string, build Builder, caps Capabilities) {
	DefaultRegistry.Register(name, build, caps)
}

// Build creates a transport from DefaultRegistry.
func Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	return DefaultRegistry.Build(ctx, cfg, logger)
}
