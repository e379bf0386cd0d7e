package transport

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Opener creates a ready-to-use Transport.
type Opener func(ctx context.Context) (Transport, error)

// Registry lets a host select a carrier by name.
type Registry struct {
	mu      sync.RWMutex
	openers map[string]Opener
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{openers: make(map[string]Opener)}
}

// Register adds or replaces the opener for name.
func (r *Registry) Register(name string, open Opener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openers[name] = open
}

// Open creates the transport registered under name.
func (r *Registry) Open(ctx context.Context, name string) (Transport, error) {
	r.mu.RLock()
	open, ok := r.openers[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("transport: unknown transport %q (known: %v)", name, r.Names())
	}

	t, err := open(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", name, err)
	}
	return t, nil
}

// Names lists the registered transports in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.openers))
	for name := range r.openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
