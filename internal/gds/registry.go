package gds

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds an adapter for one vendor from its transport client.
type Factory func(client *Client) Adapter

// Registry maps vendor names to adapter factories and caches constructed
// adapters. New vendors can be registered at runtime.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	clients   map[string]*Client
	adapters  map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		clients:   make(map[string]*Client),
		adapters:  make(map[string]Adapter),
	}
}

func (r *Registry) Register(vendor string, client *Client, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[vendor] = factory
	r.clients[vendor] = client
	delete(r.adapters, vendor)
}

// Resolve returns the adapter for vendor, constructing it on first use.
func (r *Registry) Resolve(vendor string) (Adapter, error) {
	r.mu.RLock()
	if a, ok := r.adapters[vendor]; ok {
		r.mu.RUnlock()
		return a, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.adapters[vendor]; ok {
		return a, nil
	}
	factory, ok := r.factories[vendor]
	if !ok {
		return nil, fmt.Errorf("unknown gds vendor %q", vendor)
	}
	a := factory(r.clients[vendor])
	r.adapters[vendor] = a
	return a, nil
}

// Vendors lists registered vendor names in stable order.
func (r *Registry) Vendors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
