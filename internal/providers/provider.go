// Package providers implements chat model providers and their registry.
package providers

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/haasonsaas/dragonchat/internal/agent"
	"github.com/haasonsaas/dragonchat/pkg/models"
)

// ChatProvider sends an enriched model request to one upstream API.
type ChatProvider interface {
	// Name returns the stable lowercase provider identifier used for
	// routing and logging.
	Name() string

	// Complete performs one model call. The request is already enriched by
	// the middleware; providers only translate and transport it.
	Complete(ctx context.Context, req agent.ModelRequest) (*models.ModelResponse, error)
}

// Registry holds the providers created at startup. Entries are registered
// during wiring and never invalidated afterwards.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]ChatProvider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]ChatProvider)}
}

// Register adds a provider under its name.
func (r *Registry) Register(p ChatProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (ChatProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (registered: %v)", name, r.names())
	}
	return p, nil
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handler adapts a provider to the middleware's model handler.
func Handler(p ChatProvider) agent.ModelHandler {
	return p.Complete
}
