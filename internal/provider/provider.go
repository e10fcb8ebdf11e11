package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lacquerai/sentiment/internal/sentiment"
	"github.com/rs/zerolog/log"
)

// DefaultModel is the pretrained star-rating classifier used when no model is configured.
const DefaultModel = "nlptown/bert-base-multilingual-uncased-sentiment"

// Provider is a loaded model service. A provider is built once at startup and
// is owned by a single goroutine; implementations need not be safe for
// concurrent Classify calls.
type Provider interface {
	// Classify runs inference on a single non-empty piece of text.
	Classify(ctx context.Context, text string) (*sentiment.Classification, error)

	// GetName returns the provider name
	GetName() string

	// ListModels queries the models the provider can serve
	ListModels(ctx context.Context) ([]Info, error)

	// Close releases the model handle
	Close() error
}

// LocalProvider is implemented by providers that load their model in-process
// or in a child process. They validate the model while loading, so the
// registry skips the remote model check for them.
type LocalProvider interface {
	IsLocal() bool
}

// ModelResolver is implemented by providers that accept model aliases.
type ModelResolver interface {
	ResolveModel(model string, available []string) (string, error)
}

// Info represents information about an available model
type Info struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name,omitempty" yaml:"name,omitempty"`
	Provider    string   `json:"provider" yaml:"provider"`
	CreatedAt   string   `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Features    []string `json:"features,omitempty" yaml:"features,omitempty"`
}

// Factory loads a provider for the given model. It is the model service's
// initialize operation.
type Factory func(ctx context.Context, model string) (Provider, error)

// Backend describes a provider implementation that can be selected by name.
type Backend struct {
	Name         string
	DefaultModel string
	Description  string
	New          Factory
}

// Registry holds the available backends
type Registry struct {
	modelCache *ModelCache
	backends   map[string]Backend
	mu         sync.RWMutex
}

// NewRegistry creates a new backend registry
func NewRegistry(disableCache bool) *Registry {
	return NewRegistryWithCache(NewModelCache(disableCache))
}

// NewRegistryWithCache creates a registry backed by the given model cache
func NewRegistryWithCache(cache *ModelCache) *Registry {
	return &Registry{
		modelCache: cache,
		backends:   make(map[string]Backend),
	}
}

// Register adds a backend
func (r *Registry) Register(backend Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if backend.Name == "" {
		return errors.New("backend name is required")
	}
	if backend.New == nil {
		return fmt.Errorf("backend %s has no factory", backend.Name)
	}
	if _, exists := r.backends[backend.Name]; exists {
		return fmt.Errorf("provider %s already registered", backend.Name)
	}

	r.backends[backend.Name] = backend
	return nil
}

// Backend returns a registered backend by name
func (r *Registry) Backend(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	backend, exists := r.backends[name]
	if !exists {
		return Backend{}, fmt.Errorf("provider %s not found", name)
	}
	return backend, nil
}

// ListProviders returns all registered backend names in sorted order
func (r *Registry) ListProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Initialize loads the named provider with the given model. An empty model
// selects the backend's default. Every failure is returned as a
// *sentiment.InitError.
func (r *Registry) Initialize(ctx context.Context, name, model string) (Provider, error) {
	backend, err := r.Backend(name)
	if err != nil {
		return nil, &sentiment.InitError{Provider: name, Model: model, Err: err}
	}

	if model == "" {
		model = backend.DefaultModel
	}

	start := time.Now()
	p, err := backend.New(ctx, model)
	if err != nil {
		return nil, &sentiment.InitError{Provider: name, Model: model, Err: err}
	}

	if local, ok := p.(LocalProvider); !ok || !local.IsLocal() {
		if err := r.checkModel(ctx, p, model); err != nil {
			_ = p.Close()
			return nil, &sentiment.InitError{Provider: name, Model: model, Err: err}
		}
	}

	log.Info().
		Str("provider", name).
		Str("model", model).
		Dur("duration", time.Since(start)).
		Msg("Model service initialized")

	return p, nil
}

// Models returns the models p can serve, from the cache while it is fresh.
// refresh drops the cached list first.
func (r *Registry) Models(ctx context.Context, p Provider, refresh bool) ([]Info, error) {
	if refresh {
		r.modelCache.InvalidateCache(p.GetName())
	}
	return r.modelCache.GetModels(ctx, p)
}

// checkModel verifies the provider can serve model. A cached list that does
// not contain the model is refreshed once before giving up.
func (r *Registry) checkModel(ctx context.Context, p Provider, model string) error {
	models, err := r.modelCache.GetModels(ctx, p)
	if err != nil {
		return fmt.Errorf("failed to get models: %w", err)
	}

	if supportsModel(p, model, models) {
		return nil
	}

	r.modelCache.InvalidateCache(p.GetName())
	models, err = r.modelCache.GetModels(ctx, p)
	if err != nil {
		return fmt.Errorf("failed to get models: %w", err)
	}

	if !supportsModel(p, model, models) {
		return fmt.Errorf("model %s not supported by provider %s", model, p.GetName())
	}

	return nil
}

func supportsModel(p Provider, model string, models []Info) bool {
	ids := make([]string, len(models))
	for i, m := range models {
		ids[i] = m.ID
	}

	if resolver, ok := p.(ModelResolver); ok {
		resolved, err := resolver.ResolveModel(model, ids)
		if err != nil {
			return false
		}
		model = resolved
	}

	for _, id := range ids {
		if id == model {
			return true
		}
	}
	return false
}
