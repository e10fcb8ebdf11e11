package provider

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lacquerai/sentiment/internal/utils"
	"github.com/rs/zerolog/log"
)

// DefaultModelCacheTTL is how long a fetched model list is trusted
const DefaultModelCacheTTL = 24 * time.Hour

// ModelCache keeps the model list of each provider on disk so that startup
// does not hit a provider's listing endpoint every time the process is
// spawned. Several processes may share one directory.
type ModelCache struct {
	dir     string
	ttl     time.Duration
	disable bool
	now     func() time.Time
	mu      sync.RWMutex
}

// CachedModels is the on-disk entry of one provider
type CachedModels struct {
	Provider  string    `json:"provider"`
	FetchedAt time.Time `json:"fetched_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Models    []Info    `json:"models"`
}

// Fresh reports whether the entry can be used without refetching
func (c *CachedModels) Fresh(now time.Time) bool {
	return c != nil && now.Before(c.ExpiresAt)
}

// NewModelCache creates a model cache under the user cache directory.
// Caching is always disabled under go test.
func NewModelCache(disable bool) *ModelCache {
	if flag.Lookup("test.v") != nil {
		disable = true
	}
	return NewModelCacheAt(filepath.Join(utils.CacheDir, "models"), disable)
}

// NewModelCacheAt creates a model cache rooted at dir
func NewModelCacheAt(dir string, disable bool) *ModelCache {
	if !disable {
		if err := os.MkdirAll(dir, 0750); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("Could not create model cache directory, caching disabled")
			disable = true
		}
	}

	return &ModelCache{
		dir:     dir,
		ttl:     DefaultModelCacheTTL,
		disable: disable,
		now:     time.Now,
	}
}

// GetModels returns the provider's models, fetching them when the cached
// entry is missing or expired. If the fetch fails, an expired entry is
// returned instead of the error.
func (mc *ModelCache) GetModels(ctx context.Context, p Provider) ([]Info, error) {
	if mc.disable {
		return p.ListModels(ctx)
	}

	name := p.GetName()

	mc.mu.RLock()
	cached := mc.read(name)
	mc.mu.RUnlock()

	if cached.Fresh(mc.now()) {
		log.Debug().
			Str("provider", name).
			Int("models", len(cached.Models)).
			Time("expires_at", cached.ExpiresAt).
			Msg("Using cached model list")
		return cached.Models, nil
	}

	models, err := p.ListModels(ctx)
	if err != nil {
		if cached != nil {
			log.Warn().
				Err(err).
				Str("provider", name).
				Msg("Failed to fetch models, using expired model list")
			return cached.Models, nil
		}
		return nil, err
	}

	mc.mu.Lock()
	mc.write(name, models)
	mc.mu.Unlock()

	return models, nil
}

// InvalidateCache drops the entry of a provider
func (mc *ModelCache) InvalidateCache(providerName string) {
	if mc.disable {
		return
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	path := mc.path(providerName)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("file", path).Msg("Failed to remove model cache entry")
	}
}

func (mc *ModelCache) read(providerName string) *CachedModels {
	path := mc.path(providerName)

	data, err := os.ReadFile(path) // #nosec G304 - path is built from the cache dir
	if err != nil {
		if !os.IsNotExist(err) {
			log.Debug().Err(err).Str("file", path).Msg("Failed to read model cache entry")
		}
		return nil
	}

	var cached CachedModels
	if err := json.Unmarshal(data, &cached); err != nil || cached.Provider != providerName {
		log.Warn().Err(err).Str("file", path).Msg("Ignoring corrupt model cache entry")
		return nil
	}

	return &cached
}

// write replaces the entry atomically so a concurrent reader in another
// process never sees a partial file.
func (mc *ModelCache) write(providerName string, models []Info) {
	now := mc.now()
	data, err := json.MarshalIndent(CachedModels{
		Provider:  providerName,
		FetchedAt: now,
		ExpiresAt: now.Add(mc.ttl),
		Models:    models,
	}, "", "  ")
	if err != nil {
		log.Warn().Err(err).Str("provider", providerName).Msg("Failed to encode model list")
		return
	}

	tmp, err := os.CreateTemp(mc.dir, providerName+".*.tmp")
	if err != nil {
		log.Warn().Err(err).Str("dir", mc.dir).Msg("Failed to write model cache entry")
		return
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		log.Warn().Err(err).Str("file", tmp.Name()).Msg("Failed to write model cache entry")
		return
	}
	if err := tmp.Close(); err != nil {
		log.Warn().Err(err).Str("file", tmp.Name()).Msg("Failed to write model cache entry")
		return
	}

	if err := os.Rename(tmp.Name(), mc.path(providerName)); err != nil {
		log.Warn().Err(err).Str("provider", providerName).Msg("Failed to write model cache entry")
	}
}

func (mc *ModelCache) path(providerName string) string {
	return filepath.Join(mc.dir, providerName+".models.json")
}
