package providers

import (
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rudironsoni/Synaxis-sub005/models"
)

// AdapterBuilder constructs a Provider for one catalog row. The registry
// calls it lazily and caches the result; implementations live in the
// adapter subpackages to keep this package dependency-free.
type AdapterBuilder func(cfg *models.ProviderConfig, apiKey string, timeout time.Duration) Provider

// Registry hands out provider adapters for catalog rows. Adapters are built
// on first use and rebuilt transparently when the row's connection settings
// change across a catalog reload, so nothing needs to subscribe to reload
// events.
type Registry struct {
	build          AdapterBuilder
	defaultTimeout time.Duration
	logger         *zap.Logger

	mu       sync.RWMutex
	adapters map[string]cachedAdapter
}

type cachedAdapter struct {
	provider Provider
	baseURL  string
	keyEnv   string
	timeout  time.Duration
}

// NewRegistry creates a registry that builds adapters with build. The
// default timeout applies to providers that do not set their own.
func NewRegistry(build AdapterBuilder, defaultTimeout time.Duration, logger *zap.Logger) *Registry {
	return &Registry{
		build:          build,
		defaultTimeout: defaultTimeout,
		logger:         logger,
		adapters:       make(map[string]cachedAdapter),
	}
}

// For returns the adapter for a catalog row, building or rebuilding it as
// needed. The API key is read from the row's environment variable at build
// time, never stored in the catalog itself.
func (r *Registry) For(cfg *models.ProviderConfig) Provider {
	timeout := cfg.Timeout(r.defaultTimeout)

	r.mu.RLock()
	cached, ok := r.adapters[cfg.Name]
	r.mu.RUnlock()
	if ok && cached.matches(cfg, timeout) {
		return cached.provider
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.adapters[cfg.Name]; ok && cached.matches(cfg, timeout) {
		return cached.provider
	}

	apiKey := ""
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
		if apiKey == "" {
			r.logger.Warn("provider API key env is empty, sending unauthenticated requests",
				zap.String("provider", cfg.Name),
				zap.String("env", cfg.APIKeyEnv))
		}
	}

	provider := r.build(cfg, apiKey, timeout)
	r.adapters[cfg.Name] = cachedAdapter{
		provider: provider,
		baseURL:  cfg.BaseURL,
		keyEnv:   cfg.APIKeyEnv,
		timeout:  timeout,
	}
	r.logger.Debug("built provider adapter",
		zap.String("provider", cfg.Name),
		zap.String("base_url", cfg.BaseURL),
		zap.Duration("timeout", timeout))
	return provider
}

// Evict drops a cached adapter so the next For rebuilds it. Used when a
// provider's credentials are rotated out from under the gateway.
func (r *Registry) Evict(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.adapters, name)
}

// Size returns the number of cached adapters.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}

func (c cachedAdapter) matches(cfg *models.ProviderConfig, timeout time.Duration) bool {
	return c.baseURL == cfg.BaseURL && c.keyEnv == cfg.APIKeyEnv && c.timeout == timeout
}
