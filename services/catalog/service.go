// Package catalog loads the provider catalog from its backing store and
// serves immutable snapshots to the routing path. A snapshot is built once
// per load and swapped atomically, so request handling never observes a
// half-reloaded catalog.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/rudironsoni/Synaxis-sub005/models"
	"github.com/rudironsoni/Synaxis-sub005/repositories"
	"github.com/rudironsoni/Synaxis-sub005/services"
	"github.com/rudironsoni/Synaxis-sub005/utils"
)

// reloadTimeout bounds a single background reload against the backing store.
const reloadTimeout = 30 * time.Second

// Snapshot is an immutable view of the catalog at one load. All lookup
// methods are safe for concurrent use; the maps are never mutated after
// construction.
type Snapshot struct {
	providers map[string]*models.ProviderConfig
	canonical map[string]*models.CanonicalModelConfig
	aliases   map[string]*models.AliasConfig

	// ordered holds all providers sorted by name so that iteration order is
	// deterministic across loads.
	ordered  []*models.ProviderConfig
	loadedAt time.Time
}

// Provider returns the provider with the given name, enabled or not.
func (s *Snapshot) Provider(name string) (*models.ProviderConfig, bool) {
	p, ok := s.providers[name]
	return p, ok
}

// EnabledProviders returns all enabled providers sorted by name.
func (s *Snapshot) EnabledProviders() []*models.ProviderConfig {
	out := make([]*models.ProviderConfig, 0, len(s.ordered))
	for _, p := range s.ordered {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// Providers returns every provider row sorted by name, including disabled
// ones. Admin surfaces use this; routing goes through EnabledProviders.
func (s *Snapshot) Providers() []*models.ProviderConfig {
	out := make([]*models.ProviderConfig, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// CanonicalModel returns the canonical model definition for a logical name.
func (s *Snapshot) CanonicalModel(name string) (*models.CanonicalModelConfig, bool) {
	c, ok := s.canonical[name]
	return c, ok
}

// Alias returns the global alias with the given name. Disabled aliases are
// not present in the snapshot.
func (s *Snapshot) Alias(name string) (*models.AliasConfig, bool) {
	a, ok := s.aliases[name]
	return a, ok
}

// LoadedAt returns the time this snapshot was built.
func (s *Snapshot) LoadedAt() time.Time {
	return s.loadedAt
}

// ModelIDs returns every model identifier the gateway accepts: canonical
// model names, enabled alias names and provider-qualified paths for enabled
// providers. Wildcard entries are omitted. The result is sorted and
// de-duplicated.
func (s *Snapshot) ModelIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	for name := range s.canonical {
		add(name)
	}
	for name := range s.aliases {
		add(name)
	}
	for _, p := range s.ordered {
		if !p.Enabled {
			continue
		}
		for _, m := range p.Models {
			if m == models.ModelWildcard {
				continue
			}
			add(models.CanonicalModelID{Provider: p.Name, ModelPath: m}.String())
		}
	}

	sort.Strings(ids)
	return ids
}

// Stats summarizes the current catalog state for admin surfaces.
type Stats struct {
	Providers        int       `json:"providers"`
	EnabledProviders int       `json:"enabled_providers"`
	CanonicalModels  int       `json:"canonical_models"`
	Aliases          int       `json:"aliases"`
	Reloads          int       `json:"reloads"`
	LoadedAt         time.Time `json:"loaded_at"`
}

// Service owns the catalog snapshot lifecycle: initial load, explicit
// reloads from the admin surface, and the optional periodic refresh worker.
type Service struct {
	repo   repositories.CatalogRepository
	logger *zap.Logger

	mu       sync.RWMutex
	snapshot *Snapshot
	reloads  int

	readyOnce sync.Once
	ready     chan struct{}
}

// NewService creates a catalog service. The snapshot is empty until the
// first Reload succeeds; consumers should wait on Ready.
func NewService(repo repositories.CatalogRepository, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
		ready:  make(chan struct{}),
	}
}

// Ready returns a channel closed after the first successful load. Startup
// consumers select on it instead of polling.
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Loaded reports whether at least one load has succeeded.
func (s *Service) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot != nil
}

// Current returns the active snapshot. Before the first successful load it
// returns ErrCatalogNotLoaded.
func (s *Service) Current() (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return nil, services.ErrCatalogNotLoaded
	}
	return s.snapshot, nil
}

// Reload fetches the catalog from the backing store, validates it and swaps
// the snapshot. On failure the previous snapshot stays active.
func (s *Service) Reload(ctx context.Context) error {
	providers, err := s.repo.ListProviders(ctx)
	if err != nil {
		return fmt.Errorf("failed to load providers: %w", err)
	}
	canonical, err := s.repo.ListCanonicalModels(ctx)
	if err != nil {
		return fmt.Errorf("failed to load canonical models: %w", err)
	}
	aliases, err := s.repo.ListAliases(ctx)
	if err != nil {
		return fmt.Errorf("failed to load aliases: %w", err)
	}

	snap, err := buildSnapshot(providers, canonical, aliases, s.logger)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.snapshot = snap
	s.reloads++
	s.mu.Unlock()

	s.readyOnce.Do(func() { close(s.ready) })

	s.logger.Info("catalog loaded",
		zap.Int("providers", len(snap.providers)),
		zap.Int("canonical_models", len(snap.canonical)),
		zap.Int("aliases", len(snap.aliases)))

	return nil
}

// GetStats returns counts for the active snapshot. Zero values before the
// first load.
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{Reloads: s.reloads}
	if s.snapshot == nil {
		return stats
	}
	stats.Providers = len(s.snapshot.providers)
	stats.EnabledProviders = len(s.snapshot.EnabledProviders())
	stats.CanonicalModels = len(s.snapshot.canonical)
	stats.Aliases = len(s.snapshot.aliases)
	stats.LoadedAt = s.snapshot.loadedAt
	return stats
}

// StartReloadWorker starts a background worker that refreshes the catalog
// on the given interval until stopCh closes. A zero or negative interval
// disables the worker.
func (s *Service) StartReloadWorker(interval time.Duration, stopCh <-chan struct{}) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
				if err := s.Reload(ctx); err != nil {
					s.logger.Error("catalog reload failed, keeping previous snapshot",
						zap.Error(err))
				}
				cancel()
			case <-stopCh:
				return
			}
		}
	}()

	s.logger.Info("started catalog reload worker",
		zap.Duration("interval", interval))
}

// buildSnapshot validates the loaded rows and assembles the lookup maps.
// Invalid rows accumulate; the load is rejected only when no valid provider
// survives, otherwise bad rows are skipped with a warning.
func buildSnapshot(providers []*models.ProviderConfig, canonical []*models.CanonicalModelConfig, aliases []*models.AliasConfig, logger *zap.Logger) (*Snapshot, error) {
	var invalid *multierror.Error

	snap := &Snapshot{
		providers: make(map[string]*models.ProviderConfig, len(providers)),
		canonical: make(map[string]*models.CanonicalModelConfig, len(canonical)),
		aliases:   make(map[string]*models.AliasConfig, len(aliases)),
		loadedAt:  time.Now(),
	}

	for _, p := range providers {
		if err := utils.ValidateStruct(p); err != nil {
			invalid = multierror.Append(invalid, fmt.Errorf("provider %q: %w", p.Name, err))
			continue
		}
		if _, dup := snap.providers[p.Name]; dup {
			invalid = multierror.Append(invalid, fmt.Errorf("provider %q: duplicate name", p.Name))
			continue
		}
		snap.providers[p.Name] = p
		snap.ordered = append(snap.ordered, p)
	}

	for _, c := range canonical {
		if err := utils.ValidateStruct(c); err != nil {
			invalid = multierror.Append(invalid, fmt.Errorf("canonical model %q: %w", c.Name, err))
			continue
		}
		snap.canonical[c.Name] = c
	}

	for _, a := range aliases {
		if !a.Enabled {
			continue
		}
		if err := utils.ValidateStruct(a); err != nil {
			invalid = multierror.Append(invalid, fmt.Errorf("alias %q: %w", a.Name, err))
			continue
		}
		snap.aliases[a.Name] = a
	}

	sort.Slice(snap.ordered, func(i, j int) bool {
		return snap.ordered[i].Name < snap.ordered[j].Name
	})

	if err := invalid.ErrorOrNil(); err != nil {
		if len(snap.providers) == 0 && len(providers) > 0 {
			return nil, fmt.Errorf("catalog rejected, no valid providers: %w", err)
		}
		logger.Warn("skipped invalid catalog rows",
			zap.Int("skipped", len(invalid.Errors)),
			zap.Error(err))
	}

	return snap, nil
}
