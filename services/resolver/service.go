// Package resolver turns a requested model name or alias into the ordered
// list of provider candidates able to serve it. Resolution is pure against
// one catalog snapshot: no I/O, no locks, safe for concurrent requests.
package resolver

import (
	"strings"

	"go.uber.org/zap"

	"github.com/rudironsoni/Synaxis-sub005/models"
	"github.com/rudironsoni/Synaxis-sub005/services"
	"github.com/rudironsoni/Synaxis-sub005/services/catalog"
)

// Candidate pairs a provider configuration with the provider-specific model
// path to send upstream. The path may differ from the requested name when
// the request named a canonical model.
type Candidate struct {
	Provider  *models.ProviderConfig
	ModelPath string
}

// ModelID returns the candidate's provider-qualified identity.
func (c Candidate) ModelID() models.CanonicalModelID {
	return models.CanonicalModelID{Provider: c.Provider.Name, ModelPath: c.ModelPath}
}

// Result is the outcome of one resolution pass. An empty Candidates slice
// with a nil error means "nothing in the catalog can serve this" and maps
// to a 503 at the boundary, not a resolver failure.
type Result struct {
	// Requested is the raw model string from the request.
	Requested string

	// Expansion is the ordered model ID list after alias and combo
	// resolution, before any provider filtering.
	Expansion []models.CanonicalModelID

	// Candidates are the serving-capable providers in expansion order.
	Candidates []Candidate
}

// Empty reports whether resolution produced no usable candidates.
func (r *Result) Empty() bool {
	return r == nil || len(r.Candidates) == 0
}

// Service resolves aliases and models against the active catalog snapshot.
type Service struct {
	catalog *catalog.Service
	logger  *zap.Logger
}

// NewService creates a resolver bound to a catalog service.
func NewService(cat *catalog.Service, logger *zap.Logger) *Service {
	return &Service{
		catalog: cat,
		logger:  logger,
	}
}

// ResolveAlias expands an alias name into its ordered candidate model IDs.
// Tenant alias overrides win over global aliases; a tenant model combo wins
// over whatever the matched alias is configured with. Unknown names come
// back as a single literal model ID, and an empty name yields an empty
// list. Expansion is bounded by a visited set so cyclic alias chains
// terminate.
func (s *Service) ResolveAlias(name string, tenant *models.Tenant) []models.CanonicalModelID {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}

	snap, err := s.catalog.Current()
	if err != nil {
		// No catalog means no alias tables; the name is literal.
		snap = nil
	}

	visited := make(map[string]struct{})
	return s.expand(snap, name, tenant, visited, true)
}

// Resolve produces the provider candidates for a requested model or alias,
// dropping providers that are disabled or missing a required capability.
// An empty model is a caller bug and fails with a validation error; a
// whitespace-only model resolves to an empty candidate list.
func (s *Service) Resolve(modelIDOrAlias string, required models.Capability, tenant *models.Tenant) (*Result, error) {
	if modelIDOrAlias == "" {
		return nil, services.ErrMissingModel
	}

	result := &Result{Requested: modelIDOrAlias}

	trimmed := strings.TrimSpace(modelIDOrAlias)
	if trimmed == "" {
		return result, nil
	}

	snap, err := s.catalog.Current()
	if err != nil {
		return nil, err
	}

	visited := make(map[string]struct{})
	result.Expansion = s.expand(snap, trimmed, tenant, visited, true)

	seen := make(map[string]struct{})
	for _, id := range result.Expansion {
		for _, cand := range collectCandidates(snap, id, required) {
			key := cand.ModelID().String()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			result.Candidates = append(result.Candidates, cand)
		}
	}

	s.logger.Debug("resolved model",
		zap.String("requested", modelIDOrAlias),
		zap.Int("expansion", len(result.Expansion)),
		zap.Int("candidates", len(result.Candidates)))

	return result, nil
}

// expand recursively resolves an alias name. topLevel gates the tenant
// combo override: the combo replaces the candidates of the alias the
// request named, not the targets of aliases reached through it.
func (s *Service) expand(snap *catalog.Snapshot, name string, tenant *models.Tenant, visited map[string]struct{}, topLevel bool) []models.CanonicalModelID {
	if _, seen := visited[name]; seen {
		return nil
	}
	visited[name] = struct{}{}

	targets := aliasTargets(snap, name, tenant)
	if targets == nil {
		return []models.CanonicalModelID{models.ParseModelID(name)}
	}

	if topLevel {
		if combo := tenant.ComboModels(); combo != nil {
			targets = combo
		}
	}

	var out []models.CanonicalModelID
	for _, target := range targets {
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		out = append(out, s.expand(snap, target, tenant, visited, false)...)
	}
	return out
}

// aliasTargets returns the configured targets for an alias name, or nil
// when the name is not an alias. Tenant overrides are consulted first.
func aliasTargets(snap *catalog.Snapshot, name string, tenant *models.Tenant) []string {
	if targets := tenant.AliasTargets(name); len(targets) > 0 {
		return targets
	}
	if snap == nil {
		return nil
	}
	if alias, ok := snap.Alias(name); ok {
		return alias.Targets
	}
	return nil
}

// collectCandidates maps one resolved model ID to provider candidates.
// A canonical model config, when present for the path, is authoritative:
// its backend list defines which providers serve the model and under which
// provider-specific path.
func collectCandidates(snap *catalog.Snapshot, id models.CanonicalModelID, required models.Capability) []Candidate {
	if canonical, ok := snap.CanonicalModel(id.ModelPath); ok {
		if !canonical.CapabilitySet().Has(required) {
			return nil
		}

		var out []Candidate
		for _, backend := range canonical.BackendsFor(id.Provider) {
			provider, ok := snap.Provider(backend.Provider)
			if !ok || !provider.Enabled {
				continue
			}
			if !provider.CapabilitySet().Has(required) {
				continue
			}
			out = append(out, Candidate{Provider: provider, ModelPath: backend.ModelPath})
		}
		return out
	}

	if id.IsKnownProvider() {
		provider, ok := snap.Provider(id.Provider)
		if !ok || !provider.Enabled {
			return nil
		}
		if !provider.ServesModel(id.ModelPath) {
			return nil
		}
		if !provider.CapabilitySet().Has(required) {
			return nil
		}
		return []Candidate{{Provider: provider, ModelPath: id.ModelPath}}
	}

	// Unknown provider and no canonical config: any enabled provider that
	// advertises the bare path may serve it.
	var out []Candidate
	for _, provider := range snap.EnabledProviders() {
		if !provider.ServesModel(id.ModelPath) {
			continue
		}
		if !provider.CapabilitySet().Has(required) {
			continue
		}
		out = append(out, Candidate{Provider: provider, ModelPath: id.ModelPath})
	}
	return out
}
