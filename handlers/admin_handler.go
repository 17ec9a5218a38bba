package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rudironsoni/Synaxis-sub005/services"
	"github.com/rudironsoni/Synaxis-sub005/services/breaker"
	"github.com/rudironsoni/Synaxis-sub005/services/catalog"
	"github.com/rudironsoni/Synaxis-sub005/utils"
)

// CatalogAdmin exposes the catalog operations the admin surface drives.
type CatalogAdmin interface {
	Current() (*catalog.Snapshot, error)
	Reload(ctx context.Context) error
	GetStats() catalog.Stats
}

// BreakerAdmin exposes breaker inspection and reset.
type BreakerAdmin interface {
	State(ctx context.Context, provider string) breaker.State
	Reset(ctx context.Context, provider string) error
}

// AdminAuditLogger records operator actions on the audit trail.
type AdminAuditLogger interface {
	LogCatalogReload(details interface{}) error
	LogBreakerReset(provider string) error
}

// CatalogReloadResponse reports the catalog state after an explicit reload.
type CatalogReloadResponse struct {
	Status string        `json:"status"`
	Stats  catalog.Stats `json:"stats"`
}

// ProviderStatus is one provider's operational view for the admin surface.
type ProviderStatus struct {
	Name              string        `json:"name"`
	Enabled           bool          `json:"enabled"`
	FreeTier          bool          `json:"free_tier"`
	Tier              int           `json:"tier"`
	CostPerToken      float64       `json:"cost_per_token"`
	Models            []string      `json:"models"`
	Capabilities      []string      `json:"capabilities"`
	RequestsPerMinute int           `json:"requests_per_minute"`
	Breaker           breaker.State `json:"breaker"`
}

// ProviderListResponse wraps the provider status listing.
type ProviderListResponse struct {
	Providers []ProviderStatus `json:"providers"`
	Count     int              `json:"count"`
}

// BreakerResetResponse confirms a breaker reset with the post-reset state.
type BreakerResetResponse struct {
	Provider string        `json:"provider"`
	State    breaker.State `json:"state"`
}

// AdminHandler serves the operator surface: catalog reload, provider
// inspection and breaker resets. Errors use the plain admin envelope, not
// the OpenAI one.
type AdminHandler struct {
	catalog CatalogAdmin
	breaker BreakerAdmin
	audit   AdminAuditLogger
	logger  *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(cat CatalogAdmin, br BreakerAdmin, audit AdminAuditLogger, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		catalog: cat,
		breaker: br,
		audit:   audit,
		logger:  logger,
	}
}

// HandleReloadCatalog handles POST /admin/catalog/reload
func (h *AdminHandler) HandleReloadCatalog(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Reload(r.Context()); err != nil {
		h.logger.Error("catalog reload failed", zap.Error(err))
		if services.IsValidationError(err) {
			_ = utils.WriteBadRequest(w, err.Error(), services.GetErrorDetails(err))
			return
		}
		_ = utils.WriteInternalServerError(w, "catalog reload failed")
		return
	}

	stats := h.catalog.GetStats()
	if err := h.audit.LogCatalogReload(stats); err != nil {
		h.logger.Warn("failed to audit catalog reload", zap.Error(err))
	}

	h.logger.Info("catalog reloaded",
		zap.Int("providers", stats.Providers),
		zap.Int("canonical_models", stats.CanonicalModels),
		zap.Int("aliases", stats.Aliases))

	if err := utils.WriteOK(w, CatalogReloadResponse{Status: "reloaded", Stats: stats}); err != nil {
		h.logger.Error("failed to write reload response", zap.Error(err))
	}
}

// HandleListProviders handles GET /admin/providers
func (h *AdminHandler) HandleListProviders(w http.ResponseWriter, r *http.Request) {
	snap, err := h.catalog.Current()
	if err != nil {
		_ = utils.WriteError(w, http.StatusServiceUnavailable, "catalog not loaded", nil)
		return
	}

	ctx := r.Context()
	configured := snap.Providers()
	out := make([]ProviderStatus, 0, len(configured))
	for _, p := range configured {
		out = append(out, ProviderStatus{
			Name:              p.Name,
			Enabled:           p.Enabled,
			FreeTier:          p.FreeTier,
			Tier:              p.Tier,
			CostPerToken:      p.CostPerToken,
			Models:            p.Models,
			Capabilities:      p.Capabilities,
			RequestsPerMinute: p.RequestsPerMinute,
			Breaker:           h.breaker.State(ctx, p.Name),
		})
	}

	if err := utils.WriteOK(w, ProviderListResponse{Providers: out, Count: len(out)}); err != nil {
		h.logger.Error("failed to write provider list", zap.Error(err))
	}
}

// HandleResetBreaker handles POST /admin/providers/{name}/breaker/reset
func (h *AdminHandler) HandleResetBreaker(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		_ = utils.WriteBadRequest(w, "provider name is required", nil)
		return
	}

	// Reject unknown names when a snapshot is available so a typo does not
	// report a successful no-op reset.
	if snap, err := h.catalog.Current(); err == nil {
		if _, ok := snap.Provider(name); !ok {
			_ = utils.WriteNotFound(w, "unknown provider: "+name)
			return
		}
	}

	ctx := r.Context()
	if err := h.breaker.Reset(ctx, name); err != nil {
		h.logger.Error("breaker reset failed",
			zap.String("provider", name),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "breaker reset failed")
		return
	}

	if err := h.audit.LogBreakerReset(name); err != nil {
		h.logger.Warn("failed to audit breaker reset",
			zap.String("provider", name),
			zap.Error(err))
	}

	h.logger.Info("breaker reset", zap.String("provider", name))

	if err := utils.WriteOK(w, BreakerResetResponse{Provider: name, State: h.breaker.State(ctx, name)}); err != nil {
		h.logger.Error("failed to write breaker reset response", zap.Error(err))
	}
}
