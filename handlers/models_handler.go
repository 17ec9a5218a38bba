package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/rudironsoni/Synaxis-sub005/models"
	"github.com/rudironsoni/Synaxis-sub005/services/catalog"
	"github.com/rudironsoni/Synaxis-sub005/utils"
)

// ModelInfo is one entry in the OpenAI-compatible model listing.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the OpenAI-compatible list envelope.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

// ModelCatalog exposes the current catalog snapshot.
type ModelCatalog interface {
	Current() (*catalog.Snapshot, error)
}

// ModelsHandler serves the OpenAI-compatible model discovery surface.
type ModelsHandler struct {
	catalog ModelCatalog
	logger  *zap.Logger
}

// NewModelsHandler creates a new ModelsHandler
func NewModelsHandler(cat ModelCatalog, logger *zap.Logger) *ModelsHandler {
	return &ModelsHandler{
		catalog: cat,
		logger:  logger,
	}
}

// HandleListModels handles GET /v1/models. The listing covers every
// identifier the gateway accepts: canonical models, enabled aliases and
// provider-qualified paths.
func (h *ModelsHandler) HandleListModels(w http.ResponseWriter, r *http.Request) {
	snap, err := h.catalog.Current()
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	created := snap.LoadedAt().Unix()
	ids := snap.ModelIDs()
	list := ModelList{
		Object: "list",
		Data:   make([]ModelInfo, 0, len(ids)),
	}
	for _, id := range ids {
		list.Data = append(list.Data, ModelInfo{
			ID:      id,
			Object:  "model",
			Created: created,
			OwnedBy: modelOwner(id),
		})
	}

	// Bare OpenAI list shape, no gateway envelope.
	if err := utils.WriteJSON(w, http.StatusOK, list); err != nil {
		h.logger.Error("failed to write models response", zap.Error(err))
	}
}

// modelOwner attributes provider-qualified identifiers to their provider;
// canonical names and aliases are gateway abstractions owned by "system".
func modelOwner(id string) string {
	parsed := models.ParseModelID(id)
	if parsed.IsKnownProvider() {
		return parsed.Provider
	}
	return "system"
}
