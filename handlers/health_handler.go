package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rudironsoni/Synaxis-sub005/utils"
)

// readinessTimeout bounds the dependency probes of one readiness check.
const readinessTimeout = 5 * time.Second

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ReadinessCatalog reports whether the first catalog snapshot has loaded.
type ReadinessCatalog interface {
	Loaded() bool
}

// HealthHandler handles liveness and readiness probes.
type HealthHandler struct {
	db      *sql.DB
	rdb     *redis.Client
	catalog ReadinessCatalog
	logger  *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db and rdb may be nil when
// the deployment runs without that dependency; their checks are then
// omitted from readiness.
func NewHealthHandler(db *sql.DB, rdb *redis.Client, cat ReadinessCatalog, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		rdb:     rdb,
		catalog: cat,
		logger:  logger,
	}
}

// HandleHealth handles GET /health
// Basic liveness check - always returns 200 if the process is serving
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /ready
// Readiness gates on the catalog having loaded at least once and on the
// configured backing stores answering a ping.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if h.catalog != nil {
		if h.catalog.Loaded() {
			checks["catalog"] = "healthy"
		} else {
			checks["catalog"] = "loading"
			allHealthy = false
		}
	}

	if h.db != nil {
		if err := h.checkDatabase(ctx); err != nil {
			h.logger.Warn("database health check failed", zap.Error(err))
			checks["database"] = "unhealthy"
			allHealthy = false
		} else {
			checks["database"] = "healthy"
		}
	}

	if h.rdb != nil {
		if err := h.rdb.Ping(ctx).Err(); err != nil {
			h.logger.Warn("redis health check failed", zap.Error(err))
			checks["redis"] = "unhealthy"
			allHealthy = false
		} else {
			checks["redis"] = "healthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

// checkDatabase checks database connectivity
func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if err := h.db.PingContext(ctx); err != nil {
		return err
	}

	var result int
	return h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
}
